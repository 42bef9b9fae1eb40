package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"grantvault/apperrors"
	"grantvault/models"
	"grantvault/services"
	"grantvault/utils"
)

// DocumentDescriptor is the API-facing projection of a document.
type DocumentDescriptor struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Size            int64             `json:"size"`
	SizeFormatted   string            `json:"size_formatted"`
	ContentType     string            `json:"content_type"`
	Checksum        string            `json:"checksum"`
	Category        string            `json:"category"`
	Tags            map[string]string `json:"tags,omitempty"`
	Status          string            `json:"status"`
	Visibility      string            `json:"visibility"`
	Sensitivity     string            `json:"sensitivity"`
	Version         int               `json:"version"`
	IsLatestVersion bool              `json:"is_latest_version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	DeletedAt       *time.Time        `json:"deleted_at,omitempty"`
	DownloadURL     string            `json:"download_url"`
}

func toDescriptor(doc *models.Document) DocumentDescriptor {
	return DocumentDescriptor{
		ID:              doc.ID.Hex(),
		Name:            doc.Name,
		Size:            doc.Size,
		SizeFormatted:   utils.FormatBytes(doc.Size),
		ContentType:     doc.ContentType,
		Checksum:        doc.Checksum,
		Category:        doc.Category,
		Tags:            doc.Tags,
		Status:          doc.Status,
		Visibility:      doc.Visibility,
		Sensitivity:     doc.Sensitivity,
		Version:         doc.Version,
		IsLatestVersion: doc.IsLatestVersion,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		DeletedAt:       doc.DeletedAt,
		DownloadURL:     "/api/documents/" + doc.ID.Hex() + "/download",
	}
}

func toDescriptors(docs []models.Document) []DocumentDescriptor {
	descriptors := make([]DocumentDescriptor, 0, len(docs))
	for i := range docs {
		descriptors = append(descriptors, toDescriptor(&docs[i]))
	}
	return descriptors
}

type DocumentController struct {
	documentService *services.DocumentService
	versionService  *services.VersionService
	quotaService    *services.QuotaService
	maxFileSize     int64
}

func NewDocumentController(documentService *services.DocumentService, versionService *services.VersionService, quotaService *services.QuotaService, maxFileSize int64) *DocumentController {
	return &DocumentController{
		documentService: documentService,
		versionService:  versionService,
		quotaService:    quotaService,
		maxFileSize:     maxFileSize,
	}
}

// Upload handles single and multi-file uploads. Each file's outcome is
// reported independently; the batch never fails atomically.
func (ctrl *DocumentController) Upload(c *gin.Context) {
	userID := c.GetString("userId")

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, "invalid multipart form")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		utils.BadRequestResponse(c, "no files to upload")
		return
	}

	var tags map[string]string
	if raw := c.PostForm("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			utils.BadRequestResponse(c, "tags must be a JSON object of strings")
			return
		}
	}
	clientID, err := optionalObjectID(c.PostForm("client_id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid client_id")
		return
	}
	grantID, err := optionalObjectID(c.PostForm("grant_id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid grant_id")
		return
	}

	var reqs []services.UploadRequest
	result := &services.BatchUploadResult{}
	for _, fileHeader := range files {
		if fileHeader.Size > ctrl.maxFileSize {
			result.Failed = append(result.Failed, services.UploadFailure{
				Name: fileHeader.Filename,
				Error: apperrors.NewQuota(apperrors.CodeSizeExceeded, fileHeader.Size, ctrl.maxFileSize,
					"file exceeds maximum allowed size"),
			})
			continue
		}

		file, err := fileHeader.Open()
		if err != nil {
			result.Failed = append(result.Failed, services.UploadFailure{
				Name:  fileHeader.Filename,
				Error: apperrors.Clone(apperrors.ErrValidation, "failed to open uploaded file"),
			})
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			result.Failed = append(result.Failed, services.UploadFailure{
				Name:  fileHeader.Filename,
				Error: apperrors.Clone(apperrors.ErrValidation, "failed to read uploaded file"),
			})
			continue
		}

		reqs = append(reqs, services.UploadRequest{
			Data:         data,
			OriginalName: fileHeader.Filename,
			ContentType:  fileHeader.Header.Get("Content-Type"),
			Category:     c.PostForm("category"),
			Description:  c.PostForm("description"),
			Tags:         tags,
			Sensitivity:  c.PostForm("sensitivity"),
			Visibility:   c.PostForm("visibility"),
			ClientID:     clientID,
			GrantID:      grantID,
		})
	}

	batch := ctrl.documentService.UploadMany(c.Request.Context(), userID, reqs)
	result.Successful = batch.Successful
	result.Failed = append(result.Failed, batch.Failed...)

	response := gin.H{
		"successful": toDescriptors(result.Successful),
		"failed":     result.Failed,
	}
	if len(result.Successful) == 0 && len(result.Failed) > 0 {
		utils.ErrorResponse(c, result.Failed[0].Error.Status, "upload failed", response)
		return
	}
	utils.CreatedResponse(c, "upload processed", response)
}

func (ctrl *DocumentController) List(c *gin.Context) {
	docs, err := ctrl.documentService.List(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "documents retrieved", toDescriptors(docs))
}

func (ctrl *DocumentController) ListShared(c *gin.Context) {
	docs, err := ctrl.documentService.ListSharedWith(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "shared documents retrieved", toDescriptors(docs))
}

func (ctrl *DocumentController) ListTrash(c *gin.Context) {
	docs, err := ctrl.documentService.ListTrash(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "trash retrieved", toDescriptors(docs))
}

func (ctrl *DocumentController) Get(c *gin.Context) {
	doc, err := ctrl.documentService.Get(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "document retrieved", toDescriptor(doc))
}

// Download streams the document bytes with content headers and a suggested
// filename.
func (ctrl *DocumentController) Download(c *gin.Context) {
	stream, doc, err := ctrl.documentService.Download(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	defer stream.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.OriginalName),
	}
	c.DataFromReader(http.StatusOK, doc.Size, doc.ContentType, stream, headers)
}

func (ctrl *DocumentController) Update(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		utils.BadRequestResponse(c, "invalid JSON body")
		return
	}

	doc, err := ctrl.documentService.Update(c.Request.Context(), c.Param("id"), c.GetString("userId"), patch)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "document updated", toDescriptor(doc))
}

func (ctrl *DocumentController) SoftDelete(c *gin.Context) {
	doc, err := ctrl.documentService.SoftDelete(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "document moved to trash", toDescriptor(doc))
}

func (ctrl *DocumentController) Restore(c *gin.Context) {
	doc, err := ctrl.documentService.Restore(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "document restored", toDescriptor(doc))
}

func (ctrl *DocumentController) PermanentDelete(c *gin.Context) {
	err := ctrl.documentService.PermanentDelete(c.Request.Context(), c.Param("id"), c.GetString("userId"), c.GetString("role"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "document permanently deleted", nil)
}

// CreateVersion uploads new bytes as the next version of the document.
func (ctrl *DocumentController) CreateVersion(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "file is required")
		return
	}
	if fileHeader.Size > ctrl.maxFileSize {
		utils.RespondError(c, apperrors.NewQuota(apperrors.CodeSizeExceeded, fileHeader.Size, ctrl.maxFileSize,
			"file exceeds maximum allowed size"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, "failed to open uploaded file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, "failed to read uploaded file")
		return
	}

	var tags map[string]string
	if raw := c.PostForm("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			utils.BadRequestResponse(c, "tags must be a JSON object of strings")
			return
		}
	}

	doc, err := ctrl.versionService.CreateVersion(c.Request.Context(), c.Param("id"), c.GetString("userId"), data, services.VersionMetadata{
		ChangeNote:  c.PostForm("change_note"),
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		Tags:        tags,
		Sensitivity: c.PostForm("sensitivity"),
		Visibility:  c.PostForm("visibility"),
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.CreatedResponse(c, "version created", toDescriptor(doc))
}

func (ctrl *DocumentController) ListChain(c *gin.Context) {
	chain, err := ctrl.versionService.ListChain(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "version chain retrieved", toDescriptors(chain))
}

// Usage reports the actor's storage accounting.
func (ctrl *DocumentController) Usage(c *gin.Context) {
	user, err := ctrl.quotaService.Usage(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "usage retrieved", gin.H{
		"used_storage":           user.UsedStorage,
		"used_storage_formatted": utils.FormatBytes(user.UsedStorage),
		"document_count":         user.DocumentCount,
	})
}

func optionalObjectID(raw string) (*primitive.ObjectID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
