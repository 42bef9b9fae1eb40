package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"grantvault/apperrors"
	"grantvault/models"
)

// allowedContentTypes is the bounded allow-list for uploads.
var allowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain":       true,
	"text/csv":         true,
	"application/json": true,
	"image/jpeg":       true,
	"image/png":        true,
	"image/gif":        true,
}

// documentUpdateFields is the single allow-list of patchable metadata
// fields, shared by the update and validation paths.
var documentUpdateFields = map[string]bool{
	"category":       true,
	"description":    true,
	"tags":           true,
	"status":         true,
	"sensitivity":    true,
	"visibility":     true,
	"workflow_stage": true,
	"client_id":      true,
	"grant_id":       true,
}

var validStatuses = map[string]bool{
	models.StatusDraft:    true,
	models.StatusInReview: true,
	models.StatusApproved: true,
	models.StatusRejected: true,
	models.StatusArchived: true,
}

var validVisibilities = map[string]bool{
	models.VisibilityPrivate: true,
	models.VisibilityShared:  true,
	models.VisibilityPublic:  true,
}

var validSensitivities = map[string]bool{
	models.SensitivityStandard:     true,
	models.SensitivityConfidential: true,
	models.SensitivityRestricted:   true,
}

// filterUpdatePatch keeps only allow-listed fields and validates enum
// values. Lifecycle transitions to deleted are reserved for SoftDelete.
func filterUpdatePatch(patch map[string]interface{}) (bson.M, error) {
	filtered := bson.M{}
	for key, value := range patch {
		if !documentUpdateFields[key] {
			continue
		}
		switch key {
		case "status":
			status, ok := value.(string)
			if !ok || !validStatuses[status] {
				return nil, apperrors.Clone(apperrors.ErrValidation, "invalid status value")
			}
		case "visibility":
			visibility, ok := value.(string)
			if !ok || !validVisibilities[visibility] {
				return nil, apperrors.Clone(apperrors.ErrValidation, "invalid visibility value")
			}
		case "sensitivity":
			sensitivity, ok := value.(string)
			if !ok || !validSensitivities[sensitivity] {
				return nil, apperrors.Clone(apperrors.ErrValidation, "invalid sensitivity value")
			}
		}
		filtered[key] = value
	}
	if len(filtered) == 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "no updatable fields in patch")
	}
	return filtered, nil
}

// UploadRequest carries one file's bytes and descriptive metadata.
type UploadRequest struct {
	Data         []byte
	OriginalName string
	ContentType  string
	Category     string
	Description  string
	Tags         map[string]string
	Sensitivity  string
	Visibility   string
	ClientID     *primitive.ObjectID
	GrantID      *primitive.ObjectID
}

// UploadFailure records one item's outcome in a multi-file upload.
type UploadFailure struct {
	Name  string           `json:"name"`
	Error *apperrors.Error `json:"error"`
}

// BatchUploadResult reports each item's outcome independently.
type BatchUploadResult struct {
	Successful []models.Document `json:"successful"`
	Failed     []UploadFailure   `json:"failed"`
}

// DocumentService is the durable record keeper for logical documents and
// the orchestrator of the upload and lifecycle workflows.
type DocumentService struct {
	documentCollection *mongo.Collection
	blobStore          *BlobStore
	quotaService       *QuotaService
	logger             *zap.Logger
}

func NewDocumentService(db *mongo.Database, blobStore *BlobStore, quotaService *QuotaService, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		documentCollection: db.Collection("documents"),
		blobStore:          blobStore,
		quotaService:       quotaService,
		logger:             logger,
	}
}

// Upload validates, authorizes and persists a single document: quota check,
// blob identity, chunked blob write, metadata row, quota commit. Later-step
// failures unwind the earlier steps.
func (s *DocumentService) Upload(ctx context.Context, actorID string, req UploadRequest) (*models.Document, error) {
	if len(req.Data) == 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "empty file")
	}
	if !allowedContentTypes[req.ContentType] {
		return nil, apperrors.Clone(apperrors.ErrValidation, "content type not allowed: "+req.ContentType)
	}

	ownerObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	size := int64(len(req.Data))
	if err := s.quotaService.Authorize(ctx, actorID, size); err != nil {
		return nil, err
	}

	identity := Identify(req.Data, req.OriginalName)
	ref, err := s.blobStore.Put(ctx, req.Data, identity.StorageName, req.ContentType, map[string]string{
		"checksum":      identity.ChecksumHex,
		"original_name": req.OriginalName,
		"owner_id":      actorID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	sensitivity := req.Sensitivity
	if sensitivity == "" {
		sensitivity = models.SensitivityStandard
	}

	doc := models.Document{
		ID:              primitive.NewObjectID(),
		OwnerID:         ownerObjID,
		Name:            req.OriginalName,
		OriginalName:    req.OriginalName,
		Size:            ref.Length,
		ContentType:     req.ContentType,
		Checksum:        identity.ChecksumHex,
		BlobName:        ref.Name,
		Category:        req.Category,
		Description:     req.Description,
		Tags:            req.Tags,
		Sensitivity:     sensitivity,
		Visibility:      visibility,
		Status:          models.StatusDraft,
		ClientID:        req.ClientID,
		GrantID:         req.GrantID,
		Version:         1,
		IsLatestVersion: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := s.documentCollection.InsertOne(ctx, doc); err != nil {
		s.compensateBlob(ref.Name)
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to save document metadata")
	}

	if err := s.quotaService.Commit(ctx, actorID, size, 1); err != nil {
		// Unwind metadata and blob rather than leaving usage unaccounted.
		if _, delErr := s.documentCollection.DeleteOne(ctx, bson.M{"_id": doc.ID}); delErr != nil {
			s.logger.Error("quota commit and metadata unwind both failed",
				zap.String("document_id", doc.ID.Hex()), zap.Error(delErr))
		}
		s.compensateBlob(ref.Name)
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to commit quota")
	}

	return &doc, nil
}

// UploadMany processes each file independently and reports per-item
// outcomes instead of failing the batch atomically.
func (s *DocumentService) UploadMany(ctx context.Context, actorID string, reqs []UploadRequest) *BatchUploadResult {
	result := &BatchUploadResult{}
	for _, req := range reqs {
		doc, err := s.Upload(ctx, actorID, req)
		if err != nil {
			result.Failed = append(result.Failed, UploadFailure{
				Name:  req.OriginalName,
				Error: apperrors.FromError(err),
			})
			continue
		}
		result.Successful = append(result.Successful, *doc)
	}
	return result
}

// Get returns the document if the actor has at least view access.
func (s *DocumentService) Get(ctx context.Context, documentID, actorID string) (*models.Document, error) {
	return s.getWithAccess(ctx, documentID, actorID, models.PermissionView)
}

// Download streams the document's bytes if the actor has at least download
// access. The returned reader re-verifies the stored checksum as the bytes
// flow and fails at EOF on a mismatch.
func (s *DocumentService) Download(ctx context.Context, documentID, actorID string) (io.ReadCloser, *models.Document, error) {
	doc, err := s.getWithAccess(ctx, documentID, actorID, models.PermissionDownload)
	if err != nil {
		return nil, nil, err
	}

	stream, _, err := s.blobStore.Get(ctx, doc.BlobName)
	if err != nil {
		return nil, nil, err
	}
	return newChecksumReader(stream, doc.Checksum), doc, nil
}

// List returns the actor's own non-deleted documents.
func (s *DocumentService) List(ctx context.Context, actorID string) ([]models.Document, error) {
	ownerObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}
	return s.find(ctx, bson.M{
		"owner_id": ownerObjID,
		"status":   bson.M{"$ne": models.StatusDeleted},
	}, bson.M{"created_at": -1})
}

// ListSharedWith returns non-deleted documents carrying an unexpired grant
// for the actor.
func (s *DocumentService) ListSharedWith(ctx context.Context, actorID string) ([]models.Document, error) {
	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}
	now := time.Now().UTC()
	return s.find(ctx, bson.M{
		"status": bson.M{"$ne": models.StatusDeleted},
		"shares": bson.M{"$elemMatch": bson.M{
			"grantee_id": actorObjID,
			"$or": bson.A{
				bson.M{"expires_at": bson.M{"$exists": false}},
				bson.M{"expires_at": nil},
				bson.M{"expires_at": bson.M{"$gt": now}},
			},
		}},
	}, bson.M{"updated_at": -1})
}

// ListTrash returns the actor's soft-deleted documents.
func (s *DocumentService) ListTrash(ctx context.Context, actorID string) ([]models.Document, error) {
	ownerObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}
	return s.find(ctx, bson.M{
		"owner_id": ownerObjID,
		"status":   models.StatusDeleted,
	}, bson.M{"deleted_at": -1})
}

// Update patches allow-listed metadata fields. The actor must be the owner
// or hold edit/manage through a grant.
func (s *DocumentService) Update(ctx context.Context, documentID, actorID string, patch map[string]interface{}) (*models.Document, error) {
	doc, err := s.loadLive(ctx, documentID)
	if err != nil {
		return nil, err
	}

	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}
	decision := resolveAccess(doc, actorObjID, time.Now().UTC())
	if !PermissionCovers(decision.Permission, models.PermissionEdit) {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "edit access required")
	}

	filtered, err := filterUpdatePatch(patch)
	if err != nil {
		return nil, err
	}
	filtered["updated_at"] = time.Now().UTC()

	var updated models.Document
	err = s.documentCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": filtered},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to update document")
	}
	return &updated, nil
}

// SoftDelete marks the document deleted without touching its blob and
// releases its quota. Requires ownership.
func (s *DocumentService) SoftDelete(ctx context.Context, documentID, actorID string) (*models.Document, error) {
	doc, err := s.loadOwned(ctx, documentID, actorID)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted() {
		return nil, apperrors.Clone(apperrors.ErrConflict, "document is already deleted")
	}

	now := time.Now().UTC()
	var updated models.Document
	err = s.documentCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"status":     models.StatusDeleted,
			"deleted_at": now,
			"updated_at": now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to delete document")
	}

	if err := s.quotaService.Commit(ctx, actorID, -doc.Size, -1); err != nil {
		s.logger.Error("failed to release quota after soft delete",
			zap.String("document_id", doc.ID.Hex()), zap.Error(err))
	}
	return &updated, nil
}

// Restore reverts a soft delete. Requires ownership and that the backing
// blob still exists.
func (s *DocumentService) Restore(ctx context.Context, documentID, actorID string) (*models.Document, error) {
	doc, err := s.loadOwned(ctx, documentID, actorID)
	if err != nil {
		return nil, err
	}
	if !doc.IsDeleted() {
		return nil, apperrors.Clone(apperrors.ErrConflict, "document is not deleted")
	}

	if _, err := s.blobStore.Stat(ctx, doc.BlobName); err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound.Code) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "backing blob no longer exists")
		}
		return nil, err
	}

	var updated models.Document
	err = s.documentCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": doc.ID},
		bson.M{
			"$set":   bson.M{"status": models.StatusDraft, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"deleted_at": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to restore document")
	}

	if err := s.quotaService.Commit(ctx, actorID, doc.Size, 1); err != nil {
		s.logger.Error("failed to reclaim quota after restore",
			zap.String("document_id", doc.ID.Hex()), zap.Error(err))
	}
	return &updated, nil
}

// PermanentDelete removes both the metadata row and the backing blob.
// Allowed for the owner or an administrator; a blob-deletion failure is
// logged but does not block metadata removal.
func (s *DocumentService) PermanentDelete(ctx context.Context, documentID, actorID, actorRole string) error {
	docObjID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}
	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	var doc models.Document
	err = s.documentCollection.FindOne(ctx, bson.M{"_id": docObjID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return apperrors.Clone(apperrors.ErrNotFound, "document not found")
	} else if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load document")
	}

	isOwner := doc.OwnerID == actorObjID
	if !isOwner && actorRole != models.RoleAdmin {
		return apperrors.Clone(apperrors.ErrForbidden, "only the owner or an administrator may permanently delete")
	}

	if err := s.blobStore.Delete(ctx, doc.BlobName); err != nil {
		s.logger.Warn("blob deletion failed during permanent delete, proceeding with metadata removal",
			zap.String("document_id", doc.ID.Hex()),
			zap.String("blob_name", doc.BlobName),
			zap.Error(err))
	}

	if _, err := s.documentCollection.DeleteOne(ctx, bson.M{"_id": docObjID}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to delete document metadata")
	}

	// A soft-deleted document already released its quota.
	if isOwner && !doc.IsDeleted() {
		if err := s.quotaService.Commit(ctx, doc.OwnerID.Hex(), -doc.Size, -1); err != nil {
			s.logger.Error("failed to release quota after permanent delete",
				zap.String("document_id", doc.ID.Hex()), zap.Error(err))
		}
	}
	return nil
}

func (s *DocumentService) getWithAccess(ctx context.Context, documentID, actorID, required string) (*models.Document, error) {
	doc, err := s.loadLive(ctx, documentID)
	if err != nil {
		return nil, err
	}

	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}
	decision := resolveAccess(doc, actorObjID, time.Now().UTC())
	if !decision.CanAccess {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "access denied")
	}
	if !PermissionCovers(decision.Permission, required) {
		return nil, apperrors.Clone(apperrors.ErrForbidden, required+" access required")
	}
	return doc, nil
}

func (s *DocumentService) loadLive(ctx context.Context, documentID string) (*models.Document, error) {
	docObjID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}

	var doc models.Document
	err = s.documentCollection.FindOne(ctx, bson.M{
		"_id":    docObjID,
		"status": bson.M{"$ne": models.StatusDeleted},
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load document")
	}
	return &doc, nil
}

func (s *DocumentService) loadOwned(ctx context.Context, documentID, actorID string) (*models.Document, error) {
	docObjID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}
	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	var doc models.Document
	err = s.documentCollection.FindOne(ctx, bson.M{"_id": docObjID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load document")
	}
	if doc.OwnerID != actorObjID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "ownership required")
	}
	return &doc, nil
}

func (s *DocumentService) find(ctx context.Context, filter bson.M, sort bson.M) ([]models.Document, error) {
	cursor, err := s.documentCollection.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list documents")
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to decode documents")
	}
	return docs, nil
}

// compensateBlob deletes a blob written by a workflow whose later steps
// failed. Best effort; leftovers become orphans for reconciliation.
func (s *DocumentService) compensateBlob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobStore.Delete(ctx, name); err != nil {
		s.logger.Warn("failed to unwind blob write", zap.String("blob_name", name), zap.Error(err))
	}
}

// checksumReader re-verifies content integrity while streaming. On EOF it
// compares the recomputed digest against the expected one.
type checksumReader struct {
	inner    io.ReadCloser
	hasher   hash.Hash
	expected string
}

func newChecksumReader(inner io.ReadCloser, expectedHex string) io.ReadCloser {
	return &checksumReader{inner: inner, hasher: sha256.New(), expected: expectedHex}
}

func (r *checksumReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.hasher.Write(p[:n])
	}
	if err == io.EOF {
		if hex.EncodeToString(r.hasher.Sum(nil)) != r.expected {
			return n, apperrors.Clone(apperrors.ErrInternal, "checksum mismatch on fetched bytes")
		}
	}
	return n, err
}

func (r *checksumReader) Close() error {
	return r.inner.Close()
}
