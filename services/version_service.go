package services

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"grantvault/apperrors"
	"grantvault/models"
)

// VersionMetadata carries the change note and optional overrides for the
// new version; unset overrides inherit from the superseded head.
type VersionMetadata struct {
	ChangeNote  string
	Category    string
	Description string
	Tags        map[string]string
	Sensitivity string
	Visibility  string
}

// VersionService creates new versions linked to a parent document and keeps
// the version-history ledger on the superseded rows.
type VersionService struct {
	documentCollection *mongo.Collection
	blobStore          *BlobStore
	quotaService       *QuotaService
	logger             *zap.Logger
}

func NewVersionService(db *mongo.Database, blobStore *BlobStore, quotaService *QuotaService, logger *zap.Logger) *VersionService {
	return &VersionService{
		documentCollection: db.Collection("documents"),
		blobStore:          blobStore,
		quotaService:       quotaService,
		logger:             logger,
	}
}

// CreateVersion supersedes the chain head reachable from parentID with a
// new document row holding newData. The head is archived, a history entry
// capturing the head's own pre-archive blob is appended to it, and the new
// row becomes the single latest version of the chain. The archived head's
// bytes stay counted against quota. Failures after the blob write unwind
// the steps already taken.
func (s *VersionService) CreateVersion(ctx context.Context, parentID, actorID string, newData []byte, meta VersionMetadata) (*models.Document, error) {
	if len(newData) == 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "empty file")
	}

	parentObjID, err := primitive.ObjectIDFromHex(parentID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}
	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	var parent models.Document
	err = s.documentCollection.FindOne(ctx, bson.M{
		"_id":    parentObjID,
		"status": bson.M{"$ne": models.StatusDeleted},
	}).Decode(&parent)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load document")
	}

	if parent.OwnerID != actorObjID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "only the owner may create versions")
	}

	// Chains are flat: every version row points at the chain root, so the
	// head must be resolved from whichever row the caller named.
	rootID := parentObjID
	if parent.ParentDocumentID != nil {
		rootID = *parent.ParentDocumentID
	}
	head, err := s.chainHead(ctx, rootID)
	if err != nil {
		return nil, err
	}

	size := int64(len(newData))
	if err := s.quotaService.Authorize(ctx, actorID, size); err != nil {
		return nil, err
	}

	identity := Identify(newData, head.OriginalName)
	ref, err := s.blobStore.Put(ctx, newData, identity.StorageName, head.ContentType, map[string]string{
		"checksum":      identity.ChecksumHex,
		"original_name": head.OriginalName,
		"owner_id":      actorID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	child := models.Document{
		ID:               primitive.NewObjectID(),
		OwnerID:          head.OwnerID,
		Name:             head.Name,
		OriginalName:     head.OriginalName,
		Size:             ref.Length,
		ContentType:      head.ContentType,
		Checksum:         identity.ChecksumHex,
		BlobName:         ref.Name,
		Category:         inherit(meta.Category, head.Category),
		Description:      inherit(meta.Description, head.Description),
		Tags:             inheritTags(meta.Tags, head.Tags),
		Sensitivity:      inherit(meta.Sensitivity, head.Sensitivity),
		Visibility:       inherit(meta.Visibility, head.Visibility),
		Status:           models.StatusDraft,
		WorkflowStage:    head.WorkflowStage,
		ClientID:         head.ClientID,
		GrantID:          head.GrantID,
		Version:          head.Version + 1,
		IsLatestVersion:  true,
		ParentDocumentID: &rootID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if _, err := s.documentCollection.InsertOne(ctx, child); err != nil {
		s.compensateBlob(ref.Name)
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to save new version")
	}

	historyEntry := models.VersionHistoryEntry{
		Version:    head.Version,
		BlobName:   head.BlobName,
		Size:       head.Size,
		ChangeNote: meta.ChangeNote,
		ActorID:    actorObjID,
		CreatedAt:  now,
	}
	_, err = s.documentCollection.UpdateOne(ctx, bson.M{"_id": head.ID}, archiveHeadUpdate(historyEntry, now))
	if err != nil {
		if _, delErr := s.documentCollection.DeleteOne(ctx, bson.M{"_id": child.ID}); delErr != nil {
			s.logger.Error("failed to unwind new version row", zap.String("document_id", child.ID.Hex()), zap.Error(delErr))
		}
		s.compensateBlob(ref.Name)
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to archive superseded version")
	}

	// The archived head's bytes remain counted; only the new bytes are added.
	// A commit failure unwinds the archive, the new row and the blob, the
	// same way the upload workflow does.
	if err := s.quotaService.Commit(ctx, actorID, size, 1); err != nil {
		if _, revErr := s.documentCollection.UpdateOne(ctx, bson.M{"_id": head.ID},
			revertArchiveUpdate(head, time.Now().UTC())); revErr != nil {
			s.logger.Error("failed to restore superseded version",
				zap.String("document_id", head.ID.Hex()), zap.Error(revErr))
		}
		if _, delErr := s.documentCollection.DeleteOne(ctx, bson.M{"_id": child.ID}); delErr != nil {
			s.logger.Error("failed to unwind new version row", zap.String("document_id", child.ID.Hex()), zap.Error(delErr))
		}
		s.compensateBlob(ref.Name)
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to commit quota")
	}

	return &child, nil
}

// archiveHeadUpdate marks the superseded head archived and appends the
// history entry recording its pre-archive blob.
func archiveHeadUpdate(entry models.VersionHistoryEntry, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"is_latest_version": false,
			"status":            models.StatusArchived,
			"updated_at":        now,
		},
		"$push": bson.M{"versions": entry},
	}
}

// revertArchiveUpdate undoes archiveHeadUpdate when a later step fails: the
// head becomes latest again with its prior status and the pushed history
// entry is removed.
func revertArchiveUpdate(head *models.Document, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"is_latest_version": true,
			"status":            head.Status,
			"updated_at":        now,
		},
		"$pull": bson.M{"versions": bson.M{"version": head.Version}},
	}
}

// ListChain returns the document and every document whose parent is that
// document, sorted by version ascending. The actor needs at least view
// access on the named document.
func (s *VersionService) ListChain(ctx context.Context, documentID, actorID string) ([]models.Document, error) {
	docObjID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}
	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	cursor, err := s.documentCollection.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"_id": docObjID},
		bson.M{"parent_document_id": docObjID},
	}})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list version chain")
	}
	defer cursor.Close(ctx)

	var chain []models.Document
	if err := cursor.All(ctx, &chain); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to decode version chain")
	}

	target := findInChain(chain, docObjID)
	if target == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	}
	decision := resolveAccess(target, actorObjID, time.Now().UTC())
	if !PermissionCovers(decision.Permission, models.PermissionView) {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "view access required")
	}

	sortChain(chain)
	return chain, nil
}

// findInChain returns the chain member with the given ID, or nil.
func findInChain(chain []models.Document, id primitive.ObjectID) *models.Document {
	for i := range chain {
		if chain[i].ID == id {
			return &chain[i]
		}
	}
	return nil
}

func (s *VersionService) chainHead(ctx context.Context, rootID primitive.ObjectID) (*models.Document, error) {
	var head models.Document
	err := s.documentCollection.FindOne(ctx, bson.M{
		"$or": bson.A{
			bson.M{"_id": rootID},
			bson.M{"parent_document_id": rootID},
		},
		"is_latest_version": true,
	}).Decode(&head)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrConflict, "version chain has no latest version")
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to resolve chain head")
	}
	return &head, nil
}

func (s *VersionService) compensateBlob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobStore.Delete(ctx, name); err != nil {
		s.logger.Warn("failed to unwind blob write", zap.String("blob_name", name), zap.Error(err))
	}
}

// sortChain orders documents by version ascending.
func sortChain(chain []models.Document) {
	sort.Slice(chain, func(i, j int) bool {
		return chain[i].Version < chain[j].Version
	})
}

func inherit(override, parent string) string {
	if override != "" {
		return override
	}
	return parent
}

func inheritTags(override, parent map[string]string) map[string]string {
	if override != nil {
		return override
	}
	return parent
}
