package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"grantvault/apperrors"
)

// PurgeFailure records one orphan that could not be removed.
type PurgeFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// PurgeResult reports the outcome of a purge batch; individual failures do
// not abort the batch.
type PurgeResult struct {
	DeletedCount int            `json:"deleted_count"`
	Failed       []PurgeFailure `json:"failed,omitempty"`
}

// MaintenanceService reconciles the blob store against the document
// metadata store. It runs on demand from an administrator action; there is
// no background scheduler.
type MaintenanceService struct {
	documentCollection *mongo.Collection
	blobStore          *BlobStore
	logger             *zap.Logger
}

func NewMaintenanceService(db *mongo.Database, blobStore *BlobStore, logger *zap.Logger) *MaintenanceService {
	return &MaintenanceService{
		documentCollection: db.Collection("documents"),
		blobStore:          blobStore,
		logger:             logger,
	}
}

// FindOrphans returns blobs with no document row referencing them, either
// as the current blob or through a version-history entry. History-referenced
// blobs stay alive until their row is permanently deleted.
func (s *MaintenanceService) FindOrphans(ctx context.Context) ([]BlobRef, error) {
	infos, err := s.blobStore.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	var orphans []BlobRef
	for _, info := range infos {
		count, err := s.documentCollection.CountDocuments(ctx, bson.M{"$or": bson.A{
			bson.M{"blob_name": info.Name},
			bson.M{"versions.blob_name": info.Name},
		}})
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to count references for "+info.Name)
		}
		if count == 0 {
			orphans = append(orphans, BlobRef{
				Name:        info.Name,
				Length:      info.Length,
				ContentType: info.ContentType,
			})
		}
	}
	return orphans, nil
}

// Purge deletes each orphan from the blob store, collecting per-item
// failures instead of aborting.
func (s *MaintenanceService) Purge(ctx context.Context, orphans []BlobRef) *PurgeResult {
	result := &PurgeResult{}
	for _, orphan := range orphans {
		if err := s.blobStore.Delete(ctx, orphan.Name); err != nil {
			s.logger.Warn("failed to purge orphan blob", zap.String("blob_name", orphan.Name), zap.Error(err))
			result.Failed = append(result.Failed, PurgeFailure{Name: orphan.Name, Error: err.Error()})
			continue
		}
		result.DeletedCount++
	}
	return result
}

// Reconcile finds and purges orphans in one pass.
func (s *MaintenanceService) Reconcile(ctx context.Context) (*PurgeResult, error) {
	orphans, err := s.FindOrphans(ctx)
	if err != nil {
		return nil, err
	}
	result := s.Purge(ctx, orphans)
	s.logger.Info("reconciliation complete",
		zap.Int("orphans_found", len(orphans)),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}
