package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"grantvault/apperrors"
	"grantvault/models"
)

// QuotaLimits holds the deployment-wide quota tiers. A non-zero per-user
// override on the user record takes precedence over the role default.
type QuotaLimits struct {
	MaxFileSize       int64
	BaseStorage       int64
	ElevatedStorage   int64
	BaseDocuments     int64
	ElevatedDocuments int64
}

// QuotaService tracks per-user bytes-used and document-count against limits
// and authorizes uploads before any blob write happens.
type QuotaService struct {
	userCollection *mongo.Collection
	limits         QuotaLimits
}

func NewQuotaService(db *mongo.Database, limits QuotaLimits) *QuotaService {
	return &QuotaService{
		userCollection: db.Collection("users"),
		limits:         limits,
	}
}

// Authorize decides whether the user may store candidateBytes more bytes and
// one more document. Denials carry the numeric required/available amounts.
// The check is read-then-write without an optimistic token; concurrent
// uploads can transiently exceed the limit, which is accepted.
func (s *QuotaService) Authorize(ctx context.Context, userID string, candidateBytes int64) error {
	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		return err
	}
	return evaluateQuota(user, s.limits, candidateBytes)
}

// evaluateQuota applies the quota decision for a fetched user.
func evaluateQuota(user *models.User, limits QuotaLimits, candidateBytes int64) error {
	if limits.MaxFileSize > 0 && candidateBytes > limits.MaxFileSize {
		return apperrors.NewQuota(apperrors.CodeSizeExceeded, candidateBytes, limits.MaxFileSize,
			"file exceeds maximum allowed size")
	}

	storageLimit := user.MaxStorage
	if storageLimit == 0 {
		if user.IsElevated() {
			storageLimit = limits.ElevatedStorage
		} else {
			storageLimit = limits.BaseStorage
		}
	}

	documentLimit := user.MaxDocuments
	if documentLimit == 0 {
		if user.IsElevated() {
			documentLimit = limits.ElevatedDocuments
		} else {
			documentLimit = limits.BaseDocuments
		}
	}

	if user.UsedStorage+candidateBytes > storageLimit {
		available := storageLimit - user.UsedStorage
		if available < 0 {
			available = 0
		}
		return apperrors.NewQuota(apperrors.CodeQuotaExceeded, candidateBytes, available,
			"storage quota exceeded")
	}

	if user.DocumentCount+1 > documentLimit {
		available := documentLimit - user.DocumentCount
		if available < 0 {
			available = 0
		}
		return apperrors.NewQuota(apperrors.CodeDocumentCountExceeded, 1, available,
			"document count limit exceeded")
	}

	return nil
}

// Commit applies the usage delta after the blob and metadata writes have
// both succeeded; it is never applied speculatively. Counters are floored
// at zero so deletes can never drive usage negative.
func (s *QuotaService) Commit(ctx context.Context, userID string, deltaBytes, deltaCount int64) error {
	userObjID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	update := bson.A{bson.M{"$set": bson.M{
		"used_storage": bson.M{"$max": bson.A{int64(0),
			bson.M{"$add": bson.A{"$used_storage", deltaBytes}}}},
		"document_count": bson.M{"$max": bson.A{int64(0),
			bson.M{"$add": bson.A{"$document_count", deltaCount}}}},
	}}}

	result, err := s.userCollection.UpdateOne(ctx, bson.M{"_id": userObjID}, update)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status,
			fmt.Sprintf("failed to commit quota delta for user %s", userID))
	}
	if result.MatchedCount == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "user not found")
	}
	return nil
}

// Usage returns the user's current usage and effective limits.
func (s *QuotaService) Usage(ctx context.Context, userID string) (*models.User, error) {
	return s.fetchUser(ctx, userID)
}

func (s *QuotaService) fetchUser(ctx context.Context, userID string) (*models.User, error) {
	userObjID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	var user models.User
	err = s.userCollection.FindOne(ctx, bson.M{"_id": userObjID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "user not found")
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load user")
	}
	return &user, nil
}
