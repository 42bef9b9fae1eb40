package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"grantvault/apperrors"
	"grantvault/models"
)

// permissionRank orders the permission ladder; every level supersets the
// ones below it.
var permissionRank = map[string]int{
	models.PermissionNone:     0,
	models.PermissionView:     1,
	models.PermissionDownload: 2,
	models.PermissionEdit:     3,
	models.PermissionManage:   4,
	models.PermissionOwner:    5,
}

// grantablePermissions are the levels a ShareGrant may carry.
var grantablePermissions = map[string]bool{
	models.PermissionView:     true,
	models.PermissionDownload: true,
	models.PermissionEdit:     true,
	models.PermissionManage:   true,
}

// PermissionCovers reports whether holding `have` satisfies a requirement
// of `want`.
func PermissionCovers(have, want string) bool {
	return permissionRank[have] >= permissionRank[want]
}

// AccessDecision is the outcome of evaluating an actor against a document.
type AccessDecision struct {
	CanAccess  bool   `json:"can_access"`
	Permission string `json:"permission"`
}

// resolveAccess evaluates what level of access the actor has on the
// document: the owner always has owner-level access, otherwise the highest
// unexpired grant applies, otherwise public visibility grants view. A
// soft-deleted document grants no access; trash flows go through ownership
// checks instead.
func resolveAccess(doc *models.Document, actorID primitive.ObjectID, now time.Time) AccessDecision {
	if doc.IsDeleted() {
		return AccessDecision{CanAccess: false, Permission: models.PermissionNone}
	}
	if doc.OwnerID == actorID {
		return AccessDecision{CanAccess: true, Permission: models.PermissionOwner}
	}

	best := models.PermissionNone
	for _, grant := range doc.Shares {
		if grant.GranteeID != actorID {
			continue
		}
		if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
			continue
		}
		if permissionRank[grant.Permission] > permissionRank[best] {
			best = grant.Permission
		}
	}
	if best != models.PermissionNone {
		return AccessDecision{CanAccess: true, Permission: best}
	}

	if doc.Visibility == models.VisibilityPublic {
		return AccessDecision{CanAccess: true, Permission: models.PermissionView}
	}
	return AccessDecision{CanAccess: false, Permission: models.PermissionNone}
}

// ShareService manages per-user document grants and evaluates access.
type ShareService struct {
	documentCollection *mongo.Collection
	userCollection     *mongo.Collection
}

func NewShareService(db *mongo.Database) *ShareService {
	return &ShareService{
		documentCollection: db.Collection("documents"),
		userCollection:     db.Collection("users"),
	}
}

// Share grants granteeID the given permission on the document. Only the
// owner may share. A document holds at most one active grant per grantee;
// re-sharing replaces the prior grant's permission and expiry.
func (s *ShareService) Share(ctx context.Context, documentID, ownerID, granteeID, permission string, expiresAt *time.Time) (*models.ShareGrant, error) {
	if !grantablePermissions[permission] {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid permission level: "+permission)
	}
	if ownerID == granteeID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "cannot share a document with its owner")
	}

	doc, ownerObjID, err := s.loadOwnedDocument(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}

	granteeObjID, err := primitive.ObjectIDFromHex(granteeID)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "invalid grantee ID")
	}
	if err := s.userCollection.FindOne(ctx, bson.M{"_id": granteeObjID}).Err(); err == mongo.ErrNoDocuments {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "grantee user not found")
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to look up grantee")
	}

	grant := models.ShareGrant{
		GranteeID:  granteeObjID,
		Permission: permission,
		GrantedBy:  ownerObjID,
		GrantedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}

	// Replace any prior grant for this grantee, then append the new one.
	filter := bson.M{"_id": doc.ID}
	if _, err := s.documentCollection.UpdateOne(ctx, filter,
		bson.M{"$pull": bson.M{"shares": bson.M{"grantee_id": granteeObjID}}}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to replace prior grant")
	}

	update := bson.M{
		"$push": bson.M{"shares": grant},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	if doc.Visibility == models.VisibilityPrivate {
		update["$set"].(bson.M)["visibility"] = models.VisibilityShared
	}
	if _, err := s.documentCollection.UpdateOne(ctx, filter, update); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to record grant")
	}

	return &grant, nil
}

// Unshare revokes the grantee's grant on the document. Only the owner may
// revoke.
func (s *ShareService) Unshare(ctx context.Context, documentID, ownerID, granteeID string) error {
	doc, _, err := s.loadOwnedDocument(ctx, documentID, ownerID)
	if err != nil {
		return err
	}

	granteeObjID, err := primitive.ObjectIDFromHex(granteeID)
	if err != nil {
		return apperrors.Clone(apperrors.ErrValidation, "invalid grantee ID")
	}
	if !hasGrantFor(doc.Shares, granteeObjID) {
		return apperrors.Clone(apperrors.ErrNotFound, "no active grant for this user")
	}

	// The pull carries no other writes, so ModifiedCount reflects the grant
	// removal alone.
	result, err := s.documentCollection.UpdateOne(ctx, bson.M{"_id": doc.ID},
		bson.M{"$pull": bson.M{"shares": bson.M{"grantee_id": granteeObjID}}})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to revoke grant")
	}
	if result.ModifiedCount == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "no active grant for this user")
	}

	if _, err := s.documentCollection.UpdateOne(ctx, bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to record revocation")
	}

	// Drop back to private once the last grant is gone; the $size filter
	// guards against grants added concurrently since the load.
	if doc.Visibility == models.VisibilityShared && grantsExcluding(doc.Shares, granteeObjID) == 0 {
		_, _ = s.documentCollection.UpdateOne(ctx,
			bson.M{"_id": doc.ID, "shares": bson.M{"$size": 0}},
			bson.M{"$set": bson.M{"visibility": models.VisibilityPrivate}})
	}
	return nil
}

// hasGrantFor reports whether shares holds a grant for granteeID.
func hasGrantFor(shares []models.ShareGrant, granteeID primitive.ObjectID) bool {
	for _, grant := range shares {
		if grant.GranteeID == granteeID {
			return true
		}
	}
	return false
}

// grantsExcluding counts the grants held by users other than granteeID,
// i.e. the grants that survive pulling granteeID's grant.
func grantsExcluding(shares []models.ShareGrant, granteeID primitive.ObjectID) int {
	remaining := 0
	for _, grant := range shares {
		if grant.GranteeID != granteeID {
			remaining++
		}
	}
	return remaining
}

// EvaluateAccess reports whether the actor can access the document and at
// what level. Expired grants are treated as absent; deleted documents are
// reported as not found, matching the read path.
func (s *ShareService) EvaluateAccess(ctx context.Context, documentID, actorID string) (AccessDecision, error) {
	none := AccessDecision{CanAccess: false, Permission: models.PermissionNone}

	docObjID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return none, apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}
	actorObjID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return none, apperrors.Clone(apperrors.ErrValidation, "invalid actor ID")
	}

	var doc models.Document
	err = s.documentCollection.FindOne(ctx, bson.M{
		"_id":    docObjID,
		"status": bson.M{"$ne": models.StatusDeleted},
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return none, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	} else if err != nil {
		return none, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load document")
	}

	return resolveAccess(&doc, actorObjID, time.Now().UTC()), nil
}

// ListGrants returns the document's grants. Only the owner may list them.
func (s *ShareService) ListGrants(ctx context.Context, documentID, ownerID string) ([]models.ShareGrant, error) {
	doc, _, err := s.loadOwnedDocument(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	return doc.Shares, nil
}

func (s *ShareService) loadOwnedDocument(ctx context.Context, documentID, ownerID string) (*models.Document, primitive.ObjectID, error) {
	docObjID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, primitive.NilObjectID, apperrors.Clone(apperrors.ErrValidation, "invalid document ID")
	}
	ownerObjID, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, primitive.NilObjectID, apperrors.Clone(apperrors.ErrValidation, "invalid user ID")
	}

	var doc models.Document
	err = s.documentCollection.FindOne(ctx, bson.M{"_id": docObjID, "status": bson.M{"$ne": models.StatusDeleted}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, primitive.NilObjectID, apperrors.Clone(apperrors.ErrNotFound, "document not found")
	} else if err != nil {
		return nil, primitive.NilObjectID, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load document")
	}

	if doc.OwnerID != ownerObjID {
		return nil, primitive.NilObjectID, apperrors.Clone(apperrors.ErrForbidden, "only the owner may manage sharing")
	}
	return &doc, ownerObjID, nil
}
