package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"grantvault/models"
)

func TestPermissionCovers(t *testing.T) {
	assert.True(t, PermissionCovers(models.PermissionOwner, models.PermissionManage))
	assert.True(t, PermissionCovers(models.PermissionManage, models.PermissionEdit))
	assert.True(t, PermissionCovers(models.PermissionEdit, models.PermissionDownload))
	assert.True(t, PermissionCovers(models.PermissionDownload, models.PermissionView))
	assert.True(t, PermissionCovers(models.PermissionView, models.PermissionView))

	assert.False(t, PermissionCovers(models.PermissionView, models.PermissionDownload))
	assert.False(t, PermissionCovers(models.PermissionDownload, models.PermissionEdit))
	assert.False(t, PermissionCovers(models.PermissionNone, models.PermissionView))
}

func TestResolveAccessOwner(t *testing.T) {
	owner := primitive.NewObjectID()
	doc := &models.Document{OwnerID: owner, Visibility: models.VisibilityPrivate}

	decision := resolveAccess(doc, owner, time.Now())
	assert.True(t, decision.CanAccess)
	assert.Equal(t, models.PermissionOwner, decision.Permission)
}

func TestResolveAccessGrant(t *testing.T) {
	owner := primitive.NewObjectID()
	grantee := primitive.NewObjectID()
	doc := &models.Document{
		OwnerID:    owner,
		Visibility: models.VisibilityShared,
		Shares: []models.ShareGrant{
			{GranteeID: grantee, Permission: models.PermissionDownload},
		},
	}

	decision := resolveAccess(doc, grantee, time.Now())
	assert.True(t, decision.CanAccess)
	assert.Equal(t, models.PermissionDownload, decision.Permission)
}

func TestResolveAccessPicksHighestGrant(t *testing.T) {
	grantee := primitive.NewObjectID()
	doc := &models.Document{
		OwnerID: primitive.NewObjectID(),
		Shares: []models.ShareGrant{
			{GranteeID: grantee, Permission: models.PermissionView},
			{GranteeID: grantee, Permission: models.PermissionManage},
			{GranteeID: primitive.NewObjectID(), Permission: models.PermissionOwner},
		},
	}

	decision := resolveAccess(doc, grantee, time.Now())
	assert.Equal(t, models.PermissionManage, decision.Permission)
}

func TestResolveAccessExpiredGrant(t *testing.T) {
	grantee := primitive.NewObjectID()
	expired := time.Now().Add(-time.Hour)
	doc := &models.Document{
		OwnerID:    primitive.NewObjectID(),
		Visibility: models.VisibilityShared,
		Shares: []models.ShareGrant{
			{GranteeID: grantee, Permission: models.PermissionEdit, ExpiresAt: &expired},
		},
	}

	decision := resolveAccess(doc, grantee, time.Now())
	assert.False(t, decision.CanAccess)
	assert.Equal(t, models.PermissionNone, decision.Permission)
}

func TestResolveAccessUnexpiredGrant(t *testing.T) {
	grantee := primitive.NewObjectID()
	future := time.Now().Add(time.Hour)
	doc := &models.Document{
		OwnerID: primitive.NewObjectID(),
		Shares: []models.ShareGrant{
			{GranteeID: grantee, Permission: models.PermissionEdit, ExpiresAt: &future},
		},
	}

	decision := resolveAccess(doc, grantee, time.Now())
	assert.True(t, decision.CanAccess)
	assert.Equal(t, models.PermissionEdit, decision.Permission)
}

func TestResolveAccessPublicGrantsView(t *testing.T) {
	stranger := primitive.NewObjectID()
	doc := &models.Document{
		OwnerID:    primitive.NewObjectID(),
		Visibility: models.VisibilityPublic,
	}

	decision := resolveAccess(doc, stranger, time.Now())
	assert.True(t, decision.CanAccess)
	assert.Equal(t, models.PermissionView, decision.Permission)

	// View does not satisfy a download requirement.
	assert.False(t, PermissionCovers(decision.Permission, models.PermissionDownload))
}

func TestResolveAccessDeletedDocument(t *testing.T) {
	owner := primitive.NewObjectID()
	grantee := primitive.NewObjectID()
	doc := &models.Document{
		OwnerID:    owner,
		Status:     models.StatusDeleted,
		Visibility: models.VisibilityPublic,
		Shares: []models.ShareGrant{
			{GranteeID: grantee, Permission: models.PermissionManage},
		},
	}

	for _, actor := range []primitive.ObjectID{owner, grantee, primitive.NewObjectID()} {
		decision := resolveAccess(doc, actor, time.Now())
		assert.False(t, decision.CanAccess)
		assert.Equal(t, models.PermissionNone, decision.Permission)
	}
}

func TestRevocationGrantLookup(t *testing.T) {
	grantee := primitive.NewObjectID()
	other := primitive.NewObjectID()
	shares := []models.ShareGrant{
		{GranteeID: other, Permission: models.PermissionView},
	}

	// Revoking a grant that was never made must be detectable before any
	// write happens.
	assert.False(t, hasGrantFor(shares, grantee))
	assert.True(t, hasGrantFor(shares, other))
	assert.False(t, hasGrantFor(nil, grantee))
}

func TestGrantsExcluding(t *testing.T) {
	grantee := primitive.NewObjectID()
	other := primitive.NewObjectID()
	shares := []models.ShareGrant{
		{GranteeID: grantee, Permission: models.PermissionEdit},
		{GranteeID: other, Permission: models.PermissionView},
	}

	// The post-revocation grant count decides whether visibility drops back
	// to private.
	assert.Equal(t, 1, grantsExcluding(shares, grantee))
	assert.Equal(t, 0, grantsExcluding(shares[:1], grantee))
	assert.Equal(t, 2, grantsExcluding(shares, primitive.NewObjectID()))
}

func TestResolveAccessStrangerOnPrivate(t *testing.T) {
	doc := &models.Document{
		OwnerID:    primitive.NewObjectID(),
		Visibility: models.VisibilityPrivate,
	}

	decision := resolveAccess(doc, primitive.NewObjectID(), time.Now())
	assert.False(t, decision.CanAccess)
	assert.Equal(t, models.PermissionNone, decision.Permission)
}
