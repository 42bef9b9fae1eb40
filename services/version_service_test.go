package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"grantvault/models"
)

func TestSortChainOrdersByVersion(t *testing.T) {
	chain := []models.Document{
		{Version: 3},
		{Version: 1},
		{Version: 4, IsLatestVersion: true},
		{Version: 2},
	}

	sortChain(chain)

	for i, doc := range chain {
		assert.Equal(t, i+1, doc.Version)
	}
	assert.True(t, chain[len(chain)-1].IsLatestVersion)
}

func TestSortChainSingleEntry(t *testing.T) {
	chain := []models.Document{{Version: 1}}
	sortChain(chain)
	assert.Equal(t, 1, chain[0].Version)
}

func TestRevertArchiveUpdateMirrorsArchive(t *testing.T) {
	now := time.Now().UTC()
	head := &models.Document{Status: models.StatusApproved, Version: 3}
	entry := models.VersionHistoryEntry{Version: 3, BlobName: "blob-v3", Size: 128}

	archive := archiveHeadUpdate(entry, now)
	revert := revertArchiveUpdate(head, now)

	archiveSet := archive["$set"].(bson.M)
	revertSet := revert["$set"].(bson.M)

	assert.Equal(t, false, archiveSet["is_latest_version"])
	assert.Equal(t, true, revertSet["is_latest_version"])
	assert.Equal(t, models.StatusArchived, archiveSet["status"])
	assert.Equal(t, models.StatusApproved, revertSet["status"])

	// The revert pulls exactly the history entry the archive pushed.
	assert.Equal(t, entry, archive["$push"].(bson.M)["versions"])
	assert.Equal(t, bson.M{"version": head.Version}, revert["$pull"].(bson.M)["versions"])
}

func TestChainListingFollowsDocumentAccess(t *testing.T) {
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	root := models.Document{
		ID:         primitive.NewObjectID(),
		OwnerID:    owner,
		Version:    1,
		Visibility: models.VisibilityPrivate,
	}
	chain := []models.Document{root}

	target := findInChain(chain, root.ID)
	require.NotNil(t, target)
	assert.Nil(t, findInChain(chain, primitive.NewObjectID()))
	assert.Nil(t, findInChain(nil, root.ID))

	now := time.Now()
	assert.True(t, PermissionCovers(resolveAccess(target, owner, now).Permission, models.PermissionView))
	assert.False(t, PermissionCovers(resolveAccess(target, stranger, now).Permission, models.PermissionView))
}

func TestInherit(t *testing.T) {
	assert.Equal(t, "override", inherit("override", "parent"))
	assert.Equal(t, "parent", inherit("", "parent"))
	assert.Equal(t, "", inherit("", ""))
}

func TestInheritTags(t *testing.T) {
	parent := map[string]string{"fiscal_year": "2026"}
	override := map[string]string{"fiscal_year": "2027", "program": "arts"}

	assert.Equal(t, override, inheritTags(override, parent))
	assert.Equal(t, parent, inheritTags(nil, parent))

	// An explicit empty map clears the parent's tags.
	assert.Empty(t, inheritTags(map[string]string{}, parent))
}
