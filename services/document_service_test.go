package services

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantvault/apperrors"
	"grantvault/models"
)

func TestFilterUpdatePatchKeepsAllowedFields(t *testing.T) {
	patch := map[string]interface{}{
		"category":       "financials",
		"description":    "updated budget",
		"workflow_stage": "review",
		"status":         models.StatusInReview,
	}

	filtered, err := filterUpdatePatch(patch)
	require.NoError(t, err)
	assert.Len(t, filtered, 4)
	assert.Equal(t, "financials", filtered["category"])
}

func TestFilterUpdatePatchDropsUnknownFields(t *testing.T) {
	patch := map[string]interface{}{
		"description": "fine",
		"owner_id":    "attacker",
		"size":        999999,
		"checksum":    "forged",
		"blob_name":   "other-blob",
	}

	filtered, err := filterUpdatePatch(patch)
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
	assert.NotContains(t, filtered, "owner_id")
	assert.NotContains(t, filtered, "size")
	assert.NotContains(t, filtered, "checksum")
}

func TestFilterUpdatePatchRejectsEmpty(t *testing.T) {
	_, err := filterUpdatePatch(map[string]interface{}{"owner_id": "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation.Code, apperrors.FromError(err).Code)

	_, err = filterUpdatePatch(map[string]interface{}{})
	require.Error(t, err)
}

func TestFilterUpdatePatchValidatesEnums(t *testing.T) {
	_, err := filterUpdatePatch(map[string]interface{}{"status": "bogus"})
	assert.Error(t, err)

	// The deleted status is reserved for the soft-delete path.
	_, err = filterUpdatePatch(map[string]interface{}{"status": models.StatusDeleted})
	assert.Error(t, err)

	_, err = filterUpdatePatch(map[string]interface{}{"visibility": "everyone"})
	assert.Error(t, err)

	_, err = filterUpdatePatch(map[string]interface{}{"sensitivity": "top-secret"})
	assert.Error(t, err)

	_, err = filterUpdatePatch(map[string]interface{}{"status": 42})
	assert.Error(t, err)

	filtered, err := filterUpdatePatch(map[string]interface{}{
		"status":      models.StatusApproved,
		"visibility":  models.VisibilityShared,
		"sensitivity": models.SensitivityConfidential,
	})
	require.NoError(t, err)
	assert.Len(t, filtered, 3)
}

func TestAllowedContentTypes(t *testing.T) {
	allowed := []string{
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"text/plain",
		"text/csv",
		"application/json",
		"image/jpeg",
		"image/png",
	}
	for _, contentType := range allowed {
		assert.True(t, allowedContentTypes[contentType], contentType)
	}

	denied := []string{
		"application/x-msdownload",
		"application/zip",
		"text/html",
		"",
	}
	for _, contentType := range denied {
		assert.False(t, allowedContentTypes[contentType], contentType)
	}
}

func TestChecksumReaderPassesMatchingContent(t *testing.T) {
	data := []byte("the grant agreement body")
	identity := Identify(data, "agreement.pdf")

	reader := newChecksumReader(io.NopCloser(bytes.NewReader(data)), identity.ChecksumHex)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoError(t, reader.Close())
}

func TestChecksumReaderFailsOnMismatch(t *testing.T) {
	data := []byte("original bytes")
	identity := Identify(data, "a.txt")

	reader := newChecksumReader(io.NopCloser(bytes.NewReader([]byte("corrupted bytes"))), identity.ChecksumHex)
	_, err := io.ReadAll(reader)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInternal.Code, apperrors.FromError(err).Code)
}
