package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantvault/apperrors"
	"grantvault/models"
)

const mib = 1024 * 1024

var testLimits = QuotaLimits{
	MaxFileSize:       100 * mib,
	BaseStorage:       512 * mib,
	ElevatedStorage:   5 * 1024 * mib,
	BaseDocuments:     1000,
	ElevatedDocuments: 10000,
}

func TestEvaluateQuotaAllowsWithinLimit(t *testing.T) {
	user := &models.User{Role: models.RoleUser, UsedStorage: 100 * mib, DocumentCount: 5}
	assert.NoError(t, evaluateQuota(user, testLimits, 50*mib))
}

func TestEvaluateQuotaAllowsExactFit(t *testing.T) {
	user := &models.User{Role: models.RoleUser, UsedStorage: 500 * mib}
	assert.NoError(t, evaluateQuota(user, testLimits, 12*mib))
}

func TestEvaluateQuotaDeniesStorageExceeded(t *testing.T) {
	// A user with a 10 MiB override and 6 MiB used uploading another 6 MiB
	// must be denied with 4 MiB reported available.
	user := &models.User{Role: models.RoleUser, MaxStorage: 10 * mib, UsedStorage: 6 * mib}

	err := evaluateQuota(user, testLimits, 6*mib)
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.CodeQuotaExceeded, appErr.Code)
	assert.Equal(t, int64(6*mib), appErr.Required)
	assert.Equal(t, int64(4*mib), appErr.Available)
}

func TestEvaluateQuotaOverrideTakesPrecedence(t *testing.T) {
	// The elevated role default would allow this, but the per-user
	// override wins.
	user := &models.User{Role: models.RoleAdmin, MaxStorage: 10 * mib, UsedStorage: 0}

	err := evaluateQuota(user, testLimits, 11*mib)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeQuotaExceeded, apperrors.FromError(err).Code)
}

func TestEvaluateQuotaElevatedRoleGetsLargerTier(t *testing.T) {
	limits := testLimits
	limits.MaxFileSize = 1024 * mib

	base := &models.User{Role: models.RoleUser}
	elevated := &models.User{Role: models.RoleManager}

	require.Error(t, evaluateQuota(base, limits, 600*mib))
	assert.NoError(t, evaluateQuota(elevated, limits, 600*mib))
}

func TestEvaluateQuotaDeniesSizeExceeded(t *testing.T) {
	user := &models.User{Role: models.RoleAdmin}

	err := evaluateQuota(user, testLimits, 101*mib)
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.CodeSizeExceeded, appErr.Code)
	assert.Equal(t, int64(101*mib), appErr.Required)
	assert.Equal(t, int64(100*mib), appErr.Available)
}

func TestEvaluateQuotaDeniesDocumentCountExceeded(t *testing.T) {
	user := &models.User{Role: models.RoleUser, DocumentCount: 1000}

	err := evaluateQuota(user, testLimits, 1*mib)
	require.Error(t, err)

	appErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.CodeDocumentCountExceeded, appErr.Code)
	assert.Equal(t, int64(0), appErr.Available)
}

func TestEvaluateQuotaFloorsNegativeAvailable(t *testing.T) {
	// Usage already above the limit (possible after concurrent uploads)
	// must report zero available, never a negative amount.
	user := &models.User{Role: models.RoleUser, MaxStorage: 10 * mib, UsedStorage: 12 * mib}

	err := evaluateQuota(user, testLimits, 1*mib)
	require.Error(t, err)
	assert.Equal(t, int64(0), apperrors.FromError(err).Available)
}
