package seed

import (
	"testing"

	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureBootstrapAdminKeyIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	raw := "bootstrap-admin-key-0123456789"

	created, err := EnsureBootstrapAdminKey(db, raw)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureBootstrapAdminKey(db, raw)
	require.NoError(t, err)
	assert.False(t, created)

	var keys []apikeydomain.APIKey
	require.NoError(t, db.Find(&keys).Error)
	require.Len(t, keys, 1)
	assert.Equal(t, apikeydomain.RoleAdmin, keys[0].Role)
	assert.Equal(t, apikeydomain.HashAPIKey(raw), keys[0].KeyHash)
	assert.True(t, keys[0].IsActive)
}

func TestEnsureBootstrapAdminKeyValidation(t *testing.T) {
	db := testutil.NewDB(t)

	created, err := EnsureBootstrapAdminKey(db, "  ")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = EnsureBootstrapAdminKey(db, "short")
	assert.ErrorIs(t, err, ErrBootstrapKeyTooShort)

	_, err = EnsureBootstrapAdminKey(nil, "bootstrap-admin-key-0123456789")
	assert.Error(t, err)
}
