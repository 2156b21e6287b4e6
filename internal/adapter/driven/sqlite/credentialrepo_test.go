package sqlite

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestCredentialRepo_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey(t))
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.VendorSolarEdge, "se-api-key-123456"))

	cred, err := repo.Get(ctx, model.VendorSolarEdge)
	require.NoError(t, err)
	assert.Equal(t, model.VendorSolarEdge, cred.Vendor)
	assert.Equal(t, "se-api-key-123456", cred.Secret)
	assert.Equal(t, fixed, cred.UpdatedAt)
}

func TestCredentialRepo_StoresCiphertext(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.VendorEnphase, "plain-bearer-token"))

	var stored string
	err := db.Reader.QueryRowContext(ctx, `SELECT value FROM credentials WHERE vendor = ?`, "Enphase").Scan(&stored)
	require.NoError(t, err)
	assert.NotContains(t, stored, "plain-bearer-token")
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey(t))

	_, err := repo.Get(context.Background(), model.VendorGenerac)
	assert.ErrorIs(t, err, driven.ErrCredentialNotFound)
}

func TestCredentialRepo_SetOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.VendorSolarEdge, "old-value"))
	require.NoError(t, repo.Set(ctx, model.VendorSolarEdge, "new-value"))

	cred, err := repo.Get(ctx, model.VendorSolarEdge)
	require.NoError(t, err)
	assert.Equal(t, "new-value", cred.Secret)
}

func TestCredentialRepo_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.VendorSolarEdge, "se-secret"))
	require.NoError(t, repo.Set(ctx, model.VendorEnphase, "en-secret"))

	creds, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, model.VendorEnphase, creds[0].Vendor)
	assert.Equal(t, "en-secret", creds[0].Secret)
	assert.Equal(t, model.VendorSolarEdge, creds[1].Vendor)
}

func TestCredentialRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.VendorGenerac, "bundle"))
	require.NoError(t, repo.Delete(ctx, model.VendorGenerac))

	_, err := repo.Get(ctx, model.VendorGenerac)
	assert.ErrorIs(t, err, driven.ErrCredentialNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, model.VendorGenerac), driven.ErrCredentialNotFound)
}

func TestCredentialRepo_NoKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Set(ctx, model.VendorSolarEdge, "x"), driven.ErrEncryptionKeyNotSet)
	_, err := repo.Get(ctx, model.VendorSolarEdge)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
	_, err = repo.List(ctx)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestCredentialRepo_WrongKeyFailsDecrypt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCredentialRepo(db, testKey(t)).Set(ctx, model.VendorSolarEdge, "secret"))

	_, err := NewCredentialRepo(db, testKey(t)).Get(ctx, model.VendorSolarEdge)
	require.Error(t, err)
	assert.NotErrorIs(t, err, driven.ErrCredentialNotFound)
}
