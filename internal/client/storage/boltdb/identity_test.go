package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/client/storage"
	"github.com/iudanet/gophtex/internal/models"
)

func testIdentity() *storage.IdentityData {
	return &storage.IdentityData{
		Identity: models.Identity{
			Participant: models.Participant{ID: "alice-id", DisplayName: "Alice", Color: "#FF6B6B"},
			Token:       "token-1",
			ExpiresAt:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		ServerURL: "http://localhost:8080",
	}
}

func TestIdentity_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	_, err := store.GetIdentity(ctx)
	assert.ErrorIs(t, err, storage.ErrIdentityNotFound)

	identity := testIdentity()
	require.NoError(t, store.SaveIdentity(ctx, identity))

	got, err := store.GetIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.Participant, got.Participant)
	assert.Equal(t, "token-1", got.Token)
	assert.Equal(t, "http://localhost:8080", got.ServerURL)
	assert.True(t, identity.ExpiresAt.Equal(got.ExpiresAt))

	// перезапись
	identity.Participant.DisplayName = "Alice L."
	require.NoError(t, store.SaveIdentity(ctx, identity))
	got, err = store.GetIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", got.Participant.DisplayName)

	require.NoError(t, store.DeleteIdentity(ctx))
	_, err = store.GetIdentity(ctx)
	assert.ErrorIs(t, err, storage.ErrIdentityNotFound)
	assert.ErrorIs(t, store.DeleteIdentity(ctx), storage.ErrIdentityNotFound)
}

func TestIdentity_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "client.db")

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveIdentity(ctx, testIdentity()))
	require.NoError(t, store.Close())

	store, err = New(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice-id", got.Participant.ID)
}

func TestStorage_Closed(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.SaveIdentity(ctx, testIdentity()), storage.ErrStorageClosed)
	_, err := store.GetIdentity(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.DeleteIdentity(ctx), storage.ErrStorageClosed)
	assert.ErrorIs(t, store.SaveLastRoom(ctx, "p1-main.tex"), storage.ErrStorageClosed)
	assert.ErrorIs(t, store.Append(ctx, "p1-main.tex", models.Update{}), storage.ErrStorageClosed)
	_, err = store.Load(ctx, "p1-main.tex")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
