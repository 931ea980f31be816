package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
)

func TestSaveAndGetLastRoom(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	// Изначально комната не сохранена
	key, err := store.GetLastRoom(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	first := models.NewRoomKey("p-1", "main.tex")
	require.NoError(t, store.SaveLastRoom(ctx, first))
	key, err = store.GetLastRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, key)

	second := models.NewRoomKey("p-1", "résumé.tex")
	require.NoError(t, store.SaveLastRoom(ctx, second))
	key, err = store.GetLastRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, key)
}
