package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
)

func testUpdate(key models.RoomKey, counter uint64, text string) models.Update {
	return models.Update{
		RoomKey: key,
		Actor:   "actor-a",
		Counter: counter,
		Prev:    counter - 1,
		Ops: []models.Op{{
			Kind:  models.OpInsert,
			ID:    models.ElementID{Actor: "actor-a", Counter: counter},
			Value: text,
		}},
	}
}

func TestOutbox_AppendLoadClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	key := models.NewRoomKey("p1", "main.tex")
	other := models.NewRoomKey("p1", "refs.bib")

	// пустая очередь
	updates, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, updates)

	require.NoError(t, store.Append(ctx, key, testUpdate(key, 1, "a"), testUpdate(key, 2, "b")))
	require.NoError(t, store.Append(ctx, other, testUpdate(other, 1, "x")))
	require.NoError(t, store.Append(ctx, key, testUpdate(key, 3, "c")))
	require.NoError(t, store.Append(ctx, key))

	updates, err = store.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	for i, u := range updates {
		assert.Equal(t, uint64(i+1), u.Counter)
		assert.Equal(t, key, u.RoomKey)
	}
	assert.Equal(t, "c", updates[2].Ops[0].Value)

	pending, err := store.PendingRooms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.RoomKey{key, other}, pending)

	require.NoError(t, store.Clear(ctx, key))
	updates, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, updates)

	// очистка отсутствующей очереди не ошибка
	require.NoError(t, store.Clear(ctx, key))

	updates, err = store.Load(ctx, other)
	require.NoError(t, err)
	assert.Len(t, updates, 1)

	pending, err = store.PendingRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RoomKey{other}, pending)
}

func TestOutbox_OrderAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "client.db")
	key := models.NewRoomKey("p1", "main.tex")

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	for i := uint64(1); i <= 300; i++ {
		require.NoError(t, store.Append(ctx, key, testUpdate(key, i, "x")))
	}
	require.NoError(t, store.Close())

	store, err = New(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(ctx, key, testUpdate(key, 301, "y")))
	updates, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, updates, 301)
	for i, u := range updates {
		assert.Equal(t, uint64(i+1), u.Counter)
	}
}
