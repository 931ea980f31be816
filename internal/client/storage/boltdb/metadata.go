package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophtex/internal/client/storage"
	"github.com/iudanet/gophtex/internal/models"
)

const (
	keyLastRoom = "last_room"
)

// SaveLastRoom saves the key of the most recently opened room
func (s *Storage) SaveLastRoom(_ context.Context, key models.RoomKey) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put([]byte(keyLastRoom), []byte(key)); err != nil {
			return fmt.Errorf("failed to save last room: %w", err)
		}
		return nil
	})
}

// GetLastRoom retrieves the key of the most recently opened room
// Returns empty key if no room has been opened yet
func (s *Storage) GetLastRoom(_ context.Context) (models.RoomKey, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var key models.RoomKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Значение живет только внутри транзакции, поэтому копируем его
		key = models.RoomKey(string(tx.Bucket(bucketMetadata).Get([]byte(keyLastRoom))))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get last room: %w", err)
	}

	return key, nil
}
