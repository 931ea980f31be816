package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophtex/internal/client/storage"
	"github.com/iudanet/gophtex/internal/models"
)

// Append сохраняет обновления комнаты в конец очереди.
// Каждая комната хранится во вложенном bucket, ключи упорядочены по sequence.
func (s *Storage) Append(_ context.Context, key models.RoomKey, updates ...models.Update) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if len(updates) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		room, err := tx.Bucket(bucketOutbox).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("failed to create outbox bucket: %w", err)
		}

		for i := range updates {
			data, err := json.Marshal(&updates[i])
			if err != nil {
				return fmt.Errorf("failed to marshal update: %w", err)
			}

			seq, err := room.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate sequence: %w", err)
			}
			if err := room.Put(sequenceKey(seq), data); err != nil {
				return fmt.Errorf("failed to save update: %w", err)
			}
		}
		return nil
	})
}

// Load возвращает обновления комнаты в порядке добавления
func (s *Storage) Load(_ context.Context, key models.RoomKey) ([]models.Update, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	updates := []models.Update{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		room := tx.Bucket(bucketOutbox).Bucket([]byte(key))
		if room == nil {
			return nil
		}

		return room.ForEach(func(_, v []byte) error {
			var update models.Update
			if err := json.Unmarshal(v, &update); err != nil {
				return fmt.Errorf("failed to unmarshal update: %w", err)
			}
			updates = append(updates, update)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}

	return updates, nil
}

// Clear удаляет очередь комнаты
func (s *Storage) Clear(_ context.Context, key models.RoomKey) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketOutbox).DeleteBucket([]byte(key))
		if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to clear outbox: %w", err)
		}
		return nil
	})
}

// PendingRooms возвращает комнаты, в очереди которых есть обновления
func (s *Storage) PendingRooms(_ context.Context) ([]models.RoomKey, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var keys []models.RoomKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		outbox := tx.Bucket(bucketOutbox)
		return outbox.ForEachBucket(func(k []byte) error {
			if first, _ := outbox.Bucket(k).Cursor().First(); first != nil {
				keys = append(keys, models.RoomKey(string(k)))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox rooms: %w", err)
	}

	return keys, nil
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
