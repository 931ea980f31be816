package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophtex/internal/client/storage"
)

var identityKey = []byte("current")

// SaveIdentity stores participant identity
func (s *Storage) SaveIdentity(_ context.Context, identity *storage.IdentityData) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketIdentity).Put(identityKey, data); err != nil {
			return fmt.Errorf("failed to save identity: %w", err)
		}
		return nil
	})
}

// GetIdentity retrieves stored identity
func (s *Storage) GetIdentity(_ context.Context) (*storage.IdentityData, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var identity *storage.IdentityData
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIdentity).Get(identityKey)
		if data == nil {
			return storage.ErrIdentityNotFound
		}

		identity = &storage.IdentityData{}
		if err := json.Unmarshal(data, identity); err != nil {
			return fmt.Errorf("failed to unmarshal identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return identity, nil
}

// DeleteIdentity removes stored identity
func (s *Storage) DeleteIdentity(_ context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIdentity)
		if bucket.Get(identityKey) == nil {
			return storage.ErrIdentityNotFound
		}
		if err := bucket.Delete(identityKey); err != nil {
			return fmt.Errorf("failed to delete identity: %w", err)
		}
		return nil
	})
}
