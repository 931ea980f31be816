package storage

import (
	"context"

	"github.com/iudanet/gophtex/internal/models"
)

//go:generate moq -out metadatastorage_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastRoom запоминает последнюю открытую комнату
	SaveLastRoom(ctx context.Context, key models.RoomKey) error

	// GetLastRoom возвращает последнюю открытую комнату
	// Returns empty key if no room has been opened yet
	GetLastRoom(ctx context.Context) (models.RoomKey, error)
}
