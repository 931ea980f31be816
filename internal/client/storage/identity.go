// Package storage описывает локальное хранилище клиента: идентичность
// участника, очередь неотправленных обновлений и служебные метаданные.
package storage

import (
	"context"

	"github.com/iudanet/gophtex/internal/models"
)

//go:generate moq -out identitystorage_mock.go . IdentityStorage

// IdentityStorage хранит выданную сервером идентичность участника
type IdentityStorage interface {
	// SaveIdentity сохраняет идентичность вместе с адресом выдавшего ее сервера
	SaveIdentity(ctx context.Context, identity *IdentityData) error

	// GetIdentity возвращает сохраненную идентичность
	// Returns ErrIdentityNotFound if no identity exists
	GetIdentity(ctx context.Context) (*IdentityData, error)

	// DeleteIdentity удаляет идентичность
	DeleteIdentity(ctx context.Context) error
}

// IdentityData идентичность участника на стороне клиента
type IdentityData struct {
	models.Identity
	ServerURL string `json:"server_url"` // сервер, выдавший токен
}
