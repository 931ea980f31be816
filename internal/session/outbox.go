package session

import (
	"context"
	"sync"

	"github.com/iudanet/gophtex/internal/models"
)

//go:generate moq -out outbox_mock.go . Outbox

// Outbox хранит локальные обновления, сделанные без синхронизации с сервером.
// Содержимое переживает перезапуск клиента, если реализация постоянная.
type Outbox interface {
	// Append добавляет обновления комнаты
	Append(ctx context.Context, key models.RoomKey, updates ...models.Update) error
	// Load возвращает обновления комнаты в порядке добавления
	Load(ctx context.Context, key models.RoomKey) ([]models.Update, error)
	// Clear удаляет все обновления комнаты
	Clear(ctx context.Context, key models.RoomKey) error
}

// MemoryOutbox Outbox в памяти процесса
type MemoryOutbox struct {
	updates map[models.RoomKey][]models.Update
	mu      sync.Mutex
}

// NewMemoryOutbox создает пустой Outbox в памяти
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{updates: make(map[models.RoomKey][]models.Update)}
}

func (o *MemoryOutbox) Append(_ context.Context, key models.RoomKey, updates ...models.Update) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range updates {
		o.updates[key] = append(o.updates[key], updates[i].Clone())
	}
	return nil
}

func (o *MemoryOutbox) Load(_ context.Context, key models.RoomKey) ([]models.Update, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	stored := o.updates[key]
	out := make([]models.Update, 0, len(stored))
	for i := range stored {
		out = append(out, stored[i].Clone())
	}
	return out, nil
}

func (o *MemoryOutbox) Clear(_ context.Context, key models.RoomKey) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.updates, key)
	return nil
}
