// Package bus пересылает сообщения комнат между узлами сервера.
// Узлы, обслуживающие одну комнату, публикуют в шину принятые обновления,
// присутствие и запросы догоняющей синхронизации.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/iudanet/gophtex/internal/models"
)

// ErrClosed возвращается при работе с закрытой шиной
var ErrClosed = errors.New("bus closed")

// Handler обрабатывает сообщение комнаты, пришедшее из шины
type Handler func(key models.RoomKey, payload []byte)

// Bus шина между узлами
type Bus interface {
	// Publish отправляет сообщение комнаты всем узлам, включая отправителя
	Publish(ctx context.Context, key models.RoomKey, payload []byte) error
	// Subscribe доставляет сообщения всех комнат в handler до отмены ctx
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Memory шина внутри процесса. Доставка синхронная, в порядке публикации.
type Memory struct {
	handlers map[int]Handler
	done     chan struct{}
	nextID   int
	mu       sync.Mutex
	closed   bool
}

var _ Bus = (*Memory)(nil)

// NewMemory создает шину внутри процесса
func NewMemory() *Memory {
	return &Memory{handlers: make(map[int]Handler), done: make(chan struct{})}
}

func (m *Memory) Publish(ctx context.Context, key models.RoomKey, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(key, append([]byte(nil), payload...))
	}
	return nil
}

// Subscribe регистрирует handler и блокируется до отмены ctx или закрытия шины
func (m *Memory) Subscribe(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	id := m.nextID
	m.nextID++
	m.handlers[id] = handler
	m.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-m.done:
	}

	m.mu.Lock()
	delete(m.handlers, id)
	m.mu.Unlock()
	return nil
}

// Subscribers возвращает количество активных подписок
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.handlers)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.handlers = make(map[int]Handler)
	close(m.done)
	return nil
}
