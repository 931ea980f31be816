// Package transport описывает канал доставки сообщений между репликой
// клиента и комнатой на сервере. Транспорт не знает о содержимом сообщений.
package transport

import (
	"context"
	"errors"

	"github.com/iudanet/gophtex/internal/models"
)

var (
	// ErrNotConnected возвращается при отправке через неподключенный транспорт
	ErrNotConnected = errors.New("transport not connected")
	// ErrClosed возвращается после Close
	ErrClosed = errors.New("transport closed")
	// ErrUnreachable возвращается, если конечная точка недоступна
	ErrUnreachable = errors.New("endpoint unreachable")
	// ErrSlowConsumer возвращается, если получатель не успевает забирать сообщения
	ErrSlowConsumer = errors.New("slow consumer")
)

// Status состояние соединения транспорта
type Status int

const (
	// StatusDisconnected соединения нет
	StatusDisconnected Status = iota
	// StatusConnected соединение установлено
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// Transport клиентская сторона канала к комнате.
// После потери соединения транспорт сообщает StatusDisconnected и ждет
// повторного Connect; после Close он больше не используется.
type Transport interface {
	// Connect устанавливает соединение с комнатой roomKey на endpoint
	Connect(ctx context.Context, endpoint string, roomKey models.RoomKey) error
	// Send отправляет одно сообщение
	Send(ctx context.Context, payload []byte) error
	// OnMessage задает обработчик входящих сообщений
	OnMessage(fn func(payload []byte))
	// OnStatusChange задает обработчик смены состояния соединения
	OnStatusChange(fn func(status Status, err error))
	// Close закрывает транспорт
	Close() error
}

// Peer серверная сторона одного соединения
type Peer interface {
	// ID уникальный идентификатор соединения
	ID() string
	// ParticipantID участник, подтвержденный при установке соединения (может быть пустым)
	ParticipantID() string
	// Send ставит сообщение в очередь отправки без блокировки
	Send(payload []byte) error
}

// ScopedPeer соединение, открытое для одной комнаты.
// Сообщения для других комнат такому соединению запрещены.
type ScopedPeer interface {
	Peer
	RoomKey() models.RoomKey
}

// Acceptor обрабатывает сообщения серверных соединений
type Acceptor interface {
	HandleMessage(peer Peer, raw []byte)
	HandleDisconnect(peer Peer)
}
