// Package session ведет соединение одного участника с одной комнатой:
// handshake, обмен обновлениями и присутствием, переподключение с backoff.
// Локальные правки применяются сразу и никогда не ждут сеть.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/iudanet/gophtex/internal/awareness"
	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/room"
	"github.com/iudanet/gophtex/internal/transport"
	"github.com/iudanet/gophtex/pkg/api"
)

var (
	// ErrSessionClosed возвращается операциями закрытой сессии
	ErrSessionClosed = errors.New("session closed")
	// ErrHandshakeTimeout возвращается, если сервер не ответил на join вовремя
	ErrHandshakeTimeout = errors.New("handshake timeout")
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	leaveTimeout            = time.Second
	eventBufferSize         = 64
)

// Config параметры сессии
type Config struct {
	Endpoint         string
	ProjectID        string
	FileName         string
	Participant      models.Participant
	Backoff          BackoffConfig
	HandshakeTimeout time.Duration
}

// Option настраивает Session
type Option func(*Session)

// WithOutbox задает хранилище правок, сделанных без соединения
func WithOutbox(outbox Outbox) Option {
	return func(s *Session) {
		s.outbox = outbox
	}
}

// WithBackOff подменяет политику задержек переподключения
func WithBackOff(b backoff.BackOff) Option {
	return func(s *Session) {
		s.backoff = b
	}
}

// Session соединение участника с комнатой
type Session struct {
	transport  transport.Transport
	outbox     Outbox
	backoff    backoff.BackOff
	rooms      *room.Multiplexer
	room       *room.Room
	doc        *crdt.Document
	presence   *awareness.Store
	logger     *slog.Logger
	outgoing   *queue[models.Update]
	inbound    *queue[[]byte]
	lost       chan error
	presenceCh chan struct{}
	events     chan Event
	done       chan struct{}
	cancel     context.CancelFunc
	cfg        Config
	key        models.RoomKey
	state      stateMachine
	mu         sync.Mutex
	started    bool
}

// New создает сессию и присоединяет участника к локальной комнате.
// Обновления, сохраненные в outbox прошлым запуском клиента, применяются
// к реплике и будут отправлены при первой синхронизации.
func New(cfg Config, rooms *room.Multiplexer, t transport.Transport, logger *slog.Logger, opts ...Option) (*Session, error) {
	if cfg.Participant.ID == "" {
		return nil, fmt.Errorf("%w: participant id is required", room.ErrInvalidJoin)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	r, err := rooms.Join(cfg.ProjectID, cfg.FileName, cfg.Participant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	s := &Session{
		transport:  t,
		outbox:     NewMemoryOutbox(),
		rooms:      rooms,
		room:       r,
		doc:        r.Document(),
		presence:   r.Awareness(),
		logger:     logger.With("room", r.Key()),
		outgoing:   newQueue[models.Update](),
		inbound:    newQueue[[]byte](),
		lost:       make(chan error, 1),
		presenceCh: make(chan struct{}, 1),
		events:     make(chan Event, eventBufferSize),
		done:       make(chan struct{}),
		cfg:        cfg,
		key:        r.Key(),
		state:      stateMachine{current: StatusConnecting},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backoff == nil {
		s.backoff = cfg.Backoff.NewBackOff()
	}

	s.restoreOutbox()

	s.presence.SetLocal(cfg.Participant.ID, models.AwarenessFields{
		DisplayName: cfg.Participant.DisplayName,
		Color:       cfg.Participant.Color,
	})

	t.OnMessage(func(payload []byte) {
		s.inbound.Push(payload)
	})
	t.OnStatusChange(func(status transport.Status, err error) {
		if status != transport.StatusDisconnected {
			return
		}
		if err == nil {
			err = transport.ErrNotConnected
		}
		select {
		case s.lost <- err:
		default:
		}
	})

	return s, nil
}

// Start запускает цикл соединения. Повторный вызов ничего не делает.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.current == StatusClosed {
		return ErrSessionClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.emit(Event{At: time.Now(), Status: StatusConnecting, From: StatusConnecting})

	go s.run(runCtx)
	return nil
}

// RoomKey возвращает ключ комнаты сессии
func (s *Session) RoomKey() models.RoomKey {
	return s.key
}

// Actor возвращает идентификатор актора локальной реплики
func (s *Session) Actor() string {
	return s.doc.Actor()
}

// Document возвращает локальную реплику документа
func (s *Session) Document() *crdt.Document {
	return s.doc
}

// Status возвращает текущее состояние сессии
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.current
}

// Events возвращает канал смены состояний.
// Канал закрывается после перехода в Closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Text возвращает текущий текст локальной реплики
func (s *Session) Text() string {
	return s.doc.Text()
}

// Participants возвращает присутствие всех участников комнаты, включая локального
func (s *Session) Participants() []models.AwarenessEntry {
	return s.presence.Snapshot()
}

// Insert вставляет text в позицию pos локальной реплики
func (s *Session) Insert(pos int, text string) (models.Update, error) {
	if s.Status() == StatusClosed {
		return models.Update{}, ErrSessionClosed
	}

	update := s.doc.LocalInsert(pos, text)
	if !update.IsEmpty() {
		s.outgoing.Push(update)
	}
	return update, nil
}

// Delete удаляет length символов начиная с pos в локальной реплике
func (s *Session) Delete(pos, length int) (models.Update, error) {
	if s.Status() == StatusClosed {
		return models.Update{}, ErrSessionClosed
	}

	update := s.doc.LocalDelete(pos, length)
	if !update.IsEmpty() {
		s.outgoing.Push(update)
	}
	return update, nil
}

// SetCursor обновляет позицию курсора локального участника
func (s *Session) SetCursor(cursor int) error {
	return s.updatePresence(func(fields *models.AwarenessFields) {
		fields.Cursor = cursor
	})
}

// SetDisplayName обновляет отображаемое имя и цвет локального участника
func (s *Session) SetDisplayName(displayName, color string) error {
	return s.updatePresence(func(fields *models.AwarenessFields) {
		fields.DisplayName = displayName
		if color != "" {
			fields.Color = color
		}
	})
}

// Close закрывает сессию: останавливает переподключение и heartbeat,
// отправляет leave (без гарантии доставки), освобождает транспорт и
// членство в комнате. Повторный вызов ничего не делает.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state.current == StatusClosed {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}
	ctx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancelLeave()

	// правки, не ушедшие до закрытия, отправит следующая сессия
	s.stash(s.outgoing.PopAll())
	if s.Status() == StatusSynced {
		s.deliverPending(ctx)
	}

	// пока в outbox есть правки, сервер должен помнить реплику:
	// leave без актора не дает ему собрать нужные им tombstone
	actor := s.doc.Actor()
	if pending, err := s.outbox.Load(ctx, s.key); err != nil || len(pending) > 0 {
		actor = ""
	}
	if payload, err := api.Encode(api.NewLeaveMessage(s.key, s.cfg.Participant.ID, actor)); err == nil {
		_ = s.transport.Send(ctx, payload)
	}

	err := s.transport.Close()
	s.presence.Remove(s.cfg.Participant.ID)
	s.rooms.Leave(s.room, s.cfg.Participant.ID)
	s.setStatus(StatusClosed, nil)

	s.mu.Lock()
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("Session closed")
	return err
}

// deliverPending отправляет правки из outbox. Outbox очищается, только если
// ушли все правки.
func (s *Session) deliverPending(ctx context.Context) {
	pending, err := s.outbox.Load(ctx, s.key)
	if err != nil || len(pending) == 0 {
		return
	}
	for i := range pending {
		if err := s.send(ctx, api.NewUpdateMessage(pending[i])); err != nil {
			s.logger.Debug("Unsent updates kept for the next session", "count", len(pending)-i, "error", err)
			return
		}
	}
	if err := s.outbox.Clear(ctx, s.key); err != nil {
		s.logger.Warn("Failed to clear offline updates", "error", err)
	}
}

func (s *Session) updatePresence(mutate func(*models.AwarenessFields)) error {
	if s.Status() == StatusClosed {
		return ErrSessionClosed
	}

	fields := models.AwarenessFields{
		DisplayName: s.cfg.Participant.DisplayName,
		Color:       s.cfg.Participant.Color,
	}
	if current, ok := s.presence.Get(s.cfg.Participant.ID); ok {
		fields = current.Fields
	}
	mutate(&fields)
	s.presence.SetLocal(s.cfg.Participant.ID, fields)

	select {
	case s.presenceCh <- struct{}{}:
	default:
	}
	return nil
}

// setStatus выполняет переход и уведомляет подписчиков
func (s *Session) setStatus(to Status, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.state.transition(to)
	if err != nil {
		s.logger.Error("Rejected session transition", "error", err)
		return
	}
	if from == to {
		return
	}

	s.logger.Info("Session status changed", "from", from, "to", to, "cause", cause)
	s.emit(Event{At: time.Now(), Status: to, From: from, Err: cause})
}

// emit отправляет событие без блокировки; вызывается под s.mu
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Debug("Dropping session event, nobody is listening", "status", event.Status)
	}
}

func (s *Session) restoreOutbox() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()

	pending, err := s.outbox.Load(ctx, s.key)
	if err != nil {
		s.logger.Warn("Failed to load outbox", "error", err)
		return
	}
	for _, update := range pending {
		s.doc.ApplyRemote(update)
	}
	if len(pending) > 0 {
		s.logger.Info("Restored offline updates", "count", len(pending))
	}
}
