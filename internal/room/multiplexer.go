// Package room сопоставляет паре (проект, файл) изолированную комнату и
// управляет жизненным циклом комнат: создание при первом входе,
// освобождение после ухода последнего участника.
package room

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/gophtex/internal/awareness"
	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
)

// ErrInvalidJoin возвращается при пустом проекте, файле или участнике
var ErrInvalidJoin = errors.New("invalid join request")

// Option настраивает Multiplexer
type Option func(*Multiplexer)

// WithGracePeriod задает задержку освобождения опустевшей комнаты.
// Повторный вход в течение задержки возвращает ту же комнату.
func WithGracePeriod(grace time.Duration) Option {
	return func(m *Multiplexer) {
		m.grace = grace
	}
}

// WithAwarenessOptions задает настройки хранилищ присутствия новых комнат
func WithAwarenessOptions(opts ...awareness.Option) Option {
	return func(m *Multiplexer) {
		m.awarenessOpts = append(m.awarenessOpts, opts...)
	}
}

// JoinOption настраивает создание комнаты при входе
type JoinOption func(*joinOptions)

type joinOptions struct {
	seeder func() (string, bool)
}

// WithSeeder задает источник начального содержимого.
// Вызывается один раз, только если комната создается этим входом.
func WithSeeder(seeder func() (string, bool)) JoinOption {
	return func(o *joinOptions) {
		o.seeder = seeder
	}
}

// Multiplexer единственная точка владения комнатами процесса
type Multiplexer struct {
	rooms         map[models.RoomKey]*Room
	logger        *slog.Logger
	awarenessOpts []awareness.Option
	grace         time.Duration
	mu            sync.Mutex
}

// New создает пустой реестр комнат
func New(logger *slog.Logger, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		rooms:  make(map[models.RoomKey]*Room),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Join возвращает существующую комнату (projectID, fileName) или создает новую.
// Каждая новая комната получает документ со свежим идентификатором актора.
// Имя файла должно быть каноническим (см. models.NormalizeFileName): иначе
// разные строки незаметно попадали бы в одну комнату.
// Seeder новой комнаты выполняется вне блокировки реестра; остальные входящие
// в ту же комнату ждут его завершения, другие комнаты не ждут.
func (m *Multiplexer) Join(projectID, fileName, participantID string, opts ...JoinOption) (*Room, error) {
	if projectID == "" || fileName == "" || participantID == "" {
		return nil, fmt.Errorf("%w: project=%q file=%q participant=%q", ErrInvalidJoin, projectID, fileName, participantID)
	}
	if canonical := models.NormalizeFileName(fileName); canonical != fileName {
		return nil, fmt.Errorf("%w: file name %q is not canonical, use %q", ErrInvalidJoin, fileName, canonical)
	}

	var options joinOptions
	for _, opt := range opts {
		opt(&options)
	}

	key := models.NewRoomKey(projectID, fileName)

	m.mu.Lock()
	r, ok := m.rooms[key]
	if !ok {
		doc := crdt.NewDocument(key, crdt.NewLamportClock())
		r = newRoom(key, projectID, fileName, doc, awareness.NewStore(m.awarenessOpts...))
		m.rooms[key] = r
	}
	// участник учитывается до снятия блокировки: комнату не освободят, пока идет наполнение
	r.join(participantID)
	m.mu.Unlock()

	if ok {
		<-r.ready
	} else {
		m.seed(r, options.seeder)
	}

	m.logger.Debug("Participant joined room", "room", key, "participant_id", participantID)
	return r, nil
}

func (m *Multiplexer) seed(r *Room, seeder func() (string, bool)) {
	defer close(r.ready)

	seeded := false
	if seeder != nil {
		if text, ok := seeder(); ok && text != "" {
			r.doc.Seed(text)
			seeded = true
		}
	}
	m.logger.Info("Room created", "room", r.key, "seeded", seeded)
}

// Leave выводит участника из комнаты. Для неучастника ничего не делает.
// После ухода последнего участника комната освобождается сразу или по
// истечении grace-периода, если за это время никто не вошел.
func (m *Multiplexer) Leave(r *Room, participantID string) {
	if r == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[r.key] != r || !r.leave(participantID) {
		return
	}
	m.logger.Debug("Participant left room", "room", r.key, "participant_id", participantID)

	if r.ParticipantCount() > 0 {
		return
	}

	if m.grace <= 0 {
		m.releaseLocked(r)
		return
	}

	r.mu.Lock()
	if r.releaseTimer != nil {
		r.releaseTimer.Stop()
	}
	r.releaseTimer = time.AfterFunc(m.grace, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.rooms[r.key] == r && r.ParticipantCount() == 0 {
			m.releaseLocked(r)
		}
	})
	r.mu.Unlock()
}

// Get возвращает комнату по ключу. Комната, которая еще наполняется, не возвращается.
func (m *Multiplexer) Get(key models.RoomKey) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[key]
	if !ok || !r.isReady() {
		return nil, false
	}
	return r, true
}

// Route доставляет сообщение подписчикам комнаты key, кроме отправителя.
// Сообщение для неизвестной комнаты отбрасывается.
func (m *Multiplexer) Route(key models.RoomKey, fromPeer string, payload []byte) int {
	r, ok := m.Get(key)
	if !ok {
		m.logger.Debug("Dropping message for unknown room", "room", key)
		return 0
	}
	return r.Route(fromPeer, payload)
}

// Each вызывает fn для каждой готовой комнаты в порядке ключей
func (m *Multiplexer) Each(fn func(*Room)) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.isReady() {
			rooms = append(rooms, r)
		}
	}
	m.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].key < rooms[j].key })
	for _, r := range rooms {
		fn(r)
	}
}

// Len возвращает количество активных комнат
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rooms)
}

func (m *Multiplexer) releaseLocked(r *Room) {
	delete(m.rooms, r.key)

	r.mu.Lock()
	r.released = true
	r.releaseTimer = nil
	r.mu.Unlock()

	m.logger.Info("Room released", "room", r.key)
}
