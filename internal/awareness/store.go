// Package awareness хранит эфемерное состояние присутствия участников комнаты:
// курсор, отображаемое имя и цвет. Состояние не входит в документ и
// не сохраняется: после переподключения оно собирается заново.
package awareness

import (
	"sort"
	"sync"
	"time"

	"github.com/iudanet/gophtex/internal/models"
)

// DefaultTimeout время, после которого молчащий удаленный участник считается ушедшим
const DefaultTimeout = 30 * time.Second

// EventKind тип изменения в хранилище
type EventKind int

const (
	// EventUpdated запись добавлена или обновлена
	EventUpdated EventKind = iota
	// EventRemoved запись удалена (уход участника или истечение таймаута)
	EventRemoved
)

// Event уведомление подписчиков об изменении присутствия
type Event struct {
	Entry models.AwarenessEntry
	Kind  EventKind
	Local bool
}

// Option настраивает Store
type Option func(*Store)

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTimeout задает таймаут жизни удаленных записей
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// Store LWW-отображение participantID -> запись присутствия.
// Побеждает запись с большим Timestamp; равные и меньшие отбрасываются.
type Store struct {
	now         func() time.Time
	entries     map[string]*models.AwarenessEntry
	removed     map[string]int64 // метка, с которой запись была удалена
	local       map[string]struct{}
	subscribers map[int]func(Event)
	timeout     time.Duration
	nextSub     int
	mu          sync.RWMutex
}

// NewStore создает пустое хранилище присутствия
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		entries:     make(map[string]*models.AwarenessEntry),
		removed:     make(map[string]int64),
		local:       make(map[string]struct{}),
		subscribers: make(map[int]func(Event)),
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout возвращает таймаут жизни удаленных записей
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// SetLocal сохраняет состояние локального участника.
// Метка строго возрастает даже при неподвижных часах.
func (s *Store) SetLocal(participantID string, fields models.AwarenessFields) models.AwarenessEntry {
	s.mu.Lock()
	entry := s.stampLocked(participantID, fields)
	subscribers := s.subscribersLocked()
	s.mu.Unlock()

	notify(subscribers, Event{Kind: EventUpdated, Entry: entry, Local: true})
	return entry
}

// Refresh переподписывает локальную запись новой меткой без изменения полей.
// Используется heartbeat-ом, чтобы удаленные реплики не считали участника ушедшим.
func (s *Store) Refresh(participantID string) (models.AwarenessEntry, bool) {
	s.mu.Lock()
	current, ok := s.entries[participantID]
	if _, local := s.local[participantID]; !ok || !local {
		s.mu.Unlock()
		return models.AwarenessEntry{}, false
	}
	entry := s.stampLocked(participantID, current.Fields)
	s.mu.Unlock()

	return entry, true
}

// ApplyRemote применяет запись, полученную от другой реплики.
// Возвращает false, если запись устарела или описывает локального участника.
func (s *Store) ApplyRemote(entry models.AwarenessEntry) bool {
	if entry.ParticipantID == "" {
		return false
	}

	s.mu.Lock()
	if _, local := s.local[entry.ParticipantID]; local {
		s.mu.Unlock()
		return false
	}
	if existing, ok := s.entries[entry.ParticipantID]; ok && !entry.IsNewerThan(existing) {
		s.mu.Unlock()
		return false
	}
	if removedAt, ok := s.removed[entry.ParticipantID]; ok && entry.Timestamp <= removedAt {
		s.mu.Unlock()
		return false
	}

	stored := entry
	stored.LastSeenAt = s.now()
	s.entries[entry.ParticipantID] = &stored
	delete(s.removed, entry.ParticipantID)
	subscribers := s.subscribersLocked()
	s.mu.Unlock()

	notify(subscribers, Event{Kind: EventUpdated, Entry: stored})
	return true
}

// Remove удаляет запись участника (явный уход).
// Для отсутствующего участника ничего не делает.
func (s *Store) Remove(participantID string) bool {
	s.mu.Lock()
	entry, ok := s.entries[participantID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	_, local := s.local[participantID]
	s.removeLocked(entry)
	delete(s.local, participantID)
	subscribers := s.subscribersLocked()
	s.mu.Unlock()

	notify(subscribers, Event{Kind: EventRemoved, Entry: *entry, Local: local})
	return true
}

// Expire удаляет удаленные записи, не обновлявшиеся дольше таймаута.
// Локальные записи не истекают. Возвращает идентификаторы удаленных участников.
func (s *Store) Expire(now time.Time) []string {
	s.mu.Lock()
	var expired []models.AwarenessEntry
	for id, entry := range s.entries {
		if _, local := s.local[id]; local {
			continue
		}
		if now.Sub(entry.LastSeenAt) > s.timeout {
			expired = append(expired, *entry)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ParticipantID < expired[j].ParticipantID })

	ids := make([]string, 0, len(expired))
	for i := range expired {
		s.removeLocked(&expired[i])
		ids = append(ids, expired[i].ParticipantID)
	}
	subscribers := s.subscribersLocked()
	s.mu.Unlock()

	for _, entry := range expired {
		notify(subscribers, Event{Kind: EventRemoved, Entry: entry})
	}
	return ids
}

// Get возвращает запись участника
func (s *Store) Get(participantID string) (models.AwarenessEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[participantID]
	if !ok {
		return models.AwarenessEntry{}, false
	}
	return *entry, true
}

// Snapshot возвращает все записи, отсортированные по participantID
func (s *Store) Snapshot() []models.AwarenessEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.AwarenessEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ParticipantID < result[j].ParticipantID })

	return result
}

// Local возвращает записи локальных участников
func (s *Store) Local() []models.AwarenessEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.AwarenessEntry, 0, len(s.local))
	for id := range s.local {
		if entry, ok := s.entries[id]; ok {
			result = append(result, *entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ParticipantID < result[j].ParticipantID })

	return result
}

// Len возвращает количество участников
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Subscribe регистрирует обработчик изменений. Возвращает функцию отписки.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) stampLocked(participantID string, fields models.AwarenessFields) models.AwarenessEntry {
	now := s.now()
	timestamp := now.UnixNano()

	var last int64
	if existing, ok := s.entries[participantID]; ok {
		last = existing.Timestamp
	}
	if removedAt, ok := s.removed[participantID]; ok && removedAt > last {
		last = removedAt
	}
	if timestamp <= last {
		timestamp = last + 1
	}

	entry := models.AwarenessEntry{
		ParticipantID: participantID,
		Fields:        fields,
		Timestamp:     timestamp,
		LastSeenAt:    now,
	}
	s.entries[participantID] = &entry
	s.local[participantID] = struct{}{}
	delete(s.removed, participantID)

	return entry
}

func (s *Store) removeLocked(entry *models.AwarenessEntry) {
	delete(s.entries, entry.ParticipantID)
	s.removed[entry.ParticipantID] = entry.Timestamp
}

func (s *Store) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subscribers[id])
	}
	return out
}

func notify(subscribers []func(Event), event Event) {
	for _, fn := range subscribers {
		fn(event)
	}
}
