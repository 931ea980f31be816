package room

import (
	"sort"
	"sync"
	"time"

	"github.com/iudanet/gophtex/internal/awareness"
	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
)

// Deliver доставляет закодированное сообщение одному подписчику комнаты.
// Реализация не должна блокироваться надолго: она вызывается под блокировкой комнаты.
type Deliver func(payload []byte) error

// Room изолированная комната одного файла: документ, присутствие и подписчики.
// Сообщения комнаты никогда не доставляются подписчикам других комнат.
type Room struct {
	doc          *crdt.Document
	presence     *awareness.Store
	releaseTimer *time.Timer
	participants map[string]int                  // participantID -> число активных подключений
	subscribers  map[string]Deliver              // peerID -> доставка
	replicas     map[string]models.VersionVector // actor -> последний известный вектор версий реплики
	ready        chan struct{}                   // закрывается после наполнения новой комнаты
	key          models.RoomKey
	projectID    string
	fileName     string
	mu           sync.Mutex
	released     bool
}

func newRoom(key models.RoomKey, projectID, fileName string, doc *crdt.Document, presence *awareness.Store) *Room {
	return &Room{
		doc:          doc,
		presence:     presence,
		participants: make(map[string]int),
		subscribers:  make(map[string]Deliver),
		replicas:     make(map[string]models.VersionVector),
		ready:        make(chan struct{}),
		key:          key,
		projectID:    projectID,
		fileName:     fileName,
	}
}

// Key возвращает ключ комнаты
func (r *Room) Key() models.RoomKey {
	return r.key
}

// ProjectID возвращает идентификатор проекта комнаты
func (r *Room) ProjectID() string {
	return r.projectID
}

// FileName возвращает нормализованное имя файла комнаты
func (r *Room) FileName() string {
	return r.fileName
}

// Document возвращает реплику документа комнаты
func (r *Room) Document() *crdt.Document {
	return r.doc
}

// Awareness возвращает хранилище присутствия комнаты
func (r *Room) Awareness() *awareness.Store {
	return r.presence
}

// Participants возвращает отсортированный список участников комнаты
func (r *Room) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// ParticipantCount возвращает количество участников комнаты
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.participants)
}

// IsMember сообщает, что участник присоединен к комнате
func (r *Room) IsMember(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.participants[participantID] > 0
}

// Released сообщает, что комната освобождена и больше не обслуживается
func (r *Room) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.released
}

func (r *Room) isReady() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Attach подписывает peer на сообщения комнаты
func (r *Room) Attach(peerID string, deliver Deliver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers[peerID] = deliver
}

// Detach отписывает peer. Для неизвестного peer ничего не делает.
func (r *Room) Detach(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[peerID]; !ok {
		return false
	}
	delete(r.subscribers, peerID)
	return true
}

// SubscriberCount возвращает количество подписчиков комнаты
func (r *Room) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subscribers)
}

// Handshake атомарно отвечает присоединяющейся реплике и подписывает ее.
// reply строит ответ из текущего состояния документа; пока он строится и
// отправляется, другие сообщения комнаты не рассылаются, поэтому реплика не
// пропустит обновление между снимком и подпиской.
func (r *Room) Handshake(peerID, actor string, vv models.VersionVector, deliver Deliver, reply func() ([]byte, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := reply()
	if err != nil {
		return err
	}
	if err := deliver(payload); err != nil {
		return err
	}

	if actor != "" {
		r.observeLocked(actor, vv)
	}
	r.subscribers[peerID] = deliver
	return nil
}

// ApplyUpdate применяет обновление к документу комнаты и рассылает его
// остальным подписчикам. Дубликаты и отброшенные обновления не рассылаются.
func (r *Room) ApplyUpdate(fromPeer string, update models.Update, payload []byte) crdt.ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.doc.ApplyRemote(update)
	if result == crdt.Applied || result == crdt.Buffered {
		r.observeLocked(update.Actor, models.VersionVector{update.Actor: update.Counter})
		r.routeLocked(fromPeer, payload)
	}

	return result
}

// Route рассылает сообщение всем подписчикам комнаты, кроме отправителя.
// Возвращает количество успешных доставок.
func (r *Room) Route(fromPeer string, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.routeLocked(fromPeer, payload)
}

// StableVersion возвращает вектор версий, достигнутый всеми известными репликами
func (r *Room) StableVersion() models.VersionVector {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stableLocked()
}

// Compact собирает tombstone, которые видели все известные реплики.
// Сборка откладывается, если какая-то реплика сообщила о версиях,
// которых документ комнаты еще не получил.
func (r *Room) Compact() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.doc.VersionVector()
	for _, vv := range r.replicas {
		if !current.Dominates(vv) {
			return 0
		}
	}

	return r.doc.Compact(r.stableLocked())
}

// ForgetReplica перестает учитывать реплику при сборке мусора.
// Вызывается только при явном уходе: актор ушедшей реплики больше не пишет.
func (r *Room) ForgetReplica(actor string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.replicas, actor)
}

func (r *Room) stableLocked() models.VersionVector {
	vectors := make([]models.VersionVector, 0, len(r.replicas)+1)
	vectors = append(vectors, r.doc.VersionVector())
	for _, vv := range r.replicas {
		vectors = append(vectors, vv)
	}
	return models.MinVersion(vectors...)
}

func (r *Room) observeLocked(actor string, vv models.VersionVector) {
	known, ok := r.replicas[actor]
	if !ok {
		known = make(models.VersionVector)
		r.replicas[actor] = known
	}
	known.Merge(vv)
}

func (r *Room) routeLocked(fromPeer string, payload []byte) int {
	delivered := 0
	for peerID, deliver := range r.subscribers {
		if peerID == fromPeer {
			continue
		}
		if err := deliver(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// join увеличивает счетчик подключений участника; вызывается под блокировкой мультиплексора
func (r *Room) join(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants[participantID]++
	if r.releaseTimer != nil {
		r.releaseTimer.Stop()
		r.releaseTimer = nil
	}
}

// leave уменьшает счетчик подключений участника.
// Возвращает false, если участник не состоял в комнате.
func (r *Room) leave(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, ok := r.participants[participantID]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(r.participants, participantID)
	} else {
		r.participants[participantID] = count - 1
	}
	return true
}
