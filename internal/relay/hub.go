// Package relay реализует серверную сторону синхронизации: принимает
// сообщения соединений, ведет авторитетную реплику каждой комнаты и
// рассылает обновления и присутствие участникам той же комнаты.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/room"
	"github.com/iudanet/gophtex/internal/transport"
	"github.com/iudanet/gophtex/pkg/api"
)

// publishTimeout ограничивает публикацию одного сообщения в шину
const publishTimeout = 5 * time.Second

// Bus шина между узлами сервера, обслуживающими одни и те же комнаты
type Bus interface {
	Publish(ctx context.Context, key models.RoomKey, payload []byte) error
}

// Seeder возвращает начальное содержимое нового файла.
// ok == true ровно один раз за время жизни файла.
type Seeder interface {
	InitialContent(ctx context.Context, projectID, fileName string) (text string, ok bool)
}

// Option настраивает Hub
type Option func(*Hub)

// WithBus подключает шину между узлами
func WithBus(bus Bus) Option {
	return func(h *Hub) {
		h.bus = bus
	}
}

// WithSeeder задает источник начального содержимого файлов
func WithSeeder(seeder Seeder) Option {
	return func(h *Hub) {
		h.seeder = seeder
	}
}

// WithNodeID задает идентификатор узла (по умолчанию случайный UUID)
func WithNodeID(nodeID string) Option {
	return func(h *Hub) {
		h.nodeID = nodeID
	}
}

// peerState участие одного соединения в комнате
type peerState struct {
	room          *room.Room
	participantID string
	actor         string
}

// Hub принимает сообщения соединений и обслуживает комнаты узла
type Hub struct {
	rooms  *room.Multiplexer
	bus    Bus
	seeder Seeder
	logger *slog.Logger
	peers  map[string]*peerState
	nodeID string
	mu     sync.Mutex
}

var _ transport.Acceptor = (*Hub)(nil)

// NewHub создает hub поверх реестра комнат
func NewHub(rooms *room.Multiplexer, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		rooms:  rooms,
		logger: logger,
		peers:  make(map[string]*peerState),
		nodeID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NodeID возвращает идентификатор узла
func (h *Hub) NodeID() string {
	return h.nodeID
}

// Rooms возвращает реестр комнат узла
func (h *Hub) Rooms() *room.Multiplexer {
	return h.rooms
}

// HandleMessage обрабатывает одно сообщение соединения.
// Некорректные сообщения и сообщения вне комнаты соединения отбрасываются.
func (h *Hub) HandleMessage(peer transport.Peer, raw []byte) {
	msg, err := api.Decode(raw)
	if err != nil {
		h.logger.Warn("Dropping malformed message", "peer", peer.ID(), "error", err)
		return
	}

	if scoped, ok := peer.(transport.ScopedPeer); ok && scoped.RoomKey() != "" && scoped.RoomKey() != msg.RoomKey {
		h.logger.Warn("Dropping message for another room", "peer", peer.ID(), "room", msg.RoomKey, "scope", scoped.RoomKey())
		return
	}

	if msg.Type == api.TypeJoin {
		h.join(peer, msg)
		return
	}

	state := h.state(peer)
	if state == nil || state.room.Key() != msg.RoomKey {
		h.logger.Warn("Dropping message outside of joined room", "peer", peer.ID(), "room", msg.RoomKey, "type", msg.Type)
		return
	}

	switch msg.Type {
	case api.TypeUpdate:
		result := state.room.ApplyUpdate(peer.ID(), *msg.Update, raw)
		h.logger.Debug("Update received", "room", msg.RoomKey, "actor", msg.Update.Actor, "result", result)
		if result == crdt.Applied || result == crdt.Buffered {
			h.publish(msg)
		}
	case api.TypeAwareness:
		if msg.Awareness.ParticipantID != state.participantID {
			h.logger.Warn("Dropping awareness for another participant", "peer", peer.ID(), "participant_id", msg.Awareness.ParticipantID)
			return
		}
		if state.room.Awareness().ApplyRemote(*msg.Awareness) {
			state.room.Route(peer.ID(), raw)
			h.publish(msg)
		}
	case api.TypeLeave:
		// реплика забывается, только если клиент назвал свой актор:
		// без него у клиента остались неотправленные правки
		h.leave(peer, state, msg.Leave.Actor != "" && msg.Leave.Actor == state.actor)
	default:
		h.logger.Warn("Dropping unexpected message", "peer", peer.ID(), "type", msg.Type)
	}
}

// HandleDisconnect выводит соединение из комнаты без забывания его реплики:
// клиент может переподключиться с тем же актором.
func (h *Hub) HandleDisconnect(peer transport.Peer) {
	state := h.state(peer)
	if state == nil {
		return
	}
	h.leave(peer, state, false)
}

func (h *Hub) join(peer transport.Peer, msg *api.Message) {
	join := msg.Join
	if authenticated := peer.ParticipantID(); authenticated != "" && authenticated != join.ParticipantID {
		h.logger.Warn("Dropping join for another participant", "peer", peer.ID(), "participant_id", join.ParticipantID)
		return
	}
	if h.state(peer) != nil {
		h.logger.Warn("Dropping repeated join", "peer", peer.ID(), "room", msg.RoomKey)
		return
	}

	projectID, fileName, err := models.ParseRoomKey(msg.RoomKey)
	if err != nil {
		h.logger.Warn("Dropping join with invalid room key", "peer", peer.ID(), "error", err)
		return
	}

	var opts []room.JoinOption
	if h.seeder != nil {
		opts = append(opts, room.WithSeeder(func() (string, bool) {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			return h.seeder.InitialContent(ctx, projectID, fileName)
		}))
	}

	r, err := h.rooms.Join(projectID, fileName, join.ParticipantID, opts...)
	if err != nil {
		h.logger.Warn("Failed to join room", "peer", peer.ID(), "room", msg.RoomKey, "error", err)
		return
	}

	if join.Awareness != nil && r.Awareness().ApplyRemote(*join.Awareness) {
		awarenessMsg := api.NewAwarenessMessage(r.Key(), *join.Awareness)
		if payload, err := api.Encode(awarenessMsg); err == nil {
			r.Route(peer.ID(), payload)
		}
		h.publish(awarenessMsg)
	}

	err = r.Handshake(peer.ID(), join.Actor, join.Version, peer.Send, func() ([]byte, error) {
		return api.Encode(api.NewSyncMessage(r.Key(), syncPayload(r, join.Version)))
	})
	if err != nil {
		h.logger.Warn("Handshake failed", "peer", peer.ID(), "room", r.Key(), "error", err)
		h.rooms.Leave(r, join.ParticipantID)
		return
	}

	h.mu.Lock()
	h.peers[peer.ID()] = &peerState{room: r, participantID: join.ParticipantID, actor: join.Actor}
	h.mu.Unlock()

	h.logger.Info("Participant joined", "room", r.Key(), "participant_id", join.ParticipantID, "peer", peer.ID())

	// другие узлы досылают то, чего нет у реплики этого узла
	h.publish(api.NewJoinMessage(r.Key(), api.JoinPayload{
		ParticipantID: h.nodeID,
		Actor:         h.nodeID,
		Version:       r.Document().VersionVector(),
	}))
}

func (h *Hub) leave(peer transport.Peer, state *peerState, forgetReplica bool) {
	h.mu.Lock()
	if h.peers[peer.ID()] != state {
		h.mu.Unlock()
		return
	}
	delete(h.peers, peer.ID())
	h.mu.Unlock()

	r := state.room
	r.Detach(peer.ID())
	if forgetReplica {
		r.ForgetReplica(state.actor)
	}
	h.rooms.Leave(r, state.participantID)

	if !r.IsMember(state.participantID) && r.Awareness().Remove(state.participantID) {
		leaveMsg := api.NewLeaveMessage(r.Key(), state.participantID, state.actor)
		if payload, err := api.Encode(leaveMsg); err == nil {
			r.Route(peer.ID(), payload)
		}
		h.publish(leaveMsg)
	}

	h.logger.Info("Participant left", "room", r.Key(), "participant_id", state.participantID, "forget_replica", forgetReplica)
}

func (h *Hub) state(peer transport.Peer) *peerState {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.peers[peer.ID()]
}

// publish пересылает сообщение другим узлам через шину
func (h *Hub) publish(msg *api.Message) {
	if h.bus == nil {
		return
	}

	forwarded := *msg
	forwarded.NodeID = h.nodeID
	payload, err := api.Encode(&forwarded)
	if err != nil {
		h.logger.Error("Failed to encode bus message", "room", msg.RoomKey, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.bus.Publish(ctx, msg.RoomKey, payload); err != nil {
		h.logger.Warn("Failed to publish to bus", "room", msg.RoomKey, "error", err)
	}
}

func syncPayload(r *room.Room, since models.VersionVector) api.SyncPayload {
	doc := r.Document()
	return api.SyncPayload{
		Version:   doc.VersionVector(),
		Updates:   doc.UpdatesSince(since),
		Awareness: r.Awareness().Snapshot(),
	}
}
