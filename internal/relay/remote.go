package relay

import (
	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/pkg/api"
)

// HandleRemote обрабатывает сообщение, пришедшее из шины от другого узла.
// Собственные сообщения узла и сообщения комнат, которых на узле нет,
// игнорируются.
func (h *Hub) HandleRemote(key models.RoomKey, raw []byte) {
	msg, err := api.Decode(raw)
	if err != nil {
		h.logger.Warn("Dropping malformed bus message", "room", key, "error", err)
		return
	}
	if msg.NodeID == h.nodeID || msg.RoomKey != key {
		return
	}

	r, ok := h.rooms.Get(key)
	if !ok {
		return
	}

	switch msg.Type {
	case api.TypeUpdate:
		r.ApplyUpdate("", *msg.Update, raw)
	case api.TypeAwareness:
		if r.Awareness().ApplyRemote(*msg.Awareness) {
			r.Route("", raw)
		}
	case api.TypeLeave:
		if !r.IsMember(msg.Leave.ParticipantID) && r.Awareness().Remove(msg.Leave.ParticipantID) {
			r.Route("", raw)
		}
	case api.TypeJoin:
		// другой узел создал или обновил реплику комнаты: досылаем недостающее
		missing := syncPayload(r, msg.Join.Version)
		if len(missing.Updates) == 0 && len(missing.Awareness) == 0 {
			return
		}
		h.publish(api.NewSyncMessage(key, missing))
	case api.TypeSync:
		for _, update := range msg.Sync.Updates {
			payload, err := api.Encode(api.NewUpdateMessage(update))
			if err != nil {
				continue
			}
			if result := r.ApplyUpdate("", update, payload); result == crdt.Rejected {
				h.logger.Warn("Rejected update from bus", "room", key, "actor", update.Actor)
			}
		}
		for _, entry := range msg.Sync.Awareness {
			if r.Awareness().ApplyRemote(entry) {
				if payload, err := api.Encode(api.NewAwarenessMessage(key, entry)); err == nil {
					r.Route("", payload)
				}
			}
		}
	}
}
