package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/gophtex/internal/models"
)

// ErrMalformedMessage возвращается, если сообщение не удалось разобрать или проверить
var ErrMalformedMessage = errors.New("malformed message")

// MessageType тип сообщения протокола синхронизации
type MessageType string

// MessageType константы
const (
	TypeJoin      MessageType = "join"      // реплика входит в комнату
	TypeSync      MessageType = "sync"      // ответ на join: недостающие обновления
	TypeUpdate    MessageType = "update"    // дельта документа
	TypeAwareness MessageType = "awareness" // состояние присутствия
	TypeLeave     MessageType = "leave"     // участник покидает комнату
)

// Message конверт протокола. Заполнено ровно одно поле полезной нагрузки,
// соответствующее Type.
type Message struct {
	Join      *JoinPayload           `json:"join,omitempty"`
	Sync      *SyncPayload           `json:"sync,omitempty"`
	Update    *models.Update         `json:"update,omitempty"`
	Awareness *models.AwarenessEntry `json:"awareness,omitempty"`
	Leave     *LeavePayload          `json:"leave,omitempty"`
	Type      MessageType            `json:"type"`
	RoomKey   models.RoomKey         `json:"room_key"`
	NodeID    string                 `json:"node_id,omitempty"` // узел сервера, переславший сообщение через шину
}

// JoinPayload запрос реплики на вход в комнату
type JoinPayload struct {
	Version       models.VersionVector   `json:"version"`
	Awareness     *models.AwarenessEntry `json:"awareness,omitempty"`
	ParticipantID string                 `json:"participant_id"`
	Actor         string                 `json:"actor"`
}

// SyncPayload ответ комнаты на join
type SyncPayload struct {
	Version   models.VersionVector    `json:"version"`
	Updates   []models.Update         `json:"updates"`
	Awareness []models.AwarenessEntry `json:"awareness"`
}

// LeavePayload уведомление об уходе участника
type LeavePayload struct {
	ParticipantID string `json:"participant_id"`
	Actor         string `json:"actor,omitempty"`
}

// NewJoinMessage создает сообщение join
func NewJoinMessage(key models.RoomKey, join JoinPayload) *Message {
	return &Message{Type: TypeJoin, RoomKey: key, Join: &join}
}

// NewSyncMessage создает ответ sync
func NewSyncMessage(key models.RoomKey, sync SyncPayload) *Message {
	return &Message{Type: TypeSync, RoomKey: key, Sync: &sync}
}

// NewUpdateMessage создает сообщение с дельтой документа
func NewUpdateMessage(update models.Update) *Message {
	return &Message{Type: TypeUpdate, RoomKey: update.RoomKey, Update: &update}
}

// NewAwarenessMessage создает сообщение присутствия
func NewAwarenessMessage(key models.RoomKey, entry models.AwarenessEntry) *Message {
	return &Message{Type: TypeAwareness, RoomKey: key, Awareness: &entry}
}

// NewLeaveMessage создает уведомление об уходе
func NewLeaveMessage(key models.RoomKey, participantID, actor string) *Message {
	return &Message{Type: TypeLeave, RoomKey: key, Leave: &LeavePayload{ParticipantID: participantID, Actor: actor}}
}

// Encode сериализует сообщение в JSON
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	return data, nil
}

// Decode разбирает и проверяет сообщение.
// Любая ошибка оборачивает ErrMalformedMessage.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate проверяет согласованность типа и полезной нагрузки
func (m *Message) Validate() error {
	if m.RoomKey == "" {
		return fmt.Errorf("%w: empty room key", ErrMalformedMessage)
	}

	switch m.Type {
	case TypeJoin:
		if m.Join == nil || m.Join.ParticipantID == "" || m.Join.Actor == "" {
			return fmt.Errorf("%w: join requires participant and actor", ErrMalformedMessage)
		}
		if m.Join.Awareness != nil && m.Join.Awareness.ParticipantID != m.Join.ParticipantID {
			return fmt.Errorf("%w: join awareness belongs to another participant", ErrMalformedMessage)
		}
	case TypeSync:
		if m.Sync == nil {
			return fmt.Errorf("%w: sync without payload", ErrMalformedMessage)
		}
		for i := range m.Sync.Updates {
			if err := m.checkUpdate(&m.Sync.Updates[i]); err != nil {
				return err
			}
		}
	case TypeUpdate:
		if m.Update == nil {
			return fmt.Errorf("%w: update without payload", ErrMalformedMessage)
		}
		return m.checkUpdate(m.Update)
	case TypeAwareness:
		if m.Awareness == nil || m.Awareness.ParticipantID == "" {
			return fmt.Errorf("%w: awareness without participant", ErrMalformedMessage)
		}
	case TypeLeave:
		if m.Leave == nil || m.Leave.ParticipantID == "" {
			return fmt.Errorf("%w: leave without participant", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}

	return nil
}

func (m *Message) checkUpdate(update *models.Update) error {
	if update.RoomKey != m.RoomKey {
		return fmt.Errorf("%w: update for room %q inside %q message", ErrMalformedMessage, update.RoomKey, m.RoomKey)
	}
	if err := update.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return nil
}
