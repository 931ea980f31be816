package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/room"
	"github.com/iudanet/gophtex/internal/server/storage"
	"github.com/iudanet/gophtex/pkg/api"
)

// RoomKeyVar имя переменной пути с ключом комнаты
const RoomKeyVar = "roomKey"

// RoomServer обслуживает WebSocket-соединение участника с комнатой
type RoomServer interface {
	Serve(w http.ResponseWriter, r *http.Request, participantID string, roomKey models.RoomKey) error
}

// RoomRegistry активные комнаты узла
type RoomRegistry interface {
	Get(key models.RoomKey) (*room.Room, bool)
}

// RoomHandler подключает участников к комнатам
type RoomHandler struct {
	projects storage.ProjectStorage
	server   RoomServer
	rooms    RoomRegistry
	responder
}

// NewRoomHandler создает handler комнат
func NewRoomHandler(logger *slog.Logger, projects storage.ProjectStorage, server RoomServer, rooms RoomRegistry) *RoomHandler {
	return &RoomHandler{
		responder: responder{logger: logger},
		projects:  projects,
		server:    server,
		rooms:     rooms,
	}
}

// Connect обрабатывает GET /api/v1/rooms/{roomKey}/ws
// Переводит соединение в WebSocket и привязывает его к комнате
func (h *RoomHandler) Connect(w http.ResponseWriter, r *http.Request) {
	key, p, ok := h.authorize(w, r)
	if !ok {
		return
	}

	// Serve возвращает управление после закрытия соединения
	if err := h.server.Serve(w, r, p.ID, key); err != nil {
		h.logger.WarnContext(r.Context(), "websocket session failed",
			slog.String("room", key.String()),
			slog.Any("error", err))
	}
}

// Snapshot обрабатывает GET /api/v1/rooms/{roomKey}
// Возвращает текущий текст и присутствие активной комнаты узла
func (h *RoomHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	key, _, ok := h.authorize(w, r)
	if !ok {
		return
	}

	rm, ok := h.rooms.Get(key)
	if !ok {
		h.sendError(w, "room is not active", http.StatusNotFound)
		return
	}

	doc := rm.Document()
	h.sendJSON(w, api.RoomSnapshotResponse{
		Version:      doc.VersionVector(),
		RoomKey:      key,
		Text:         doc.Text(),
		Participants: rm.Awareness().Snapshot(),
		Subscribers:  rm.SubscriberCount(),
	}, http.StatusOK)
}

// authorize проверяет ключ комнаты и членство участника в проекте
func (h *RoomHandler) authorize(w http.ResponseWriter, r *http.Request) (models.RoomKey, models.Participant, bool) {
	p, ok := h.participant(w, r)
	if !ok {
		return "", p, false
	}

	key := models.RoomKey(mux.Vars(r)[RoomKeyVar])
	projectID, fileName, err := models.ParseRoomKey(key)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return "", p, false
	}

	project, err := h.projects.GetProject(r.Context(), projectID)
	if err != nil {
		h.storageError(w, r, "failed to get project", err)
		return "", p, false
	}
	if !project.IsMember(p.ID) {
		h.logger.WarnContext(r.Context(), "access to foreign room denied",
			slog.String("room", key.String()),
			slog.String("participant_id", p.ID))
		h.sendError(w, "access denied", http.StatusForbidden)
		return "", p, false
	}
	if !project.HasFile(fileName) {
		h.sendError(w, "file not found", http.StatusNotFound)
		return "", p, false
	}

	return key, p, true
}
