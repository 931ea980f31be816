package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/gophtex/pkg/api"
)

// RoomCounter количество активных комнат узла
type RoomCounter interface {
	Len() int
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	rooms   RoomCounter
	version string
	nodeID  string
	responder
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, version, nodeID string, rooms RoomCounter) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: logger},
		rooms:     rooms,
		version:   version,
		nodeID:    nodeID,
	}
}

// Health обрабатывает GET /api/v1/health
// Health check endpoint для мониторинга
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:  "ok",
		Version: h.version,
		NodeID:  h.nodeID,
	}
	if h.rooms != nil {
		resp.Rooms = h.rooms.Len()
	}

	h.sendJSON(w, resp, http.StatusOK)
}
