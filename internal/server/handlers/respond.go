package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/identity"
	"github.com/iudanet/gophtex/internal/server/storage"
	"github.com/iudanet/gophtex/pkg/api"
)

// responder общие методы ответа для всех handlers
type responder struct {
	logger *slog.Logger
}

// sendJSON отправляет JSON ответ
func (h responder) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h responder) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}

// participant извлекает участника, установленного AuthMiddleware
func (h responder) participant(w http.ResponseWriter, r *http.Request) (models.Participant, bool) {
	p, ok := identity.ParticipantFromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "participant not found in context")
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
	}
	return p, ok
}

// storageError переводит ошибки хранилища в HTTP статусы
func (h responder) storageError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrProjectNotFound):
		h.sendError(w, "project not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrParticipantNotFound):
		h.sendError(w, "participant not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrFileNotFound):
		h.sendError(w, "file not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrFileAlreadyExists):
		h.sendError(w, "file already exists", http.StatusConflict)
	default:
		h.logger.ErrorContext(r.Context(), msg, slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}
