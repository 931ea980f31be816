package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/storage"
	"github.com/iudanet/gophtex/internal/validation"
	"github.com/iudanet/gophtex/pkg/api"
)

// IdentityIssuer выдает подписанные идентичности участников
type IdentityIssuer interface {
	Issue(displayName, color string) (*models.Identity, error)
	Renew(participant models.Participant) (*models.Identity, error)
}

// IdentityHandler выдает и обновляет идентичность участника
type IdentityHandler struct {
	issuer       IdentityIssuer
	participants storage.ParticipantStorage
	responder
}

// NewIdentityHandler создает handler идентичности
func NewIdentityHandler(logger *slog.Logger, issuer IdentityIssuer, participants storage.ParticipantStorage) *IdentityHandler {
	return &IdentityHandler{
		responder:    responder{logger: logger},
		issuer:       issuer,
		participants: participants,
	}
}

// Issue обрабатывает POST /api/v1/identity
// Создает нового участника с отображаемым именем
func (h *IdentityHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	issued, err := h.issuer.Issue(req.DisplayName, req.Color)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue identity", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.participants.SaveParticipant(ctx, issued.Participant); err != nil {
		h.logger.ErrorContext(ctx, "failed to save participant", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "identity issued",
		slog.String("participant_id", issued.Participant.ID),
		slog.String("display_name", issued.Participant.DisplayName))

	h.sendJSON(w, newIdentityResponse(issued), http.StatusCreated)
}

// Update обрабатывает PUT /api/v1/identity
// Меняет имя и цвет участника и выдает новый токен
func (h *IdentityHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, ok := h.participant(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	updated := models.Participant{
		ID:          current.ID,
		DisplayName: req.DisplayName,
		Color:       req.Color,
	}
	if updated.Color == "" {
		updated.Color = current.Color
	}

	if err := h.participants.SaveParticipant(ctx, updated); err != nil {
		h.logger.ErrorContext(ctx, "failed to save participant", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	renewed, err := h.issuer.Renew(updated)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to renew identity", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "identity updated", slog.String("participant_id", updated.ID))

	h.sendJSON(w, newIdentityResponse(renewed), http.StatusOK)
}

func (h *IdentityHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (api.IdentityRequest, bool) {
	ctx := r.Context()

	var req api.IdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode identity request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}

	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		h.logger.WarnContext(ctx, "invalid display name", slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	if err := validation.ValidateColor(req.Color); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return req, false
	}

	return req, true
}

func newIdentityResponse(identity *models.Identity) api.IdentityResponse {
	return api.IdentityResponse{
		ParticipantID: identity.Participant.ID,
		DisplayName:   identity.Participant.DisplayName,
		Color:         identity.Participant.Color,
		Token:         identity.Token,
		ExpiresIn:     int64(time.Until(identity.ExpiresAt).Seconds()),
	}
}
