package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/gophtex/internal/server/identity"
	"github.com/iudanet/gophtex/pkg/api"
)

// TokenQueryParam параметр запроса с токеном. Браузерный WebSocket
// не умеет передавать заголовок Authorization.
const TokenQueryParam = "token"

// TokenValidator проверяет токен участника
//
//go:generate moq -out token_validator_mock.go . TokenValidator
type TokenValidator interface {
	Validate(token string) (*identity.Claims, error)
}

// AuthMiddleware создает middleware для проверки JWT токена участника.
// Токен берется из заголовка Authorization либо из параметра ?token=.
func AuthMiddleware(logger *slog.Logger, validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractToken(r)
			if !ok {
				logger.Warn("Missing or malformed credentials", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "unauthorized: missing token")
				return
			}

			claims, err := validator.Validate(tokenString)
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				writeError(w, http.StatusUnauthorized, "unauthorized: invalid token")
				return
			}

			participant := claims.Participant()
			logger.Debug("Participant authenticated",
				"participant_id", participant.ID,
				"display_name", participant.DisplayName,
			)

			next.ServeHTTP(w, r.WithContext(identity.WithParticipant(r.Context(), participant)))
		})
	}
}

// extractToken ожидает формат "Bearer <token>" либо непустой ?token=
func extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}

	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token, true
	}
	return "", false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message})
}
