package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/identity"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func newTestIdentity(t *testing.T, secret string, ttl time.Duration) *identity.Service {
	t.Helper()
	svc, err := identity.NewService(identity.Config{Secret: []byte(secret), TokenTTL: ttl})
	require.NoError(t, err)
	return svc
}

// testHandler is a simple handler that checks context values
func testHandler(t *testing.T, expected models.Participant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant, ok := identity.ParticipantFromContext(r.Context())
		require.True(t, ok, "participant should be in context")
		assert.Equal(t, expected, participant)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func mustNotBeCalled(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("Handler should not be called")
	})
}

func TestAuthMiddleware_Success(t *testing.T) {
	svc := newTestIdentity(t, "test-secret-key", 15*time.Minute)
	issued, err := svc.Issue("Alice", "#FF6B6B")
	require.NoError(t, err)

	wrappedHandler := AuthMiddleware(setupTestLogger(), svc)(testHandler(t, issued.Participant))

	t.Run("authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+issued.Token)

		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+issued.Token, nil)

		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthMiddleware_MissingCredentials(t *testing.T) {
	svc := newTestIdentity(t, "test-secret-key", 15*time.Minute)
	wrappedHandler := AuthMiddleware(setupTestLogger(), svc)(mustNotBeCalled(t))

	tests := []struct {
		name   string
		target string
		header string
	}{
		{name: "nothing", target: "/test"},
		{name: "empty query token", target: "/test?token="},
		{name: "no Bearer prefix", target: "/test", header: "token123"},
		{name: "wrong prefix", target: "/test", header: "Basic token123"},
		{name: "only Bearer", target: "/test", header: "Bearer"},
		{name: "Bearer with spaces", target: "/test", header: "Bearer   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			wrappedHandler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), "missing token")
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	svc := newTestIdentity(t, "secret-key-1", 15*time.Minute)
	other := newTestIdentity(t, "secret-key-2", 15*time.Minute)
	foreign, err := other.Issue("Mallory", "")
	require.NoError(t, err)

	wrappedHandler := AuthMiddleware(setupTestLogger(), svc)(mustNotBeCalled(t))

	tests := []struct {
		name  string
		token string
	}{
		{name: "malformed token", token: "invalid.token.here"},
		{name: "random string", token: "randomstring123"},
		{name: "wrong secret", token: foreign.Token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)

			w := httptest.NewRecorder()
			wrappedHandler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "invalid token")
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	svc := newTestIdentity(t, "test-secret-key", time.Nanosecond)
	issued, err := svc.Issue("Alice", "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	wrappedHandler := AuthMiddleware(setupTestLogger(), svc)(mustNotBeCalled(t))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)

	w := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_HeaderTakesPrecedence(t *testing.T) {
	validator := &TokenValidatorMock{
		ValidateFunc: func(token string) (*identity.Claims, error) {
			if token == "header-token" {
				return &identity.Claims{ParticipantID: "p-1", DisplayName: "Alice"}, nil
			}
			return nil, errors.New("unexpected token")
		},
	}

	wrappedHandler := AuthMiddleware(setupTestLogger(), validator)(
		testHandler(t, models.Participant{ID: "p-1", DisplayName: "Alice"}),
	)

	req := httptest.NewRequest(http.MethodGet, "/test?token=query-token", nil)
	req.Header.Set("Authorization", "bearer header-token")

	w := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, validator.ValidateCalls(), 1)
	assert.Equal(t, "header-token", validator.ValidateCalls()[0].Token)
}
