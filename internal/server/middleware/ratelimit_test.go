package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/server/identity"
)

func newTestLimiter(t *testing.T, rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	t.Helper()

	limiter := NewRateLimiter(rate, window, logger)
	t.Cleanup(limiter.Stop)
	return limiter
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// limitedRequest описывает один запрос к ограниченному маршруту
type limitedRequest struct {
	participant string // пусто для запроса без токена
	remoteAddr  string
	forwarded   string
	realIP      string
}

func (lr limitedRequest) serve(handler http.Handler) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.RemoteAddr = lr.remoteAddr
	if lr.forwarded != "" {
		req.Header.Set("X-Forwarded-For", lr.forwarded)
	}
	if lr.realIP != "" {
		req.Header.Set("X-Real-IP", lr.realIP)
	}
	if lr.participant != "" {
		req = req.WithContext(identity.WithParticipant(req.Context(), models.Participant{ID: lr.participant}))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_Keys(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		requests []limitedRequest
		want     []int
	}{
		{
			name: "participants behind one address have separate limits",
			requests: []limitedRequest{
				{participant: "alice", remoteAddr: "10.0.0.1:1000"},
				{participant: "bob", remoteAddr: "10.0.0.1:1000"},
				{participant: "alice", remoteAddr: "10.0.0.1:1000"},
			},
			want: []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name: "participant keeps its limit across addresses",
			requests: []limitedRequest{
				{participant: "alice", remoteAddr: "10.0.0.1:1000"},
				{participant: "alice", remoteAddr: "10.0.0.2:2000"},
			},
			want: []int{http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name: "anonymous requests are limited by forwarded client",
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1000", forwarded: "203.0.113.5, 10.0.0.1"},
				{remoteAddr: "10.0.0.1:1000", forwarded: "203.0.113.6"},
				{remoteAddr: "10.0.0.9:9000", forwarded: "203.0.113.5"},
			},
			want: []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name: "real ip header is used without forwarded list",
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1000", realIP: "198.51.100.7"},
				{remoteAddr: "10.0.0.1:1000", realIP: "198.51.100.8"},
				{remoteAddr: "10.0.0.2:2000", realIP: "198.51.100.7"},
			},
			want: []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name: "anonymous and participant buckets do not mix",
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1000"},
				{participant: "alice", remoteAddr: "10.0.0.1:1000"},
			},
			want: []int{http.StatusOK, http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestLimiter(t, 1, time.Minute, logger).Middleware()(okHandler())

			got := make([]int, 0, len(tt.requests))
			for _, req := range tt.requests {
				got = append(got, req.serve(handler))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimitMiddleware_RejectsWithJSON(t *testing.T) {
	var logBuf strings.Builder
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	handler := newTestLimiter(t, 1, time.Minute, logger).Middleware()(okHandler())

	alice := limitedRequest{participant: "alice", remoteAddr: "10.0.0.1:1000"}
	require.Equal(t, http.StatusOK, alice.serve(handler))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", nil)
	req = req.WithContext(identity.WithParticipant(req.Context(), models.Participant{ID: "alice"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rate limit exceeded, please try again later"}`, w.Body.String())

	out := logBuf.String()
	assert.Contains(t, out, "Rate limit exceeded")
	assert.Contains(t, out, "key=participant:alice")
	assert.Contains(t, out, "method=POST")
	assert.Contains(t, out, "path=/api/v1/projects")
}

func TestRateLimiter_WindowRefill(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := newTestLimiter(t, 2, 50*time.Millisecond, logger)

	assert.True(t, limiter.Allow("participant:alice"))
	assert.True(t, limiter.Allow("participant:alice"))
	assert.False(t, limiter.Allow("participant:alice"))

	require.Eventually(t, func() bool {
		return limiter.Allow("participant:alice")
	}, time.Second, 10*time.Millisecond)
}

func TestRateLimiter_CleanupForgetsIdleKeys(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := newTestLimiter(t, 1, time.Minute, logger)

	limiter.Allow("participant:alice")
	limiter.Allow("participant:bob")

	idle := limiter.bucketFor("participant:alice")
	idle.mu.Lock()
	idle.lastRefill = time.Now().Add(-3 * time.Minute)
	idle.mu.Unlock()

	limiter.cleanupOldBuckets()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.NotContains(t, limiter.buckets, "participant:alice")
	assert.Contains(t, limiter.buckets, "participant:bob")
}

func TestRateLimiter_ConcurrentParticipants(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := newTestLimiter(t, 10, time.Minute, logger)

	participants := []string{"alice", "bob", "carol"}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed = make(map[string]int)
	)
	for _, p := range participants {
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("participant:" + p) {
					mu.Lock()
					allowed[p]++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	for _, p := range participants {
		assert.Equal(t, 10, allowed[p], p)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	limiter.Stop()
	limiter.Stop()
}
