package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/felixge/httpsnoop"
)

// LoggingMiddleware создает middleware для логирования HTTP запросов.
// Логирует метод, путь, статус, время выполнения и размер ответа.
// Токен из параметров запроса в лог не попадает.
//
// Обертка httpsnoop сохраняет http.Hijacker, без него не работает
// апгрейд до WebSocket.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			logLevel := slog.LevelInfo
			if m.Code >= 500 {
				logLevel = slog.LevelError
			} else if m.Code >= 400 {
				logLevel = slog.LevelWarn
			}

			logger.Log(r.Context(), logLevel, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", sanitizeQuery(r.URL.Query()),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"status", m.Code,
				"duration_ms", m.Duration.Milliseconds(),
				"bytes_written", m.Written,
			)
		})
	}
}

// sensitiveParams параметры запроса, значения которых маскируются
var sensitiveParams = []string{TokenQueryParam, "sig"}

// sanitizeQuery маскирует значения токенов и подписей
func sanitizeQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	for _, param := range sensitiveParams {
		if query.Has(param) {
			query.Set(param, "redacted")
		}
	}
	return query.Encode()
}

// LoggingWithSkip создает middleware с возможностью пропуска определенных путей
// Полезно для health checks и других эндпоинтов с высокой частотой запросов
func LoggingWithSkip(logger *slog.Logger, skipPaths []string) func(http.Handler) http.Handler {
	skipMap := make(map[string]bool)
	for _, path := range skipPaths {
		skipMap[path] = true
	}

	return func(next http.Handler) http.Handler {
		logged := LoggingMiddleware(logger)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipMap[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			logged.ServeHTTP(w, r)
		})
	}
}
