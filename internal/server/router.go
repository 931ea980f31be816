// Package server собирает HTTP-маршруты сервера синхронизации.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/gophtex/internal/server/handlers"
	"github.com/iudanet/gophtex/internal/server/middleware"
)

// Handlers обработчики всех маршрутов
type Handlers struct {
	Health   *handlers.HealthHandler
	Identity *handlers.IdentityHandler
	Projects *handlers.ProjectHandler
	Rooms    *handlers.RoomHandler
}

// Limits ограничения частоты запросов
type Limits struct {
	Window   time.Duration
	Identity int // запросов выдачи идентичности с одного IP за окно
	API      int // запросов участника за окно
}

// Router HTTP-маршрутизатор вместе с ограничителями, которые нужно остановить
type Router struct {
	http.Handler
	limiters []*middleware.RateLimiter
}

// Stop останавливает фоновую очистку ограничителей
func (r *Router) Stop() {
	for _, rl := range r.limiters {
		rl.Stop()
	}
}

// NewRouter строит маршруты API:
//
//	GET    /api/v1/health
//	POST   /api/v1/identity
//	PUT    /api/v1/identity
//	GET    /api/v1/projects
//	POST   /api/v1/projects
//	GET    /api/v1/projects/{projectID}
//	PATCH  /api/v1/projects/{projectID}
//	POST   /api/v1/projects/{projectID}/files
//	POST   /api/v1/projects/{projectID}/collaborators
//	GET    /api/v1/projects/{projectID}/share
//	POST   /api/v1/share/resolve
//	GET    /api/v1/rooms/{roomKey}
//	GET    /api/v1/rooms/{roomKey}/ws
func NewRouter(logger *slog.Logger, validator middleware.TokenValidator, h Handlers, limits Limits) *Router {
	identityLimiter := middleware.NewRateLimiter(limits.Identity, limits.Window, logger)
	apiLimiter := middleware.NewRateLimiter(limits.API, limits.Window, logger)

	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingWithSkip(logger, []string{"/api/v1/health"}))

	r.HandleFunc("/api/v1/health", h.Health.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// выдача идентичности не требует токена, поэтому ограничивается по IP
	v1.Handle("/identity", identityLimiter.Middleware()(http.HandlerFunc(h.Identity.Issue))).Methods(http.MethodPost)

	protected := v1.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(logger, validator))
	protected.Use(apiLimiter.Middleware())

	protected.HandleFunc("/identity", h.Identity.Update).Methods(http.MethodPut)

	project := "/projects/{" + handlers.ProjectIDVar + "}"
	protected.HandleFunc("/projects", h.Projects.List).Methods(http.MethodGet)
	protected.HandleFunc("/projects", h.Projects.Create).Methods(http.MethodPost)
	protected.HandleFunc(project, h.Projects.Get).Methods(http.MethodGet)
	protected.HandleFunc(project, h.Projects.Rename).Methods(http.MethodPatch)
	protected.HandleFunc(project+"/files", h.Projects.AddFile).Methods(http.MethodPost)
	protected.HandleFunc(project+"/collaborators", h.Projects.AddCollaborator).Methods(http.MethodPost)
	protected.HandleFunc(project+"/share", h.Projects.ShareLink).Methods(http.MethodGet)
	protected.HandleFunc("/share/resolve", h.Projects.ResolveShare).Methods(http.MethodPost)

	roomPath := "/rooms/{" + handlers.RoomKeyVar + "}"
	protected.HandleFunc(roomPath, h.Rooms.Snapshot).Methods(http.MethodGet)
	protected.HandleFunc(roomPath+"/ws", h.Rooms.Connect).Methods(http.MethodGet)

	return &Router{
		Handler:  r,
		limiters: []*middleware.RateLimiter{identityLimiter, apiLimiter},
	}
}
