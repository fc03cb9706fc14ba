package routes

import (
	"time"

	"parley/parley/config"
	"parley/parley/controllers"
	"parley/parley/realtime"
	"parley/parley/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Chat   *controllers.ChatController
	Auth   *controllers.AuthController
	Health *controllers.HealthController
	Hub    *realtime.Hub
}

// NewRouter mounts every route. The request timeout only wraps REST routes;
// websocket connections live as long as the client keeps them open.
func NewRouter(h Handlers, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestMiddleware)
	r.Use(middleware.Recoverer)

	r.Mount("/ws", WSRoutes(h.Chat, h.Hub, cfg))
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Timeout(60 * time.Second))
		gr.Mount("/health", HealthRoutes(h.Health))
		gr.Mount("/auth", AuthRoutes(h.Auth))
		gr.Mount("/chats", ChatRoutes(h.Chat, cfg))
	})
	return r
}
