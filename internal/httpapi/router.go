package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okenna/parentcare/pkg/logging"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Handler        *Handler
	Logger         *logging.Logger
	MetricsHandler http.Handler
}

// NewRouter creates the chi router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))

	h := cfg.Handler

	r.Get("/health", h.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Delete("/{id}", h.EndSession)
		r.Get("/{id}/history", h.History)
		r.Post("/{id}/ask", h.Ask)
	})

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", h.ListCases)
		r.Get("/{id}", h.GetCase)
		r.Post("/{id}/claim", h.ClaimCase)
		r.Post("/{id}/reply", h.ReplyCase)
	})

	r.Get("/ws/chat", h.HandleChatWS)
	r.Get("/ws/review", h.HandleReviewWS)

	return r
}
