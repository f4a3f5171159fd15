package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"commitpact-backend/internal/handlers"
	"commitpact-backend/internal/middleware"
	"commitpact-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	webhookHandler *handlers.WebhookHandler,
	studyHandler *handlers.StudyHandler,
	sessionHandler *handlers.SessionHandler,
	wsHub *websocket.Hub,
	opsOrigin string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(opsOrigin))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Webhook intake (authenticated upstream) ────
		r.Post("/webhooks/push", webhookHandler.Push)

		// ──── Operator token ────
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/auth/token", authHandler.Token)
		})

		// ──── Studies ────
		r.Route("/studies", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", studyHandler.Create)
			r.Get("/", studyHandler.List)
			r.Post("/{id}/participants", studyHandler.AddParticipant)
			r.Get("/{id}/participants", studyHandler.ListParticipants)
		})

		// ──── Sessions ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", sessionHandler.List)
			r.Get("/{id}/attendances", sessionHandler.ListAttendances)
			r.Post("/{id}/fail", sessionHandler.Fail)
		})

		// ──── Closure trigger ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/closures/run", sessionHandler.RunClosures)
		})

		// ──── Ops event feed ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
