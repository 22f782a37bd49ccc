package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukerupert/unitask/internal/handler"
	"github.com/dukerupert/unitask/internal/middleware"
	ws "github.com/dukerupert/unitask/internal/websocket"
)

// Tracker is everything the HTTP surface needs from the message tracker.
type Tracker interface {
	handler.ReadNotifier
	handler.MessageTracker
}

type Config struct {
	WebhookSecret string
	// Manual API requests per second per client IP.
	APIRate  float64
	APIBurst int
}

type Server struct {
	webhookH    *handler.WebhookHandler
	messageH    *handler.MessageHandler
	hub         *ws.Hub
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

func New(cfg Config, users handler.UserUpserter, tr Tracker, sched handler.SchedulerStatus, hub *ws.Hub, logger *slog.Logger) *Server {
	if cfg.APIRate <= 0 {
		cfg.APIRate = 5
	}
	if cfg.APIBurst <= 0 {
		cfg.APIBurst = 10
	}
	return &Server{
		webhookH:    handler.NewWebhookHandler(users, tr, logger.With("component", "webhook")),
		messageH:    handler.NewMessageHandler(tr, sched),
		hub:         hub,
		rateLimiter: middleware.NewRateLimiter(cfg.APIRate, cfg.APIBurst),
		cfg:         cfg,
		logger:      logger,
	}
}

// RateLimiter returns the API rate limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSecret(middleware.WebhookSecretHeader, s.cfg.WebhookSecret))
		r.Post("/webhook", s.webhookH.Handle)
		r.Post("/", s.webhookH.Handle)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimiter, middleware.RealIP))
		r.Get("/messages/tracked", s.messageH.ListTracked)
		r.Post("/messages/{id}/read", s.messageH.MarkRead)
		r.Get("/scheduler", s.messageH.SchedulerState)
	})

	if s.hub != nil {
		r.Get("/ws", ws.HandleWebSocket(s.hub))
	}
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// HTTPServer wraps the router with the process timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
