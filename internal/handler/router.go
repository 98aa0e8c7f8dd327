package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/middleware"
	"github.com/voltmap/voltmap-go/internal/service"
)

// RouterConfig carries everything the HTTP layer is built from.
type RouterConfig struct {
	Auth           *service.AuthService
	Stations       *service.StationService
	Tokens         middleware.TokenVerifier
	Limiter        middleware.Limiter
	AllowedOrigins []string
	// Health reports whether backing stores are reachable. Optional.
	Health func(ctx context.Context) error
	Logger *zap.Logger
}

// NewRouter builds the API route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth, cfg.Logger)
	stationHandler := NewStationHandler(cfg.Stations, cfg.Logger)
	protect := middleware.Protect(cfg.Tokens, cfg.Auth, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("API is running..."))
	})
	r.Get("/health", healthHandler(cfg.Health, cfg.Logger))

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(middleware.RateLimit(cfg.Limiter, cfg.Logger))
			}
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})
		r.With(protect).Get("/me", authHandler.HandleMe)
	})

	r.Route("/api/stations", func(r chi.Router) {
		r.Use(protect)
		r.Get("/", stationHandler.HandleList)
		r.Post("/", stationHandler.HandleCreate)
		r.Get("/{id}", stationHandler.HandleGet)
		r.Put("/{id}", stationHandler.HandleUpdate)
		r.Delete("/{id}", stationHandler.HandleDelete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "Not found - " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Error: "Method not allowed"})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				logger.Error("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
