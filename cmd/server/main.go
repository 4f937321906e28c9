// Intake - staged lead capture server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tenxafrica/intake/internal/api"
	"github.com/tenxafrica/intake/internal/attachment"
	"github.com/tenxafrica/intake/internal/challenge"
	"github.com/tenxafrica/intake/internal/config"
	"github.com/tenxafrica/intake/internal/engine"
	"github.com/tenxafrica/intake/internal/formdef"
	"github.com/tenxafrica/intake/internal/guard"
	"github.com/tenxafrica/intake/internal/identity"
	"github.com/tenxafrica/intake/internal/middleware"
	"github.com/tenxafrica/intake/internal/reveal"
	"github.com/tenxafrica/intake/internal/store"
	"github.com/tenxafrica/intake/internal/submit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Driver)

	forms, err := formdef.LoadDir(cfg.FormsDir)
	if err != nil {
		slog.Error("Failed to load form definitions", "error", err, "dir", cfg.FormsDir)
		os.Exit(1)
	}
	slog.Info("Form definitions loaded", "count", len(forms.All()), "dir", cfg.FormsDir)

	// Initialize dependencies.
	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "driver", cfg.Store.Driver)

	engines := buildEngines(cfg, forms)

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Initialize handlers.
	hub := reveal.NewHub()
	apiHandler := api.NewHandler(repo, engines, api.Options{
		Limiter:        limiter,
		Streams:        hub,
		DefaultCountry: cfg.Engine.DefaultCountry,
	})
	healthHandler := api.NewHealthHandler(repo, len(engines))
	revealHandler := reveal.NewHandler(apiHandler, hub, cfg.AllowedOrigins(), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/sessions/{id}/reveal", revealHandler.ServeHTTP)

	// Note: reveal streams and simulated submissions are long lived, so there
	// is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session sweeper.
	swept := store.StartSweeper(ctx, repo, store.DefaultSweepInterval, cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	<-swept

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		s, err := store.NewSQLite(cfg.Store.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		return store.NewRedis(client, cfg.SessionTTL), nil
	case config.StoreMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildEngines wires one engine per form. Forms share the webhook client,
// the attachment encoder and the challenge verifier; duplicate checks are
// per form because each names its own endpoint.
func buildEngines(cfg *config.Config, forms *formdef.Registry) []*engine.Engine {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	opts := []submit.Option{submit.WithSimulateDelay(cfg.Engine.SimulateDelay)}
	if cfg.Turnstile != "" {
		opts = append(opts, submit.WithVerifier(challenge.NewTurnstile(cfg.Turnstile, cfg.HTTPTimeout)))
	} else {
		slog.Warn("TURNSTILE_SECRET not set, challenge tokens are forwarded unverified")
	}
	pipeline := submit.NewPipeline(client, attachment.NewEncoder(cfg.Engine.SafetyCapBytes), opts...)

	engineOpts := engine.Options{
		AutoAdvanceDelay:  cfg.Engine.AutoAdvanceDelay,
		GateInputOnReveal: cfg.Engine.GateInputOnReveal,
		DefaultCountry:    cfg.Engine.DefaultCountry,
	}

	var engines []*engine.Engine
	for _, def := range forms.All() {
		var dup engine.DuplicateGuard
		if def.DuplicateCheckURL != "" {
			contact := def.ContactEmail
			if contact == "" {
				contact = cfg.ContactEmail
			}
			dup = guard.New(guard.NewHTTPChecker(def.DuplicateCheckURL, cfg.HTTPTimeout), contact, guard.DefaultMemoTTL)
		}
		engines = append(engines, engine.New(def, dup, pipeline, engineOpts))
		slog.Info("Form ready", "form", def.Slug, "stages", def.StageCount(), "simulate", def.Simulate, "duplicate_check", dup != nil)
	}
	return engines
}
