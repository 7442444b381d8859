package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/hostedraids/muster/internal/adapter/fsm"
	handler "github.com/hostedraids/muster/internal/adapter/http"
	"github.com/hostedraids/muster/internal/adapter/ical"
	"github.com/hostedraids/muster/internal/adapter/otel"
	riveradapter "github.com/hostedraids/muster/internal/adapter/river"
	"github.com/hostedraids/muster/internal/adapter/sqlite"
	"github.com/hostedraids/muster/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("muster: %v", err)
	}
}

func run() error {
	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "muster.db")
	calendarDir := envOrDefault("CALENDAR_DIR", "calendar")

	ctx := context.Background()

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	tracedStore := otel.NewTracingStore(store)
	surface := sqlite.NewSurface(db)
	channels := app.NewCachedChannelConfig(sqlite.NewChannelStore(db))

	calendar, err := ical.NewMirror(calendarDir)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}

	// River shares the SQLite database with the repositories.
	runner, err := riveradapter.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	notifier := otel.NewTracingNotifier(riveradapter.NewNotifier(runner.Client()))
	scheduler := riveradapter.NewScheduler(runner.Client())

	// --- Application ---
	locks := app.NewLockTable()
	coordinator := app.NewSignupCoordinator(tracedStore, locks)
	lifecycle := app.NewEventLifecycle(app.LifecycleConfig{
		Store:     tracedStore,
		Surface:   surface,
		Validator: fsm.New(),
		Notifier:  notifier,
		Calendar:  calendar,
		Scheduler: scheduler,
		Channels:  channels,
		Locks:     locks,
	})

	// Workers call back into the lifecycle; bind before starting.
	runner.Bind(lifecycle)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("muster", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("muster", "0.1.0"))
	handler.Register(api, handler.Deps{
		Lifecycle:   lifecycle,
		Coordinator: coordinator,
		Surface:     surface,
		Notifier:    notifier,
		Channels:    channels,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("muster listening", "port", port)
		slog.Info("api docs", "url", "http://localhost:"+port+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		slog.Warn("river shutdown", "error", err)
	}

	slog.Info("stopped")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
