// Command qindb-server exposes internal/engine's storage and
// transaction core over HTTP. Grounded on cmd/mindb-server/main.go's
// run() shape: config load, lockfile acquire, chi router with the
// standard middleware chain, h2c serving, graceful shutdown on
// SIGINT/SIGTERM. The SQL surface, sessions, auth and WASM procedures
// main.go wires for are out of scope for this core (§1) and are
// replaced here with a direct JSON binding of the operations surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/sausheong/qindb/cmd/qindb-server/internal/api"
	"github.com/sausheong/qindb/cmd/qindb-server/internal/middleware"
	"github.com/sausheong/qindb/internal/config"
	"github.com/sausheong/qindb/internal/engine"
	"github.com/sausheong/qindb/internal/lockfile"
	"github.com/sausheong/qindb/internal/semaphore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("http_addr", cfg.HTTPAddr).
		Str("catalog_mode", string(cfg.CatalogMode)).
		Str("wal_mode", string(cfg.WALMode)).
		Msg("starting qindb-server")

	lock, err := lockfile.Acquire(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error().Err(err).Msg("failed to release lock")
		}
	}()
	logger.Info().Msg("lockfile acquired")

	eng, err := engine.Open(cfg, &logger)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer func() {
		logger.Info().Msg("closing engine")
		if err := eng.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close engine")
		}
	}()
	logger.Info().Msg("engine opened, recovery complete")

	handlers := api.NewHandlers(eng, logger)
	execSem := semaphore.New(cfg.ExecConcurrency)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.ConcurrencyLimitMiddleware(execSem))

	r.Get("/health", handlers.HealthHandler())

	r.Post("/tables", handlers.CreateTableHandler())
	r.Delete("/tables/{name}", handlers.DropTableHandler())

	r.Post("/tables/{name}/indexes", handlers.CreateIndexHandler())
	r.Delete("/tables/{name}/indexes/{index}", handlers.DropIndexHandler())
	r.Get("/tables/{name}/indexes/{index}/search", handlers.IndexSearchHandler())
	r.Get("/tables/{name}/indexes/{index}/range", handlers.IndexRangeHandler())

	r.Post("/tables/{name}/rows", handlers.InsertHandler())
	r.Get("/tables/{name}/rows", handlers.ScanHandler())
	r.Put("/tables/{name}/rows/{rowId}", handlers.UpdateHandler())
	r.Delete("/tables/{name}/rows/{rowId}", handlers.DeleteRowHandler())

	r.Post("/txn", handlers.BeginHandler())
	r.Post("/txn/{id}/commit", handlers.CommitHandler())
	r.Post("/txn/{id}/abort", handlers.AbortHandler())

	r.Post("/vacuum", handlers.VacuumHandler())
	r.Post("/analyze", handlers.AnalyzeHandler())

	handler := h2c.NewHandler(r, &http2.Server{})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	srv.SetKeepAlivesEnabled(true)

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening (h2c)")

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			srv.Close()
			return fmt.Errorf("failed to stop server gracefully: %w", err)
		}
		logger.Info().Msg("server stopped gracefully")
	}

	return nil
}

func setupLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(logLevel).With().Timestamp().Caller().Logger()
}
