// Package internal provides the main application initialization and runtime logic.
package internal

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
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/comicshelf/internal/api"
	"github.com/starford/comicshelf/internal/mcpserver"
	"github.com/starford/comicshelf/internal/reconcile"
	"github.com/starford/comicshelf/internal/sse"
)

// Version is reported by the MCP server.
var Version = "dev"

// Run starts the HTTP server, the initial scan and the library watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := build(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.cfg
	logger := app.logger

	// SSE broker fed by live collection changes.
	broker := sse.NewBroker(2*time.Second, app.clock)
	defer broker.Close()
	unsubscribe := app.svc.Collection().Subscribe(func(ch reconcile.Change) {
		broker.PublishChange(string(ch.Kind), ch.Comic.ID().String(), ch.Field)
	})
	defer unsubscribe()

	var ready readiness
	apiRouter := api.NewRouter(app.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", ready.ServeHTTP)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial scan, then watch for changes.
	g.Go(func() error {
		rescan := func(ctx context.Context) {
			if _, err := app.svc.Rescan(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("rescan failed", slog.String("error", err.Error()))
			}
		}
		rescan(gCtx)
		ready.set()
		if !cfg.Library.Watch {
			return nil
		}
		wopts := cfg.Library.WatchOptions()
		wopts.Clock = app.clock
		if err := reconcile.Watch(gCtx, wopts, logger, rescan); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the watcher once the server is down.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Scan runs one reconciliation and returns its result.
func Scan(ctx context.Context, opts ...Option) (reconcile.Result, error) {
	app, err := build(ctx, opts...)
	if err != nil {
		return reconcile.Result{}, err
	}
	defer app.Close()
	return app.svc.Rescan(ctx)
}

// Tokenize expands format against the stored comic id, or against
// placeholder values when id is empty.
func Tokenize(ctx context.Context, format, id string, opts ...Option) ([]string, error) {
	app, err := build(ctx, opts...)
	if err != nil {
		return nil, err
	}
	defer app.Close()
	return app.svc.Tokenize(ctx, format, id)
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := build(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return mcpserver.New(app.svc, app.covers, Version).ServeStdio()
}
