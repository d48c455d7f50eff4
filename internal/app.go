package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/starford/comicshelf/internal/catalog"
	"github.com/starford/comicshelf/internal/extension"
	"github.com/starford/comicshelf/internal/library"
	"github.com/starford/comicshelf/internal/reconcile"
	"github.com/starford/comicshelf/internal/scanner"
	"github.com/starford/comicshelf/internal/storage"
	"github.com/starford/comicshelf/internal/thumbnail"
)

// components is everything the commands share once the store is open.
type components struct {
	cfg    *Config
	fs     afero.Fs
	clock  clockwork.Clock
	logger *slog.Logger
	db     *catalog.DB
	svc    *library.Service
	covers storage.Provider
}

// build applies opts, installs the logger and opens the store.
// The caller owns closing the returned components.
func build(ctx context.Context, opts ...Option) (*components, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.fs == nil {
		app.fs = afero.NewOsFs()
	}
	if app.clock == nil {
		app.clock = clockwork.NewRealClock()
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Int("roots", len(cfg.Library.Roots)),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := catalog.Open(cfg.SQLite.Path,
		catalog.WithClock(app.clock),
		catalog.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	c := &components{cfg: cfg, fs: app.fs, clock: app.clock, logger: logger, db: db}
	if err := c.wire(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) wire(ctx context.Context) error {
	cfg := c.cfg

	sc := scanner.New(c.fs, cfg.Library.ScannerOptions(), c.logger)
	rec := reconcile.New(reconcile.NewCollection(), c.db, sc, c.logger)

	var thumbs *thumbnail.Cache
	if cfg.Thumbnails.Dir != "" {
		blobs, err := storage.NewFS(c.fs, cfg.Thumbnails.Dir)
		if err != nil {
			return fmt.Errorf("init thumbnails: %w", err)
		}
		thumbs = thumbnail.NewCache(blobs, thumbnail.SourceCopy{FS: c.fs}, cfg.Thumbnails.Width, c.logger)
	}
	if cfg.Thumbnails.CoversDir != "" {
		covers, err := storage.NewFS(c.fs, cfg.Thumbnails.CoversDir)
		if err != nil {
			return fmt.Errorf("init covers: %w", err)
		}
		c.covers = covers
	}

	reg := extension.NewRegistry()
	for _, e := range cfg.Extensions {
		host, err := extension.NewProcessHost(e.Name, e.Command)
		if err != nil {
			return fmt.Errorf("init extension %s: %w", e.Name, err)
		}
		reg.Register(e.Name, host)
	}

	c.svc = library.NewService(rec, c.db, thumbs, reg,
		library.Config{Program: cfg.Launch.Program, Args: cfg.Launch.Args},
		library.WithLogger(c.logger))

	if err := c.svc.Load(ctx); err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	return nil
}

// Close closes the store.
func (c *components) Close() error {
	return c.db.Close()
}
