// Package catalog is the SQLite-backed metadata store. It owns the persisted
// projection of every comic ever seen, its tags and reading progress.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/syncutil"
)

// DB is the metadata store. All calls are serialized on one connection.
type DB struct {
	mu      syncutil.Mutex
	conn    *sql.DB
	clock   clockwork.Clock
	logger  *slog.Logger
	version int64
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	clock      clockwork.Clock
	logger     *slog.Logger
	migrations []*goose.Migration
}

// WithClock sets the clock used for date_added.
func WithClock(c clockwork.Clock) Option {
	return func(o *openConfig) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *openConfig) { o.logger = l }
}

// withMigrations replaces the schema history. Tests only.
func withMigrations(migs []*goose.Migration) Option {
	return func(o *openConfig) { o.migrations = migs }
}

// Open opens the store at path, creating it at the latest schema when the
// file does not exist. An existing file is checked read-only first: a schema
// newer than this build fails with SchemaVersionTooHighError and the file is
// left untouched.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := openConfig{
		clock:      clockwork.NewRealClock(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		migrations: schemaMigrations(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	known := latestVersion(cfg.migrations)

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		stored, err := storedVersion(path)
		if err != nil {
			return nil, err
		}
		if stored > known {
			return nil, &apperr.SchemaVersionTooHighError{Stored: stored, Known: known}
		}
		if stored < known {
			cfg.logger.Info("catalog: upgrading schema",
				slog.Int64("from", stored), slog.Int64("to", known))
		}
	case errors.Is(statErr, fs.ErrNotExist):
		cfg.logger.Info("catalog: creating store", slog.String("path", path), slog.Int64("version", known))
	default:
		return nil, fmt.Errorf("catalog: stat %s: %w", path, statErr)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	version, err := migrate(context.Background(), conn, cfg.migrations, cfg.logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, clock: cfg.clock, logger: cfg.logger, version: version}, nil
}

// newDB wraps an already prepared connection, skipping migrations.
func newDB(conn *sql.DB, clock clockwork.Clock) *DB {
	return &DB{
		conn:   conn,
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Version is the schema version the store was migrated to.
func (db *DB) Version() int64 { return db.version }

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
