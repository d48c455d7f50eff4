package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Schema history. Versions only ever grow; a migration is never edited once
// released, a new one is appended instead.
//
//	1 comics, tags and their association
//	2 loved / disliked flags
//	3 reading progress
//	4 display overrides, thumbnail override, active index
func schemaMigrations() []*goose.Migration {
	return []*goose.Migration{
		goose.NewGoMigration(1, &goose.GoFunc{RunTx: execAll(
			`CREATE TABLE comics (
				unique_id    TEXT PRIMARY KEY,
				title        TEXT NOT NULL,
				author       TEXT NOT NULL,
				category     TEXT NOT NULL DEFAULT '',
				path         TEXT NOT NULL DEFAULT '',
				files        TEXT NOT NULL DEFAULT '[]',
				image_source TEXT NOT NULL DEFAULT '',
				active       INTEGER NOT NULL DEFAULT 1,
				date_added   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE tags (
				id   INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			)`,
			`CREATE TABLE comic_tags (
				comic_id TEXT NOT NULL REFERENCES comics(unique_id) ON DELETE CASCADE,
				tag_id   INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (comic_id, tag_id)
			)`,
			`CREATE INDEX idx_comic_tags_tag ON comic_tags(tag_id)`,
		)}, nil),
		goose.NewGoMigration(2, &goose.GoFunc{RunTx: execAll(
			`ALTER TABLE comics ADD COLUMN loved INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE comics ADD COLUMN disliked INTEGER NOT NULL DEFAULT 0`,
		)}, nil),
		goose.NewGoMigration(3, &goose.GoFunc{RunTx: execAll(
			`CREATE TABLE progress (
				comic_id TEXT PRIMARY KEY REFERENCES comics(unique_id) ON DELETE CASCADE,
				progress INTEGER NOT NULL DEFAULT 0
			)`,
		)}, nil),
		goose.NewGoMigration(4, &goose.GoFunc{RunTx: execAll(
			`ALTER TABLE comics ADD COLUMN title_display TEXT`,
			`ALTER TABLE comics ADD COLUMN title_sort TEXT`,
			`ALTER TABLE comics ADD COLUMN author_display TEXT`,
			`ALTER TABLE comics ADD COLUMN author_sort TEXT`,
			`ALTER TABLE comics ADD COLUMN category_display TEXT`,
			`ALTER TABLE comics ADD COLUMN category_sort TEXT`,
			`ALTER TABLE comics ADD COLUMN thumbnail_source TEXT`,
			`CREATE INDEX idx_comics_active ON comics(active)`,
		)}, nil),
	}
}

func execAll(stmts ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}
}

func latestVersion(migs []*goose.Migration) int64 {
	var v int64
	for _, m := range migs {
		if m.Version > v {
			v = m.Version
		}
	}
	return v
}

// LatestVersion is the highest schema version this build understands.
func LatestVersion() int64 {
	return latestVersion(schemaMigrations())
}

// gooseLogger routes goose output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf("catalog: "+format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf("catalog: "+format, v...))
}

// migrate applies pending migrations in ascending order. Each migration and
// its version bump share one transaction, so a failure keeps the previous
// version.
func migrate(ctx context.Context, conn *sql.DB, migs []*goose.Migration, logger *slog.Logger) (int64, error) {
	p, err := goose.NewProvider(goose.DialectSQLite3, conn, nil,
		goose.WithGoMigrations(migs...),
		goose.WithDisableGlobalRegistry(true),
		goose.WithLogger(gooseLogger{logger: logger}),
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: migration provider: %w", err)
	}
	results, err := p.Up(ctx)
	for _, r := range results {
		logger.Debug("catalog: migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration))
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: migrate: %w", err)
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: read version: %w", err)
	}
	return v, nil
}

// storedVersion reads the schema version of an existing file without
// writing to it. A file that was never migrated is version 0.
func storedVersion(path string) (int64, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, fmt.Errorf("catalog: open read-only: %w", err)
	}
	defer conn.Close()

	var n int
	err = conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'goose_db_version'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("catalog: inspect schema: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	var v int64
	err = conn.QueryRow(`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied = 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("catalog: read stored version: %w", err)
	}
	return v, nil
}
