package catalog

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/comicshelf/internal/models"
)

// GetProgress returns the reading progress of id, 0 when none was recorded.
func (db *DB) GetProgress(id models.Identifier) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireExists(db.conn, string(id)); err != nil {
		return 0, err
	}
	var p int
	err := db.conn.QueryRow(`SELECT progress FROM progress WHERE comic_id = ?`, string(id)).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: get progress %s: %w", id, err)
	}
	return p, nil
}

// SetProgress records the reading progress of id, replacing any previous value.
func (db *DB) SetProgress(id models.Identifier, progress int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireExists(db.conn, string(id)); err != nil {
		return err
	}
	if _, err := db.conn.Exec(`INSERT OR REPLACE INTO progress (comic_id, progress) VALUES (?, ?)`, string(id), progress); err != nil {
		return fmt.Errorf("catalog: set progress %s: %w", id, err)
	}
	return nil
}
