package catalog

import (
	"fmt"

	"github.com/starford/comicshelf/internal/models"
)

// TagCount is a tag and the number of active comics carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func tagsOf(q querier, id string) (models.TagSet, error) {
	rows, err := q.Query(`
		SELECT t.name FROM comic_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.comic_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: tags of %s: %w", id, err)
	}
	defer rows.Close()

	out := models.TagSet{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func activeTags(q querier) (map[string]models.TagSet, error) {
	rows, err := q.Query(`
		SELECT ct.comic_id, t.name
		FROM comic_tags ct
		JOIN tags t ON t.id = ct.tag_id
		JOIN comics c ON c.unique_id = ct.comic_id
		WHERE c.active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: active tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.TagSet)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = models.TagSet{}
		}
		out[id][name] = struct{}{}
	}
	return out, rows.Err()
}

// setTagsTx writes only the difference between the stored tags and next.
func setTagsTx(tx querier, id string, next models.TagSet) error {
	current, err := tagsOf(tx, id)
	if err != nil {
		return err
	}
	added, removed := current.Diff(next)

	for _, name := range added {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("catalog: insert tag %q: %w", name, err)
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO comic_tags (comic_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
		`, id, name); err != nil {
			return fmt.Errorf("catalog: link tag %q: %w", name, err)
		}
	}
	for _, name := range removed {
		if _, err := tx.Exec(`
			DELETE FROM comic_tags
			WHERE comic_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)
		`, id, name); err != nil {
			return fmt.Errorf("catalog: unlink tag %q: %w", name, err)
		}
	}
	if len(removed) > 0 {
		if _, err := tx.Exec(`DELETE FROM tags WHERE id NOT IN (SELECT tag_id FROM comic_tags)`); err != nil {
			return fmt.Errorf("catalog: prune tags: %w", err)
		}
	}
	return nil
}

// SetTags replaces the tags of id, writing only the delta.
func (db *DB) SetTags(id models.Identifier, tags models.TagSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := db.requireExists(tx, string(id)); err != nil {
		return err
	}
	if err := setTagsTx(tx, string(id), tags); err != nil {
		return err
	}
	return tx.Commit()
}

// Tags returns the stored tags of id.
func (db *DB) Tags(id models.Identifier) (models.TagSet, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireExists(db.conn, string(id)); err != nil {
		return nil, err
	}
	return tagsOf(db.conn, string(id))
}

// AllTags lists tags used by active comics, most used first.
func (db *DB) AllTags() ([]TagCount, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`
		SELECT t.name, count(*) AS n
		FROM tags t
		JOIN comic_tags ct ON ct.tag_id = t.id
		JOIN comics c ON c.unique_id = ct.comic_id
		WHERE c.active = 1
		GROUP BY t.name
		ORDER BY n DESC, t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
