package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/models"
)

const comicColumns = `unique_id, title, author, category, path, files, image_source, active, date_added,
	loved, disliked, title_display, title_sort, author_display, author_sort,
	category_display, category_sort, thumbnail_source`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// comicRecord is a comic flattened for writing. It is built before the store
// lock is taken so the store never calls into a comic while locked.
type comicRecord struct {
	id          string
	title       string
	author      string
	category    string
	path        string
	files       []string
	imageSource string
	meta        models.Metadata
}

func recordOf(c *models.Comic) comicRecord {
	return comicRecord{
		id:          string(c.ID()),
		title:       c.RealTitle(),
		author:      c.RealAuthor(),
		category:    c.RealCategory(),
		path:        c.ContainingPath(),
		files:       c.FilePaths(),
		imageSource: c.ImageSource(),
		meta:        c.Metadata(),
	}
}

// storedRow mirrors one comics row.
type storedRow struct {
	id, title, author, category, path, files, imageSource string
	active, loved, disliked                                bool
	dateAdded                                              time.Time
	titleDisplay, titleSort                                sql.NullString
	authorDisplay, authorSort                              sql.NullString
	categoryDisplay, categorySort                          sql.NullString
	thumbnailSource                                        sql.NullString
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (storedRow, error) {
	var r storedRow
	err := s.Scan(&r.id, &r.title, &r.author, &r.category, &r.path, &r.files, &r.imageSource,
		&r.active, &r.dateAdded, &r.loved, &r.disliked,
		&r.titleDisplay, &r.titleSort, &r.authorDisplay, &r.authorSort,
		&r.categoryDisplay, &r.categorySort, &r.thumbnailSource)
	return r, err
}

func (r storedRow) metadata(tags models.TagSet) models.Metadata {
	m := models.Metadata{
		Title:    sortedFrom(r.titleDisplay, r.titleSort),
		Author:   sortedFrom(r.authorDisplay, r.authorSort),
		Category: sortedFrom(r.categoryDisplay, r.categorySort),
		Loved:    r.loved,
		Disliked: r.disliked,
		Tags:     tags,
		Active:   r.active,
	}
	if m.Tags == nil {
		m.Tags = models.TagSet{}
	}
	if r.thumbnailSource.Valid {
		v := r.thumbnailSource.String
		m.ThumbnailSource = &v
	}
	return m
}

// comic rebuilds the entity. An error means the row is corrupt.
func (r storedRow) comic(tags models.TagSet) (*models.Comic, error) {
	var files []string
	if err := json.Unmarshal([]byte(r.files), &files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	meta := r.metadata(tags)
	return models.NewComic(models.ComicParams{
		Title:          r.title,
		Author:         r.author,
		Category:       r.category,
		ContainingPath: r.path,
		FilePaths:      files,
		ImageSource:    r.imageSource,
		Metadata:       &meta,
		DateAdded:      r.dateAdded,
	})
}

func sortedFrom(display, sort sql.NullString) *models.SortedString {
	if !display.Valid {
		return nil
	}
	s := models.NewSortedStringWithKey(display.String, sort.String)
	return &s
}

func sortedArgs(s *models.SortedString) (sql.NullString, sql.NullString) {
	if s == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: s.Display, Valid: true}, sql.NullString{String: s.Sort, Valid: true}
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// state returns whether id exists and whether it is active.
func state(q querier, id string) (exists, active bool, err error) {
	err = q.QueryRow(`SELECT active FROM comics WHERE unique_id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("catalog: lookup %s: %w", id, err)
	}
	return true, active, nil
}

func (db *DB) requireExists(q querier, id string) error {
	exists, _, err := state(q, id)
	if err != nil {
		return err
	}
	if !exists {
		return &apperr.RecordNotFoundError{ID: id}
	}
	return nil
}

// insertTx writes a brand new row together with the comic's metadata.
func (db *DB) insertTx(tx querier, rec comicRecord) error {
	files, err := json.Marshal(rec.files)
	if err != nil {
		return fmt.Errorf("catalog: encode files: %w", err)
	}
	td, ts := sortedArgs(rec.meta.Title)
	ad, as := sortedArgs(rec.meta.Author)
	cd, cs := sortedArgs(rec.meta.Category)
	_, err = tx.Exec(`
		INSERT INTO comics (unique_id, title, author, category, path, files, image_source, active, date_added,
			loved, disliked, title_display, title_sort, author_display, author_sort,
			category_display, category_sort, thumbnail_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.id, rec.title, rec.author, rec.category, rec.path, string(files), rec.imageSource, db.clock.Now().UTC(),
		rec.meta.Loved, rec.meta.Disliked, td, ts, ad, as, cd, cs, nullable(rec.meta.ThumbnailSource))
	if err != nil {
		return fmt.Errorf("catalog: insert %s: %w", rec.id, err)
	}
	return setTagsTx(tx, rec.id, rec.meta.Tags)
}

// refreshTx updates the fields that come from disk and reactivates the row.
// User metadata already stored is kept.
func refreshTx(tx querier, rec comicRecord) error {
	files, err := json.Marshal(rec.files)
	if err != nil {
		return fmt.Errorf("catalog: encode files: %w", err)
	}
	_, err = tx.Exec(`
		UPDATE comics SET title = ?, author = ?, category = ?, path = ?, files = ?, image_source = ?, active = 1
		WHERE unique_id = ?
	`, rec.title, rec.author, rec.category, rec.path, string(files), rec.imageSource, rec.id)
	if err != nil {
		return fmt.Errorf("catalog: refresh %s: %w", rec.id, err)
	}
	return nil
}

func (db *DB) upsertTx(tx querier, rec comicRecord) error {
	exists, _, err := state(tx, rec.id)
	if err != nil {
		return err
	}
	if exists {
		return refreshTx(tx, rec)
	}
	return db.insertTx(tx, rec)
}

// Insert adds a comic that must not be active in the store yet. An inactive
// record with the same identifier is revived with its metadata intact.
func (db *DB) Insert(c *models.Comic) error {
	rec := recordOf(c)

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	exists, active, err := state(tx, rec.id)
	if err != nil {
		return err
	}
	switch {
	case exists && active:
		return &apperr.DuplicateRecordError{ID: rec.id}
	case exists:
		err = refreshTx(tx, rec)
	default:
		err = db.insertTx(tx, rec)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Upsert inserts c if absent, otherwise refreshes its display fields while
// preserving stored tags, flags and overrides.
func (db *DB) Upsert(c *models.Comic) error {
	rec := recordOf(c)

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := db.upsertTx(tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyReconciliation upserts every comic in upserts and soft-deletes every
// identifier in removals in a single transaction.
func (db *DB) ApplyReconciliation(upserts []*models.Comic, removals []models.Identifier) error {
	recs := make([]comicRecord, len(upserts))
	for i, c := range upserts {
		recs[i] = recordOf(c)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range recs {
		if err := db.upsertTx(tx, rec); err != nil {
			return err
		}
	}
	for _, id := range removals {
		if _, err := tx.Exec(`UPDATE comics SET active = 0 WHERE unique_id = ?`, string(id)); err != nil {
			return fmt.Errorf("catalog: soft delete %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit reconciliation: %w", err)
	}
	return nil
}

// datesChunk keeps each IN list below SQLite's bound parameter limit.
const datesChunk = 500

// DatesAdded returns the stored date_added of every id that has a record.
func (db *DB) DatesAdded(ids []models.Identifier) (map[models.Identifier]time.Time, error) {
	out := make(map[models.Identifier]time.Time, len(ids))

	db.mu.Lock()
	defer db.mu.Unlock()

	for chunk := range slices.Chunk(ids, datesChunk) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = string(id)
		}
		query := `SELECT unique_id, date_added FROM comics WHERE unique_id IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`
		if err := datesInto(db.conn, query, args, out); err != nil {
			return nil, fmt.Errorf("catalog: dates added: %w", err)
		}
	}
	return out, nil
}

func datesInto(q querier, query string, args []any, out map[models.Identifier]time.Time) error {
	rows, err := q.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			added time.Time
		)
		if err := rows.Scan(&id, &added); err != nil {
			return err
		}
		out[models.Identifier(id)] = added
	}
	return rows.Err()
}

// Get returns the stored metadata for id, or nil when id was never stored.
// Soft-deleted records are returned with Active false.
func (db *DB) Get(id models.Identifier) (*models.Metadata, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row, err := scanRow(db.conn.QueryRow(`SELECT `+comicColumns+` FROM comics WHERE unique_id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	tags, err := tagsOf(db.conn, string(id))
	if err != nil {
		return nil, err
	}
	m := row.metadata(tags)
	return &m, nil
}

// GetComic rebuilds the stored comic for id. A record that no longer makes a
// valid comic is marked inactive and nil is returned without an error.
func (db *DB) GetComic(id models.Identifier) (*models.Comic, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row, err := scanRow(db.conn.QueryRow(`SELECT `+comicColumns+` FROM comics WHERE unique_id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.RecordNotFoundError{ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	tags, err := tagsOf(db.conn, string(id))
	if err != nil {
		return nil, err
	}
	c, err := row.comic(tags)
	if err != nil {
		db.quarantine([]string{row.id}, err)
		return nil, nil
	}
	return c, nil
}

// AllActive returns every active comic. Corrupt records are marked inactive
// and left out.
func (db *DB) AllActive() ([]*models.Comic, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`SELECT ` + comicColumns + ` FROM comics WHERE active = 1 ORDER BY date_added, unique_id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all active: %w", err)
	}
	var stored []storedRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}
		stored = append(stored, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags, err := activeTags(db.conn)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Comic, 0, len(stored))
	var corrupt []string
	var lastErr error
	for _, r := range stored {
		c, err := r.comic(tags[r.id])
		if err != nil {
			corrupt = append(corrupt, r.id)
			lastErr = err
			continue
		}
		out = append(out, c)
	}
	if len(corrupt) > 0 {
		db.quarantine(corrupt, lastErr)
	}
	return out, nil
}

// quarantine marks corrupt records inactive. Caller holds db.mu.
func (db *DB) quarantine(ids []string, cause error) {
	for _, id := range ids {
		db.logger.Warn("catalog: corrupt record marked inactive",
			slog.String("id", id), slog.String("error", cause.Error()))
		if _, err := db.conn.Exec(`UPDATE comics SET active = 0 WHERE unique_id = ?`, id); err != nil {
			db.logger.Warn("catalog: quarantine failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
}

// SoftDelete marks id inactive, keeping its history.
func (db *DB) SoftDelete(id models.Identifier) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`UPDATE comics SET active = 0 WHERE unique_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("catalog: soft delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: soft delete %s: %w", id, err)
	}
	if n == 0 {
		return &apperr.RecordNotFoundError{ID: string(id)}
	}
	return nil
}

// UpdateMetadata writes the user-editable fields of id. It is the
// write-through sink attached to live comics.
func (db *DB) UpdateMetadata(id models.Identifier, next models.Metadata) error {
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
	td, ts := sortedArgs(next.Title)
	ad, as := sortedArgs(next.Author)
	cd, cs := sortedArgs(next.Category)
	_, err = tx.Exec(`
		UPDATE comics SET loved = ?, disliked = ?, title_display = ?, title_sort = ?,
			author_display = ?, author_sort = ?, category_display = ?, category_sort = ?, thumbnail_source = ?
		WHERE unique_id = ?
	`, next.Loved, next.Disliked, td, ts, ad, as, cd, cs, nullable(next.ThumbnailSource), string(id))
	if err != nil {
		return fmt.Errorf("catalog: update metadata %s: %w", id, err)
	}
	if err := setTagsTx(tx, string(id), next.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

