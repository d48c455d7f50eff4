// Package reconcile merges scan results into the live collection and keeps
// the metadata store in step with it.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/comicshelf/internal/models"
	"github.com/starford/comicshelf/internal/syncutil"
)

// Store is the part of the metadata store the reconciler drives.
type Store interface {
	models.MetadataSink
	Get(id models.Identifier) (*models.Metadata, error)
	AllActive() ([]*models.Comic, error)
	ApplyReconciliation(upserts []*models.Comic, removals []models.Identifier) error
	DatesAdded(ids []models.Identifier) (map[models.Identifier]time.Time, error)
}

// Source produces a complete staged snapshot. *scanner.Scanner satisfies it.
type Source interface {
	Collect(ctx context.Context) ([]*models.Comic, error)
}

// Result describes one reconciliation.
type Result struct {
	ScanID     uuid.UUID
	Additions  []*models.Comic
	Removals   []*models.Comic
	Unchanged  int
	Duplicates int
}

// Reconciler owns membership changes of a Collection.
type Reconciler struct {
	mu     syncutil.Mutex
	coll   *Collection
	store  Store
	source Source
	logger *slog.Logger
}

// New returns a reconciler. A nil logger discards output.
func New(coll *Collection, store Store, source Source, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{coll: coll, store: store, source: source, logger: logger}
}

// Collection returns the live collection.
func (r *Reconciler) Collection() *Collection { return r.coll }

// Load fills the collection from the store's active records, replacing
// whatever it held.
func (r *Reconciler) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	comics, err := r.store.AllActive()
	if err != nil {
		return fmt.Errorf("reconcile: load: %w", err)
	}
	for _, c := range comics {
		c.Attach(r.store, r.coll.listen)
	}
	r.coll.replace(comics)
	r.logger.Info("reconcile: loaded", slog.Int("comics", len(comics)))
	return nil
}

// Run scans the source and reconciles the result.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	staged, err := r.source.Collect(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: scan: %w", err)
	}
	return r.Reconcile(ctx, staged)
}

// Reconcile diffs staged against the live collection by identifier and
// applies the difference. Comics present in both stay in place and only
// take the rescanned file layout. Stored metadata of an addition is merged
// into it before it becomes visible.
//
// Cancellation is honoured up to the apply phase. Once applying starts it
// runs to completion or is rolled back as a whole.
func (r *Reconciler) Reconcile(ctx context.Context, staged []*models.Comic) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Result{ScanID: uuid.New()}
	log := r.logger.With(slog.String("scan_id", res.ScanID.String()))

	stagedIDs := newIDSet()
	byID := make(map[models.Identifier]*models.Comic, len(staged))
	var unique []*models.Comic
	for _, c := range staged {
		if !stagedIDs.add(c.ID()) {
			res.Duplicates++
			log.Warn("reconcile: duplicate identifier, keeping first",
				slog.String("id", string(c.ID())), slog.String("path", c.ContainingPath()))
			continue
		}
		unique = append(unique, c)
		byID[c.ID()] = c
	}

	live := r.coll.All()
	liveIDs := newIDSet()
	for _, c := range live {
		liveIDs.add(c.ID())
	}

	removals := newIDSet()
	type survivor struct{ live, staged *models.Comic }
	var survivors []survivor
	for _, c := range live {
		if s, ok := byID[c.ID()]; ok {
			survivors = append(survivors, survivor{live: c, staged: s})
			continue
		}
		removals.add(c.ID())
		res.Removals = append(res.Removals, c)
	}
	for _, c := range unique {
		if !liveIDs.has(c.ID()) {
			res.Additions = append(res.Additions, c)
		}
	}
	res.Unchanged = len(survivors)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for _, c := range res.Additions {
		m, err := r.store.Get(c.ID())
		if err != nil {
			return Result{}, fmt.Errorf("reconcile: stored metadata %s: %w", c.ID(), err)
		}
		if m != nil {
			m.Active = true
			c.AdoptMetadata(*m)
		}
	}

	upserts := make([]*models.Comic, 0, len(survivors)+len(res.Additions))
	for _, s := range survivors {
		// The staged copy carries the fresh file layout; the live metadata
		// goes with it so nothing user-set is lost on write.
		s.staged.AdoptMetadata(s.live.Metadata())
		upserts = append(upserts, s.staged)
	}
	upserts = append(upserts, res.Additions...)

	removedIDs := ids(res.Removals)

	for _, c := range res.Additions {
		c.Attach(r.store, r.coll.listen)
	}

	err := r.coll.apply(res.Additions, removals, func() error {
		if err := r.store.ApplyReconciliation(upserts, removedIDs); err != nil {
			return err
		}
		r.stampDates(log, res.Additions)
		return nil
	})
	if err != nil {
		for _, c := range res.Additions {
			c.Attach(nil, nil)
		}
		log.Error("reconcile: apply failed, rolled back", slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("reconcile: apply: %w", err)
	}

	for _, c := range res.Removals {
		c.Attach(nil, nil)
	}

	changes := make([]Change, 0, len(res.Additions)+len(res.Removals))
	for _, c := range res.Removals {
		changes = append(changes, Change{Kind: Removed, Comic: c})
	}
	for _, c := range res.Additions {
		changes = append(changes, Change{Kind: Added, Comic: c})
	}
	r.coll.publish(changes...)

	for _, s := range survivors {
		s.live.RefreshFiles(s.staged)
	}

	log.Info("reconcile: applied",
		slog.Int("additions", len(res.Additions)),
		slog.Int("removals", len(res.Removals)),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("staged", len(staged)))
	return res, nil
}

// stampDates copies the stored date_added onto additions. The rows are
// already committed, so a failed lookup only leaves the dates unset.
func (r *Reconciler) stampDates(log *slog.Logger, additions []*models.Comic) {
	if len(additions) == 0 {
		return
	}
	dates, err := r.store.DatesAdded(ids(additions))
	if err != nil {
		log.Warn("reconcile: read dates added", slog.String("error", err.Error()))
		return
	}
	for _, c := range additions {
		if t, ok := dates[c.ID()]; ok {
			c.SetDateAdded(t)
		}
	}
}

func ids(comics []*models.Comic) []models.Identifier {
	out := make([]models.Identifier, len(comics))
	for i, c := range comics {
		out[i] = c.ID()
	}
	return out
}
