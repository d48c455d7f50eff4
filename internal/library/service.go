// Package library is the application service over the live collection: it
// serves queries, applies user edits and runs launch and extension commands.
package library

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/catalog"
	"github.com/starford/comicshelf/internal/extension"
	"github.com/starford/comicshelf/internal/models"
	"github.com/starford/comicshelf/internal/reconcile"
	"github.com/starford/comicshelf/internal/syncutil"
	"github.com/starford/comicshelf/internal/thumbnail"
	"github.com/starford/comicshelf/internal/tokenizer"
)

// Sort orders accepted by List.
const (
	SortTitle    = "title"
	SortAuthor   = "author"
	SortCategory = "category"
	SortRandom   = "random"
	SortAdded    = "added"
)

// ComicSummary is a lightweight item in a list response.
type ComicSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Loved    bool     `json:"loved"`
	Disliked bool     `json:"disliked"`
	Files    int      `json:"files"`
}

// ComicDetail is the full representation of a comic.
type ComicDetail struct {
	ComicSummary
	ContainingPath  string    `json:"containing_path"`
	FilePaths       []string  `json:"file_paths"`
	ThumbnailSource string    `json:"thumbnail_source"`
	DateAdded       time.Time `json:"date_added,omitzero"`
	Progress        int       `json:"progress"`
}

// ListOptions filters and orders List.
type ListOptions struct {
	Tag       string
	LovedOnly bool
	// HideDisliked drops comics marked disliked.
	HideDisliked bool
	// Query matches title or author, ignoring case.
	Query  string
	Sort   string
	Desc   bool
	Limit  int
	Offset int
}

// Overrides edits display fields. A nil field is left alone; an empty
// string clears the override.
type Overrides struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	Category        *string `json:"category"`
	ThumbnailSource *string `json:"thumbnail_source"`
}

// Launcher starts an external program.
type Launcher func(argv []string) error

// Config is the fixed part of a Service.
type Config struct {
	// Program and Args form the launch command; Args is an execution string.
	Program string
	Args    string
}

// Service coordinates the live collection, the store and the collaborators.
type Service struct {
	rec    *reconcile.Reconciler
	coll   *reconcile.Collection
	store  catalog.MetadataStore
	thumbs *thumbnail.Cache
	ext    *extension.Registry
	cfg    Config
	launch Launcher
	logger *slog.Logger

	rngMu syncutil.Mutex
	rng   *rand.Rand
}

// Option customizes a Service.
type Option func(*Service)

// WithLauncher replaces the default os/exec launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Service) { s.launch = l }
}

// WithRand sets the source used by Shuffle.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a library service. thumbs and ext may be nil.
func NewService(rec *reconcile.Reconciler, store catalog.MetadataStore, thumbs *thumbnail.Cache, ext *extension.Registry, cfg Config, opts ...Option) *Service {
	s := &Service{
		rec:    rec,
		coll:   rec.Collection(),
		store:  store,
		thumbs: thumbs,
		ext:    ext,
		cfg:    cfg,
		launch: startProcess,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.ext == nil {
		s.ext = extension.NewRegistry()
	}
	return s
}

// Collection exposes the live collection for subscribers.
func (s *Service) Collection() *reconcile.Collection { return s.coll }

// Load fills the live collection from the store.
func (s *Service) Load(_ context.Context) error {
	return s.rec.Load()
}

// Rescan scans the library and reconciles the live collection.
func (s *Service) Rescan(ctx context.Context) (reconcile.Result, error) {
	return s.rec.Run(ctx)
}

// List returns the matching comics and the total before paging.
func (s *Service) List(_ context.Context, opts ListOptions) ([]ComicSummary, int, error) {
	order, err := comparator(opts.Sort)
	if err != nil {
		return nil, 0, err
	}
	query := ""
	if q := strings.TrimSpace(opts.Query); q != "" {
		query = models.NewSortedString(q).Sort
	}

	var matched []*models.Comic
	for _, c := range s.coll.All() {
		if opts.Tag != "" && !c.Tags().Has(opts.Tag) {
			continue
		}
		if opts.LovedOnly && !c.Loved() {
			continue
		}
		if opts.HideDisliked && c.Disliked() {
			continue
		}
		if query != "" && !strings.Contains(c.Title().Sort, query) && !strings.Contains(c.Author().Sort, query) {
			continue
		}
		matched = append(matched, c)
	}
	if order != nil {
		slices.SortStableFunc(matched, order)
	}
	if opts.Desc {
		slices.Reverse(matched)
	}

	total := len(matched)
	matched = page(matched, opts.Limit, opts.Offset)
	out := make([]ComicSummary, len(matched))
	for i, c := range matched {
		out[i] = summaryOf(c)
	}
	return out, total, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// comparator returns nil for collection order.
func comparator(sort string) (func(a, b *models.Comic) int, error) {
	switch sort {
	case "", SortAdded:
		return nil, nil
	case SortTitle:
		return func(a, b *models.Comic) int {
			return cmp.Or(a.Title().Compare(b.Title()), a.Author().Compare(b.Author()))
		}, nil
	case SortAuthor:
		return func(a, b *models.Comic) int {
			return cmp.Or(a.Author().Compare(b.Author()), a.Title().Compare(b.Title()))
		}, nil
	case SortCategory:
		return func(a, b *models.Comic) int {
			return cmp.Or(a.Category().Compare(b.Category()), a.Author().Compare(b.Author()), a.Title().Compare(b.Title()))
		}, nil
	case SortRandom:
		return func(a, b *models.Comic) int { return cmp.Compare(a.Random(), b.Random()) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", apperr.ErrInvalidInput, sort)
	}
}

func summaryOf(c *models.Comic) ComicSummary {
	return ComicSummary{
		ID:       string(c.ID()),
		Title:    c.Title().Display,
		Author:   c.Author().Display,
		Category: c.Category().Display,
		Tags:     c.Tags().Sorted(),
		Loved:    c.Loved(),
		Disliked: c.Disliked(),
		Files:    len(c.FilePaths()),
	}
}

func (s *Service) lookup(id string) (*models.Comic, error) {
	c := s.coll.Get(models.Identifier(id))
	if c == nil {
		return nil, &apperr.RecordNotFoundError{ID: id}
	}
	return c, nil
}

// Get returns one live comic.
func (s *Service) Get(_ context.Context, id string) (*ComicDetail, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.detail(c)
}

func (s *Service) detail(c *models.Comic) (*ComicDetail, error) {
	progress, err := s.store.GetProgress(c.ID())
	if err != nil {
		return nil, err
	}
	return &ComicDetail{
		ComicSummary:    summaryOf(c),
		ContainingPath:  c.ContainingPath(),
		FilePaths:       c.FilePaths(),
		ThumbnailSource: c.ThumbnailSource(),
		DateAdded:       c.DateAdded(),
		Progress:        progress,
	}, nil
}

// SetTags replaces the tag set of id.
func (s *Service) SetTags(_ context.Context, id string, tags []string) (*ComicDetail, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := c.SetTags(models.NewTagSet(tags...)); err != nil {
		return nil, err
	}
	return s.detail(c)
}

// SetLoved sets the loved flag of id. Loving clears disliked.
func (s *Service) SetLoved(_ context.Context, id string, v bool) (*ComicDetail, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := c.SetLoved(v); err != nil {
		return nil, err
	}
	return s.detail(c)
}

// SetDisliked sets the disliked flag of id. Disliking clears loved.
func (s *Service) SetDisliked(_ context.Context, id string, v bool) (*ComicDetail, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := c.SetDisliked(v); err != nil {
		return nil, err
	}
	return s.detail(c)
}

// SetOverrides applies display overrides to id.
func (s *Service) SetOverrides(_ context.Context, id string, o Overrides) (*ComicDetail, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	steps := []struct {
		v   *string
		set func(*models.SortedString) error
	}{
		{o.Title, c.SetTitle},
		{o.Author, c.SetAuthor},
		{o.Category, c.SetCategory},
	}
	for _, st := range steps {
		if st.v == nil {
			continue
		}
		if err := st.set(sortedOrNil(*st.v)); err != nil {
			return nil, err
		}
	}
	if o.ThumbnailSource != nil {
		if err := c.SetThumbnailSource(strings.TrimSpace(*o.ThumbnailSource)); err != nil {
			return nil, err
		}
	}
	return s.detail(c)
}

func sortedOrNil(v string) *models.SortedString {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	ss := models.NewSortedString(v)
	return &ss
}

// Progress returns the reading progress of id.
func (s *Service) Progress(_ context.Context, id string) (int, error) {
	if _, err := s.lookup(id); err != nil {
		return 0, err
	}
	return s.store.GetProgress(models.Identifier(id))
}

// SetProgress records the reading progress of id.
func (s *Service) SetProgress(_ context.Context, id string, progress int) error {
	if progress < 0 {
		return fmt.Errorf("%w: progress must not be negative", apperr.ErrInvalidInput)
	}
	if _, err := s.lookup(id); err != nil {
		return err
	}
	return s.store.SetProgress(models.Identifier(id), progress)
}

// Tags returns every tag in use with its count.
func (s *Service) Tags(_ context.Context) ([]catalog.TagCount, error) {
	return s.store.AllTags()
}

// Shuffle gives every live comic a new random tie-breaker.
func (s *Service) Shuffle(_ context.Context) {
	comics := s.coll.All()
	values := make([]int, len(comics))
	s.rngMu.Lock()
	for i := range values {
		values[i] = s.rng.Int()
	}
	s.rngMu.Unlock()
	for i, c := range comics {
		c.SetRandom(values[i])
	}
}

// Tokenize expands format for id. An empty id uses placeholder values.
func (s *Service) Tokenize(_ context.Context, format, id string) ([]string, error) {
	if id == "" {
		return tokenizer.Tokenize(format, nil)
	}
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return tokenizer.Tokenize(format, c)
}

// Command returns the launch command line of id.
func (s *Service) Command(_ context.Context, id string) ([]string, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	args, err := tokenizer.Tokenize(s.cfg.Args, c)
	if err != nil {
		return nil, err
	}
	if s.cfg.Program == "" {
		return nil, fmt.Errorf("%w: no launch program configured", apperr.ErrInvalidInput)
	}
	return append([]string{s.cfg.Program}, args...), nil
}

// Launch starts the configured program for id.
func (s *Service) Launch(ctx context.Context, id string) ([]string, error) {
	argv, err := s.Command(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.launch(argv); err != nil {
		return nil, fmt.Errorf("library: launch %s: %w", id, err)
	}
	s.logger.Info("library: launched", slog.String("id", id), slog.String("program", argv[0]))
	return argv, nil
}

func startProcess(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() //nolint:errcheck // reap only
	return nil
}

// Thumbnail returns the thumbnail bytes of id.
func (s *Service) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	c, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.thumbs == nil {
		return nil, fmt.Errorf("%w: thumbnails disabled", apperr.ErrNotFound)
	}
	return s.thumbs.Read(ctx, c)
}

// Extensions lists configured extension names.
func (s *Service) Extensions() []string { return s.ext.Names() }

// RunExtension runs extension name over ids, or over every live comic when
// ids is empty.
func (s *Service) RunExtension(ctx context.Context, name string, ids []string) (string, error) {
	var comics []*models.Comic
	if len(ids) == 0 {
		comics = s.coll.All()
	} else {
		for _, id := range ids {
			c, err := s.lookup(id)
			if err != nil {
				return "", err
			}
			comics = append(comics, c)
		}
	}
	items := make([]models.Projection, len(comics))
	for i, c := range comics {
		items[i] = c.Project()
	}
	status, err := s.ext.Run(ctx, name, items)
	if err != nil {
		s.logger.Warn("library: extension failed", slog.String("name", name), slog.String("error", err.Error()))
		return "", err
	}
	return status, nil
}
