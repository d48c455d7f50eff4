// Package scanner walks library roots and builds candidate comics.
//
// Layout: <root>/<author>/<comic...>. Directories directly below a root are
// authors; what a comic is below an author depends on Options.Flatten.
package scanner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/models"
)

// Root is one library directory and the category its comics belong to.
type Root struct {
	Category string
	Path     string
}

// Options is an immutable profile snapshot for one scan.
type Options struct {
	Roots             []Root
	ContentExtensions []string
	ImageExtensions   []string
	IgnorePrefixes    []string
	// Depth is how many directory levels below an author are visited. Values
	// below 1 mean 1.
	Depth int
	// Flatten makes every leaf directory its own comic, named by the
	// directory path below the author joined with Separator. Otherwise each
	// directory directly below an author is one comic holding every file
	// under it.
	Flatten   bool
	Separator string
	// Workers bounds how many authors are scanned at once.
	Workers int
	// Compare orders file and directory names. Defaults to natural order.
	Compare func(a, b string) int
}

// Scanner produces comics from the filesystem.
type Scanner struct {
	fs      afero.Fs
	opts    Options
	content map[string]struct{}
	image   map[string]struct{}
	logger  *slog.Logger
}

// New returns a scanner over fsys. A nil logger discards output.
func New(fsys afero.Fs, opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Depth < 1 {
		opts.Depth = 1
	}
	if opts.Separator == "" {
		opts.Separator = " - "
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Compare == nil {
		opts.Compare = NewNatural(language.Und).Compare
	}
	return &Scanner{
		fs:      fsys,
		opts:    opts,
		content: extSet(opts.ContentExtensions),
		image:   extSet(opts.ImageExtensions),
		logger:  logger,
	}
}

func extSet(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}

type authorJob struct {
	root Root
	name string
	path string
}

// Scan walks every root and sends each comic to out. Authors are scanned in
// parallel; the order comics arrive in is not defined. Cancellation is
// checked between authors and directories, and Scan then returns ctx.Err().
// Scan does not close out.
func (s *Scanner) Scan(ctx context.Context, out chan<- *models.Comic) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, root := range s.opts.Roots {
		authors, err := s.authors(root)
		if err != nil {
			s.logger.Warn("scanner: root unreadable", slog.String("root", root.Path), slog.String("error", err.Error()))
			continue
		}
		for _, job := range authors {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				return s.scanAuthor(gctx, job, out)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Collect runs Scan and returns every comic ordered by first file path.
func (s *Scanner) Collect(ctx context.Context) ([]*models.Comic, error) {
	ch := make(chan *models.Comic)
	errc := make(chan error, 1)
	go func() {
		errc <- s.Scan(ctx, ch)
		close(ch)
	}()

	var out []*models.Comic
	for c := range ch {
		out = append(out, c)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b *models.Comic) int {
		return s.opts.Compare(a.FilePaths()[0], b.FilePaths()[0])
	})
	return out, nil
}

func (s *Scanner) authors(root Root) ([]authorJob, error) {
	entries, err := s.readDir(root.Path)
	if err != nil {
		return nil, err
	}
	var jobs []authorJob
	for _, e := range entries {
		if !e.IsDir() || s.ignored(e.Name()) {
			continue
		}
		jobs = append(jobs, authorJob{root: root, name: e.Name(), path: filepath.Join(root.Path, e.Name())})
	}
	return jobs, nil
}

func (s *Scanner) ignored(name string) bool {
	for _, p := range s.opts.IgnorePrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// readDir lists dir in the configured order.
func (s *Scanner) readDir(dir string) ([]fs.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b fs.FileInfo) int {
		return s.opts.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

func (s *Scanner) scanAuthor(ctx context.Context, job authorJob, out chan<- *models.Comic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.readDir(job.path)
	if err != nil {
		s.logger.Warn("scanner: author unreadable", slog.String("path", job.path), slog.String("error", err.Error()))
		return nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(job.path, e.Name())
		if !e.IsDir() {
			if !s.isContent(e.Name()) {
				continue
			}
			title := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			img := ""
			if s.isImage(e.Name()) {
				img = p
			}
			if err := s.emit(ctx, out, job, title, job.path, []string{p}, img); err != nil {
				return err
			}
			continue
		}
		if s.ignored(e.Name()) {
			continue
		}
		if s.opts.Flatten {
			err = s.flatten(ctx, out, job, []string{e.Name()}, p, 1)
		} else {
			err = s.whole(ctx, out, job, e.Name(), p, s.opts.Depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// whole builds one comic from dir and the directories below it. Levels
// deeper than limit are not visited; a limit of 0 visits everything.
func (s *Scanner) whole(ctx context.Context, out chan<- *models.Comic, job authorJob, title, dir string, limit int) error {
	var files []string
	var img string
	if err := s.gather(ctx, dir, 1, limit, &files, &img); err != nil {
		return err
	}
	return s.emit(ctx, out, job, title, dir, files, img)
}

// flatten builds one comic per leaf directory, and one for any intermediate
// directory that holds content files of its own.
func (s *Scanner) flatten(ctx context.Context, out chan<- *models.Comic, job authorJob, names []string, dir string, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.readDir(dir)
	if err != nil {
		s.logger.Warn("scanner: directory unreadable", slog.String("path", dir), slog.String("error", err.Error()))
		return nil
	}
	title := strings.Join(names, s.opts.Separator)

	var subdirs []fs.FileInfo
	for _, e := range entries {
		if e.IsDir() && !s.ignored(e.Name()) {
			subdirs = append(subdirs, e)
		}
	}
	if level >= s.opts.Depth || len(subdirs) == 0 {
		// Whatever depth is left below the title directory still bounds the walk.
		return s.whole(ctx, out, job, title, dir, max(s.opts.Depth-level+1, 1))
	}

	var files []string
	var img string
	s.collectFiles(dir, entries, &files, &img)
	if len(files) > 0 {
		if err := s.emit(ctx, out, job, title, dir, files, img); err != nil {
			return err
		}
	}
	for _, e := range subdirs {
		next := append(slices.Clone(names), e.Name())
		if err := s.flatten(ctx, out, job, next, filepath.Join(dir, e.Name()), level+1); err != nil {
			return err
		}
	}
	return nil
}

// gather appends the content files of dir, then those of its
// subdirectories in order.
func (s *Scanner) gather(ctx context.Context, dir string, level, limit int, files *[]string, img *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.readDir(dir)
	if err != nil {
		s.logger.Warn("scanner: directory unreadable", slog.String("path", dir), slog.String("error", err.Error()))
		return nil
	}
	s.collectFiles(dir, entries, files, img)
	if limit > 0 && level >= limit {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() || s.ignored(e.Name()) {
			continue
		}
		if err := s.gather(ctx, filepath.Join(dir, e.Name()), level+1, limit, files, img); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) collectFiles(dir string, entries []fs.FileInfo, files *[]string, img *string) {
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if *img == "" && s.isImage(e.Name()) {
			*img = p
		}
		if s.isContent(e.Name()) {
			*files = append(*files, p)
		}
	}
}

func (s *Scanner) emit(ctx context.Context, out chan<- *models.Comic, job authorJob, title, dir string, files []string, img string) error {
	c, err := models.NewComic(models.ComicParams{
		Title:          title,
		Author:         job.name,
		Category:       job.root.Category,
		ContainingPath: dir,
		FilePaths:      files,
		ImageSource:    img,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidEntity) {
			s.logger.Info("scanner: skipped", slog.String("path", dir), slog.String("error", err.Error()))
			return nil
		}
		return err
	}
	select {
	case out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scanner) isContent(name string) bool {
	_, ok := s.content[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (s *Scanner) isImage(name string) bool {
	_, ok := s.image[strings.ToLower(filepath.Ext(name))]
	return ok
}
