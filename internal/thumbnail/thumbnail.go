// Package thumbnail keeps generated cover images on disk.
package thumbnail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/starford/comicshelf/internal/checksum"
	"github.com/starford/comicshelf/internal/models"
	"github.com/starford/comicshelf/internal/storage"
)

// Generator renders a thumbnail of sourcePath at roughly width pixels.
type Generator interface {
	CreateThumbnail(ctx context.Context, sourcePath string, width int) ([]byte, error)
}

// SourceCopy is a Generator that returns the source bytes unchanged.
type SourceCopy struct {
	FS afero.Fs
}

// CreateThumbnail implements Generator.
func (g SourceCopy) CreateThumbnail(_ context.Context, sourcePath string, _ int) ([]byte, error) {
	data, err := afero.ReadFile(g.FS, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: read source: %w", err)
	}
	return data, nil
}

// Cache maps comics to thumbnail files, generating missing ones on demand.
type Cache struct {
	store  storage.Provider
	gen    Generator
	width  int
	group  singleflight.Group
	logger *slog.Logger
}

// NewCache returns a cache writing into store.
func NewCache(store storage.Provider, gen Generator, width int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if width <= 0 {
		width = 240
	}
	return &Cache{store: store, gen: gen, width: width, logger: logger}
}

// Name is the file name the thumbnail of c is stored under. It changes when
// the thumbnail source or the width changes.
func (c *Cache) Name(comic *models.Comic) string {
	src := comic.ThumbnailSource()
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".img"
	}
	return checksum.Key(string(comic.ID()), src, strconv.Itoa(c.width)) + ext
}

// Path returns the thumbnail file of comic, generating it if absent.
// Concurrent calls for the same comic generate once.
func (c *Cache) Path(ctx context.Context, comic *models.Comic) (string, error) {
	name := c.Name(comic)
	v, err, _ := c.group.Do(name, func() (any, error) {
		ok, err := c.store.Exists(name)
		if err != nil {
			return "", err
		}
		if !ok {
			data, err := c.gen.CreateThumbnail(ctx, comic.ThumbnailSource(), c.width)
			if err != nil {
				return "", fmt.Errorf("thumbnail: generate %s: %w", comic.ID(), err)
			}
			if err := c.store.Write(name, data); err != nil {
				return "", err
			}
			c.logger.Debug("thumbnail: generated", slog.String("id", string(comic.ID())), slog.String("file", name))
		}
		return c.store.Abs(name)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Read returns the thumbnail bytes of comic, generating them if absent.
func (c *Cache) Read(ctx context.Context, comic *models.Comic) ([]byte, error) {
	if _, err := c.Path(ctx, comic); err != nil {
		return nil, err
	}
	return c.store.Read(c.Name(comic))
}
