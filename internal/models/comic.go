// Package models defines the catalog entities.
package models

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/syncutil"
)

// Fields reported to listeners.
const (
	FieldTitle     = "title"
	FieldAuthor    = "author"
	FieldCategory  = "category"
	FieldLoved     = "loved"
	FieldDisliked  = "disliked"
	FieldThumbnail = "thumbnail"
	FieldTags      = "tags"
	FieldFiles     = "files"
	FieldRandom    = "random"
)

// MetadataSink persists metadata before it becomes visible on the comic.
// Implementations must not call back into the comic.
type MetadataSink interface {
	UpdateMetadata(id Identifier, next Metadata) error
}

// Listener is told which field of a comic changed.
type Listener func(c *Comic, field string)

// ComicParams carries everything needed to build a comic.
type ComicParams struct {
	Title          string
	Author         string
	Category       string
	ContainingPath string
	FilePaths      []string
	// ImageSource is the first image found while scanning, if any.
	ImageSource string
	Metadata    *Metadata
	Random      int
	DateAdded   time.Time
}

// Comic is one catalog item. Identity and the names found on disk are fixed
// at construction; everything user-editable lives in Metadata.
type Comic struct {
	id           Identifier
	realTitle    string
	realAuthor   string
	realCategory string

	mu             syncutil.RWMutex
	dateAdded      time.Time
	containingPath string
	filePaths      []string
	imageSource    string
	meta           Metadata
	random         int
	sink           MetadataSink
	listener       Listener
}

// NewComic validates p and builds a comic. A comic without file paths, or
// without an author or title, cannot exist.
func NewComic(p ComicParams) (*Comic, error) {
	where := p.ContainingPath
	if where == "" {
		where = filepath.Join(p.Author, p.Title)
	}
	if len(p.FilePaths) == 0 {
		return nil, &apperr.EntityConstructionError{Path: where, Reason: "no content files"}
	}
	for _, f := range p.FilePaths {
		if f == "" {
			return nil, &apperr.EntityConstructionError{Path: where, Reason: "empty file path"}
		}
	}
	if strings.TrimSpace(p.Author) == "" || strings.TrimSpace(p.Title) == "" {
		return nil, &apperr.EntityConstructionError{Path: where, Reason: "missing author or title"}
	}

	meta := NewMetadata()
	if p.Metadata != nil {
		meta = p.Metadata.Clone()
	}
	if meta.Tags == nil {
		meta.Tags = TagSet{}
	}

	return &Comic{
		id:             NewIdentifier(p.Author, p.Title),
		realTitle:      p.Title,
		realAuthor:     p.Author,
		realCategory:   p.Category,
		dateAdded:      p.DateAdded,
		containingPath: p.ContainingPath,
		filePaths:      slices.Clone(p.FilePaths),
		imageSource:    p.ImageSource,
		meta:           meta,
		random:         p.Random,
	}, nil
}

// ID returns the stable identifier.
func (c *Comic) ID() Identifier { return c.id }

// RealTitle is the title derived from the path, ignoring overrides.
func (c *Comic) RealTitle() string { return c.realTitle }

// RealAuthor is the author derived from the path, ignoring overrides.
func (c *Comic) RealAuthor() string { return c.realAuthor }

// RealCategory is the category of the root the comic was found under.
func (c *Comic) RealCategory() string { return c.realCategory }

// DateAdded is when the comic was first recorded, zero if never stored.
func (c *Comic) DateAdded() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dateAdded
}

// SetDateAdded records when the store first saw the comic. It does not
// notify the listener.
func (c *Comic) SetDateAdded(t time.Time) {
	c.mu.Lock()
	c.dateAdded = t
	c.mu.Unlock()
}

// Title reads the override first and falls back to the path-derived title.
func (c *Comic) Title() SortedString {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pick(c.meta.Title, c.realTitle)
}

// Author reads the override first and falls back to the path-derived author.
func (c *Comic) Author() SortedString {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pick(c.meta.Author, c.realAuthor)
}

// Category reads the override first and falls back to the root category.
func (c *Comic) Category() SortedString {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pick(c.meta.Category, c.realCategory)
}

func pick(override *SortedString, fallback string) SortedString {
	if override != nil {
		return *override
	}
	return NewSortedString(fallback)
}

// ContainingPath is the directory holding the comic's files.
func (c *Comic) ContainingPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containingPath
}

// FilePaths returns a copy of the ordered content files; never empty.
func (c *Comic) FilePaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.filePaths)
}

// ThumbnailSource is the user override, else the scanned image, else the first file.
func (c *Comic) ThumbnailSource() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta.ThumbnailSource != nil && *c.meta.ThumbnailSource != "" {
		return *c.meta.ThumbnailSource
	}
	if c.imageSource != "" {
		return c.imageSource
	}
	return c.filePaths[0]
}

// ImageSource is the image picked by the scanner, possibly empty.
func (c *Comic) ImageSource() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.imageSource
}

// Metadata returns a copy of the current metadata.
func (c *Comic) Metadata() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.Clone()
}

// Tags returns a copy of the tag set.
func (c *Comic) Tags() TagSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.Tags.Clone()
}

// Loved reports the loved flag.
func (c *Comic) Loved() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.Loved
}

// Disliked reports the disliked flag.
func (c *Comic) Disliked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.Disliked
}

// Random is the shuffle tie-breaker.
func (c *Comic) Random() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.random
}

// Attach installs the sink used for write-through and the change listener.
// Either may be nil.
func (c *Comic) Attach(sink MetadataSink, l Listener) {
	c.mu.Lock()
	c.sink = sink
	c.listener = l
	c.mu.Unlock()
}

// AdoptMetadata replaces metadata without persisting or notifying. It is
// used when stored metadata is merged into a freshly scanned comic.
func (c *Comic) AdoptMetadata(m Metadata) {
	m = m.Clone()
	if m.Tags == nil {
		m.Tags = TagSet{}
	}
	c.mu.Lock()
	c.meta = m
	c.mu.Unlock()
}

// SetTitle sets or, with nil, clears the title override.
func (c *Comic) SetTitle(v *SortedString) error {
	return c.update(FieldTitle, func(m *Metadata) { m.Title = cloneSorted(v) })
}

// SetAuthor sets or clears the author override.
func (c *Comic) SetAuthor(v *SortedString) error {
	return c.update(FieldAuthor, func(m *Metadata) { m.Author = cloneSorted(v) })
}

// SetCategory sets or clears the category override.
func (c *Comic) SetCategory(v *SortedString) error {
	return c.update(FieldCategory, func(m *Metadata) { m.Category = cloneSorted(v) })
}

// SetLoved sets the loved flag. Loving a comic clears disliked.
func (c *Comic) SetLoved(v bool) error {
	return c.update(FieldLoved, func(m *Metadata) {
		m.Loved = v
		if v {
			m.Disliked = false
		}
	})
}

// SetDisliked sets the disliked flag. Disliking a comic clears loved.
func (c *Comic) SetDisliked(v bool) error {
	return c.update(FieldDisliked, func(m *Metadata) {
		m.Disliked = v
		if v {
			m.Loved = false
		}
	})
}

// SetThumbnailSource overrides the image used for the thumbnail; "" clears it.
func (c *Comic) SetThumbnailSource(path string) error {
	return c.update(FieldThumbnail, func(m *Metadata) {
		if path == "" {
			m.ThumbnailSource = nil
			return
		}
		m.ThumbnailSource = &path
	})
}

// SetTags replaces the tag set.
func (c *Comic) SetTags(tags TagSet) error {
	return c.update(FieldTags, func(m *Metadata) { m.Tags = tags.Clone() })
}

// update persists the changed metadata through the sink and only then
// applies it, so a failed write leaves the comic as it was.
func (c *Comic) update(field string, fn func(*Metadata)) error {
	c.mu.Lock()
	next := c.meta.Clone()
	fn(&next)
	if c.sink != nil {
		if err := c.sink.UpdateMetadata(c.id, next); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.meta = next
	l := c.listener
	c.mu.Unlock()

	if l != nil {
		l(c, field)
	}
	return nil
}

// SetRandom changes the shuffle tie-breaker.
func (c *Comic) SetRandom(v int) {
	c.mu.Lock()
	c.random = v
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		l(c, FieldRandom)
	}
}

// RefreshFiles takes the physical layout of a rescanned copy of the same
// comic. It reports whether anything changed.
func (c *Comic) RefreshFiles(from *Comic) bool {
	if from == c || from.id != c.id {
		return false
	}
	paths := from.FilePaths()
	folder := from.ContainingPath()
	image := from.ImageSource()

	c.mu.Lock()
	changed := !slices.Equal(c.filePaths, paths) || c.containingPath != folder || c.imageSource != image
	if changed {
		c.filePaths = paths
		c.containingPath = folder
		c.imageSource = image
	}
	l := c.listener
	c.mu.Unlock()

	if changed && l != nil {
		l(c, FieldFiles)
	}
	return changed
}

// Projection is the read-only view handed to extensions and API clients.
type Projection struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Category  string   `json:"category"`
	FilePaths []string `json:"file_paths"`
	Tags      []string `json:"tags"`
	Loved     bool     `json:"loved"`
	Disliked  bool     `json:"disliked"`
}

// Project builds the read-only view.
func (c *Comic) Project() Projection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Projection{
		ID:        string(c.id),
		Title:     pick(c.meta.Title, c.realTitle).Display,
		Author:    pick(c.meta.Author, c.realAuthor).Display,
		Category:  pick(c.meta.Category, c.realCategory).Display,
		FilePaths: slices.Clone(c.filePaths),
		Tags:      c.meta.Tags.Sorted(),
		Loved:     c.meta.Loved,
		Disliked:  c.meta.Disliked,
	}
}
