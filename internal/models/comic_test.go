package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/comicshelf/internal/apperr"
)

type recordingSink struct {
	calls []Metadata
	err   error
}

func (s *recordingSink) UpdateMetadata(_ Identifier, next Metadata) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, next.Clone())
	return nil
}

func testComic(t *testing.T) *Comic {
	t.Helper()
	c, err := NewComic(ComicParams{
		Title:          "Vol 1",
		Author:         "Someone",
		Category:       "Manga",
		ContainingPath: "/lib/Someone/Vol 1",
		FilePaths:      []string{"/lib/Someone/Vol 1/01.png", "/lib/Someone/Vol 1/02.png"},
	})
	require.NoError(t, err)
	return c
}

func TestNewComic_RequiresFiles(t *testing.T) {
	_, err := NewComic(ComicParams{Title: "t", Author: "a", ContainingPath: "/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidEntity)

	var ce *apperr.EntityConstructionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "/x", ce.Path)
}

func TestNewComic_RequiresAuthorAndTitle(t *testing.T) {
	_, err := NewComic(ComicParams{Title: " ", Author: "a", FilePaths: []string{"f"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidEntity)
}

func TestIdentifier_Deterministic(t *testing.T) {
	a := testComic(t)
	b := testComic(t)
	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, a.ID().Hash(), b.ID().Hash())
}

func TestIdentifier_Injective(t *testing.T) {
	assert.NotEqual(t, NewIdentifier("a/b", "c"), NewIdentifier("a", "b/c"))
	assert.NotEqual(t, NewIdentifier(`a\`, "b"), NewIdentifier("a", `\b`))
}

func TestOverridesFallBackToPath(t *testing.T) {
	c := testComic(t)
	assert.Equal(t, "Vol 1", c.Title().Display)
	assert.Equal(t, "vol 1", c.Title().Sort)

	title := NewSortedStringWithKey("The First", "first")
	require.NoError(t, c.SetTitle(&title))
	assert.Equal(t, "The First", c.Title().Display)
	assert.Equal(t, "first", c.Title().Sort)
	assert.Equal(t, "Vol 1", c.RealTitle())

	require.NoError(t, c.SetTitle(nil))
	assert.Equal(t, "Vol 1", c.Title().Display)
}

func TestWriteThrough_PersistsBeforeApplying(t *testing.T) {
	c := testComic(t)
	sink := &recordingSink{}
	var fields []string
	c.Attach(sink, func(_ *Comic, field string) { fields = append(fields, field) })

	require.NoError(t, c.SetLoved(true))
	require.Len(t, sink.calls, 1)
	assert.True(t, sink.calls[0].Loved)
	assert.Equal(t, []string{FieldLoved}, fields)

	require.NoError(t, c.SetDisliked(true))
	assert.True(t, c.Disliked())
	assert.False(t, c.Loved(), "disliking clears loved")

	sink.err = errors.New("disk full")
	err := c.SetTags(NewTagSet("action"))
	require.Error(t, err)
	assert.Empty(t, c.Tags(), "failed write must not change the comic")
	assert.Len(t, fields, 2)
}

func TestThumbnailSourcePrecedence(t *testing.T) {
	c := testComic(t)
	assert.Equal(t, "/lib/Someone/Vol 1/01.png", c.ThumbnailSource())

	require.NoError(t, c.SetThumbnailSource("/covers/x.jpg"))
	assert.Equal(t, "/covers/x.jpg", c.ThumbnailSource())

	require.NoError(t, c.SetThumbnailSource(""))
	assert.Equal(t, "/lib/Someone/Vol 1/01.png", c.ThumbnailSource())
}

func TestRefreshFiles(t *testing.T) {
	live := testComic(t)
	staged, err := NewComic(ComicParams{
		Title:          "Vol 1",
		Author:         "Someone",
		ContainingPath: "/lib/Someone/Vol 1",
		FilePaths:      []string{"/lib/Someone/Vol 1/01.png", "/lib/Someone/Vol 1/02.png", "/lib/Someone/Vol 1/03.png"},
	})
	require.NoError(t, err)

	assert.True(t, live.RefreshFiles(staged))
	assert.Len(t, live.FilePaths(), 3)
	assert.False(t, live.RefreshFiles(staged))
}

func TestTagSetDiff(t *testing.T) {
	old := NewTagSet("a", "b", "c")
	next := NewTagSet("b", "c", "d", " ")
	added, removed := old.Diff(next)
	assert.Equal(t, []string{"d"}, added)
	assert.Equal(t, []string{"a"}, removed)
	assert.False(t, old.Equal(next))
	assert.True(t, next.Equal(NewTagSet("d", "c", "b")))
}

func TestProjection(t *testing.T) {
	c := testComic(t)
	require.NoError(t, c.SetTags(NewTagSet("z", "a")))
	p := c.Project()
	assert.Equal(t, string(c.ID()), p.ID)
	assert.Equal(t, []string{"a", "z"}, p.Tags)
	assert.Equal(t, "Manga", p.Category)
	assert.Len(t, p.FilePaths, 2)
}
