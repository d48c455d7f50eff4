package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/comicshelf/internal/models"
)

func mustComic(t *testing.T, author, title string) *models.Comic {
	t.Helper()
	c, err := models.NewComic(models.ComicParams{Title: title, Author: author, FilePaths: []string{"/" + title + ".png"}})
	require.NoError(t, err)
	return c
}

func TestCollection_ApplyKeepsOrder(t *testing.T) {
	a, b, c := mustComic(t, "x", "a"), mustComic(t, "x", "b"), mustComic(t, "x", "c")
	coll := NewCollection()
	coll.replace([]*models.Comic{a, b})

	gone := newIDSet()
	gone.add(a.ID())
	require.NoError(t, coll.apply([]*models.Comic{c}, gone, func() error { return nil }))

	assert.Equal(t, []*models.Comic{b, c}, coll.All())
	assert.Nil(t, coll.Get(a.ID()))
	assert.Same(t, c, coll.Get(c.ID()))
}

func TestCollection_ApplyRestoresOnError(t *testing.T) {
	a, b := mustComic(t, "x", "a"), mustComic(t, "x", "b")
	coll := NewCollection()
	coll.replace([]*models.Comic{a})

	gone := newIDSet()
	gone.add(a.ID())
	var duringPersist []*models.Comic
	err := coll.apply([]*models.Comic{b}, gone, func() error {
		duringPersist = coll.items
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, []*models.Comic{b}, duringPersist)
	assert.Equal(t, []*models.Comic{a}, coll.All())
	assert.Same(t, a, coll.Get(a.ID()))
}

func TestCollection_Unsubscribe(t *testing.T) {
	coll := NewCollection()
	n := 0
	unsub := coll.Subscribe(func(Change) { n++ })
	coll.publish(Change{Kind: Added})
	unsub()
	coll.publish(Change{Kind: Added})
	assert.Equal(t, 1, n)
}
