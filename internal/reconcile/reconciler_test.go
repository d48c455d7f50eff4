package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/comicshelf/internal/catalog"
	"github.com/starford/comicshelf/internal/models"
	"github.com/starford/comicshelf/internal/scanner"
	"github.com/starford/comicshelf/internal/testutil"
)

type failingStore struct {
	*catalog.DB
	err error
}

func (s *failingStore) ApplyReconciliation([]*models.Comic, []models.Identifier) error {
	return s.err
}

func scannerFor(t *testing.T, files ...string) *scanner.Scanner {
	t.Helper()
	return scanner.New(testutil.TestLibrary(t, files...), scanner.Options{
		Roots:             []scanner.Root{{Category: "Manga", Path: "/lib"}},
		ContentExtensions: []string{".png"},
		Depth:             1,
	}, nil)
}

func TestReconcile_UnchangedRescanIsEmpty(t *testing.T) {
	db := testutil.TestStore(t)
	r := New(NewCollection(), db, scannerFor(t, "/lib/A/One/1.png", "/lib/A/Two/1.png"), nil)

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Additions, 2)
	assert.Empty(t, first.Removals)

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Additions)
	assert.Empty(t, second.Removals)
	assert.Equal(t, 2, second.Unchanged)
	assert.NotEqual(t, first.ScanID, second.ScanID)
}

func TestReconcile_PreservesUserMetadata(t *testing.T) {
	db := testutil.TestStore(t)
	coll := NewCollection()
	r := New(coll, db, scannerFor(t, "/lib/A/One/1.png"), nil)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	live := coll.All()[0]
	require.NoError(t, live.SetLoved(true))
	require.NoError(t, live.SetTags(models.NewTagSet("fav", "color")))

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	same := coll.Get(live.ID())
	assert.Same(t, live, same, "survivors stay in place")
	assert.True(t, same.Loved())
	assert.Equal(t, []string{"color", "fav"}, same.Tags().Sorted())

	m, err := db.Get(live.ID())
	require.NoError(t, err)
	assert.True(t, m.Loved)
	assert.True(t, m.Tags.Has("fav"))
}

func TestReconcile_ReaddedComicGetsStoredMetadata(t *testing.T) {
	db := testutil.TestStore(t)
	coll := NewCollection()

	r := New(coll, db, scannerFor(t, "/lib/A/One/1.png"), nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, coll.All()[0].SetDisliked(true))
	id := coll.All()[0].ID()

	res, err := New(coll, db, scannerFor(t, "/lib/A/Other/1.png"), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Identifier{id}, ids(res.Removals))
	m, err := db.Get(id)
	require.NoError(t, err)
	assert.False(t, m.Active, "removed comics are soft-deleted")

	res, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Additions, 1)
	assert.True(t, res.Additions[0].Disliked())
	assert.True(t, coll.Get(id).Disliked())
}

func TestReconcile_AdditionsCarryStoredDateAdded(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	db := testutil.TestStore(t, catalog.WithClock(clock))
	coll := NewCollection()
	r := New(coll, db, scannerFor(t, "/lib/A/One/1.png"), nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Additions, 1)
	first := clock.Now()
	assert.True(t, coll.All()[0].DateAdded().Equal(first), "date_added = %v", coll.All()[0].DateAdded())

	// A comic that comes back keeps the date it was first stored with.
	clock.Advance(time.Hour)
	_, err = New(coll, db, scannerFor(t, "/lib/A/Other/1.png"), nil).Run(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	back := coll.Get(models.NewIdentifier("A", "One"))
	require.NotNil(t, back)
	assert.True(t, back.DateAdded().Equal(first))
}

func TestReconcile_RefreshesFileLayout(t *testing.T) {
	db := testutil.TestStore(t)
	coll := NewCollection()
	_, err := New(coll, db, scannerFor(t, "/lib/A/One/1.png"), nil).Run(context.Background())
	require.NoError(t, err)
	live := coll.All()[0]

	var fields []string
	unsub := coll.Subscribe(func(ch Change) {
		if ch.Kind == Updated {
			fields = append(fields, ch.Field)
		}
	})
	defer unsub()

	_, err = New(coll, db, scannerFor(t, "/lib/A/One/1.png", "/lib/A/One/2.png"), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, live.FilePaths(), 2)
	assert.Equal(t, []string{models.FieldFiles}, fields)

	stored, err := db.GetComic(live.ID())
	require.NoError(t, err)
	assert.Len(t, stored.FilePaths(), 2)
}

func TestReconcile_RollsBackOnStoreFailure(t *testing.T) {
	db := testutil.TestStore(t)
	coll := NewCollection()
	_, err := New(coll, db, scannerFor(t, "/lib/A/One/1.png"), nil).Run(context.Background())
	require.NoError(t, err)
	before := ids(coll.All())

	var seen []Change
	coll.Subscribe(func(ch Change) { seen = append(seen, ch) })

	broken := &failingStore{DB: db, err: errors.New("disk full")}
	_, err = New(coll, broken, scannerFor(t, "/lib/B/Two/1.png"), nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, before, ids(coll.All()))
	assert.Empty(t, seen)
}

func TestReconcile_CancelledBeforeApply(t *testing.T) {
	db := testutil.TestStore(t)
	coll := NewCollection()
	staged, err := scannerFor(t, "/lib/A/One/1.png").Collect(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(coll, db, nil, nil).Reconcile(ctx, staged)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, coll.Len())

	all, err := db.AllActive()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReconcile_DuplicateIdentifiersKeepFirst(t *testing.T) {
	a, err := models.NewComic(models.ComicParams{Title: "T", Author: "A", FilePaths: []string{"/first.png"}})
	require.NoError(t, err)
	b, err := models.NewComic(models.ComicParams{Title: "T", Author: "A", FilePaths: []string{"/second.png"}})
	require.NoError(t, err)

	coll := NewCollection()
	res, err := New(coll, testutil.TestStore(t), nil, nil).Reconcile(context.Background(), []*models.Comic{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	require.Equal(t, 1, coll.Len())
	assert.Equal(t, []string{"/first.png"}, coll.All()[0].FilePaths())
}

func TestLoad_AttachesStore(t *testing.T) {
	db := testutil.TestStore(t)
	_, err := New(NewCollection(), db, scannerFor(t, "/lib/A/One/1.png"), nil).Run(context.Background())
	require.NoError(t, err)

	coll := NewCollection()
	r := New(coll, db, nil, nil)
	require.NoError(t, r.Load())
	require.Equal(t, 1, coll.Len())

	var got []Change
	coll.Subscribe(func(ch Change) { got = append(got, ch) })
	require.NoError(t, coll.All()[0].SetTags(models.NewTagSet("x")))
	require.Len(t, got, 1)
	assert.Equal(t, models.FieldTags, got[0].Field)

	tags, err := db.Tags(coll.All()[0].ID())
	require.NoError(t, err)
	assert.True(t, tags.Has("x"))
}

func TestIDSet_HashCollisionsFallBackToIdentifier(t *testing.T) {
	s := newIDSet()
	s.hash = func(models.Identifier) uint64 { return 7 }

	assert.True(t, s.add("a/b"))
	assert.True(t, s.add("c/d"))
	assert.False(t, s.add("a/b"))
	assert.True(t, s.has("c/d"))
	assert.False(t, s.has("e/f"))

	var nilSet *idSet
	assert.False(t, nilSet.has("a/b"))
}
