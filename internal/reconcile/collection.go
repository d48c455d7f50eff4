package reconcile

import (
	"slices"

	"github.com/starford/comicshelf/internal/models"
	"github.com/starford/comicshelf/internal/syncutil"
)

// ChangeKind tells observers what happened to a comic.
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
	Updated ChangeKind = "updated"
)

// Change is one notification. Field is set for Updated only.
type Change struct {
	Kind  ChangeKind
	Comic *models.Comic
	Field string
}

// Observer receives changes. It is called without any collection lock held.
type Observer func(Change)

// Collection is the live, ordered set of comics. Membership changes only
// through the reconciler; readers always see a complete state.
type Collection struct {
	mu    syncutil.RWMutex
	items []*models.Comic
	index map[models.Identifier]*models.Comic

	obsMu     syncutil.Mutex
	nextObs   int
	observers map[int]Observer
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{
		index:     make(map[models.Identifier]*models.Comic),
		observers: make(map[int]Observer),
	}
}

// Len returns the number of live comics.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// All returns the comics in collection order.
func (c *Collection) All() []*models.Comic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Get returns the live comic for id, or nil.
func (c *Collection) Get(id models.Identifier) *models.Comic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index[id]
}

// Subscribe registers fn and returns a function that removes it.
func (c *Collection) Subscribe(fn Observer) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Collection) publish(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	c.obsMu.Lock()
	obs := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	c.obsMu.Unlock()

	for _, ch := range changes {
		for _, fn := range obs {
			fn(ch)
		}
	}
}

// listen is installed as the Listener of every live comic.
func (c *Collection) listen(comic *models.Comic, field string) {
	c.publish(Change{Kind: Updated, Comic: comic, Field: field})
}

// replace sets the whole membership. Used for the initial load.
func (c *Collection) replace(items []*models.Comic) {
	c.mu.Lock()
	c.items = slices.Clone(items)
	c.index = indexOf(c.items)
	c.mu.Unlock()
}

// apply removes and appends members, then runs persist while still holding
// the write lock. If persist fails the previous membership is restored, so
// no reader ever observes a half-applied reconciliation.
func (c *Collection) apply(additions []*models.Comic, removals *idSet, persist func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevItems, prevIndex := c.items, c.index

	next := make([]*models.Comic, 0, len(c.items)+len(additions))
	for _, it := range c.items {
		if !removals.has(it.ID()) {
			next = append(next, it)
		}
	}
	next = append(next, additions...)
	c.items, c.index = next, indexOf(next)

	if err := persist(); err != nil {
		c.items, c.index = prevItems, prevIndex
		return err
	}
	return nil
}

func indexOf(items []*models.Comic) map[models.Identifier]*models.Comic {
	idx := make(map[models.Identifier]*models.Comic, len(items))
	for _, it := range items {
		idx[it.ID()] = it
	}
	return idx
}
