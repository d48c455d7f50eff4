package scanner

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/comicshelf/internal/syncutil"
)

// Natural orders strings the way people read them: case-insensitively, with
// runs of digits compared by value ("2.png" before "10.png").
type Natural struct {
	mu syncutil.Mutex
	c  *collate.Collator
}

// NewNatural returns a natural comparator for tag. language.Und gives the
// root collation order.
func NewNatural(tag language.Tag) *Natural {
	return &Natural{c: collate.New(tag, collate.Numeric, collate.IgnoreCase)}
}

// Compare returns -1, 0 or +1. Safe for concurrent use.
func (n *Natural) Compare(a, b string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r := n.c.CompareString(a, b); r != 0 {
		return r
	}
	// Collation ties (case only) still need a stable order.
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
