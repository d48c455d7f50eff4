package reconcile

import (
	"slices"

	"github.com/starford/comicshelf/internal/models"
)

// idSet is a set of identifiers bucketed by their hash. The hash only narrows
// the search; membership is always decided by identifier equality.
type idSet struct {
	hash    func(models.Identifier) uint64
	buckets map[uint64][]models.Identifier
}

func newIDSet() *idSet {
	return &idSet{
		hash:    models.Identifier.Hash,
		buckets: make(map[uint64][]models.Identifier),
	}
}

// add inserts id and reports whether it was not already present.
func (s *idSet) add(id models.Identifier) bool {
	h := s.hash(id)
	if slices.Contains(s.buckets[h], id) {
		return false
	}
	s.buckets[h] = append(s.buckets[h], id)
	return true
}

func (s *idSet) has(id models.Identifier) bool {
	if s == nil {
		return false
	}
	return slices.Contains(s.buckets[s.hash(id)], id)
}
