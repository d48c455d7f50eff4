package models

import (
	"slices"
	"strings"
)

// TagSet is a set of tag names.
type TagSet map[string]struct{}

// NewTagSet builds a set from names, dropping blanks and surrounding space.
func NewTagSet(names ...string) TagSet {
	s := make(TagSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set.
func (s TagSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s TagSet) Clone() TagSet {
	out := make(TagSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same names.
func (s TagSet) Equal(o TagSet) bool {
	if len(s) != len(o) {
		return false
	}
	for n := range s {
		if !o.Has(n) {
			return false
		}
	}
	return true
}

// Diff returns the names to add and to remove to turn s into next.
func (s TagSet) Diff(next TagSet) (added, removed []string) {
	for n := range next {
		if !s.Has(n) {
			added = append(added, n)
		}
	}
	for n := range s {
		if !next.Has(n) {
			removed = append(removed, n)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

// Metadata is the user-owned part of a comic. It is persisted and survives
// rescans; nil overrides mean "use the value found on disk".
type Metadata struct {
	Title           *SortedString
	Author          *SortedString
	Category        *SortedString
	Loved           bool
	Disliked        bool
	ThumbnailSource *string
	Tags            TagSet
	Active          bool
}

// NewMetadata returns active metadata with no overrides.
func NewMetadata() Metadata {
	return Metadata{Tags: TagSet{}, Active: true}
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	out.Title = cloneSorted(m.Title)
	out.Author = cloneSorted(m.Author)
	out.Category = cloneSorted(m.Category)
	if m.ThumbnailSource != nil {
		v := *m.ThumbnailSource
		out.ThumbnailSource = &v
	}
	out.Tags = m.Tags.Clone()
	return out
}

func cloneSorted(s *SortedString) *SortedString {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
