package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// SortedString pairs user-facing text with the key it is ordered by.
type SortedString struct {
	Display string `json:"display"`
	Sort    string `json:"sort"`
}

// NewSortedString derives the sort key from display by case folding and
// collapsing whitespace.
func NewSortedString(display string) SortedString {
	return SortedString{Display: display, Sort: sortKey(display)}
}

// NewSortedStringWithKey keeps an explicit sort key, falling back to the
// derived one when key is blank.
func NewSortedStringWithKey(display, key string) SortedString {
	if strings.TrimSpace(key) == "" {
		return NewSortedString(display)
	}
	return SortedString{Display: display, Sort: key}
}

func sortKey(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	// Casers are stateful, so one is built per call.
	return cases.Fold().String(strings.Join(fields, " "))
}

// IsZero reports whether the value carries no display text.
func (s SortedString) IsZero() bool { return s.Display == "" }

// Compare orders by sort key, then display text.
func (s SortedString) Compare(o SortedString) int {
	if c := strings.Compare(s.Sort, o.Sort); c != 0 {
		return c
	}
	return strings.Compare(s.Display, o.Display)
}

func (s SortedString) String() string { return s.Display }
