package models

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Identifier is the stable key of a catalog item, derived from the author
// and title found on disk.
type Identifier string

var idEscaper = strings.NewReplacer(`\`, `\\`, `/`, `\/`)

// NewIdentifier builds the identifier for (author, title). Distinct pairs
// always yield distinct identifiers.
func NewIdentifier(author, title string) Identifier {
	return Identifier(idEscaper.Replace(author) + "/" + idEscaper.Replace(title))
}

// Hash is a non-cryptographic hash of the identifier. Equal hashes do not
// imply equal identifiers.
func (id Identifier) Hash() uint64 {
	return xxhash.Sum64String(string(id))
}

func (id Identifier) String() string { return string(id) }
