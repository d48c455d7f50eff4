// Package apperr holds the error taxonomy shared by the catalog layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidEntity = errors.New("invalid entity")
	ErrSchemaTooNew  = errors.New("schema version too high")
	ErrTokenFormat   = errors.New("invalid execution string")
	ErrExtension     = errors.New("extension failed")
	ErrInvalidInput  = errors.New("invalid input")
)

// EntityConstructionError reports a directory or file that could not be
// turned into a comic, usually because it holds no content files.
type EntityConstructionError struct {
	Path   string
	Reason string
}

func (e *EntityConstructionError) Error() string {
	return fmt.Sprintf("cannot build comic from %q: %s", e.Path, e.Reason)
}

func (e *EntityConstructionError) Is(target error) bool { return target == ErrInvalidEntity }

// DuplicateRecordError is returned when inserting an identifier that is
// already active in the store.
type DuplicateRecordError struct {
	ID string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("record %q already exists", e.ID)
}

func (e *DuplicateRecordError) Is(target error) bool { return target == ErrAlreadyExists }

// RecordNotFoundError is returned for operations addressed to an unknown identifier.
type RecordNotFoundError struct {
	ID string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record %q not found", e.ID)
}

func (e *RecordNotFoundError) Is(target error) bool { return target == ErrNotFound }

// SchemaVersionTooHighError means the store was written by a newer build.
type SchemaVersionTooHighError struct {
	Stored int64
	Known  int64
}

func (e *SchemaVersionTooHighError) Error() string {
	return fmt.Sprintf("store schema version %d is newer than supported version %d", e.Stored, e.Known)
}

func (e *SchemaVersionTooHighError) Is(target error) bool { return target == ErrSchemaTooNew }

// TokenFormatError describes a malformed execution string. Pos is the byte
// offset in Format where the problem was detected.
type TokenFormatError struct {
	Format string
	Pos    int
	Reason string
}

func (e *TokenFormatError) Error() string {
	return fmt.Sprintf("execution string %q: %s at offset %d", e.Format, e.Reason, e.Pos)
}

func (e *TokenFormatError) Is(target error) bool { return target == ErrTokenFormat }

// ExtensionError wraps a failure reported by an extension host.
type ExtensionError struct {
	Name string
	Err  error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension %q: %v", e.Name, e.Err)
}

func (e *ExtensionError) Unwrap() error { return e.Err }

func (e *ExtensionError) Is(target error) bool { return target == ErrExtension }
