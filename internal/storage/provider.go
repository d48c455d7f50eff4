// Package storage is the blob store for generated files such as thumbnails.
package storage

// Provider stores files under a root. Paths are relative to that root.
type Provider interface {
	// Exists reports whether path holds a file.
	Exists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Abs returns the full path of path.
	Abs(path string) (string, error)
}
