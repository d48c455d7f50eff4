// Package testutil provides shared test helpers for setting up stores and library trees.
package testutil

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/starford/comicshelf/internal/catalog"
)

// TestStore creates a temporary metadata store that is automatically cleaned up.
func TestStore(t *testing.T, opts ...catalog.Option) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "comicshelf-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary builds an in-memory filesystem holding files. A path ending in
// "/" creates an empty directory.
func TestLibrary(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, f := range files {
		if strings.HasSuffix(f, "/") {
			if err := fsys.MkdirAll(f, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := afero.WriteFile(fsys, f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fsys
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
