package storage

import (
	"testing"

	"github.com/spf13/afero"
)

func tempStore(t *testing.T) (*FS, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	fs, err := NewFS(mem, "/cache/thumbs")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs, mem
}

func TestWriteAndRead(t *testing.T) {
	s, _ := tempStore(t)
	content := []byte("\x89PNG fake")
	if err := s.Write("ab.png", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("ab.png")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s, _ := tempStore(t)
	if err := s.Write("a/b/c.png", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ok, err := s.Exists("a/b/c.png")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestExists(t *testing.T) {
	s, _ := tempStore(t)
	ok, err := s.Exists("missing.png")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("missing file reported as existing")
	}
	_ = s.Write("dir/x.png", []byte("x"))
	if ok, _ := s.Exists("dir"); ok {
		t.Error("directory reported as a file")
	}
}

func TestDelete(t *testing.T) {
	s, _ := tempStore(t)
	_ = s.Write("del.png", []byte("bye"))
	if err := s.Delete("del.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.png"); err == nil {
		t.Error("expected error reading deleted file")
	}
	if err := s.Delete("del.png"); err != nil {
		t.Errorf("deleting a missing file: %v", err)
	}
}

func TestAbs(t *testing.T) {
	s, _ := tempStore(t)
	got, err := s.Abs("x/y.png")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if got != "/cache/thumbs/x/y.png" {
		t.Errorf("Abs = %q", got)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s, _ := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.png",
		"/etc/shadow",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s, mem := tempStore(t)
	_ = s.Write("atomic.png", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.png", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.png")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := afero.Glob(mem, "/cache/thumbs/.comicshelf-tmp-*")
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_OnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(afero.NewOsFs(), dir+"/nested/thumbs")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := s.Write("a.png", []byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	mem := afero.NewMemMapFs()
	_ = afero.WriteFile(mem, "/file", []byte("x"), 0o644)
	if _, err := NewFS(mem, "/file"); err == nil {
		t.Error("expected error when root is a file")
	}
}
