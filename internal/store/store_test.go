package store

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "step_position.txt"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_SeedsMissingFileWithZero(t *testing.T) {
	s := newTestStore(t)

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read position file: %v", err)
	}
	if string(data) != "0" {
		t.Errorf("seed content = %q, want %q", data, "0")
	}
	if got := s.Load(); got != 0 {
		t.Errorf("Load = %d, want 0", got)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	for _, pos := range []int64{0, 1, -1, 950, -1320000, 1320000} {
		if err := s.Save(pos); err != nil {
			t.Fatalf("Save(%d): %v", pos, err)
		}
		if got := s.Load(); got != pos {
			t.Errorf("Load = %d, want %d", got, pos)
		}
	}
}

func TestStore_LoadMissingFileReturnsZero(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(42); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Remove(s.Path()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := s.Load(); got != 0 {
		t.Errorf("Load after removal = %d, want 0", got)
	}
	// The store reinitializes itself.
	if got := s.Load(); got != 0 {
		t.Errorf("Load after reinit = %d, want 0", got)
	}
}

func TestStore_LoadCorruptFileReturnsZero(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("not a number"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	if got := s.Load(); got != 0 {
		t.Errorf("Load of corrupt file = %d, want 0", got)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read position file: %v", err)
	}
	if string(data) != "0" {
		t.Errorf("corrupt file not reinitialized, content = %q", data)
	}
}

func TestStore_LoadTrimsWhitespace(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("  1234\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := s.Load(); got != 1234 {
		t.Errorf("Load = %d, want 1234", got)
	}
}

func TestStore_SaveLeavesNoTempFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(77); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind after Save")
	}
}
