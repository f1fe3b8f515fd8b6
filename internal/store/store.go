package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cjeanneret/PolarGo/internal/debug"
)

// Store persists the absolute step counter to a small text file so the
// position survives restarts. The file holds a single signed decimal.
type Store struct {
	path string
}

// New creates a Store for the given file path, creating the parent
// directory and seeding the file with "0" when absent.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.Save(0); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted position. A missing or unparsable file yields 0
// and rewrites the store, so a corrupted file degrades to the reference
// zero instead of failing startup.
func (s *Store) Load() int64 {
	data, err := os.ReadFile(s.path)
	if err != nil {
		debug.Info("Position file unreadable, starting at 0: %v", err)
		s.reset()
		return 0
	}
	pos, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		debug.Info("Position file corrupt (%q), starting at 0", strings.TrimSpace(string(data)))
		s.reset()
		return 0
	}
	return pos
}

// Save writes the position atomically: temp file in the same directory,
// then rename. A power cut mid-write leaves the previous value intact.
func (s *Store) Save(position int64) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(position, 10)), 0o644); err != nil {
		return fmt.Errorf("write position file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace position file: %w", err)
	}
	debug.Verbose("Saved position %d", position)
	return nil
}

func (s *Store) reset() {
	if err := s.Save(0); err != nil {
		debug.Error(fmt.Errorf("reinitialize position file: %w", err))
	}
}
