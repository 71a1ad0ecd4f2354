package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"inventorypro/backend/internal/store"
)

// Store keeps each collection in <dir>/<collection>.json as an object with a
// single top-level key, e.g. inventory.json holds {"items": [...]}.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(c store.Collection) string {
	return filepath.Join(s.dir, string(c)+".json")
}

func (s *Store) Read(_ context.Context, c store.Collection) ([]byte, error) {
	data, err := os.ReadFile(s.path(c))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("component", "file-store").Str("path", s.path(c)).Msg("unparseable document")
		return nil, nil
	}
	if value, ok := doc[c.Key()]; ok {
		return value, nil
	}
	// stats.json may be a flat object instead of {"stats": {...}}.
	if c == store.Stats {
		return data, nil
	}
	return nil, nil
}

// Write replaces the document through a temp file and rename, so readers see
// either the old or the new document.
func (s *Store) Write(_ context.Context, c store.Collection, payload []byte) error {
	data, err := json.MarshalIndent(map[string]json.RawMessage{c.Key(): payload}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, string(c)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path(c)); err != nil {
		cleanup()
		return err
	}
	return nil
}
