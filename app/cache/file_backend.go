package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileBackend keeps one JSON document per key in a directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Load(ctx context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}

	return &entry, nil
}

// Save writes through a temp file and rename so readers never observe a
// partially written document.
func (b *FileBackend) Save(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), b.path(entry.Key)); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}

func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) path(key string) string {
	name := key
	if !safeKey.MatchString(key) {
		hash := sha256.Sum256([]byte(key))
		name = hex.EncodeToString(hash[:16])
	}
	return filepath.Join(b.dir, name+".json")
}
