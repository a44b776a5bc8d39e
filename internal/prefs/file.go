package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File keeps all keys in a single JSON object on disk. Every operation
// re-reads the file, and every write rewrites the whole file through a temp
// file + rename, so several handles (e.g. a running server and a CLI
// invocation) see each other's writes and readers never observe a partially
// written document.
type File struct {
	path string

	mu sync.Mutex
}

// OpenFile checks that path is readable (a missing file is an empty store).
// A file that exists but is not a JSON object is reported as an error rather
// than silently replaced on the next write.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("prefs: file path is empty")
	}

	f := &File{path: path}
	if _, err := f.readLocked(); err != nil {
		return nil, err
	}
	return f, nil
}

// readLocked loads the current document from disk. Caller holds f.mu.
func (f *File) readLocked() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("prefs: read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("prefs: decode %s: %w", f.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

func (f *File) GetString(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *File) PutString(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.readLocked()
	if err != nil {
		return err
	}
	values[key] = value
	return f.flushLocked(values)
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, had := values[key]; !had {
		return nil
	}
	delete(values, key)
	return f.flushLocked(values)
}

func (f *File) Close() error { return nil }

// flushLocked writes values to disk. Caller holds f.mu.
func (f *File) flushLocked(values map[string]string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("prefs: create dir: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".timeuntil-prefs-*.tmp")
	if err != nil {
		return fmt.Errorf("prefs: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("prefs: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("prefs: rename: %w", err)
	}
	return nil
}
