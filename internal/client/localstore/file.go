package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

// FileStore keeps everything in one JSON document that is rewritten on
// every mutation.
type FileStore struct {
	Values  map[string]map[string]json.RawMessage `json:"values"`
	Pending []models.PendingOperation             `json:"pending"`

	mu   sync.Mutex
	path string
}

// OpenFile loads the document at path, starting empty if it does not exist.
func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.Load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Load reads the document from disk.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.Values = map[string]map[string]json.RawMessage{}
	fs.Pending = []models.PendingOperation{}

	f, err := os.Open(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", fs.path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(fs); err != nil {
		return fmt.Errorf("decode %s: %w", fs.path, err)
	}
	if fs.Values == nil {
		fs.Values = map[string]map[string]json.RawMessage{}
	}
	return nil
}

// save writes the document to a temporary file and renames it over the
// old one. The caller holds mu.
func (fs *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".storage-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(fs); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", fs.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", fs.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", fs.path, err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("replace %s: %w", fs.path, err)
	}
	return nil
}

func (fs *FileStore) Get(_ context.Context, namespace, key string, dst any) (bool, error) {
	fs.mu.Lock()
	raw, ok := fs.Values[namespace][key]
	fs.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (fs *FileStore) Set(_ context.Context, namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ns, ok := fs.Values[namespace]
	if !ok {
		ns = map[string]json.RawMessage{}
		fs.Values[namespace] = ns
	}
	prev, had := ns[key]
	ns[key] = raw
	if err := fs.save(); err != nil {
		if had {
			ns[key] = prev
		} else {
			delete(ns, key)
		}
		return err
	}
	return nil
}

func (fs *FileStore) Append(_ context.Context, op models.PendingOperation) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.Pending = append(fs.Pending, op)
	if err := fs.save(); err != nil {
		fs.Pending = fs.Pending[:len(fs.Pending)-1]
		return err
	}
	return nil
}

func (fs *FileStore) RemoveByID(_ context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for i, op := range fs.Pending {
		if op.ID != id {
			continue
		}
		prev := fs.Pending
		fs.Pending = append(append([]models.PendingOperation{}, prev[:i]...), prev[i+1:]...)
		if err := fs.save(); err != nil {
			fs.Pending = prev
			return err
		}
		return nil
	}
	return nil
}

func (fs *FileStore) All(_ context.Context) ([]models.PendingOperation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]models.PendingOperation{}, fs.Pending...), nil
}

// Close is a no-op; every mutation is already on disk.
func (fs *FileStore) Close() error { return nil }
