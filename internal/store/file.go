package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/fsutil"
)

// File stores each key as <dir>/<key>.json, replaced atomically.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates dir if needed and returns a store rooted there.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errclass.ErrStoreUnavailable.WithMessagef("create store dir: %v", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Load implements KV.
func (f *File) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok, err := fsutil.ReadIfExists(f.path(key))
	if err != nil {
		return nil, false, errclass.ErrStoreUnavailable.WithMessagef("load %s: %v", key, err)
	}
	return data, ok, nil
}

// Save implements KV.
func (f *File) Save(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := fsutil.AtomicWrite(f.path(key), data, 0600); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Remove implements KV.
func (f *File) Remove(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := fsutil.RemoveAndSync(f.path(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Close implements KV.
func (f *File) Close() error { return nil }

var _ KV = (*File)(nil)
