// Package workspace manages the lockguard state directory: creating it,
// finding it from a nested working directory and checking its format.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lockguard/lockguard/pkg/config"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/fsutil"
)

const (
	FormatVersion     = 1
	FormatVersionFile = "format_version"
	WorkspaceIDFile   = "workspace_id"
	EngineLockFile    = "engine.lock"
)

// Workspace is an initialized lockguard state directory.
type Workspace struct {
	Root          string
	FormatVersion int
	ID            string
}

// StateDir returns <root>/.lockguard.
func (w *Workspace) StateDir() string {
	return filepath.Join(w.Root, config.DirName)
}

// Init creates the state directory under root and writes a default config.
// An existing workspace is returned unchanged.
func Init(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	stateDir := filepath.Join(abs, config.DirName)
	if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
		return open(abs)
	}

	cfg := config.Default()
	for _, dir := range []string{stateDir, config.Resolve(abs, cfg.Store.Path)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := fsutil.AtomicWrite(filepath.Join(stateDir, FormatVersionFile), []byte("1\n"), 0600); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}
	id := uuid.NewString()
	if err := fsutil.AtomicWrite(filepath.Join(stateDir, WorkspaceIDFile), []byte(id+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("write workspace_id: %w", err)
	}
	if err := config.Save(abs, cfg); err != nil {
		return nil, err
	}
	if err := fsutil.FsyncDir(abs); err != nil {
		return nil, fmt.Errorf("fsync root: %w", err)
	}

	return &Workspace{Root: abs, FormatVersion: FormatVersion, ID: id}, nil
}

// Discover walks up from cwd to the nearest directory holding a state dir.
func Discover(cwd string) (*Workspace, error) {
	path, err := filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cwd, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(path, config.DirName)); err == nil && info.IsDir() {
			return open(path)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, errclass.ErrWorkspaceNotFound.WithMessagef("no %s directory above %s", config.DirName, cwd)
		}
		path = parent
	}
}

func open(root string) (*Workspace, error) {
	stateDir := filepath.Join(root, config.DirName)
	version, err := readFormatVersion(stateDir)
	if err != nil {
		return nil, err
	}
	if version > FormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef(
			"format version %d > supported %d", version, FormatVersion)
	}
	id, _ := readID(stateDir)
	return &Workspace{Root: root, FormatVersion: version, ID: id}, nil
}

func readFormatVersion(stateDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, FormatVersionFile))
	if os.IsNotExist(err) {
		return FormatVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, fmt.Errorf("parse format_version: %w", err)
	}
	return version, nil
}

func readID(stateDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, WorkspaceIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// EngineLock is held by the one engine allowed to write a workspace.
type EngineLock struct {
	f *os.File
}

// LockEngine takes the workspace engine lock without waiting. It fails
// with E_STORE_UNAVAILABLE while another engine, in this process or
// another, holds it.
func (w *Workspace) LockEngine() (*EngineLock, error) {
	path := filepath.Join(w.StateDir(), EngineLockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open engine lock: %w", err)
	}
	ok, err := fsutil.TryLockFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flock engine lock: %w", err)
	}
	if !ok {
		f.Close()
		return nil, errclass.ErrStoreUnavailable.WithMessagef(
			"workspace %s is in use by another lockguard engine (is \"lockguard watch\" running?)", w.Root)
	}
	return &EngineLock{f: f}, nil
}

// Close releases the lock.
func (l *EngineLock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = fsutil.UnlockFile(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
