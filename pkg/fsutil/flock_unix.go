//go:build !windows

package fsutil

import (
	"errors"
	"os"
	"syscall"
)

// LockFile takes an exclusive advisory lock on f, waiting for it.
func LockFile(f *os.File) error { return syscall.Flock(int(f.Fd()), syscall.LOCK_EX) }

// TryLockFile takes an exclusive advisory lock on f without waiting. It
// reports false when another open file holds the lock.
func TryLockFile(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return err == nil, err
}

// UnlockFile releases a lock taken by LockFile or TryLockFile.
func UnlockFile(f *os.File) error { return syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }
