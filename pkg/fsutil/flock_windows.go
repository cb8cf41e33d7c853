//go:build windows

package fsutil

import "os"

// Advisory locks are no-ops on Windows; callers keep their in-process
// serialization.
func LockFile(_ *os.File) error            { return nil }
func TryLockFile(_ *os.File) (bool, error) { return true, nil }
func UnlockFile(_ *os.File) error          { return nil }
