package errclass

import (
	"errors"
	"fmt"
)

// LockError is a stable, machine-readable error class.
type LockError struct {
	Code    string
	Message string
}

func (e *LockError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LockError) Is(target error) bool {
	t, ok := target.(*LockError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new LockError with the same Code but a specific message.
func (e *LockError) WithMessage(msg string) *LockError {
	return &LockError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new LockError with a formatted message.
func (e *LockError) WithMessagef(format string, args ...any) *LockError {
	return &LockError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the class code found in err's chain, or "" for
// unclassified errors.
func CodeOf(err error) string {
	var le *LockError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// Stable error classes.
var (
	ErrIDInvalid         = &LockError{Code: "E_ID_INVALID"}
	ErrKindInvalid       = &LockError{Code: "E_KIND_INVALID"}
	ErrLockNotFound      = &LockError{Code: "E_LOCK_NOT_FOUND"}
	ErrTimerActive       = &LockError{Code: "E_TIMER_ACTIVE"}
	ErrVerifyFailed      = &LockError{Code: "E_VERIFY_FAILED"}
	ErrConfirmRequired   = &LockError{Code: "E_CONFIRM_REQUIRED"}
	ErrSecretNotFound    = &LockError{Code: "E_SECRET_NOT_FOUND"}
	ErrSecretInvalid     = &LockError{Code: "E_SECRET_INVALID"}
	ErrStoreUnavailable  = &LockError{Code: "E_STORE_UNAVAILABLE"}
	ErrBlobCorrupt       = &LockError{Code: "E_BLOB_CORRUPT"}
	ErrAuditChainBroken  = &LockError{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrEngineClosed      = &LockError{Code: "E_ENGINE_CLOSED"}
	ErrConfigInvalid     = &LockError{Code: "E_CONFIG_INVALID"}
	ErrDirectoryNotFound = &LockError{Code: "E_DIRECTORY_NOT_FOUND"}
	ErrWorkspaceNotFound = &LockError{Code: "E_WORKSPACE_NOT_FOUND"}
	ErrFormatUnsupported = &LockError{Code: "E_FORMAT_UNSUPPORTED"}
)
