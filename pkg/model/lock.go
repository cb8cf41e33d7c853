package model

import (
	"strings"
	"time"
)

// LockKey is the composite "kind:id" key used by the session unlock set,
// the timer anchors and the trust timers.
type LockKey string

// MakeKey builds the composite key for (kind, id).
func MakeKey(kind EntityKind, id string) LockKey {
	return LockKey(string(kind) + ":" + id)
}

// Split returns the kind and id of a composite key. ok is false when the key
// is malformed.
func (k LockKey) Split() (kind EntityKind, id string, ok bool) {
	rawKind, rawID, found := strings.Cut(string(k), ":")
	if !found || rawKind == "" || rawID == "" {
		return "", "", false
	}
	kind = EntityKind(rawKind)
	if !kind.Valid() {
		return "", "", false
	}
	return kind, rawID, true
}

// LockRecord is one locked entity, stored in the "locks" blob.
// Timestamps are wall-clock milliseconds since the Unix epoch.
type LockRecord struct {
	ID             string     `json:"id"`
	Kind           EntityKind `json:"type"`
	Title          string     `json:"title"`
	SecretKind     SecretKind `json:"lockType"`
	Hint           string     `json:"hint"`
	Salt           string     `json:"salt"`
	Hash           string     `json:"hash"`
	CommonSecretID string     `json:"commonSecretId,omitempty"`
	Policy         Policy     `json:"policy"`
	TrustMinutes   int        `json:"trustMinutes"`
	TrustUntil     int64      `json:"trustUntil"`
	TimerMinutes   int        `json:"timerMinutes"`
	TimerElapsedMs int64      `json:"timerElapsedMs"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

// Key returns the composite key of the record.
func (r *LockRecord) Key() LockKey {
	return MakeKey(r.Kind, r.ID)
}

// DisplayTitle falls back to the id when no title was captured.
func (r *LockRecord) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

// TrustWindow is the length of one trust grant.
func (r *LockRecord) TrustWindow() time.Duration {
	return time.Duration(ClampMinutes(r.TrustMinutes, DefaultTrustMinutes)) * time.Minute
}

// TimerTotal is the full budget of a timer lock.
func (r *LockRecord) TimerTotal() time.Duration {
	return time.Duration(ClampMinutes(r.TimerMinutes, DefaultTimerMinutes)) * time.Minute
}

// TimerTotalMs is TimerTotal in milliseconds.
func (r *LockRecord) TimerTotalMs() int64 {
	return r.TimerTotal().Milliseconds()
}

// Trusted reports whether a trust grant is still open at now.
func (r *LockRecord) Trusted(now time.Time) bool {
	return r.TrustUntil > 0 && r.TrustUntil > now.UnixMilli()
}

// LockState is the effective lock decision for a document.
type LockState struct {
	Locked        bool        `json:"locked"`
	Lock          *LockRecord `json:"lock,omitempty"`
	Reason        Reason      `json:"reason"`
	NotebookID    string      `json:"notebook_id,omitempty"`
	NotebookTitle string      `json:"notebook_title,omitempty"`
	AncestorID    string      `json:"ancestor_id,omitempty"`
	AncestorTitle string      `json:"ancestor_title,omitempty"`
	DocLock       *LockRecord `json:"doc_lock,omitempty"`
	NotebookLock  *LockRecord `json:"notebook_lock,omitempty"`
}

// ResolveOptions carries the context hints of a lock-state query.
type ResolveOptions struct {
	Source         Source
	NotebookID     string // optional hint, skips the notebook lookup when valid
	PreferNotebook bool   // tree precedence outside the tree surface
}

// LockRequest describes a new lock. Exactly one of Secret or
// CommonSecretID supplies the secret material.
type LockRequest struct {
	Kind           EntityKind
	ID             string
	Title          string
	SecretKind     SecretKind
	Secret         string
	CommonSecretID string
	Hint           string
	Policy         Policy
	TrustMinutes   int
	TimerMinutes   int
	// Confirmed must be set for timer locks, which cannot be removed
	// before the budget runs out.
	Confirmed bool
}
