package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventTypeLockCreate   AuditEventType = "lock_create"
	EventTypeLockRemove   AuditEventType = "lock_remove"
	EventTypeUnlock       AuditEventType = "unlock"
	EventTypeRelock       AuditEventType = "relock"
	EventTypeTrustExpire  AuditEventType = "trust_expire"
	EventTypeTimerExpire  AuditEventType = "timer_expire"
	EventTypeSecretCreate AuditEventType = "secret_create"
	EventTypeSecretUpdate AuditEventType = "secret_update"
	EventTypeSecretRemove AuditEventType = "secret_remove"
)

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// AuditRecord is a single line in the audit log (JSONL format).
type AuditRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	LockKey   LockKey        `json:"lock_key,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  HashValue      `json:"prev_hash"`
	// RecordHash covers every other field; it is excluded from its own input.
	RecordHash HashValue `json:"record_hash"`
}
