package model

// EntityKind identifies what a lock protects. The string values are the
// persisted wire form ("type" in the locks blob).
type EntityKind string

const (
	KindDocument EntityKind = "doc"
	KindNotebook EntityKind = "notebook"
)

// ParseEntityKind coerces a persisted value. Anything other than "notebook"
// is a document.
func ParseEntityKind(s string) EntityKind {
	if s == string(KindNotebook) {
		return KindNotebook
	}
	return KindDocument
}

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	return k == KindDocument || k == KindNotebook
}

// SecretKind selects the verifier UI. The engine treats both as opaque strings.
type SecretKind string

const (
	SecretPassword SecretKind = "password"
	SecretPattern  SecretKind = "pattern"
)

// ParseSecretKind defaults to password.
func ParseSecretKind(s string) SecretKind {
	if s == string(SecretPattern) {
		return SecretPattern
	}
	return SecretPassword
}

// Policy is the unlock policy of a lock record, fixed at creation.
type Policy string

const (
	PolicyAlways Policy = "always"
	PolicyTrust  Policy = "trust"
	PolicyTimer  Policy = "timer"
)

// ParsePolicy defaults to always.
func ParsePolicy(s string) Policy {
	switch s {
	case string(PolicyTrust):
		return PolicyTrust
	case string(PolicyTimer):
		return PolicyTimer
	default:
		return PolicyAlways
	}
}

// Source is the UI surface asking for a lock decision.
type Source string

const (
	SourceDefault Source = ""
	SourceEditor  Source = "editor"
	SourceTree    Source = "tree"
	SourceSearch  Source = "search"
	SourceHistory Source = "history"
)

// Nearest reports whether the surface uses "nearest lock owner" precedence.
func (s Source) Nearest() bool {
	return s == SourceSearch || s == SourceHistory
}

// Reason explains which record produced a lock decision.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonDoc      Reason = "doc"
	ReasonAncestor Reason = "ancestor"
	ReasonNotebook Reason = "notebook"
)

// Persisted blob keys.
const (
	BlobLocks    = "locks"
	BlobSettings = "settings"
)

// Minute bounds shared by trust windows and timer budgets.
const (
	MinMinutes          = 1
	MaxMinutes          = 1440
	DefaultTrustMinutes = 30
	DefaultTimerMinutes = 60
)

// ClampMinutes forces m into [MinMinutes, MaxMinutes]; zero or negative
// values take the fallback.
func ClampMinutes(m, fallback int) int {
	if m == 0 {
		m = fallback
	}
	if m < MinMinutes {
		return MinMinutes
	}
	if m > MaxMinutes {
		return MaxMinutes
	}
	return m
}
