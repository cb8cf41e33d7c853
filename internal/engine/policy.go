package engine

import (
	"context"
	"time"

	"github.com/lockguard/lockguard/internal/scheduler"
	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/model"
)

// isLockedLocked evaluates rec at the current instant and applies any
// transition the instant implies: an exhausted timer is deleted and a
// lapsed trust grant is reset, whether or not its timer fired.
func (e *Engine) isLockedLocked(rec *model.LockRecord, fx *effects) bool {
	if rec == nil {
		return false
	}
	switch rec.Policy {
	case model.PolicyTimer:
		if e.timerRemainingLocked(rec) <= 0 {
			e.expireTimerLocked(rec.Key(), fx)
			return false
		}
		return true
	case model.PolicyTrust:
		if rec.Trusted(e.now()) {
			return false
		}
		if rec.TrustUntil != 0 {
			e.expireTrustLocked(rec, fx)
		}
		return true
	default:
		_, unlocked := e.sessionUnlocks[rec.Key()]
		return !unlocked
	}
}

// peekLockedLocked is isLockedLocked without side effects.
func (e *Engine) peekLockedLocked(rec *model.LockRecord) bool {
	if rec == nil {
		return false
	}
	switch rec.Policy {
	case model.PolicyTimer:
		return e.timerRemainingLocked(rec) > 0
	case model.PolicyTrust:
		return !rec.Trusted(e.now())
	default:
		_, unlocked := e.sessionUnlocks[rec.Key()]
		return !unlocked
	}
}

// IsLockedNow reports whether the record for (kind, id) is locked at this
// instant. An entity without a record is unlocked.
func (e *Engine) IsLockedNow(ctx context.Context, kind model.EntityKind, id string) bool {
	id = entityid.Normalize(id)
	fx := &effects{}
	e.mu.Lock()
	locked := e.isLockedLocked(e.reg.Get(kind, id), fx)
	e.mu.Unlock()
	_ = e.finish(ctx, fx)
	return locked
}

// Unlock verifies secret against the record for (kind, id) and applies the
// record's unlock policy. It returns false when verification fails or the
// policy refuses, and true when the entity ends up unlocked, including
// when the record no longer exists.
func (e *Engine) Unlock(ctx context.Context, kind model.EntityKind, id, secret string) bool {
	return e.unlock(ctx, kind, id, func(rec *model.LockRecord) bool {
		return e.verifier.Verify(secret, rec.Salt, rec.Hash)
	})
}

// GrantUnlock applies the unlock policy without verifying a secret, for
// hosts that ran verification themselves.
func (e *Engine) GrantUnlock(ctx context.Context, kind model.EntityKind, id string) bool {
	return e.unlock(ctx, kind, id, func(*model.LockRecord) bool { return true })
}

func (e *Engine) unlock(ctx context.Context, kind model.EntityKind, id string, verify func(*model.LockRecord) bool) bool {
	id = entityid.Normalize(id)
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	rec := e.reg.Get(kind, id)
	if rec == nil {
		e.mu.Unlock()
		return true
	}
	if !verify(rec) {
		e.mu.Unlock()
		e.log.Info("unlock rejected", map[string]any{"key": string(rec.Key())})
		return false
	}
	ok := e.grantLocked(rec, fx)
	e.mu.Unlock()
	_ = e.finish(ctx, fx)
	return ok
}

func (e *Engine) grantLocked(rec *model.LockRecord, fx *effects) bool {
	key := rec.Key()
	switch rec.Policy {
	case model.PolicyTimer:
		if e.timerRemainingLocked(rec) > 0 {
			return false
		}
		e.expireTimerLocked(key, fx)
		return true
	case model.PolicyTrust:
		now := e.now()
		rec.TrustUntil = now.Add(rec.TrustWindow()).UnixMilli()
		rec.UpdatedAt = now.UnixMilli()
		e.saveLocksLocked(fx)
		e.scheduleTrustLocked(rec, fx)
	default:
		if _, ok := e.sessionUnlocks[key]; ok {
			return true
		}
		e.sessionUnlocks[key] = struct{}{}
	}
	e.metrics.RecordUnlock(rec.Policy)
	fx.emit(model.EventUnlocked, key, 0)
	fx.record(model.EventTypeUnlock, key, map[string]any{"policy": string(rec.Policy)})
	e.log.Info("lock opened", map[string]any{"key": string(key), "policy": string(rec.Policy)})
	e.ensureCountdownTickLocked()
	return true
}

// Relock closes an open Always or Trust record. Timer records cannot be
// re-locked. It reports whether anything changed.
func (e *Engine) Relock(ctx context.Context, kind model.EntityKind, id string) bool {
	id = entityid.Normalize(id)
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	changed := e.relockLocked(e.reg.Get(kind, id), fx)
	e.mu.Unlock()
	_ = e.finish(ctx, fx)
	return changed
}

// RelockAll closes every open Always and Trust record and returns how
// many were re-locked.
func (e *Engine) RelockAll(ctx context.Context) int {
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0
	}
	n := 0
	for _, key := range e.reg.Keys() {
		if e.relockLocked(e.reg.GetByKey(key), fx) {
			n++
		}
	}
	e.mu.Unlock()
	_ = e.finish(ctx, fx)
	return n
}

func (e *Engine) relockLocked(rec *model.LockRecord, fx *effects) bool {
	if rec == nil {
		return false
	}
	key := rec.Key()
	switch rec.Policy {
	case model.PolicyTimer:
		return false
	case model.PolicyTrust:
		if rec.TrustUntil == 0 {
			return false
		}
		rec.TrustUntil = 0
		e.cancelTrustLocked(key)
		e.saveLocksLocked(fx)
	default:
		if _, ok := e.sessionUnlocks[key]; !ok {
			return false
		}
		delete(e.sessionUnlocks, key)
	}
	e.metrics.RecordRelock()
	fx.emit(model.EventRelocked, key, 0)
	fx.record(model.EventTypeRelock, key, map[string]any{"policy": string(rec.Policy)})
	e.log.Info("lock closed", map[string]any{"key": string(key)})
	return true
}

// TrustRemaining returns how long the trust grant on (kind, id) stays
// open, or zero when the record is not trusted.
func (e *Engine) TrustRemaining(kind model.EntityKind, id string) time.Duration {
	id = entityid.Normalize(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.reg.Get(kind, id)
	if rec == nil || rec.Policy != model.PolicyTrust {
		return 0
	}
	return trustRemaining(rec, e.now())
}

func trustRemaining(rec *model.LockRecord, now time.Time) time.Duration {
	if !rec.Trusted(now) {
		return 0
	}
	return time.UnixMilli(rec.TrustUntil).Sub(now)
}

// scheduleTrustLocked arms the expiry timer for an open trust grant. A
// grant that already lapsed is expired on the spot.
func (e *Engine) scheduleTrustLocked(rec *model.LockRecord, fx *effects) {
	key := rec.Key()
	e.cancelTrustLocked(key)
	if rec.Policy != model.PolicyTrust || rec.TrustUntil == 0 {
		return
	}
	delay := time.UnixMilli(rec.TrustUntil).Sub(e.now())
	if delay <= 0 {
		e.expireTrustLocked(rec, fx)
		return
	}
	e.trustTimers[key] = e.armLocked(delay, false, func(h scheduler.Handle) {
		e.onTrustTimer(key, h)
	})
}

func (e *Engine) cancelTrustLocked(key model.LockKey) {
	if h, ok := e.trustTimers[key]; ok {
		e.cancelLocked(h)
		delete(e.trustTimers, key)
	}
}

func (e *Engine) onTrustTimer(key model.LockKey, h scheduler.Handle) {
	fx := &effects{}
	e.mu.Lock()
	if !e.liveLocked(h) || e.trustTimers[key] != h {
		e.mu.Unlock()
		return
	}
	delete(e.handles, h)
	delete(e.trustTimers, key)
	rec := e.reg.GetByKey(key)
	if rec != nil && rec.Policy == model.PolicyTrust && rec.TrustUntil != 0 {
		if rec.Trusted(e.now()) {
			// The wall clock moved back while the timer was armed.
			e.scheduleTrustLocked(rec, fx)
		} else {
			e.expireTrustLocked(rec, fx)
		}
	}
	e.mu.Unlock()
	_ = e.finish(context.Background(), fx)
}

func (e *Engine) expireTrustLocked(rec *model.LockRecord, fx *effects) {
	key := rec.Key()
	e.cancelTrustLocked(key)
	rec.TrustUntil = 0
	e.saveLocksLocked(fx)
	e.metrics.RecordExpiry(model.PolicyTrust)
	fx.emit(model.EventTrustExpired, key, 0)
	fx.record(model.EventTypeTrustExpire, key, nil)
	e.log.Info("trust expired", map[string]any{"key": string(key)})
}
