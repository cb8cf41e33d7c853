package engine

import (
	"context"
	"time"

	"github.com/lockguard/lockguard/internal/scheduler"
	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/model"
)

// anchorLocked starts accruing elapsed time for rec from its banked value.
func (e *Engine) anchorLocked(rec *model.LockRecord) timerAnchor {
	a := timerAnchor{baseElapsedMs: rec.TimerElapsedMs, monoStart: e.clk.Monotonic()}
	e.anchors[rec.Key()] = a
	return a
}

// timerElapsedLocked is the banked elapsed time plus the monotonic time
// since the anchor, clamped to the budget.
func (e *Engine) timerElapsedLocked(rec *model.LockRecord) int64 {
	a, ok := e.anchors[rec.Key()]
	if !ok {
		a = timerAnchor{baseElapsedMs: rec.TimerElapsedMs, monoStart: e.clk.Monotonic()}
		if e.reg.GetByKey(rec.Key()) == rec {
			e.anchors[rec.Key()] = a
		}
	}
	elapsed := a.baseElapsedMs + (e.clk.Monotonic() - a.monoStart).Milliseconds()
	if elapsed < a.baseElapsedMs {
		elapsed = a.baseElapsedMs
	}
	if total := rec.TimerTotalMs(); elapsed > total {
		elapsed = total
	}
	return elapsed
}

func (e *Engine) timerRemainingLocked(rec *model.LockRecord) time.Duration {
	ms := rec.TimerTotalMs() - e.timerElapsedLocked(rec)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// rebaseLocked banks the accrued time into the record and moves the anchor
// forward by exactly the banked amount, so no sub-millisecond remainder is
// lost. It reports whether the record changed.
func (e *Engine) rebaseLocked(rec *model.LockRecord) bool {
	key := rec.Key()
	a, ok := e.anchors[key]
	if !ok {
		e.anchorLocked(rec)
		return false
	}
	elapsed := e.timerElapsedLocked(rec)
	banked := elapsed - a.baseElapsedMs
	e.anchors[key] = timerAnchor{
		baseElapsedMs: elapsed,
		monoStart:     a.monoStart + time.Duration(banked)*time.Millisecond,
	}
	if elapsed == rec.TimerElapsedMs {
		return false
	}
	rec.TimerElapsedMs = elapsed
	return true
}

// TimerRemaining returns the unused budget of the timer record for
// (kind, id), or zero when there is none.
func (e *Engine) TimerRemaining(kind model.EntityKind, id string) time.Duration {
	id = entityid.Normalize(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.reg.Get(kind, id)
	if rec == nil || rec.Policy != model.PolicyTimer {
		return 0
	}
	return e.timerRemainingLocked(rec)
}

// TimerElapsed returns the consumed budget of the timer record for
// (kind, id), including time not yet flushed.
func (e *Engine) TimerElapsed(kind model.EntityKind, id string) time.Duration {
	id = entityid.Normalize(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.reg.Get(kind, id)
	if rec == nil || rec.Policy != model.PolicyTimer {
		return 0
	}
	return time.Duration(e.timerElapsedLocked(rec)) * time.Millisecond
}

// Tick runs one timer policy evaluation. The engine's own scheduler calls
// it every tick interval; hosts without a scheduler may call it directly.
func (e *Engine) Tick(ctx context.Context) {
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.tickLocked(fx)
	e.mu.Unlock()
	_ = e.finish(ctx, fx)
}

// FlushTimers banks elapsed time of every timer record and persists it.
func (e *Engine) FlushTimers(ctx context.Context) error {
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.flushTimersLocked(fx, true)
	e.mu.Unlock()
	return e.finish(ctx, fx)
}

func (e *Engine) tickLocked(fx *effects) {
	timers := e.reg.WithPolicy(model.PolicyTimer)
	if len(timers) == 0 {
		e.cancelLocked(e.timerTick)
		e.timerTick = 0
		return
	}
	e.flushTimersLocked(fx, false)
	for _, rec := range timers {
		remaining := e.timerRemainingLocked(rec)
		if remaining <= 0 {
			e.expireTimerLocked(rec.Key(), fx)
			continue
		}
		fx.emit(model.EventTimerTick, rec.Key(), remaining)
	}
}

// flushTimersLocked persists timer progress when the flush interval has
// passed since the last flush, or unconditionally when force is set.
func (e *Engine) flushTimersLocked(fx *effects, force bool) {
	mono := e.clk.Monotonic()
	if !force && e.flushedOnce && mono-e.flushedAt < e.flushInterval {
		return
	}
	e.flushedAt = mono
	e.flushedOnce = true

	changed := false
	for _, rec := range e.reg.WithPolicy(model.PolicyTimer) {
		if e.rebaseLocked(rec) {
			changed = true
		}
	}
	if !changed {
		return
	}
	e.saveLocksLocked(fx)
	e.metrics.RecordTimerFlush()
	e.log.Debug("timer progress flushed", nil)
}

func (e *Engine) ensureTimerTickLocked() {
	if e.closed || e.timerTick != 0 || len(e.reg.WithPolicy(model.PolicyTimer)) == 0 {
		return
	}
	e.timerTick = e.armLocked(e.tickInterval, true, e.onTimerTick)
}

func (e *Engine) onTimerTick(h scheduler.Handle) {
	fx := &effects{}
	e.mu.Lock()
	if !e.liveLocked(h) || e.timerTick != h {
		e.mu.Unlock()
		return
	}
	e.tickLocked(fx)
	e.mu.Unlock()
	_ = e.finish(context.Background(), fx)
}

// expireTimerLocked deletes an exhausted timer record. A record that is
// already gone is a no-op.
func (e *Engine) expireTimerLocked(key model.LockKey, fx *effects) {
	rec := e.reg.GetByKey(key)
	if rec == nil {
		return
	}
	e.reg.Remove(rec.Kind, rec.ID)
	delete(e.sessionUnlocks, key)
	delete(e.anchors, key)
	e.saveLocksLocked(fx)
	e.metrics.RecordExpiry(model.PolicyTimer)
	fx.emit(model.EventTimerExpired, key, 0)
	fx.record(model.EventTypeTimerExpire, key, map[string]any{"timer_minutes": rec.TimerMinutes})
	e.log.Info("timer expired", map[string]any{"key": string(key)})
}

// countdownActiveLocked reports whether any badge needs redrawing.
func (e *Engine) countdownActiveLocked() bool {
	if e.closed || !e.settings.TreeCountdownEnabled || len(e.subscribers) == 0 {
		return false
	}
	if len(e.reg.WithPolicy(model.PolicyTimer)) > 0 {
		return true
	}
	now := e.now()
	for _, rec := range e.reg.WithPolicy(model.PolicyTrust) {
		if rec.Trusted(now) {
			return true
		}
	}
	return false
}

// ensureCountdownTickLocked starts or stops the badge tick to match
// countdownActiveLocked.
func (e *Engine) ensureCountdownTickLocked() {
	active := e.countdownActiveLocked()
	switch {
	case active && e.countdownTick == 0:
		e.countdownTick = e.armLocked(e.countdownInterval, true, e.onCountdownTick)
	case !active && e.countdownTick != 0:
		e.cancelLocked(e.countdownTick)
		e.countdownTick = 0
	}
}

func (e *Engine) onCountdownTick(h scheduler.Handle) {
	fx := &effects{}
	e.mu.Lock()
	if !e.liveLocked(h) || e.countdownTick != h {
		e.mu.Unlock()
		return
	}
	for _, c := range e.countdownsLocked() {
		fx.emit(model.EventCountdownTick, c.Key, c.Remaining)
	}
	e.ensureCountdownTickLocked()
	e.mu.Unlock()
	_ = e.finish(context.Background(), fx)
}
