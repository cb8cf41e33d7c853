package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lockguard/lockguard/pkg/model"
)

type auditEntry struct {
	eventType model.AuditEventType
	key       model.LockKey
	details   map[string]any
}

// effects collects what a mutation produced while the engine lock was
// held. They are applied by finish once the lock is released.
type effects struct {
	events []model.Event
	audits []auditEntry
	saves  []<-chan error
}

func (fx *effects) emit(t model.EventType, key model.LockKey, remaining time.Duration) {
	fx.events = append(fx.events, model.Event{Type: t, Key: key, Remaining: remaining})
}

func (fx *effects) record(t model.AuditEventType, key model.LockKey, details map[string]any) {
	fx.audits = append(fx.audits, auditEntry{eventType: t, key: key, details: details})
}

// finish writes audit entries, waits for queued saves and notifies
// subscribers. It returns the first save error.
func (e *Engine) finish(ctx context.Context, fx *effects) error {
	for _, a := range fx.audits {
		if err := e.audit.Record(a.eventType, a.key, a.details); err != nil {
			e.log.Warn("audit append failed", map[string]any{"event": string(a.eventType), "error": err.Error()})
		}
	}

	var firstErr error
	for _, ch := range fx.saves {
		select {
		case err := <-ch:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}

	if len(fx.events) > 0 {
		e.mu.Lock()
		subs := make([]func(model.Event), 0, len(e.subscribers))
		for _, fn := range e.subscribers {
			subs = append(subs, fn)
		}
		e.mu.Unlock()
		for _, ev := range fx.events {
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
	return firstErr
}

// Subscribe registers fn for state change and countdown events. Events
// are delivered without the engine lock held, so fn may call back into
// the engine. The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(model.Event)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subscribers[id] = fn
	e.ensureCountdownTickLocked()
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.ensureCountdownTickLocked()
		e.mu.Unlock()
	}
}

// saveLocksLocked queues the current registry. Queuing under the lock
// keeps blob writes in mutation order.
func (e *Engine) saveLocksLocked(fx *effects) {
	e.metrics.SetLockCounts(e.reg.Counts())
	if e.closed {
		return
	}
	data, err := e.reg.Encode()
	if err != nil {
		e.log.ErrorErr("encode locks", err)
		return
	}
	fx.saves = append(fx.saves, e.writer.Enqueue(model.BlobLocks, data))
}

func (e *Engine) saveSettingsLocked(fx *effects) {
	if e.closed {
		return
	}
	data, err := json.Marshal(e.settings)
	if err != nil {
		e.log.ErrorErr("encode settings", err)
		return
	}
	fx.saves = append(fx.saves, e.writer.Enqueue(model.BlobSettings, data))
}
