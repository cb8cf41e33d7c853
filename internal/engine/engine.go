// Package engine decides whether notes are locked right now and drives the
// time-based transitions: trust windows closing, timer budgets running out
// and the countdowns shown for both.
//
// All state lives in one Engine guarded by a mutex. Mutations update the
// in-memory registry first, which stays authoritative; the matching blob
// save is queued in mutation order and awaited by the caller.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lockguard/lockguard/internal/audit"
	"github.com/lockguard/lockguard/internal/clock"
	"github.com/lockguard/lockguard/internal/directory"
	"github.com/lockguard/lockguard/internal/registry"
	"github.com/lockguard/lockguard/internal/scheduler"
	"github.com/lockguard/lockguard/internal/secret"
	"github.com/lockguard/lockguard/internal/store"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/logging"
	"github.com/lockguard/lockguard/pkg/metrics"
	"github.com/lockguard/lockguard/pkg/model"
)

// Options wires the engine's collaborators. Store is required; everything
// else has a production default.
type Options struct {
	Store     store.KV
	Directory directory.Directory
	Clock     clock.PolicyClock
	Scheduler scheduler.Scheduler
	Verifier  secret.Verifier
	Audit     audit.Recorder
	Metrics   *metrics.Registry
	Logger    *logging.Logger

	TickInterval        time.Duration // timer policy tick, default 1s
	FlushInterval       time.Duration // elapsed-time persistence, default 15s
	CountdownInterval   time.Duration // UI countdown tick, default 1s
	DefaultTrustMinutes int
	DefaultTimerMinutes int
}

type timerAnchor struct {
	baseElapsedMs int64
	monoStart     time.Duration
}

// Engine is the lock policy engine.
type Engine struct {
	kv       store.KV
	writer   *store.Writer
	dir      *directory.Cached
	clk      clock.PolicyClock
	sched    scheduler.Scheduler
	verifier secret.Verifier
	audit    audit.Recorder
	metrics  *metrics.Registry
	log      *logging.Logger

	tickInterval      time.Duration
	flushInterval     time.Duration
	countdownInterval time.Duration
	trustMinutes      int
	timerMinutes      int

	mu             sync.Mutex
	reg            *registry.Registry
	settings       model.Settings
	sessionUnlocks map[model.LockKey]struct{}
	anchors        map[model.LockKey]timerAnchor
	trustTimers    map[model.LockKey]scheduler.Handle
	handles        map[scheduler.Handle]struct{}
	timerTick      scheduler.Handle
	countdownTick  scheduler.Handle
	flushedAt      time.Duration
	flushedOnce    bool
	subscribers    map[int]func(model.Event)
	nextSub        int
	loaded         bool
	closed         bool
}

// New builds an engine. Call Load before use.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errclass.ErrStoreUnavailable.WithMessage("engine requires a store")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Global()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.NewReal()
	}
	if opts.Verifier == nil {
		opts.Verifier = secret.NewHasher()
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 15 * time.Second
	}
	if opts.CountdownInterval <= 0 {
		opts.CountdownInterval = time.Second
	}

	log := opts.Logger.WithFields(map[string]any{"component": "engine"})
	e := &Engine{
		kv:                opts.Store,
		dir:               directory.NewCached(opts.Directory, log),
		clk:               opts.Clock,
		sched:             opts.Scheduler,
		verifier:          opts.Verifier,
		audit:             opts.Audit,
		metrics:           opts.Metrics,
		log:               log,
		tickInterval:      opts.TickInterval,
		flushInterval:     opts.FlushInterval,
		countdownInterval: opts.CountdownInterval,
		trustMinutes:      model.ClampMinutes(opts.DefaultTrustMinutes, model.DefaultTrustMinutes),
		timerMinutes:      model.ClampMinutes(opts.DefaultTimerMinutes, model.DefaultTimerMinutes),
		reg:               registry.New(),
		settings:          model.DefaultSettings(),
		sessionUnlocks:    make(map[model.LockKey]struct{}),
		anchors:           make(map[model.LockKey]timerAnchor),
		trustTimers:       make(map[model.LockKey]scheduler.Handle),
		handles:           make(map[scheduler.Handle]struct{}),
		subscribers:       make(map[int]func(model.Event)),
	}
	e.writer = store.NewWriter(opts.Store, store.WithErrorHandler(func(key string, err error) {
		e.metrics.RecordPersistError(key)
		e.log.ErrorErr("persist failed", err, map[string]any{"key": key})
	}))
	return e, nil
}

// Load reads both blobs, normalizes them and arms the schedulers. Calling
// Load again reloads from the store; session unlocks survive a reload
// and running timer progress is flushed first. A corrupt blob is logged
// and replaced by an empty state.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.loaded && !e.closed {
		pre := &effects{}
		e.flushTimersLocked(pre, true)
		e.mu.Unlock()
		if err := e.finish(ctx, pre); err != nil {
			return fmt.Errorf("flush before reload: %w", err)
		}
	} else {
		e.mu.Unlock()
	}

	locksData, _, err := e.kv.Load(ctx, model.BlobLocks)
	if err != nil {
		return fmt.Errorf("load locks: %w", err)
	}
	settingsData, _, err := e.kv.Load(ctx, model.BlobSettings)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	now := e.clk.Now()
	reg, res, err := registry.Decode(locksData, now)
	if err != nil {
		e.log.Warn("locks blob unreadable, starting empty", map[string]any{"error": err.Error()})
	}
	if res.Dropped > 0 || res.Duplicates > 0 {
		e.log.Warn("locks normalized on load", map[string]any{"dropped": res.Dropped, "duplicates": res.Duplicates})
	}

	settings := model.DefaultSettings()
	if len(settingsData) > 0 {
		if err := json.Unmarshal(settingsData, &settings); err != nil {
			e.log.Warn("settings blob unreadable, using defaults", map[string]any{"error": err.Error()})
			settings = model.DefaultSettings()
		}
	}
	settings.CommonSecrets = secret.NormalizeCommonSecrets(settings.CommonSecrets, now)

	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errclass.ErrEngineClosed
	}
	for key, h := range e.trustTimers {
		e.cancelLocked(h)
		delete(e.trustTimers, key)
	}
	e.reg = reg
	e.settings = settings
	e.anchors = make(map[model.LockKey]timerAnchor)
	e.flushedOnce = false
	e.loaded = true
	for _, rec := range e.reg.All() {
		live := e.reg.GetByKey(rec.Key())
		e.scheduleTrustLocked(live, fx)
		if live.Policy == model.PolicyTimer {
			e.anchorLocked(live)
		}
	}
	e.ensureTimerTickLocked()
	e.ensureCountdownTickLocked()
	e.metrics.SetLockCounts(e.reg.Counts())
	count := e.reg.Len()
	e.mu.Unlock()

	e.log.Info("engine loaded", map[string]any{"locks": count, "common_secrets": len(settings.CommonSecrets)})
	return e.finish(ctx, fx)
}

// Close cancels every scheduled callback, flushes timer progress and
// drains pending writes. It is safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	for h := range e.handles {
		e.sched.Cancel(h)
	}
	e.handles = make(map[scheduler.Handle]struct{})
	e.trustTimers = make(map[model.LockKey]scheduler.Handle)
	e.timerTick = 0
	e.countdownTick = 0
	if e.loaded {
		e.flushTimersLocked(fx, true)
	}
	e.closed = true
	e.mu.Unlock()

	err := e.finish(ctx, fx)
	e.writer.Close()
	e.log.Info("engine closed", nil)
	return err
}

// Reset deletes both blobs and forgets all in-memory state.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errclass.ErrEngineClosed
	}
	for h := range e.handles {
		e.sched.Cancel(h)
	}
	e.handles = make(map[scheduler.Handle]struct{})
	e.trustTimers = make(map[model.LockKey]scheduler.Handle)
	e.timerTick = 0
	e.countdownTick = 0
	e.reg = registry.New()
	e.settings = model.DefaultSettings()
	e.sessionUnlocks = make(map[model.LockKey]struct{})
	e.anchors = make(map[model.LockKey]timerAnchor)
	e.flushedOnce = false
	e.metrics.SetLockCounts(nil)
	locksCh := e.writer.EnqueueRemove(model.BlobLocks)
	settingsCh := e.writer.EnqueueRemove(model.BlobSettings)
	e.mu.Unlock()

	fx := &effects{saves: []<-chan error{locksCh, settingsCh}}
	e.log.Info("engine state reset", nil)
	return e.finish(ctx, fx)
}

// Locks returns a copy of every record.
func (e *Engine) Locks() []model.LockRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.All()
}

// Get returns a copy of the record for (kind, id).
func (e *Engine) Get(kind model.EntityKind, id string) (model.LockRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.reg.Get(kind, id)
	if rec == nil {
		return model.LockRecord{}, false
	}
	return *rec, true
}

// SessionUnlocked reports whether key is in the session unlock set.
func (e *Engine) SessionUnlocked(key model.LockKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessionUnlocks[key]
	return ok
}

// armLocked schedules fn through the engine's handle arena. fn runs
// without the engine lock held.
func (e *Engine) armLocked(d time.Duration, repeat bool, fn func(h scheduler.Handle)) scheduler.Handle {
	var h scheduler.Handle
	var hmu sync.Mutex
	hmu.Lock()
	wrapped := func() {
		hmu.Lock()
		id := h
		hmu.Unlock()
		fn(id)
	}
	if repeat {
		h = e.sched.Every(d, wrapped)
	} else {
		h = e.sched.AfterFunc(d, wrapped)
	}
	hmu.Unlock()
	e.handles[h] = struct{}{}
	return h
}

func (e *Engine) cancelLocked(h scheduler.Handle) {
	if h == 0 {
		return
	}
	e.sched.Cancel(h)
	delete(e.handles, h)
}

// liveLocked reports whether h is still owned by the engine.
func (e *Engine) liveLocked(h scheduler.Handle) bool {
	if e.closed {
		return false
	}
	_, ok := e.handles[h]
	return ok
}

func (e *Engine) now() time.Time {
	return e.clk.Now()
}
