package lockguard

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lockguard/lockguard/internal/audit"
	"github.com/lockguard/lockguard/internal/clock"
	"github.com/lockguard/lockguard/internal/directory"
	"github.com/lockguard/lockguard/internal/engine"
	"github.com/lockguard/lockguard/internal/scheduler"
	"github.com/lockguard/lockguard/internal/store"
	"github.com/lockguard/lockguard/internal/workspace"
	"github.com/lockguard/lockguard/pkg/config"
	"github.com/lockguard/lockguard/pkg/logging"
	"github.com/lockguard/lockguard/pkg/metrics"
	"github.com/lockguard/lockguard/pkg/model"
	"github.com/lockguard/lockguard/pkg/webhook"
)

// Client is a loaded lock engine bound to a workspace. The engine's
// operations are available directly on the Client.
type Client struct {
	*engine.Engine

	ws      *workspace.Workspace
	held    *workspace.EngineLock
	cfg     *config.Config
	kv      store.KV
	closers []io.Closer
	audit   *audit.FileAppender
	metrics *metrics.Registry
	log     *logging.Logger

	hooks       *webhook.Sender
	unsubscribe func()
}

// Options overrides parts of the configured stack. Zero fields take the
// workspace configuration.
type Options struct {
	Config    *config.Config
	Logger    *logging.Logger
	Clock     clock.PolicyClock
	Scheduler scheduler.Scheduler
	Directory directory.Directory
}

// Init creates a workspace at root, or reuses the one already there, and
// opens it.
func Init(ctx context.Context, root string, opts Options) (*Client, error) {
	if _, err := workspace.Init(root); err != nil {
		return nil, fmt.Errorf("lockguard init: %w", err)
	}
	return Open(ctx, root, opts)
}

// Open finds the workspace at or above path and loads its engine. Only
// one Client may hold a workspace at a time; a second Open fails with
// E_STORE_UNAVAILABLE until the first is closed.
func Open(ctx context.Context, path string, opts Options) (*Client, error) {
	ws, err := workspace.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("lockguard open: %w", err)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg, err = config.Load(ws.Root)
		if err != nil {
			return nil, fmt.Errorf("lockguard open: %w", err)
		}
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	held, err := ws.LockEngine()
	if err != nil {
		return nil, fmt.Errorf("lockguard open: %w", err)
	}

	c := &Client{ws: ws, held: held, cfg: cfg, log: log, metrics: metrics.New(cfg.Metrics.Enabled)}
	if err := c.wire(ctx, opts); err != nil {
		_ = c.closeResources()
		return nil, fmt.Errorf("lockguard open: %w", err)
	}
	return c, nil
}

func (c *Client) wire(ctx context.Context, opts Options) error {
	kv, err := OpenStore(c.ws.Root, c.cfg.Store)
	if err != nil {
		return err
	}
	c.kv = kv

	dir := opts.Directory
	if dir == nil {
		d, closer, err := OpenDirectory(c.ws.Root, c.cfg.Directory)
		if err != nil {
			return err
		}
		dir = d
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
	}

	var rec audit.Recorder = audit.Nop{}
	if c.cfg.Audit.Enabled {
		c.audit = audit.NewFileAppender(config.Resolve(c.ws.Root, c.cfg.Audit.Path))
		if opts.Clock != nil {
			c.audit.SetClock(opts.Clock.Now)
		}
		rec = c.audit
	}

	eng, err := engine.New(engine.Options{
		Store:               kv,
		Directory:           dir,
		Clock:               opts.Clock,
		Scheduler:           opts.Scheduler,
		Audit:               rec,
		Metrics:             c.metrics,
		Logger:              c.log,
		TickInterval:        c.cfg.Engine.Tick(),
		FlushInterval:       c.cfg.Engine.Flush(),
		CountdownInterval:   c.cfg.Engine.Countdown(),
		DefaultTrustMinutes: c.cfg.Engine.TrustMinutes(),
		DefaultTimerMinutes: c.cfg.Engine.TimerMinutes(),
	})
	if err != nil {
		return err
	}
	if err := eng.Load(ctx); err != nil {
		_ = eng.Close(ctx)
		return err
	}
	c.Engine = eng

	if len(c.cfg.Webhooks.Hooks) > 0 {
		c.hooks = webhook.New(c.cfg.Webhooks, c.log)
		c.unsubscribe = eng.Subscribe(func(ev model.Event) {
			c.hooks.Notify(c.ws.ID, ev)
		})
	}
	return nil
}

// OpenStore builds the KV backend described by cfg.
func OpenStore(root string, cfg config.StoreConfig) (store.KV, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendSQLite:
		path := cfg.Path
		if path == "" || path == "store" {
			path = "store.db"
		}
		return store.OpenSQLite(config.Resolve(root, path))
	default:
		return store.NewFile(config.Resolve(root, cfg.Path))
	}
}

// OpenDirectory builds the entity directory described by cfg. The closer
// is nil when there is nothing to release.
func OpenDirectory(root string, cfg config.DirectoryConfig) (directory.Directory, io.Closer, error) {
	if cfg.Backend != config.BackendSQLite {
		return directory.None{}, nil, nil
	}
	blocks, err := directory.OpenBlocks(config.Resolve(root, cfg.Path))
	if err != nil {
		return nil, nil, err
	}
	return blocks, blocks, nil
}

// Root returns the workspace root.
func (c *Client) Root() string { return c.ws.Root }

// WorkspaceID returns the id written at init.
func (c *Client) WorkspaceID() string { return c.ws.ID }

// Config returns the configuration the client was opened with.
func (c *Client) Config() *config.Config { return c.cfg }

// Metrics returns the client's metrics registry.
func (c *Client) Metrics() *metrics.Registry { return c.metrics }

// AuditRecords returns the audit log, oldest first. It is empty when
// auditing is disabled.
func (c *Client) AuditRecords() ([]model.AuditRecord, error) {
	if c.audit == nil {
		return nil, nil
	}
	return c.audit.Records()
}

// VerifyAudit checks the audit hash chain and returns the number of
// records verified.
func (c *Client) VerifyAudit() (int, error) {
	if c.audit == nil {
		return 0, nil
	}
	return c.audit.Verify()
}

// Close flushes timer progress, drains pending writes and releases the
// store and directory.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.Engine != nil {
		if err := c.Engine.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.hooks != nil {
		_ = c.hooks.Close()
		c.hooks = nil
	}
	if err := c.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) closeResources() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.kv != nil {
		if err := c.kv.Close(); err != nil {
			errs = append(errs, err)
		}
		c.kv = nil
	}
	if c.held != nil {
		if err := c.held.Close(); err != nil {
			errs = append(errs, err)
		}
		c.held = nil
	}
	return errors.Join(errs...)
}
