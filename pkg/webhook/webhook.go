// Package webhook posts lock events to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lockguard/lockguard/pkg/logging"
	"github.com/lockguard/lockguard/pkg/model"
)

// Payload is the JSON body of one delivery.
type Payload struct {
	Event       model.EventType  `json:"event"`
	Timestamp   string           `json:"timestamp"`
	WorkspaceID string           `json:"workspace_id,omitempty"`
	Kind        model.EntityKind `json:"kind,omitempty"`
	ID          string           `json:"id,omitempty"`
	RemainingMs int64            `json:"remaining_ms,omitempty"`
}

// Hook is one endpoint. Events lists the event types it receives; "*"
// matches every state change but not the per-second tick events, which
// must be listed explicitly.
type Hook struct {
	URL     string            `yaml:"url"`
	Secret  string            `yaml:"secret,omitempty"`
	Events  []model.EventType `yaml:"events"`
	Enabled bool              `yaml:"enabled"`
}

// Config configures delivery.
type Config struct {
	Hooks      []Hook        `yaml:"hooks"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	QueueSize  int           `yaml:"queue_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

const (
	defaultQueueSize = 100
	defaultTimeout   = 10 * time.Second
)

type job struct {
	payload Payload
	hook    Hook
}

// Sender delivers payloads from a background worker so the caller never
// blocks on the network.
type Sender struct {
	cfg    Config
	http   *http.Client
	log    *logging.Logger
	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts a sender. A nil logger logs nowhere.
func New(cfg Config, log *logging.Logger) *Sender {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sender{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Notify queues ev for every matching hook. A full queue drops the event.
func (s *Sender) Notify(workspaceID string, ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	p := Payload{
		Event:       ev.Type,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		WorkspaceID: workspaceID,
		RemainingMs: ev.Remaining.Milliseconds(),
	}
	if kind, id, ok := ev.Key.Split(); ok {
		p.Kind, p.ID = kind, id
	}
	for _, hook := range s.cfg.Hooks {
		if !hook.Enabled || !matches(hook, ev.Type) {
			continue
		}
		select {
		case s.queue <- job{payload: p, hook: hook}:
		default:
			s.log.Warn("webhook queue full, dropping event", map[string]any{"event": string(ev.Type), "url": hook.URL})
		}
	}
}

// Close stops accepting events, delivers what is queued and waits.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
	s.cancel()
	return nil
}

func (s *Sender) worker() {
	defer s.wg.Done()
	for j := range s.queue {
		if err := s.deliver(j); err != nil {
			s.log.ErrorErr("webhook delivery failed", err, map[string]any{"event": string(j.payload.Event), "url": j.hook.URL})
		}
	}
}

func (s *Sender) deliver(j job) error {
	body, err := json.Marshal(j.payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return s.ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}
		req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, j.hook.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "lockguard-webhook/1")
		req.Header.Set("X-Lockguard-Event", string(j.payload.Event))
		if j.hook.Secret != "" {
			req.Header.Set("X-Lockguard-Signature", Sign(body, j.hook.Secret))
		}

		resp, err := s.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return lastErr
}

// Sign returns the HMAC-SHA256 signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matches(hook Hook, t model.EventType) bool {
	tick := t == model.EventCountdownTick || t == model.EventTimerTick
	for _, e := range hook.Events {
		if e == t || (e == "*" && !tick) {
			return true
		}
	}
	return false
}
