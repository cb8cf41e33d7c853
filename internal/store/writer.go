package store

import (
	"context"
	"sync"

	"github.com/lockguard/lockguard/pkg/errclass"
)

type writeOp int

const (
	opSave writeOp = iota
	opRemove
)

type pendingWrite struct {
	op      writeOp
	data    []byte
	waiters []chan error
}

// Writer serializes writes through a single goroutine. Writes to a key
// that is still queued coalesce: the newest payload wins and every caller
// waiting on the key receives the result of the one write that lands.
type Writer struct {
	kv      KV
	onError func(key string, err error)

	mu      sync.Mutex
	queue   []string
	pending map[string]*pendingWrite
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithErrorHandler is called from the writer goroutine for every failed write.
func WithErrorHandler(fn func(key string, err error)) WriterOption {
	return func(w *Writer) { w.onError = fn }
}

// NewWriter starts the writer goroutine over kv.
func NewWriter(kv KV, opts ...WriterOption) *Writer {
	w := &Writer{
		kv:      kv,
		pending: make(map[string]*pendingWrite),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	go w.loop()
	return w
}

// Save queues data for key and waits until it is durable or ctx ends.
// The write still lands if ctx ends first.
func (w *Writer) Save(ctx context.Context, key string, data []byte) error {
	return w.wait(ctx, w.submit(key, opSave, data))
}

// Remove queues the deletion of key and waits for it.
func (w *Writer) Remove(ctx context.Context, key string) error {
	return w.wait(ctx, w.submit(key, opRemove, nil))
}

// Enqueue queues data for key without waiting. The returned channel
// receives the write result.
func (w *Writer) Enqueue(key string, data []byte) <-chan error {
	return w.submit(key, opSave, data)
}

// EnqueueRemove queues the deletion of key without waiting.
func (w *Writer) EnqueueRemove(key string) <-chan error {
	return w.submit(key, opRemove, nil)
}

func (w *Writer) wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) submit(key string, op writeOp, data []byte) <-chan error {
	ch := make(chan error, 1)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		ch <- errclass.ErrStoreUnavailable.WithMessage("writer closed")
		return ch
	}
	if p, ok := w.pending[key]; ok {
		p.op = op
		p.data = data
		p.waiters = append(p.waiters, ch)
	} else {
		w.pending[key] = &pendingWrite{op: op, data: data, waiters: []chan error{ch}}
		w.queue = append(w.queue, key)
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return ch
}

// Close drains queued writes and stops the goroutine. It does not close kv.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		key := w.queue[0]
		w.queue = w.queue[1:]
		p := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()

		var err error
		switch p.op {
		case opRemove:
			err = w.kv.Remove(context.Background(), key)
		default:
			err = w.kv.Save(context.Background(), key, p.data)
		}
		if err != nil && w.onError != nil {
			w.onError(key, err)
		}
		for _, ch := range p.waiters {
			ch <- err
		}
	}
}
