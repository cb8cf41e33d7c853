// Package metrics provides Prometheus metrics for the lock engine.
// A nil or disabled *Registry accepts every call and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/lockguard/lockguard/pkg/model"
)

const namespace = "lockguard"

// Registry holds all lockguard metrics.
type Registry struct {
	reg *prometheus.Registry

	unlocks       *prometheus.CounterVec
	relocks       prometheus.Counter
	expiries      *prometheus.CounterVec
	timerFlushes  prometheus.Counter
	persistErrors *prometheus.CounterVec
	locks         *prometheus.GaugeVec
}

// New creates a registry. When enabled is false the returned registry is a no-op.
func New(enabled bool) *Registry {
	if !enabled {
		return &Registry{}
	}
	r := &Registry{
		reg: prometheus.NewRegistry(),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlocks_total",
			Help:      "Successful unlocks by policy.",
		}, []string{"policy"}),
		relocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relocks_total",
			Help:      "Explicit re-lock actions.",
		}),
		expiries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiries_total",
			Help:      "Automatic trust and timer expiries by policy.",
		}, []string{"policy"}),
		timerFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_flushes_total",
			Help:      "Timer elapsed-time flushes to the store.",
		}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed blob saves by store key.",
		}, []string{"key"}),
		locks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locks",
			Help:      "Lock records currently registered, by policy.",
		}, []string{"policy"}),
	}
	r.reg.MustRegister(r.unlocks, r.relocks, r.expiries, r.timerFlushes, r.persistErrors, r.locks)
	return r
}

func (r *Registry) on() bool {
	return r != nil && r.reg != nil
}

// Enabled reports whether the registry records anything.
func (r *Registry) Enabled() bool {
	return r.on()
}

// Gatherer exposes the underlying registry for an HTTP handler or a dump.
// Returns nil when disabled.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if !r.on() {
		return nil
	}
	return r.reg
}

// Gather collects the current metric families.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	if !r.on() {
		return nil, nil
	}
	return r.reg.Gather()
}

// RecordUnlock counts a successful unlock.
func (r *Registry) RecordUnlock(p model.Policy) {
	if r.on() {
		r.unlocks.WithLabelValues(string(p)).Inc()
	}
}

// RecordRelock counts an explicit re-lock.
func (r *Registry) RecordRelock() {
	if r.on() {
		r.relocks.Inc()
	}
}

// RecordExpiry counts an automatic trust or timer expiry.
func (r *Registry) RecordExpiry(p model.Policy) {
	if r.on() {
		r.expiries.WithLabelValues(string(p)).Inc()
	}
}

// RecordTimerFlush counts a timer flush.
func (r *Registry) RecordTimerFlush() {
	if r.on() {
		r.timerFlushes.Inc()
	}
}

// RecordPersistError counts a failed save of key.
func (r *Registry) RecordPersistError(key string) {
	if r.on() {
		r.persistErrors.WithLabelValues(key).Inc()
	}
}

// SetLockCounts replaces the per-policy lock gauge.
func (r *Registry) SetLockCounts(counts map[model.Policy]int) {
	if !r.on() {
		return
	}
	for _, p := range []model.Policy{model.PolicyAlways, model.PolicyTrust, model.PolicyTimer} {
		r.locks.WithLabelValues(string(p)).Set(float64(counts[p]))
	}
}
