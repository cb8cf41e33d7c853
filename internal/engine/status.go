package engine

import (
	"fmt"
	"time"

	"github.com/lockguard/lockguard/pkg/countdown"
	"github.com/lockguard/lockguard/pkg/model"
)

// Countdown is one badge to draw next to a trusted or timer record.
type Countdown struct {
	Key       model.LockKey
	Policy    model.Policy
	Remaining time.Duration
	Badge     string
}

// LockStatus is a read-only view of a record for listings.
type LockStatus struct {
	Record    model.LockRecord
	Locked    bool
	Remaining time.Duration
	Info      string
}

// Countdowns returns the badges to draw right now. It is empty while
// countdown badges are disabled in the settings.
func (e *Engine) Countdowns() []Countdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.settings.TreeCountdownEnabled {
		return nil
	}
	return e.countdownsLocked()
}

func (e *Engine) countdownsLocked() []Countdown {
	now := e.now()
	var out []Countdown
	for _, key := range e.reg.Keys() {
		rec := e.reg.GetByKey(key)
		var remaining time.Duration
		switch rec.Policy {
		case model.PolicyTrust:
			remaining = trustRemaining(rec, now)
		case model.PolicyTimer:
			remaining = e.timerRemainingLocked(rec)
		default:
			continue
		}
		if remaining <= 0 {
			continue
		}
		out = append(out, Countdown{
			Key:       key,
			Policy:    rec.Policy,
			Remaining: remaining,
			Badge:     countdown.Badge(remaining),
		})
	}
	return out
}

// Status describes every record in registry order. Unlike IsLockedNow it
// applies no transitions.
func (e *Engine) Status() []LockStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	out := make([]LockStatus, 0, e.reg.Len())
	for _, key := range e.reg.Keys() {
		rec := e.reg.GetByKey(key)
		st := LockStatus{Record: *rec, Locked: e.peekLockedLocked(rec)}
		switch rec.Policy {
		case model.PolicyTrust:
			st.Remaining = trustRemaining(rec, now)
			if st.Remaining > 0 {
				until := time.UnixMilli(rec.TrustUntil).Local().Format("15:04:05")
				st.Info = fmt.Sprintf("trusted until %s (%s left)", until, countdown.Format(st.Remaining))
			} else {
				st.Info = "trust expired"
			}
		case model.PolicyTimer:
			st.Remaining = e.timerRemainingLocked(rec)
			if st.Remaining > 0 {
				st.Info = fmt.Sprintf("%s left", countdown.Format(st.Remaining))
			} else {
				st.Info = "timer expired"
			}
		default:
			if st.Locked {
				st.Info = "locked"
			} else {
				st.Info = "unlocked for this session"
			}
		}
		out = append(out, st)
	}
	return out
}
