package model

import "time"

// EventType classifies notifications sent to engine subscribers.
type EventType string

const (
	EventLockCreated   EventType = "lock.created"
	EventLockRemoved   EventType = "lock.removed"
	EventUnlocked      EventType = "lock.unlocked"
	EventRelocked      EventType = "lock.relocked"
	EventTrustExpired  EventType = "trust.expired"
	EventTimerExpired  EventType = "timer.expired"
	EventTimerTick     EventType = "timer.tick"
	EventCountdownTick EventType = "countdown.tick"
	EventSettings      EventType = "settings.changed"
)

// Event is delivered to subscribers after the engine state changed.
// Remaining is set for tick events.
type Event struct {
	Type      EventType
	Key       LockKey
	Remaining time.Duration
}
