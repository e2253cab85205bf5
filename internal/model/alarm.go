package model

import "time"

// Alarm is the durable record of an intended wake-up. The row is the
// source of truth; the host scheduler's registered state is audited
// against it and repaired on drift.
type Alarm struct {
	// ID is stable and locally generated (UUIDv7). It survives updates
	// to the same (EventID, RuleID) pair.
	ID string

	EventID string
	RuleID  string

	// EventTitle is a display snapshot taken at scheduling time.
	EventTitle string

	// EventStart is the event's start instant (UTC).
	EventStart time.Time

	// AlarmAt is the instant the host should fire (UTC).
	AlarmAt time.Time

	// ScheduledAt records when this row was last written by a pass.
	ScheduledAt time.Time

	// Dismissed is set by the user and persists across rescheduling only
	// while LastEventModifiedSeen equals the event's current revision.
	Dismissed bool

	// HostKey is the bounded integer handed to the host scheduler.
	// Unique across active alarms; collisions are resolved by salted
	// perturbation before the row is finalized.
	HostKey int32

	// LastEventModifiedSeen is the event revision this row was computed
	// from.
	LastEventModifiedSeen int64
}

// Pair identifies the (event, rule) combination an alarm belongs to.
// At most one alarm row exists per pair.
type Pair struct {
	EventID string
	RuleID  string
}

// PairOf returns the identity pair for an alarm.
func PairOf(a Alarm) Pair {
	return Pair{EventID: a.EventID, RuleID: a.RuleID}
}
