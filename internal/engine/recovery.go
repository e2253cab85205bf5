package engine

import (
	"sync"
	"time"
)

// Recovery tuning defaults. The per-alarm backoff spaces out retries for
// one drifting alarm; the sweep cooldown keeps back-to-back triggers from
// thrashing the host; the entry TTL bounds tracker growth.
const (
	DefaultMaxRecoveryAttempts = 3
	DefaultRecoveryBackoff     = 60 * time.Second
	DefaultSweepCooldown       = 30 * time.Second
	DefaultRecoveryEntryTTL    = 30 * time.Minute
)

// RecoveryTracker holds per-alarm repair attempt state for the
// reconciler. It is an explicit value owned by the engine rather than
// process-wide mutable state, and it is bounded: entries expire after a
// TTL and successful repairs clear them immediately.
type RecoveryTracker struct {
	mu          sync.Mutex
	maxAttempts int
	backoff     time.Duration
	cooldown    time.Duration
	ttl         time.Duration

	lastSweep time.Time
	entries   map[string]*recoveryEntry // keyed by alarm id
}

type recoveryEntry struct {
	attempts    int
	lastAttempt time.Time
}

// NewRecoveryTracker creates a tracker with the given bounds. Zero values
// fall back to the package defaults.
func NewRecoveryTracker(maxAttempts int, backoff, cooldown, ttl time.Duration) *RecoveryTracker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRecoveryAttempts
	}
	if backoff <= 0 {
		backoff = DefaultRecoveryBackoff
	}
	if cooldown <= 0 {
		cooldown = DefaultSweepCooldown
	}
	if ttl <= 0 {
		ttl = DefaultRecoveryEntryTTL
	}
	return &RecoveryTracker{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		cooldown:    cooldown,
		ttl:         ttl,
		entries:     make(map[string]*recoveryEntry),
	}
}

// BeginSweep reports whether a full sweep may start at now, enforcing the
// session-level cooldown. A permitted sweep stamps lastSweep.
func (t *RecoveryTracker) BeginSweep(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastSweep.IsZero() && now.Sub(t.lastSweep) < t.cooldown {
		return false
	}
	t.lastSweep = now
	return true
}

// ShouldAttempt reports whether a repair of the given alarm may run at
// now. False while the attempt cap is reached or the per-alarm backoff has
// not elapsed.
func (t *RecoveryTracker) ShouldAttempt(alarmID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[alarmID]
	if !ok {
		return true
	}
	if e.attempts >= t.maxAttempts {
		return false
	}
	return now.Sub(e.lastAttempt) >= t.backoff
}

// RecordFailure counts a failed repair attempt at now.
func (t *RecoveryTracker) RecordFailure(alarmID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[alarmID]
	if !ok {
		e = &recoveryEntry{}
		t.entries[alarmID] = e
	}
	e.attempts++
	e.lastAttempt = now
}

// RecordSuccess clears attempt state after a successful repair.
func (t *RecoveryTracker) RecordSuccess(alarmID string) {
	t.mu.Lock()
	delete(t.entries, alarmID)
	t.mu.Unlock()
}

// Reset clears attempt state for an explicit caller retry, re-arming an
// alarm that hit the cap.
func (t *RecoveryTracker) Reset(alarmID string) {
	t.mu.Lock()
	delete(t.entries, alarmID)
	t.mu.Unlock()
}

// Exhausted reports whether the alarm has reached the attempt cap.
func (t *RecoveryTracker) Exhausted(alarmID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[alarmID]
	return ok && e.attempts >= t.maxAttempts
}

// Expire drops entries whose last attempt is older than the TTL. Called at
// the end of every sweep so the tracker never grows without bound.
func (t *RecoveryTracker) Expire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.entries {
		if now.Sub(e.lastAttempt) > t.ttl {
			delete(t.entries, id)
		}
	}
}

// Len returns the number of tracked alarms. Used for tests and
// diagnostics.
func (t *RecoveryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
