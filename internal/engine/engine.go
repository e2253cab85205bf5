package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rivercweiss/chime/internal/model"
)

// DefaultLookahead is the forward horizon within which events are
// considered for scheduling.
const DefaultLookahead = 14 * 24 * time.Hour

// DefaultAllDayAlarmTime is the wall-clock time at which all-day event
// alarms fire when no time is configured.
var DefaultAllDayAlarmTime = model.WallClock{Hour: 8, Minute: 0}

// Engine coordinates matcher, deduplicator, scheduler, and reconciler
// against the four external ports. It owns the single-flight gate and the
// recovery tracker; everything else is per-pass state.
type Engine struct {
	store  AlarmStore
	events EventSource
	rules  RuleStore
	host   HostScheduler

	clock       Clock
	horizon     time.Duration
	dedupMode   model.DuplicateHandlingMode
	allDayWall  model.WallClock
	keyAttempts int

	gate    *passGate
	tracker *RecoveryTracker
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the wall clock. Tests pin passes to fixed
// instants with this.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLookahead sets the event horizon for scheduling passes.
func WithLookahead(d time.Duration) Option {
	return func(e *Engine) { e.horizon = d }
}

// WithDuplicateHandling sets the cross-rule duplicate resolution mode.
func WithDuplicateHandling(mode model.DuplicateHandlingMode) Option {
	return func(e *Engine) { e.dedupMode = mode }
}

// WithAllDayAlarmTime sets the wall-clock instant for all-day events.
func WithAllDayAlarmTime(w model.WallClock) Option {
	return func(e *Engine) { e.allDayWall = w }
}

// WithDebounce sets the re-entry drop window of the single-flight gate.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.gate = newPassGate(d) }
}

// WithRecoveryTracker substitutes the reconciler's attempt tracker.
func WithRecoveryTracker(t *RecoveryTracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithMetrics attaches a Prometheus collector set.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// maxKeyAttempts bounds the deterministic perturbation sequence when a
// host key collides.
const maxKeyAttempts = 16

// New creates an Engine over the given ports.
func New(store AlarmStore, events EventSource, rules RuleStore, host HostScheduler, opts ...Option) (*Engine, error) {
	if store == nil || events == nil || rules == nil || host == nil {
		return nil, fmt.Errorf("engine: all four ports are required")
	}

	e := &Engine{
		store:       store,
		events:      events,
		rules:       rules,
		host:        host,
		clock:       SystemClock(),
		horizon:     DefaultLookahead,
		dedupMode:   model.AllowMultiple,
		allDayWall:  DefaultAllDayAlarmTime,
		keyAttempts: maxKeyAttempts,
		gate:        newPassGate(DefaultDebounce),
		tracker:     NewRecoveryTracker(0, 0, 0, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PassResult is the structured outcome of a scheduling pass.
type PassResult struct {
	Scheduled int       `json:"scheduled_count"`
	Updated   int       `json:"updated_count"`
	Skipped   int       `json:"skipped_count"`
	Removed   int       `json:"removed_count"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Failures  []Failure `json:"failures,omitempty"`
}

// ReconcileResult is the structured outcome of a reconciliation pass.
type ReconcileResult struct {
	Rescheduled        int       `json:"rescheduled_count"`
	CollisionsResolved int       `json:"collision_resolved_count"`
	Skipped            int       `json:"skipped_count"`
	Message            string    `json:"message,omitempty"`
	Failures           []Failure `json:"failures,omitempty"`
}

// MatchEvent evaluates rules against a single event without touching the
// store. Diagnostic and preview use.
func (e *Engine) MatchEvent(ev model.Event, rules []model.Rule) []model.MatchResult {
	matches, _ := matchEvents([]model.Event{ev}, rules, e.allDayWall)
	return matches
}

// Tracker exposes the recovery tracker for explicit caller retries.
func (e *Engine) Tracker() *RecoveryTracker { return e.tracker }

// Now reads the engine's clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// CanScheduleExactlyNow reports the host's exact-instant capability.
// Diagnostic only; scheduling proceeds either way.
func (e *Engine) CanScheduleExactlyNow(ctx context.Context) bool {
	return e.host.CanScheduleExactly(ctx)
}
