package engine

import (
	"context"
	"time"

	"github.com/rivercweiss/chime/internal/model"
)

// EventSource supplies calendar occurrences inside the lookahead window.
// Implemented by the ICS adapter in production and by fixtures in tests.
type EventSource interface {
	// EventsInWindow returns every occurrence with a start in
	// [now, now+horizon). Recurrences are already expanded.
	EventsInWindow(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Event, error)

	// CalendarNames maps calendar ids to display names.
	CalendarNames(ctx context.Context) (map[string]string, error)
}

// RuleStore supplies the enabled, structurally valid rules for a pass.
// Patterns may still fail to compile; the matcher isolates those.
type RuleStore interface {
	EnabledValidRules(ctx context.Context) ([]model.Rule, error)
}

// AlarmStore is the durable source of truth for intended alarms. Rows are
// read and written atomically; it is the only shared mutable resource.
type AlarmStore interface {
	Get(ctx context.Context, id string) (model.Alarm, error)
	Insert(ctx context.Context, a model.Alarm) error
	Update(ctx context.Context, a model.Alarm) error
	Delete(ctx context.Context, id string) error

	// All returns every row, dismissed and elapsed included. The pass
	// needs the full set for lifecycle decisions.
	All(ctx context.Context) ([]model.Alarm, error)

	// Active returns non-dismissed rows whose event start is after now.
	Active(ctx context.Context, now time.Time) ([]model.Alarm, error)

	ByEventID(ctx context.Context, eventID string) ([]model.Alarm, error)
}

// HostScheduler is the external wake-alarm facility. The core never
// implements the timer mechanism; it only registers, cancels, and audits.
type HostScheduler interface {
	// Register arranges for a wake-up at a.AlarmAt under a.HostKey.
	// ok=false with nil err means the host declined (capability or
	// policy); err means the call itself failed.
	Register(ctx context.Context, a model.Alarm) (ok bool, err error)

	Cancel(ctx context.Context, key int32) error

	IsRegistered(ctx context.Context, key int32) (bool, error)

	// CanScheduleExactly reports whether the host can honor exact
	// instants. Consulted for diagnostics only.
	CanScheduleExactly(ctx context.Context) bool
}
