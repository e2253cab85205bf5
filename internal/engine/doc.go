// Package engine implements the matching, scheduling, and reconciliation
// core.
//
// A scheduling pass flows events and rules through the matcher, reduces
// duplicates per the configured handling mode, and upserts durable alarm
// rows while registering them with the host scheduler. A reconciliation
// pass audits those rows against the host's observable state and repairs
// drift with bounded, backed-off retries.
//
// The engine owns no persistent goroutines. Passes are short tasks driven
// by an external trigger; concurrent invocations against the same store
// are serialized by a single-flight gate and re-entrant calls inside the
// debounce window are dropped as no-ops.
package engine
