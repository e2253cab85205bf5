package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rivercweiss/chime/internal/model"
)

// RunSchedulingPass fetches rules and events through the ports and runs a
// full scheduling pass. Re-entrant invocations inside the single-flight
// gate's debounce window are dropped as no-ops.
func (e *Engine) RunSchedulingPass(ctx context.Context) (PassResult, error) {
	return e.schedulingPass(ctx, nil, nil, false)
}

// RunSchedulingPassWith runs a pass over caller-provided rules and events
// instead of reading the ports. Used by triggers that already hold fresh
// inputs.
func (e *Engine) RunSchedulingPassWith(ctx context.Context, rules []model.Rule, events []model.Event) (PassResult, error) {
	return e.schedulingPass(ctx, rules, events, true)
}

func (e *Engine) schedulingPass(ctx context.Context, rules []model.Rule, events []model.Event, injected bool) (PassResult, error) {
	now := e.clock.Now()
	if !e.gate.tryAcquire(now) {
		slog.Debug("scheduling pass dropped", "reason", "in flight or debounced")
		return PassResult{Success: true, Message: "dropped: pass already in flight"}, nil
	}
	defer e.gate.release()

	started := time.Now()
	res, err := e.runSchedule(ctx, now, rules, events, injected)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.observePass("schedule", outcome, time.Since(started).Seconds())
	return res, err
}

func (e *Engine) runSchedule(ctx context.Context, now time.Time, rules []model.Rule, events []model.Event, injected bool) (PassResult, error) {
	var res PassResult

	if !injected {
		var err error
		rules, err = e.rules.EnabledValidRules(ctx)
		if err != nil {
			res.Message = "rule source unavailable"
			return res, sourceUnavailable("rules", err)
		}
		events, err = e.events.EventsInWindow(ctx, now, e.horizon)
		if err != nil {
			res.Message = "event source unavailable"
			return res, sourceUnavailable("events", err)
		}
	}

	if !e.host.CanScheduleExactly(ctx) {
		slog.Debug("host cannot schedule exact instants; alarms may be deferred")
	}

	matches, failures := matchEvents(events, rules, e.allDayWall)
	res.Failures = append(res.Failures, failures...)
	retained := deduplicate(e.dedupMode, matches)

	existing, err := e.store.All(ctx)
	if err != nil {
		res.Message = "alarm store unavailable"
		return res, sourceUnavailable("alarm store", err)
	}

	// Desired state: one row per retained pair whose event has not yet
	// started. Matches for elapsed events are suppressed.
	desired := make(map[model.Pair]model.MatchResult, len(retained))
	for _, m := range retained {
		if !m.Event.Start.After(now) {
			res.Skipped++
			continue
		}
		desired[model.Pair{EventID: m.Event.ID, RuleID: m.Rule.ID}] = m
	}

	existingByPair := make(map[model.Pair]model.Alarm, len(existing))
	keyOwner := make(map[int32]model.Pair, len(existing))
	for _, a := range existing {
		pair := model.PairOf(a)
		existingByPair[pair] = a
		if _, wanted := desired[pair]; wanted {
			// Surviving rows keep their keys; creates perturb around them.
			keyOwner[a.HostKey] = pair
		}
	}

	// Rows with no retained match are orphans: the rule was disabled or
	// removed, the event left the window, or the deduplicator discarded
	// the pair in favor of another match.
	for _, a := range existing {
		if _, wanted := desired[model.PairOf(a)]; wanted {
			continue
		}
		if err := e.store.Delete(ctx, a.ID); err != nil {
			res.Failures = append(res.Failures, storeFailure(a, "delete", err))
			continue
		}
		if err := e.host.Cancel(ctx, a.HostKey); err != nil {
			slog.Warn("cancel of orphaned host registration failed",
				"alarm_id", a.ID, "host_key", a.HostKey, "error", err)
		}
		res.Removed++
		slog.Info("alarm removed",
			"alarm_id", a.ID, "event_id", a.EventID, "rule_id", a.RuleID)
	}

	// Deterministic upsert order: matches are already sorted by
	// (event id, rule id).
	for _, m := range sortedDesired(desired) {
		pair := model.Pair{EventID: m.Event.ID, RuleID: m.Rule.ID}
		if row, ok := existingByPair[pair]; ok {
			e.upsertExisting(ctx, &res, now, row, m)
		} else {
			e.createAlarm(ctx, &res, now, m, keyOwner)
		}
	}

	res.Success = true
	res.Message = fmt.Sprintf("scheduled %d, updated %d, skipped %d, removed %d",
		res.Scheduled, res.Updated, res.Skipped, res.Removed)

	regFailures := 0
	for _, f := range res.Failures {
		if f.Code == CodeRegistrationFailure {
			regFailures++
		}
	}
	e.metrics.observeSchedule(res.Scheduled, res.Updated, res.Removed, regFailures)

	slog.Info("scheduling pass finished",
		"scheduled", res.Scheduled,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"removed", res.Removed,
		"failures", len(res.Failures),
	)
	return res, nil
}

func sortedDesired(desired map[model.Pair]model.MatchResult) []model.MatchResult {
	out := make([]model.MatchResult, 0, len(desired))
	for _, m := range desired {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Event.ID != out[j].Event.ID {
			return out[i].Event.ID < out[j].Event.ID
		}
		return out[i].Rule.ID < out[j].Rule.ID
	})
	return out
}

// createAlarm inserts a new row for a pair that has none, resolving a
// unique host key first. The collision scan runs on every pass because a
// later insertion can collide with any earlier row's key.
func (e *Engine) createAlarm(ctx context.Context, res *PassResult, now time.Time, m model.MatchResult, keyOwner map[int32]model.Pair) {
	pair := model.Pair{EventID: m.Event.ID, RuleID: m.Rule.ID}

	key, ok := resolveHostKey(pair, keyOwner, e.keyAttempts)
	if !ok {
		slog.Error("host key collision unresolved, skipping alarm",
			"event_id", pair.EventID, "rule_id", pair.RuleID)
		res.Failures = append(res.Failures, Failure{
			Code:    CodeCollisionUnresolved,
			EventID: pair.EventID,
			RuleID:  pair.RuleID,
			Message: fmt.Sprintf("no unique host key after %d attempts", e.keyAttempts),
		})
		res.Skipped++
		return
	}

	a := model.Alarm{
		ID:                    uuid.Must(uuid.NewV7()).String(),
		EventID:               m.Event.ID,
		RuleID:                m.Rule.ID,
		EventTitle:            m.Event.Title,
		EventStart:            m.Event.Start,
		AlarmAt:               m.AlarmAt,
		ScheduledAt:           now,
		HostKey:               key,
		LastEventModifiedSeen: m.Event.LastModified,
	}

	if err := e.store.Insert(ctx, a); err != nil {
		res.Failures = append(res.Failures, storeFailure(a, "insert", err))
		return
	}
	keyOwner[key] = pair

	if f := e.registerWithHost(ctx, a); f != nil {
		res.Failures = append(res.Failures, *f)
	}
	res.Scheduled++
	slog.Info("alarm scheduled",
		"alarm_id", a.ID,
		"event_id", a.EventID,
		"rule_id", a.RuleID,
		"alarm_at", a.AlarmAt,
		"host_key", a.HostKey,
	)
}

// upsertExisting updates a row in place, preserving its id and host key.
//
// An unchanged event revision only refreshes display fields and never
// touches dismissal or the host key; a dismissed row with an unchanged
// revision is never re-registered. An advanced revision treats the
// occurrence as effectively new: dismissal is cleared, the alarm instant
// recomputed, and the host re-registered only if the instant actually
// changed.
func (e *Engine) upsertExisting(ctx context.Context, res *PassResult, now time.Time, a model.Alarm, m model.MatchResult) {
	if m.Event.LastModified == a.LastEventModifiedSeen {
		if a.EventTitle == m.Event.Title {
			res.Skipped++
			return
		}
		a.EventTitle = m.Event.Title
		a.ScheduledAt = now
		if err := e.store.Update(ctx, a); err != nil {
			res.Failures = append(res.Failures, storeFailure(a, "update", err))
			return
		}
		res.Updated++
		return
	}

	reRegister := !m.AlarmAt.Equal(a.AlarmAt)
	a.EventTitle = m.Event.Title
	a.EventStart = m.Event.Start
	a.AlarmAt = m.AlarmAt
	a.Dismissed = false
	a.LastEventModifiedSeen = m.Event.LastModified
	a.ScheduledAt = now

	if err := e.store.Update(ctx, a); err != nil {
		res.Failures = append(res.Failures, storeFailure(a, "update", err))
		return
	}
	if reRegister {
		if f := e.registerWithHost(ctx, a); f != nil {
			res.Failures = append(res.Failures, *f)
		}
	}
	res.Updated++
	slog.Info("alarm updated",
		"alarm_id", a.ID,
		"event_id", a.EventID,
		"rule_id", a.RuleID,
		"alarm_at", a.AlarmAt,
		"re_registered", reRegister,
	)
}

// resolveHostKey walks the deterministic perturbation sequence until it
// finds a key not owned by a different pair. Bounded by maxAttempts.
func resolveHostKey(pair model.Pair, keyOwner map[int32]model.Pair, maxAttempts int) (int32, bool) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		key := model.HostKey(pair.EventID, pair.RuleID, attempt)
		owner, taken := keyOwner[key]
		if !taken || owner == pair {
			return key, true
		}
	}
	return 0, false
}

// registerWithHost registers one alarm and converts any rejection into a
// per-item failure so the batch continues.
func (e *Engine) registerWithHost(ctx context.Context, a model.Alarm) *Failure {
	ok, err := e.host.Register(ctx, a)
	if err != nil {
		slog.Warn("host registration failed",
			"alarm_id", a.ID, "host_key", a.HostKey, "error", err)
		return &Failure{
			Code:    CodeRegistrationFailure,
			AlarmID: a.ID,
			EventID: a.EventID,
			RuleID:  a.RuleID,
			Message: err.Error(),
		}
	}
	if !ok {
		slog.Warn("host declined registration",
			"alarm_id", a.ID, "host_key", a.HostKey)
		return &Failure{
			Code:    CodeRegistrationFailure,
			AlarmID: a.ID,
			EventID: a.EventID,
			RuleID:  a.RuleID,
			Message: "host declined registration",
		}
	}
	return nil
}

func storeFailure(a model.Alarm, op string, err error) Failure {
	slog.Error("alarm store write failed",
		"op", op, "alarm_id", a.ID, "event_id", a.EventID, "rule_id", a.RuleID, "error", err)
	return Failure{
		Code:    CodeStoreFailure,
		AlarmID: a.ID,
		EventID: a.EventID,
		RuleID:  a.RuleID,
		Message: fmt.Sprintf("%s: %v", op, err),
	}
}
