package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rivercweiss/chime/internal/model"
)

// RunReconciliationPass audits every non-dismissed, future alarm against
// the host scheduler's observable state and repairs drift with bounded,
// backed-off retries. The sweep is checkpoint-cancellable between alarms;
// repairs already made are retained on cancellation.
func (e *Engine) RunReconciliationPass(ctx context.Context) (ReconcileResult, error) {
	now := e.clock.Now()
	if !e.gate.tryAcquire(now) {
		slog.Debug("reconciliation pass dropped", "reason", "in flight or debounced")
		return ReconcileResult{Message: "dropped: pass already in flight"}, nil
	}
	defer e.gate.release()

	if !e.tracker.BeginSweep(now) {
		slog.Debug("reconciliation sweep suppressed by cooldown")
		return ReconcileResult{Message: "dropped: sweep cooldown active"}, nil
	}

	started := time.Now()
	res, err := e.runReconcile(ctx, now)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.observePass("reconcile", outcome, time.Since(started).Seconds())
	return res, err
}

func (e *Engine) runReconcile(ctx context.Context, now time.Time) (ReconcileResult, error) {
	var res ReconcileResult

	active, err := e.store.Active(ctx, now)
	if err != nil {
		res.Message = "alarm store unavailable"
		return res, sourceUnavailable("alarm store", err)
	}

	// Deterministic order so collision repair always perturbs the same
	// row given the same state.
	sort.Slice(active, func(i, j int) bool {
		if active[i].EventID != active[j].EventID {
			return active[i].EventID < active[j].EventID
		}
		return active[i].RuleID < active[j].RuleID
	})

	active = e.repairCollisions(ctx, &res, active)

	drifted := 0
	for i := range active {
		// Checkpoint between per-alarm iterations: partial progress is
		// kept when the sweep is cancelled.
		if ctx.Err() != nil {
			res.Message = "cancelled mid-sweep"
			e.tracker.Expire(now)
			e.metrics.observeDrift(drifted, len(res.Failures))
			return res, ctx.Err()
		}

		a := active[i]
		if !e.tracker.ShouldAttempt(a.ID, now) {
			res.Skipped++
			continue
		}

		registered, err := e.host.IsRegistered(ctx, a.HostKey)
		if err != nil {
			e.tracker.RecordFailure(a.ID, now)
			res.Failures = append(res.Failures, Failure{
				Code:    CodeRegistrationFailure,
				AlarmID: a.ID,
				EventID: a.EventID,
				RuleID:  a.RuleID,
				Message: fmt.Sprintf("query host registration: %v", err),
			})
			continue
		}
		if registered {
			e.tracker.RecordSuccess(a.ID)
			continue
		}

		drifted++
		slog.Warn("drift detected: alarm missing from host",
			"alarm_id", a.ID,
			"event_id", a.EventID,
			"host_key", a.HostKey,
			"alarm_at", a.AlarmAt,
		)

		if f := e.repairRegistration(ctx, a, now); f != nil {
			e.tracker.RecordFailure(a.ID, now)
			res.Failures = append(res.Failures, *f)
			if e.tracker.Exhausted(a.ID) {
				slog.Error("drift repair gave up until explicit retry",
					"alarm_id", a.ID, "attempts_cap", e.tracker.maxAttempts)
			}
			continue
		}
		e.tracker.RecordSuccess(a.ID)
		res.Rescheduled++
	}

	e.tracker.Expire(now)
	e.metrics.observeDrift(drifted, len(res.Failures))

	res.Message = fmt.Sprintf("rescheduled %d, collisions resolved %d, skipped %d",
		res.Rescheduled, res.CollisionsResolved, res.Skipped)
	slog.Info("reconciliation pass finished",
		"rescheduled", res.Rescheduled,
		"collisions_resolved", res.CollisionsResolved,
		"skipped", res.Skipped,
		"failures", len(res.Failures),
	)
	return res, nil
}

// repairCollisions finds active rows sharing a host key and moves the
// later row (in pair order) onto its perturbation sequence. Returns the
// slice with repaired keys so the drift audit sees current state.
func (e *Engine) repairCollisions(ctx context.Context, res *ReconcileResult, active []model.Alarm) []model.Alarm {
	owner := make(map[int32]model.Pair, len(active))

	for i := range active {
		a := active[i]
		pair := model.PairOf(a)
		if holder, taken := owner[a.HostKey]; taken && holder != pair {
			key, ok := resolveHostKey(pair, owner, e.keyAttempts)
			if !ok {
				res.Failures = append(res.Failures, Failure{
					Code:    CodeCollisionUnresolved,
					AlarmID: a.ID,
					EventID: a.EventID,
					RuleID:  a.RuleID,
					Message: fmt.Sprintf("no unique host key after %d attempts", e.keyAttempts),
				})
				res.Skipped++
				continue
			}
			slog.Warn("host key collision repaired",
				"alarm_id", a.ID, "old_key", a.HostKey, "new_key", key)
			a.HostKey = key
			if err := e.store.Update(ctx, a); err != nil {
				res.Failures = append(res.Failures, storeFailure(a, "update", err))
				continue
			}
			if f := e.registerWithHost(ctx, a); f != nil {
				res.Failures = append(res.Failures, *f)
			}
			active[i] = a
			res.CollisionsResolved++
		}
		owner[a.HostKey] = pair
	}
	return active
}

// repairRegistration re-registers one drifting alarm through the same
// row-preserving path the scheduler uses: the row is re-read for
// freshness, never duplicated, and a dismissal that happened since the
// sweep started wins.
func (e *Engine) repairRegistration(ctx context.Context, a model.Alarm, now time.Time) *Failure {
	fresh, err := e.store.Get(ctx, a.ID)
	if err != nil {
		f := storeFailure(a, "get", err)
		return &f
	}
	if fresh.Dismissed {
		return nil
	}

	if f := e.registerWithHost(ctx, fresh); f != nil {
		return f
	}

	fresh.ScheduledAt = now
	if err := e.store.Update(ctx, fresh); err != nil {
		f := storeFailure(fresh, "update", err)
		return &f
	}
	slog.Info("drift repaired",
		"alarm_id", fresh.ID, "host_key", fresh.HostKey, "alarm_at", fresh.AlarmAt)
	return nil
}

// RetryAlarm clears the attempt cap for one alarm and immediately tries a
// repair. This is the explicit caller retry that re-arms an alarm after
// automatic recovery gave up.
func (e *Engine) RetryAlarm(ctx context.Context, alarmID string) error {
	e.tracker.Reset(alarmID)

	now := e.clock.Now()
	a, err := e.store.Get(ctx, alarmID)
	if err != nil {
		return fmt.Errorf("retry alarm %s: %w", alarmID, err)
	}
	if a.Dismissed {
		return fmt.Errorf("retry alarm %s: alarm is dismissed", alarmID)
	}
	if !a.EventStart.After(now) {
		return fmt.Errorf("retry alarm %s: event already started", alarmID)
	}

	if f := e.repairRegistration(ctx, a, now); f != nil {
		e.tracker.RecordFailure(alarmID, now)
		return fmt.Errorf("retry alarm %s: %s", alarmID, f.Message)
	}
	e.tracker.RecordSuccess(alarmID)
	return nil
}
