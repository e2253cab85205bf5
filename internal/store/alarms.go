package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rivercweiss/chime/internal/model"
)

const alarmColumns = `id, event_id, rule_id, event_title, event_start,
	alarm_at, scheduled_at, dismissed, host_key, last_event_modified`

// Get returns the alarm row with the given id.
// Returns ErrNotFound if no such row exists.
func (s *Store) Get(ctx context.Context, id string) (model.Alarm, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alarmColumns+`
		FROM alarms
		WHERE id = ?
	`, id)

	a, err := scanAlarm(row)
	if err == sql.ErrNoRows {
		return model.Alarm{}, fmt.Errorf("get alarm %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Alarm{}, fmt.Errorf("get alarm %s: %w", id, err)
	}
	return a, nil
}

// Insert writes a new alarm row. The UNIQUE(event_id, rule_id) constraint
// rejects a second row for the same pair; callers upsert through Update
// when a pair already has a row.
func (s *Store) Insert(ctx context.Context, a model.Alarm) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms
		(id, event_id, rule_id, event_title, event_start,
		 alarm_at, scheduled_at, dismissed, host_key, last_event_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.EventID,
		a.RuleID,
		a.EventTitle,
		encodeTime(a.EventStart),
		encodeTime(a.AlarmAt),
		encodeTime(a.ScheduledAt),
		boolToInt(a.Dismissed),
		a.HostKey,
		a.LastEventModifiedSeen,
	)
	if err != nil {
		return fmt.Errorf("insert alarm %s: %w", a.ID, err)
	}
	return nil
}

// Update rewrites every mutable column of an existing row, keyed by id.
// Returns ErrNotFound if the row does not exist.
func (s *Store) Update(ctx context.Context, a model.Alarm) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alarms
		SET event_title = ?, event_start = ?, alarm_at = ?, scheduled_at = ?,
		    dismissed = ?, host_key = ?, last_event_modified = ?
		WHERE id = ?
	`,
		a.EventTitle,
		encodeTime(a.EventStart),
		encodeTime(a.AlarmAt),
		encodeTime(a.ScheduledAt),
		boolToInt(a.Dismissed),
		a.HostKey,
		a.LastEventModifiedSeen,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update alarm %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alarm %s: %w", a.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update alarm %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// Delete removes the row with the given id. Deleting a missing row is a
// no-op; the pass may race a manual removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete alarm %s: %w", id, err)
	}
	return nil
}

// All returns every alarm row, dismissed and elapsed included, ordered by
// (event_id, rule_id) for deterministic iteration.
func (s *Store) All(ctx context.Context) ([]model.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alarmColumns+`
		FROM alarms
		ORDER BY event_id, rule_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	return collectAlarms(rows)
}

// Active returns non-dismissed rows whose event start is after now.
func (s *Store) Active(ctx context.Context, now time.Time) ([]model.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alarmColumns+`
		FROM alarms
		WHERE dismissed = 0 AND event_start > ?
		ORDER BY event_id, rule_id
	`, encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("list active alarms: %w", err)
	}
	defer rows.Close()

	return collectAlarms(rows)
}

// ByEventID returns every row for one event, across all rules.
func (s *Store) ByEventID(ctx context.Context, eventID string) ([]model.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alarmColumns+`
		FROM alarms
		WHERE event_id = ?
		ORDER BY rule_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list alarms for event %s: %w", eventID, err)
	}
	defer rows.Close()

	return collectAlarms(rows)
}

// Dismiss marks the row dismissed without touching any other column. The
// host registration and key survive so an event update can revive the row.
func (s *Store) Dismiss(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alarms SET dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("dismiss alarm %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dismiss alarm %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("dismiss alarm %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanAlarm.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlarm(sc scanner) (model.Alarm, error) {
	var (
		a          model.Alarm
		eventStart string
		alarmAt    string
		schedAt    string
		dismissed  int
	)
	err := sc.Scan(
		&a.ID,
		&a.EventID,
		&a.RuleID,
		&a.EventTitle,
		&eventStart,
		&alarmAt,
		&schedAt,
		&dismissed,
		&a.HostKey,
		&a.LastEventModifiedSeen,
	)
	if err != nil {
		return model.Alarm{}, err
	}

	if a.EventStart, err = decodeTime(eventStart); err != nil {
		return model.Alarm{}, fmt.Errorf("event_start: %w", err)
	}
	if a.AlarmAt, err = decodeTime(alarmAt); err != nil {
		return model.Alarm{}, fmt.Errorf("alarm_at: %w", err)
	}
	if a.ScheduledAt, err = decodeTime(schedAt); err != nil {
		return model.Alarm{}, fmt.Errorf("scheduled_at: %w", err)
	}
	a.Dismissed = dismissed != 0
	return a, nil
}

func collectAlarms(rows *sql.Rows) ([]model.Alarm, error) {
	var out []model.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alarms: %w", err)
	}
	return out, nil
}

// timeFormat is RFC 3339 with fixed nanosecond width. RFC3339Nano trims
// trailing zeros, which breaks the lexical-equals-chronological property
// the event_start comparisons rely on.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// encodeTime stores instants as fixed-width RFC 3339 text in UTC so
// lexical ordering matches chronological ordering.
func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
