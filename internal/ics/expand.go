package ics

import (
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/rivercweiss/chime/internal/model"
)

// occurrenceCap bounds how many instances one recurring event may expand
// to inside a window.
const occurrenceCap = 1000

// expandWindow turns parsed VEVENTs into concrete occurrences with a
// start in [windowStart, windowEnd). Overrides (RECURRENCE-ID) replace
// the base instance they name.
func expandWindow(src Source, parsed []parsedEvent, windowStart, windowEnd time.Time) []model.Event {
	overrides := make(map[string]map[int64]parsedEvent)
	for _, ev := range parsed {
		if ev.recurrenceID == nil {
			continue
		}
		if overrides[ev.uid] == nil {
			overrides[ev.uid] = make(map[int64]parsedEvent)
		}
		overrides[ev.uid][ev.recurrenceID.Unix()] = ev
	}

	var out []model.Event
	for _, ev := range parsed {
		if ev.recurrenceID != nil {
			// Overrides are emitted standalone so a moved instance still
			// appears even when its new start leaves the base series.
			if inWindow(ev.start, windowStart, windowEnd) {
				out = append(out, makeEvent(src, ev, ev.start, instanceID(ev.uid, *ev.recurrenceID)))
			}
			continue
		}
		if ev.rawRRule == "" {
			if inWindow(ev.start, windowStart, windowEnd) {
				out = append(out, makeEvent(src, ev, ev.start, ev.uid))
			}
			continue
		}
		out = append(out, expandRecurring(src, ev, overrides[ev.uid], windowStart, windowEnd)...)
	}
	return out
}

func expandRecurring(src Source, ev parsedEvent, overridden map[int64]parsedEvent, windowStart, windowEnd time.Time) []model.Event {
	r, err := rrule.StrToRRule(ev.rawRRule)
	if err != nil {
		slog.Warn("skipping unparseable RRULE", "uid", ev.uid, "rrule", ev.rawRRule, "error", err)
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	loc := ev.start.Location()
	times := set.Between(windowStart.In(loc), windowEnd.In(loc), true)

	var out []model.Event
	for _, occ := range times {
		if len(out) >= occurrenceCap {
			slog.Warn("recurrence expansion truncated", "uid", ev.uid, "cap", occurrenceCap)
			break
		}
		if !inWindow(occ, windowStart, windowEnd) {
			continue
		}
		if _, replaced := overridden[occ.Unix()]; replaced {
			continue
		}
		out = append(out, makeEvent(src, ev, occ, instanceID(ev.uid, occ)))
	}
	return out
}

func makeEvent(src Source, ev parsedEvent, start time.Time, id string) model.Event {
	duration := ev.end.Sub(ev.start)
	return model.Event{
		ID:           id,
		Title:        ev.summary,
		Start:        start.UTC(),
		End:          start.Add(duration).UTC(),
		AllDay:       ev.allDay,
		CalendarID:   src.ID,
		LastModified: ev.revision,
		Timezone:     ev.tzid,
	}
}

// instanceID gives each occurrence of a recurring event a stable id tied
// to its instance start.
func instanceID(uid string, start time.Time) string {
	return uid + "/" + start.UTC().Format(time.RFC3339)
}

// inWindow reports whether start falls in [windowStart, windowEnd).
func inWindow(start, windowStart, windowEnd time.Time) bool {
	return !start.Before(windowStart) && start.Before(windowEnd)
}
