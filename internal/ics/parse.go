package ics

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// parsedEvent is a normalized VEVENT. Recurrence is kept raw here and
// expanded in expand.go.
type parsedEvent struct {
	uid     string
	seq     int
	summary string

	start  time.Time
	end    time.Time
	allDay bool
	tzid   string

	rawRRule string
	exDates  []time.Time

	// recurrenceID marks an override of one instance of a recurring event.
	recurrenceID *time.Time

	// revision is the monotonic change marker derived from LAST-MODIFIED,
	// DTSTAMP, or SEQUENCE.
	revision int64
}

// parseCalendar parses one ICS payload. A malformed VEVENT is logged and
// skipped; only an unparseable calendar is an error.
func parseCalendar(body []byte) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var events []parsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			slog.Warn("skipping malformed VEVENT", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, fmt.Errorf("missing UID")
	}
	out.uid = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart != nil {
		out.allDay = isDateValue(dtstart)
	}

	if out.allDay {
		// Date-only values carry no zone (RFC 5545 forbids TZID on them),
		// yet golang-ical anchors them in the process-local zone. Re-parse
		// the literal date at UTC midnight so the calendar date is the
		// same on every host.
		start, err := parseICSTime(dtstart.Value, time.UTC)
		if err != nil {
			return out, fmt.Errorf("uid %s: DTSTART: %w", out.uid, err)
		}
		out.start = start
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			if end, err := parseICSTime(p.Value, time.UTC); err == nil {
				out.end = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("uid %s: DTSTART: %w", out.uid, err)
		}
		out.start = start
		if end, err := ve.GetEndAt(); err == nil {
			out.end = end
		}
		if dtstart != nil {
			if tzs, ok := dtstart.ICalParameters["TZID"]; ok && len(tzs) > 0 {
				out.tzid = tzs[0]
			}
		}
	}
	if out.end.IsZero() {
		if out.allDay {
			out.end = out.start.Add(24 * time.Hour)
		} else {
			out.end = out.start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := out.start.Location()
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			if l, err := time.LoadLocation(tzs[0]); err == nil {
				loc = l
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, out.start.Location()); err == nil {
			out.recurrenceID = &t
		}
	}

	out.revision = revisionOf(ve, out.seq)
	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// revisionOf derives the change marker: LAST-MODIFIED wins, then DTSTAMP,
// then bare SEQUENCE. Sequence bumps normally come with a fresh DTSTAMP,
// so the timestamp alone is monotonic in practice.
func revisionOf(ve *ical.VEvent, seq int) int64 {
	for _, name := range []ical.ComponentProperty{
		ical.ComponentPropertyLastModified,
		ical.ComponentPropertyDtstamp,
	} {
		if p := ve.GetProperty(name); p != nil {
			if t, err := parseICSTime(p.Value, time.UTC); err == nil {
				return t.Unix()
			}
		}
	}
	return int64(seq)
}

// parseICSTime parses the basic ICS DATE / DATE-TIME forms. Floating
// date-times are interpreted in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, fmt.Errorf("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
