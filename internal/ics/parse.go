package ics

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "timeuntil/internal/log"
	"timeuntil/internal/model"
)

// NewEventFunc mints an event with a fresh id and creation time. The event
// store's NewEvent satisfies it.
type NewEventFunc func(name, notes string, targetMillis int64) model.Event

const untitled = "Untitled event"

// Import parses an iCalendar payload into events.
//
//   - DTSTART becomes the target time.
//   - SUMMARY / DESCRIPTION become name / notes.
//   - The first VALARM with a negative relative TRIGGER becomes the reminder.
//   - UIDs written by Export keep their id and CREATED time; any other VEVENT
//     gets a fresh id from newEvent.
//   - RRULE is not expanded; a recurring VEVENT is imported as its DTSTART.
func Import(body []byte, newEvent NewEventFunc) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		e, perr := parseVEvent(ve, newEvent)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent skipped", perr)
			continue
		}
		events = append(events, e)
	}

	appLog.Info("ics import parsed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, newEvent NewEventFunc) (model.Event, error) {
	start, err := ve.GetStartAt()
	if err != nil {
		return model.Event{}, fmt.Errorf("missing or invalid DTSTART: %w", err)
	}

	name := propValue(ve.GetProperty(ical.ComponentPropertySummary))
	if strings.TrimSpace(name) == "" {
		name = untitled
	}
	notes := propValue(ve.GetProperty(ical.ComponentPropertyDescription))

	e := newEvent(name, notes, start.UnixMilli())

	uid := propValue(ve.GetProperty(ical.ComponentPropertyUniqueId))
	if id, ok := idFromUID(uid); ok {
		e.ID = id
		if created := ve.GetProperty(ical.ComponentPropertyCreated); created != nil {
			if t, perr := parseICSTime(created.Value); perr == nil {
				e.CreatedAtMillis = t.UnixMilli()
			}
		}
	}

	if ve.GetProperty(ical.ComponentPropertyRrule) != nil {
		appLog.Debug("ics: recurrence ignored, importing first occurrence", "uid", uid)
	}

	for _, alarm := range ve.Alarms() {
		trigger := alarm.GetProperty(ical.ComponentPropertyTrigger)
		if trigger == nil {
			continue
		}
		if lead, ok := leadMinutes(trigger.Value); ok {
			e.NotificationEnabled = lead > 0
			e.NotificationLeadMinutes = lead
			break
		}
	}

	if err := e.Validate(); err != nil {
		return model.Event{}, err
	}
	return e, nil
}

func propValue(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	return p.Value
}

var durationRe = regexp.MustCompile(`^-P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// maxLeadSeconds keeps the lead time representable as an int minute count.
const maxLeadSeconds = int64(math.MaxInt32) * 60

// leadMinutes converts a relative "before start" TRIGGER such as -PT30M,
// -PT2H or -P1DT6H into whole minutes. Positive, absolute or out-of-range
// triggers are rejected.
func leadMinutes(v string) (int, bool) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, false
	}

	var total int64
	matched := false
	unitSeconds := []int64{7 * 24 * 3600, 24 * 3600, 3600, 60, 1}
	for i, unit := range unitSeconds {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil || n > (maxLeadSeconds-total)/unit {
			return 0, false
		}
		total += n * unit
		matched = true
	}
	if !matched {
		return 0, false
	}
	return int(total / 60), true
}

// parseICSTime parses a basic ICS date/date-time string into time.Time.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}

	// Date-only, e.g., 20250101
	return time.ParseInLocation("20060102", v, time.Local)
}
