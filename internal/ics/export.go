package ics

import (
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"timeuntil/internal/model"
)

// uidSuffix marks UIDs minted by this program so an exported file can be
// imported back with the original ids.
const uidSuffix = "@timeuntil"

// EventUID returns the iCalendar UID for e.
func EventUID(e model.Event) string {
	return strconv.FormatInt(e.ID, 10) + uidSuffix
}

// idFromUID recovers the event id from a UID produced by EventUID.
func idFromUID(uid string) (int64, bool) {
	raw, ok := strings.CutSuffix(uid, uidSuffix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Export serializes events as a VCALENDAR. Each event becomes a zero-length
// VEVENT at its target time; a configured reminder becomes a DISPLAY alarm.
// stamp is written as DTSTAMP on every VEVENT.
func Export(events []model.Event, stamp time.Time) []byte {
	cal := ical.NewCalendarFor("timeuntil")
	cal.SetMethod(ical.MethodPublish)

	for _, e := range events {
		ve := cal.AddEvent(EventUID(e))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetCreatedTime(e.CreatedAt().UTC())
		ve.SetStartAt(e.Target().UTC())
		ve.SetEndAt(e.Target().UTC())
		ve.SetSummary(e.Name)
		if e.Notes != "" {
			ve.SetDescription(e.Notes)
		}

		if _, ok := e.ReminderAt(); ok {
			alarm := ve.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger("-PT" + strconv.Itoa(e.NotificationLeadMinutes) + "M")
			alarm.SetProperty(ical.ComponentPropertyDescription, e.Name)
		}
	}

	return []byte(cal.Serialize())
}
