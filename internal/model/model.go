package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEvent is returned by Validate for events rejected at the input
// boundary (web API, CLI). The store itself accepts any event.
var ErrInvalidEvent = errors.New("invalid event")

// Event is a single countdown target. The JSON field names are the persisted
// layout and must stay stable so previously saved lists keep loading.
type Event struct {
	// ID is unique within the stored list. It is derived from the creation
	// time in milliseconds.
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes"`

	// TargetMillis is the moment the countdown points at (ms since epoch).
	TargetMillis int64 `json:"dateTimeMillis"`
	// CreatedAtMillis is set once on creation and never changed.
	CreatedAtMillis int64 `json:"createdAtMillis"`

	NotificationEnabled bool `json:"notificationEnabled"`
	// NotificationLeadMinutes is how long before TargetMillis the reminder
	// fires. Zero means no reminder.
	NotificationLeadMinutes int `json:"notificationMinutesBefore"`
}

// Target returns TargetMillis as a time.Time.
func (e Event) Target() time.Time {
	return time.UnixMilli(e.TargetMillis)
}

// CreatedAt returns CreatedAtMillis as a time.Time.
func (e Event) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMillis)
}

// ReminderAt returns the reminder trigger time in milliseconds and whether a
// reminder is configured at all. It does not look at the current time.
func (e Event) ReminderAt() (int64, bool) {
	if !e.NotificationEnabled || e.NotificationLeadMinutes <= 0 {
		return 0, false
	}
	return e.TargetMillis - int64(e.NotificationLeadMinutes)*60_000, true
}

// Validate applies the input rules used by the UI: a non-blank name, a
// selected target time and a non-negative lead time.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if e.TargetMillis == 0 {
		return fmt.Errorf("%w: date and time are required", ErrInvalidEvent)
	}
	if e.NotificationLeadMinutes < 0 {
		return fmt.Errorf("%w: reminder lead time must not be negative", ErrInvalidEvent)
	}
	return nil
}
