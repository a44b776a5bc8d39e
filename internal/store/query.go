package store

import (
	"fmt"
	"sort"
	"strings"

	"timeuntil/internal/model"
)

// SortKey selects the field used by Sort.
type SortKey string

const (
	SortCreated SortKey = "created"
	SortTarget  SortKey = "target"
	SortName    SortKey = "name"
)

// ParseSortKey accepts "created", "target" or "name". Empty means SortCreated.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortCreated:
		return SortCreated, nil
	case SortTarget:
		return SortTarget, nil
	case SortName:
		return SortName, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Sort orders events in place. Names compare case-insensitively. The sort is
// stable, so ties keep their stored order.
func Sort(events []model.Event, key SortKey, descending bool) {
	var less func(a, b model.Event) bool
	switch key {
	case SortTarget:
		less = func(a, b model.Event) bool { return a.TargetMillis < b.TargetMillis }
	case SortName:
		less = func(a, b model.Event) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	default:
		less = func(a, b model.Event) bool { return a.CreatedAtMillis < b.CreatedAtMillis }
	}

	sort.SliceStable(events, func(i, j int) bool {
		if descending {
			return less(events[j], events[i])
		}
		return less(events[i], events[j])
	})
}

// Search returns the events whose name contains query, ignoring case. An
// empty query returns all events.
func Search(events []model.Event, query string) []model.Event {
	if query == "" {
		return events
	}
	q := strings.ToLower(query)
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	return out
}
