// Package store owns the persisted event list. The whole list lives as one
// JSON array under a single key of a prefs.Store; every mutation rewrites it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "timeuntil/internal/log"
	"timeuntil/internal/model"
	"timeuntil/internal/prefs"
)

// KeyEvents is the prefs key holding the serialized list.
const KeyEvents = "events_list"

// CopySuffix is appended to the name of a duplicated event.
const CopySuffix = " (Copy)"

// ErrNotFound is used by callers at the HTTP/CLI boundary; the store itself
// treats a missing id as a silent no-op.
var ErrNotFound = errors.New("event not found")

// EventStore provides CRUD over the event list. Mutations are serialized by
// an internal mutex, so concurrent callers in one process never lose an
// update. Separate processes sharing a backend are still last-writer-wins.
type EventStore struct {
	prefs prefs.Store
	now   func() time.Time

	mu     sync.Mutex
	lastID int64
}

// New returns a store over p. now may be nil for the wall clock.
func New(p prefs.Store, now func() time.Time) *EventStore {
	if now == nil {
		now = time.Now
	}
	return &EventStore{prefs: p, now: now}
}

// NewEvent builds an event with a fresh id and creation time.
func (s *EventStore) NewEvent(name, notes string, targetMillis int64) model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, created := s.nextIDLocked()
	return model.Event{
		ID:              id,
		Name:            name,
		Notes:           notes,
		TargetMillis:    targetMillis,
		CreatedAtMillis: created,
	}
}

// ListAll returns every stored event in stored order. Missing, empty or
// undecodable data yields an empty list; the caller owns the returned slice.
func (s *EventStore) ListAll(ctx context.Context) []model.Event {
	events, err := s.load(ctx)
	if err != nil {
		appLog.Error("store: read failed, returning empty list", err)
		return []model.Event{}
	}
	return events
}

// GetByID returns the first event with id.
func (s *EventStore) GetByID(ctx context.Context, id int64) (model.Event, bool) {
	for _, e := range s.ListAll(ctx) {
		if e.ID == id {
			return e, true
		}
	}
	return model.Event{}, false
}

// Add appends e as is. Uniqueness of e.ID is the caller's responsibility.
func (s *EventStore) Add(ctx context.Context, e model.Event) error {
	return s.mutate(ctx, func(events []model.Event) ([]model.Event, bool) {
		return append(events, e), true
	})
}

// UpdateByID replaces the first event whose id matches e.ID. Nothing is
// written when no event matches.
func (s *EventStore) UpdateByID(ctx context.Context, e model.Event) error {
	return s.mutate(ctx, func(events []model.Event) ([]model.Event, bool) {
		for i := range events {
			if events[i].ID == e.ID {
				events[i] = e
				return events, true
			}
		}
		return events, false
	})
}

// DeleteByID removes every event with id, keeping the others in order.
func (s *EventStore) DeleteByID(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(events []model.Event) ([]model.Event, bool) {
		kept := events[:0]
		for _, e := range events {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		return kept, true
	})
}

// Duplicate appends a copy of e with a fresh id and creation time and
// CopySuffix added to the name. The new event is returned.
func (s *EventStore) Duplicate(ctx context.Context, e model.Event) (model.Event, error) {
	var dup model.Event
	err := s.mutate(ctx, func(events []model.Event) ([]model.Event, bool) {
		dup = e
		// Both the id and the creation time must differ from e's, even
		// when e came from another process sharing the backend.
		s.lastID = max(s.lastID, e.ID, e.CreatedAtMillis)
		dup.ID, dup.CreatedAtMillis = s.nextIDLocked()
		dup.Name = e.Name + CopySuffix
		return append(events, dup), true
	})
	if err != nil {
		return model.Event{}, err
	}
	return dup, nil
}

// mutate runs one read-modify-write cycle under s.mu. fn reports whether
// the list changed and must be written back.
func (s *EventStore) mutate(ctx context.Context, fn func([]model.Event) ([]model.Event, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load(ctx)
	if err != nil {
		return err
	}
	events, changed := fn(events)
	if !changed {
		return nil
	}
	return s.save(ctx, events)
}

// load reads and decodes the list. Backend errors are returned; decode
// failures are logged and produce an empty list.
func (s *EventStore) load(ctx context.Context) ([]model.Event, error) {
	raw, ok, err := s.prefs.GetString(ctx, KeyEvents)
	if err != nil {
		return nil, fmt.Errorf("store: read events: %w", err)
	}
	if !ok || raw == "" {
		return []model.Event{}, nil
	}

	var events []model.Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		appLog.Error("store: stored events are corrupt, treating as empty", err, "bytes", len(raw))
		return []model.Event{}, nil
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

func (s *EventStore) save(ctx context.Context, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("store: encode events: %w", err)
	}
	if err := s.prefs.PutString(ctx, KeyEvents, string(data)); err != nil {
		return fmt.Errorf("store: write events: %w", err)
	}
	return nil
}

// nextIDLocked returns a new id and its creation time, which are equal.
// When the clock has not advanced past the last id, both are bumped to
// lastID+1, so neither ever repeats within one store. Caller holds s.mu.
func (s *EventStore) nextIDLocked() (id, createdAt int64) {
	id = s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id, id
}
