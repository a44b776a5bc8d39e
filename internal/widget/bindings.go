// Package widget renders glanceable countdown cards for events pinned to a
// widget slot, and keeps them fresh on a schedule.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"timeuntil/internal/prefs"
)

const (
	keyPrefix = "widget_event_"
	keyIndex  = "widget_ids"
)

// Bindings maps widget ids to the event each widget shows. Entries live in
// the same prefs.Store as the events.
type Bindings struct {
	prefs prefs.Store
	mu    sync.Mutex
}

func NewBindings(p prefs.Store) *Bindings {
	return &Bindings{prefs: p}
}

// Binding pairs a widget with its event.
type Binding struct {
	WidgetID int   `json:"widget_id"`
	EventID  int64 `json:"event_id"`
}

func bindingKey(widgetID int) string {
	return keyPrefix + strconv.Itoa(widgetID)
}

// Bind points widgetID at eventID, replacing any previous binding.
func (b *Bindings) Bind(ctx context.Context, widgetID int, eventID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.prefs.PutString(ctx, bindingKey(widgetID), strconv.FormatInt(eventID, 10)); err != nil {
		return fmt.Errorf("widget: bind %d: %w", widgetID, err)
	}

	ids, err := b.indexLocked(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == widgetID {
			return nil
		}
	}
	return b.saveIndexLocked(ctx, append(ids, widgetID))
}

// Unbind forgets widgetID. Unknown ids are ignored.
func (b *Bindings) Unbind(ctx context.Context, widgetID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.prefs.Remove(ctx, bindingKey(widgetID)); err != nil {
		return fmt.Errorf("widget: unbind %d: %w", widgetID, err)
	}

	ids, err := b.indexLocked(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != widgetID {
			kept = append(kept, id)
		}
	}
	return b.saveIndexLocked(ctx, kept)
}

// Lookup returns the event bound to widgetID.
func (b *Bindings) Lookup(ctx context.Context, widgetID int) (int64, bool, error) {
	raw, ok, err := b.prefs.GetString(ctx, bindingKey(widgetID))
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A garbled entry behaves like an unconfigured widget.
		return 0, false, nil
	}
	return id, true, nil
}

// List returns every binding ordered by widget id.
func (b *Bindings) List(ctx context.Context) ([]Binding, error) {
	b.mu.Lock()
	ids, err := b.indexLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sort.Ints(ids)
	out := make([]Binding, 0, len(ids))
	for _, wid := range ids {
		eid, ok, err := b.Lookup(ctx, wid)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Binding{WidgetID: wid, EventID: eid})
		}
	}
	return out, nil
}

func (b *Bindings) indexLocked(ctx context.Context) ([]int, error) {
	raw, ok, err := b.prefs.GetString(ctx, keyIndex)
	if err != nil {
		return nil, fmt.Errorf("widget: read index: %w", err)
	}
	if !ok || raw == "" {
		return []int{}, nil
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return []int{}, nil
	}
	return ids, nil
}

func (b *Bindings) saveIndexLocked(ctx context.Context, ids []int) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := b.prefs.PutString(ctx, keyIndex, string(data)); err != nil {
		return fmt.Errorf("widget: write index: %w", err)
	}
	return nil
}
