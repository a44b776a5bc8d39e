package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "timeuntil/internal/log"
	"timeuntil/internal/model"
)

// EventSource is the event lookup the updater needs.
type EventSource interface {
	GetByID(ctx context.Context, id int64) (model.Event, bool)
}

// RefreshHook runs after every refresh with the fresh views, e.g. to
// capture PNG snapshots.
type RefreshHook func(ctx context.Context, views []View)

// Updater re-renders every bound widget and keeps the latest views.
type Updater struct {
	events   EventSource
	bindings *Bindings
	now      func() time.Time
	loc      *time.Location
	hook     RefreshHook

	mu        sync.RWMutex
	views     map[int]View
	refreshed time.Time
}

// NewUpdater creates an updater. now may be nil for the wall clock and loc
// nil for time.Local.
func NewUpdater(events EventSource, bindings *Bindings, now func() time.Time, loc *time.Location) *Updater {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Updater{
		events:   events,
		bindings: bindings,
		now:      now,
		loc:      loc,
		views:    make(map[int]View),
	}
}

// SetHook installs fn to run after each refresh.
func (u *Updater) SetHook(fn RefreshHook) {
	u.mu.Lock()
	u.hook = fn
	u.mu.Unlock()
}

// RenderWidget renders widgetID right now without touching the snapshot.
func (u *Updater) RenderWidget(ctx context.Context, widgetID int, layout Layout) (View, error) {
	eventID, ok, err := u.bindings.Lookup(ctx, widgetID)
	if err != nil {
		return View{}, err
	}
	if !ok {
		return Empty(widgetID, layout), nil
	}
	e, found := u.events.GetByID(ctx, eventID)
	if !found {
		v := Empty(widgetID, layout)
		v.EventID = eventID
		return v, nil
	}
	return Render(widgetID, e, u.now(), u.loc, layout), nil
}

// RefreshAll re-renders every bound widget and returns the new views.
func (u *Updater) RefreshAll(ctx context.Context) ([]View, error) {
	bindings, err := u.bindings.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(bindings))
	next := make(map[int]View, len(bindings))
	for _, b := range bindings {
		v, err := u.RenderWidget(ctx, b.WidgetID, "")
		if err != nil {
			appLog.Error("widget render failed", err, "widget_id", b.WidgetID)
			continue
		}
		views = append(views, v)
		next[b.WidgetID] = v
	}

	u.mu.Lock()
	u.views = next
	u.refreshed = u.now()
	hook := u.hook
	u.mu.Unlock()

	appLog.Debug("widgets refreshed", "count", len(views))
	if hook != nil {
		hook(ctx, views)
	}
	return views, nil
}

// Snapshot returns the views from the last refresh.
func (u *Updater) Snapshot() ([]View, time.Time) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]View, 0, len(u.views))
	for _, v := range u.views {
		out = append(out, v)
	}
	return out, u.refreshed
}

// Run refreshes once, then on every tick of the cron schedule spec until
// ctx is cancelled.
func (u *Updater) Run(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := u.RefreshAll(ctx); err != nil {
			appLog.Error("scheduled widget refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("widget: invalid refresh schedule %q: %w", spec, err)
	}

	if _, err := u.RefreshAll(ctx); err != nil {
		appLog.Error("initial widget refresh failed", err)
	}

	appLog.Info("widget updater started", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("widget updater stopped")
	return nil
}

// ValidateSchedule reports whether spec is a valid five-field cron expression.
func ValidateSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
