// Package reminder arranges one-shot notifications ahead of event targets.
package reminder

import (
	"context"
	"sync"
	"time"

	appLog "timeuntil/internal/log"
	"timeuntil/internal/model"
	"timeuntil/internal/timecalc"
)

// Plan returns when the reminder for e should fire. ok is false when the
// event has no reminder or its trigger time is not in the future.
func Plan(e model.Event, nowMillis int64) (triggerMillis int64, ok bool) {
	at, enabled := e.ReminderAt()
	if !enabled || at <= nowMillis {
		return 0, false
	}
	return at, true
}

// Notification is the user-visible reminder.
type Notification struct {
	EventID int64  `json:"event_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogNotifier writes reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	appLog.Info("reminder", "event_id", n.EventID, "title", n.Title, "body", n.Body)
	return nil
}

// Source is the read side of the event store the scheduler needs.
type Source interface {
	ListAll(ctx context.Context) []model.Event
	GetByID(ctx context.Context, id int64) (model.Event, bool)
}

// Timer is the subset of *time.Timer used by the scheduler.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler keeps at most one pending reminder per event id.
type Scheduler struct {
	source   Source
	notifier Notifier
	now      func() time.Time
	after    AfterFunc
	loc      *time.Location

	// ctx is the parent context for notifications fired by timers.
	ctx context.Context

	mu      sync.Mutex
	pending map[int64]*pendingReminder
}

type pendingReminder struct {
	timer Timer
	// triggerMillis is the trigger the timer was armed for.
	triggerMillis int64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithAfterFunc overrides timer creation, mainly for tests.
func WithAfterFunc(after AfterFunc) Option {
	return func(s *Scheduler) { s.after = after }
}

// WithLocation sets the zone used in notification text.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// NewScheduler creates a scheduler. Notifications fired by timers use ctx;
// once ctx is done pending timers become no-ops.
func NewScheduler(ctx context.Context, source Source, notifier Notifier, opts ...Option) *Scheduler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	s := &Scheduler{
		source:   source,
		notifier: notifier,
		now:      time.Now,
		after:    realAfterFunc,
		loc:      time.Local,
		ctx:      ctx,
		pending:  make(map[int64]*pendingReminder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule (re)arms the reminder for e, replacing any pending one. It
// reports whether a reminder is now pending.
func (s *Scheduler) Schedule(e model.Event) bool {
	now := s.now()
	trigger, ok := Plan(e, now.UnixMilli())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(e.ID)
	if !ok {
		return false
	}

	delay := time.UnixMilli(trigger).Sub(now)
	id := e.ID
	p := &pendingReminder{triggerMillis: trigger}
	p.timer = s.after(delay, func() { s.fire(id, p) })
	s.pending[id] = p

	appLog.Debug("reminder scheduled", "event_id", id, "trigger", time.UnixMilli(trigger).Format(time.RFC3339), "in", delay.String())
	return true
}

// Cancel drops the pending reminder for id, if any.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(id)
}

func (s *Scheduler) cancelLocked(id int64) {
	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

// RescheduleAll arms reminders for every stored event, as done at startup.
// It returns the number of reminders now pending.
func (s *Scheduler) RescheduleAll(ctx context.Context) int {
	n := 0
	for _, e := range s.source.ListAll(ctx) {
		if s.Schedule(e) {
			n++
		}
	}
	appLog.Info("reminders rescheduled", "pending", n)
	return n
}

// Pending returns the number of armed reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all pending reminders.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

// fire runs when a timer expires. The event is re-read so edits and
// deletions after scheduling are honored: a deleted or disabled reminder is
// dropped and a moved trigger is re-armed instead of notifying.
func (s *Scheduler) fire(id int64, p *pendingReminder) {
	s.mu.Lock()
	cur, ok := s.pending[id]
	if !ok || cur != p {
		// Cancelled or replaced after the timer had already fired.
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	e, ok := s.source.GetByID(s.ctx, id)
	if !ok {
		appLog.Debug("reminder skipped, event gone", "event_id", id)
		return
	}

	// The event may have been edited by another process since scheduling.
	trigger, ok := e.ReminderAt()
	if !ok {
		appLog.Debug("reminder skipped, disabled since scheduling", "event_id", id)
		return
	}
	if trigger != p.triggerMillis {
		appLog.Debug("reminder trigger moved, rescheduling", "event_id", id)
		s.Schedule(e)
		return
	}

	n := Build(e, s.loc)
	if err := s.notifier.Notify(s.ctx, n); err != nil {
		appLog.Error("reminder delivery failed", err, "event_id", id)
	}
}

// Build renders the notification for e.
func Build(e model.Event, loc *time.Location) Notification {
	return Notification{
		EventID: e.ID,
		Title:   e.Name,
		Body:    "Event at " + timecalc.FormatDateTime(e.TargetMillis, loc),
	}
}
