package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeuntil/internal/config"
	"timeuntil/internal/ics"
	"timeuntil/internal/model"
	"timeuntil/internal/prefs"
	"timeuntil/internal/store"
	"timeuntil/internal/testclock"
	"timeuntil/internal/widget"
)

type recordingReminders struct {
	scheduled []int64
	cancelled []int64
}

func (r *recordingReminders) Schedule(e model.Event) bool {
	r.scheduled = append(r.scheduled, e.ID)
	return true
}

func (r *recordingReminders) Cancel(id int64) {
	r.cancelled = append(r.cancelled, id)
}

type fixture struct {
	handler   http.Handler
	prefs     *prefs.Memory
	store     *store.EventStore
	bindings  *widget.Bindings
	reminders *recordingReminders
	clock     *testclock.Clock
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Timezone = "UTC"
		cfg.Normalize()
	}
	clock := testclock.New(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	p := prefs.NewMemory()
	st := store.New(p, clock.Now)
	bindings := widget.NewBindings(p)
	rem := &recordingReminders{}

	srv := NewServer(cfg, Deps{
		Store:     st,
		Bindings:  bindings,
		Updater:   widget.NewUpdater(st, bindings, clock.Now, time.UTC),
		Reminders: rem,
		Now:       clock.Now,
	})
	return &fixture{handler: srv.Handler(), prefs: p, store: st, bindings: bindings, reminders: rem, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) create(t *testing.T, name string, in time.Duration) eventDTO {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/events", map[string]any{
		"name":                      name,
		"dateTimeMillis":            f.clock.Now().Add(in).UnixMilli(),
		"notificationEnabled":       true,
		"notificationMinutesBefore": 15,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f.clock.Advance(time.Millisecond)
	return decode[eventDTO](t, rec)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCreateAndGetEvent(t *testing.T) {
	f := newFixture(t, nil)
	created := f.create(t, "  Launch ", 49*time.Hour)

	assert.Equal(t, "Launch", created.Name)
	assert.Equal(t, created.ID, created.CreatedAtMillis)
	assert.Equal(t, "2 days 1 hour", created.Remaining)
	assert.Equal(t, "Jan 03, 2026 at 01:00 PM", created.DateText)
	assert.Equal(t, []int64{created.ID}, f.reminders.scheduled)

	rec := f.do(t, http.MethodGet, "/api/events/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[eventDTO](t, rec)
	assert.Equal(t, created.Event, got.Event)

	// Stored layout uses the persisted field names.
	var raw []map[string]any
	stored, _, err := f.prefs.GetString(t.Context(), store.KeyEvents)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stored), &raw))
	assert.Contains(t, raw[0], "dateTimeMillis")
	assert.Contains(t, raw[0], "notificationMinutesBefore")
}

func TestCreateEvent_Validation(t *testing.T) {
	f := newFixture(t, nil)
	tests := map[string]any{
		"blank name":    map[string]any{"name": "  ", "dateTimeMillis": 1},
		"missing time":  map[string]any{"name": "x"},
		"negative lead": map[string]any{"name": "x", "dateTimeMillis": 1, "notificationMinutesBefore": -5},
		"bad at":        map[string]any{"name": "x", "at": "tomorrow"},
		"bad json":      "{",
	}
	for name, body := range tests {
		rec := f.do(t, http.MethodPost, "/api/events", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Empty(t, f.store.ListAll(t.Context()))
}

func TestCreateEvent_AcceptsRFC3339(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/events", map[string]any{"name": "NYE", "at": "2026-12-31T23:59:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[eventDTO](t, rec)
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC).UnixMilli(), got.TargetMillis)
}

func TestListEvents_SortAndSearch(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, "banana", 3*time.Hour)
	f.create(t, "Apple", 1*time.Hour)
	f.create(t, "cherry pie", 2*time.Hour)

	names := func(rec *httptest.ResponseRecorder) []string {
		var out []string
		for _, e := range decode[[]eventDTO](t, rec) {
			out = append(out, e.Name)
		}
		return out
	}

	rec := f.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"banana", "Apple", "cherry pie"}, names(rec))

	rec = f.do(t, http.MethodGet, "/api/events?sort=name", nil)
	assert.Equal(t, []string{"Apple", "banana", "cherry pie"}, names(rec))

	rec = f.do(t, http.MethodGet, "/api/events?sort=target&order=desc", nil)
	assert.Equal(t, []string{"banana", "cherry pie", "Apple"}, names(rec))

	rec = f.do(t, http.MethodGet, "/api/events?q=AN", nil)
	assert.Equal(t, []string{"banana"}, names(rec))

	rec = f.do(t, http.MethodGet, "/api/events?sort=color", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateEvent_KeepsIDAndCreatedAt(t *testing.T) {
	f := newFixture(t, nil)
	created := f.create(t, "Old", time.Hour)

	rec := f.do(t, http.MethodPut, "/api/events/"+itoa(created.ID), map[string]any{
		"name":           "New",
		"notes":          "moved",
		"dateTimeMillis": created.TargetMillis + 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, ok := f.store.GetByID(t.Context(), created.ID)
	require.True(t, ok)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, "moved", got.Notes)
	assert.Equal(t, created.CreatedAtMillis, got.CreatedAtMillis)
	assert.False(t, got.NotificationEnabled)
	assert.Equal(t, []int64{created.ID, created.ID}, f.reminders.scheduled)

	rec = f.do(t, http.MethodPut, "/api/events/42", map[string]any{"name": "x", "dateTimeMillis": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/events/abc", map[string]any{"name": "x", "dateTimeMillis": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAndDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, "Trip", time.Hour)

	rec := f.do(t, http.MethodPost, "/api/events/"+itoa(a.ID)+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dup := decode[eventDTO](t, rec)
	assert.Equal(t, "Trip (Copy)", dup.Name)
	assert.NotEqual(t, a.ID, dup.ID)
	assert.Equal(t, a.TargetMillis, dup.TargetMillis)

	rec = f.do(t, http.MethodDelete, "/api/events/"+itoa(a.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{a.ID}, f.reminders.cancelled)

	rec = f.do(t, http.MethodGet, "/api/events/"+itoa(a.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/events/"+itoa(a.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list := f.store.ListAll(t.Context())
	require.Len(t, list, 1)
	assert.Equal(t, dup.ID, list[0].ID)
}

func TestRemaining(t *testing.T) {
	f := newFixture(t, nil)
	e := f.create(t, "Soon", 90*time.Second)

	rec := f.do(t, http.MethodGet, "/api/events/"+itoa(e.ID)+"/remaining", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[remainingResponse](t, rec)
	assert.Equal(t, int64(1), got.Remaining.Minutes)
	assert.Equal(t, "1 minute 29 seconds", got.Text)

	rec = f.do(t, http.MethodGet, "/api/events/"+itoa(e.ID)+"/remaining?seconds=false", nil)
	assert.Equal(t, "1 minute", decode[remainingResponse](t, rec).Text)

	f.clock.Advance(time.Hour)
	rec = f.do(t, http.MethodGet, "/api/events/"+itoa(e.ID)+"/remaining?seconds=false", nil)
	got = decode[remainingResponse](t, rec)
	assert.True(t, got.Remaining.IsPast)
	assert.True(t, strings.HasPrefix(got.Text, "Passed "))
}

func TestExportImport(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, "Exported", 24*time.Hour)

	rec := f.do(t, http.MethodGet, "/api/export.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, ics.EventUID(a.Event))

	// Re-importing our own export updates in place.
	rec = f.do(t, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, importResponse{Added: 0, Updated: 1}, decode[importResponse](t, rec))
	assert.Len(t, f.store.ListAll(t.Context()), 1)

	foreign := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//x//y//EN\r\nBEGIN:VEVENT\r\nUID:x@elsewhere\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260601T100000Z\r\nSUMMARY:Foreign\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	rec = f.do(t, http.MethodPost, "/api/import", foreign)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, importResponse{Added: 1}, decode[importResponse](t, rec))
	assert.Len(t, f.store.ListAll(t.Context()), 2)

	rec = f.do(t, http.MethodPost, "/api/import", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWidgets(t *testing.T) {
	f := newFixture(t, nil)
	e := f.create(t, "Wedding", 72*time.Hour)

	rec := f.do(t, http.MethodPut, "/api/widgets/5", map[string]any{"event_id": e.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[widget.View](t, rec)
	assert.True(t, v.Found)
	assert.True(t, strings.HasPrefix(v.Remaining, "2 days 23 hours"), v.Remaining)

	rec = f.do(t, http.MethodPut, "/api/widgets/6", map[string]any{"event_id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/widgets/zero", map[string]any{"event_id": e.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/widgets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]widget.View](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, 5, views[0].WidgetID)

	rec = f.do(t, http.MethodGet, "/widgets/5?w=100&h=100", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `class="card small"`)
	assert.Contains(t, rec.Body.String(), "Wedding")

	rec = f.do(t, http.MethodGet, "/widgets/5?layout=huge", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Deleting the event leaves the widget showing the empty state.
	rec = f.do(t, http.MethodDelete, "/api/events/"+itoa(e.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/widgets/5", nil)
	assert.Contains(t, rec.Body.String(), "No event selected")

	rec = f.do(t, http.MethodDelete, "/api/widgets/5", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/widgets", nil)
	assert.Empty(t, decode[[]widget.View](t, rec))
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.Normalize()
	f := newFixture(t, cfg)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "wrong!")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPatch, "/api/events", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
