package widget

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeuntil/internal/model"
	"timeuntil/internal/prefs"
	"timeuntil/internal/store"
	"timeuntil/internal/testclock"
)

func TestLayoutForSize(t *testing.T) {
	tests := []struct {
		w, h int
		want Layout
	}{
		{110, 110, LayoutSmall},
		{149, 149, LayoutSmall},
		{150, 100, LayoutMedium},
		{219, 149, LayoutMedium},
		{220, 100, LayoutLarge},
		{100, 150, LayoutLarge},
		{400, 400, LayoutLarge},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, LayoutForSize(tc.w, tc.h), "%dx%d", tc.w, tc.h)
	}
}

func TestBindings(t *testing.T) {
	ctx := context.Background()
	b := NewBindings(prefs.NewMemory())

	_, ok, err := b.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Bind(ctx, 7, 100))
	require.NoError(t, b.Bind(ctx, 3, 200))
	require.NoError(t, b.Bind(ctx, 7, 300))

	id, ok, err := b.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(300), id)

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Binding{{WidgetID: 3, EventID: 200}, {WidgetID: 7, EventID: 300}}, list)

	require.NoError(t, b.Unbind(ctx, 7))
	require.NoError(t, b.Unbind(ctx, 99))
	list, err = b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Binding{{WidgetID: 3, EventID: 200}}, list)
}

func TestRender(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	e := model.Event{ID: 9, Name: "Concert", TargetMillis: now.Add(26*time.Hour + 30*time.Second).UnixMilli()}

	v := Render(1, e, now, time.UTC, LayoutLarge)
	assert.Equal(t, View{
		WidgetID:  1,
		EventID:   9,
		Found:     true,
		Name:      "Concert",
		DateText:  "Jan 02, 2026 at 12:00 PM",
		Remaining: "1 day 2 hours",
		Layout:    LayoutLarge,
	}, v)

	past := Render(1, e, now.Add(72*time.Hour), time.UTC, "")
	assert.True(t, past.Past)
	assert.Equal(t, LayoutMedium, past.Layout)
	assert.True(t, strings.HasPrefix(past.Remaining, "Passed "))
}

func TestHTML(t *testing.T) {
	v := View{WidgetID: 4, Found: true, Name: "<b>Party</b>", Remaining: "3 days", DateText: "Jan 02, 2026 at 12:00 PM", Past: true, Layout: LayoutSmall}
	out, err := HTML(v)
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, `data-ready="true"`)
	assert.Contains(t, html, `class="card small past"`)
	assert.Contains(t, html, "&lt;b&gt;Party&lt;/b&gt;")
	assert.Contains(t, html, "3 days")

	out, err = HTML(Empty(5, ""))
	require.NoError(t, err)
	assert.Contains(t, string(out), "No event selected")
}

func TestUpdater_RefreshAll(t *testing.T) {
	ctx := context.Background()
	clock := testclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := prefs.NewMemory()
	st := store.New(p, clock.Now)
	bindings := NewBindings(p)

	e := st.NewEvent("New Year", "", clock.Now().Add(48*time.Hour).UnixMilli())
	require.NoError(t, st.Add(ctx, e))
	require.NoError(t, bindings.Bind(ctx, 1, e.ID))
	require.NoError(t, bindings.Bind(ctx, 2, 12345))

	u := NewUpdater(st, bindings, clock.Now, time.UTC)
	var hooked []View
	u.SetHook(func(_ context.Context, views []View) { hooked = views })

	views, err := u.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "2 days", views[0].Remaining)
	assert.True(t, views[0].Found)
	assert.False(t, views[1].Found)
	assert.Equal(t, int64(12345), views[1].EventID)
	assert.Equal(t, views, hooked)

	snap, at := u.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, clock.Now(), at)

	v, err := u.RenderWidget(ctx, 42, LayoutSmall)
	require.NoError(t, err)
	assert.Equal(t, Empty(42, LayoutSmall), v)
}

func TestUpdater_RunStopsWithContext(t *testing.T) {
	p := prefs.NewMemory()
	u := NewUpdater(store.New(p, nil), NewBindings(p), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx, "*/15 * * * *") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("updater did not stop")
	}

	assert.Error(t, u.Run(context.Background(), "not a schedule"))
	assert.NoError(t, ValidateSchedule("*/15 * * * *"))
	assert.Error(t, ValidateSchedule("every minute"))
}
