package widget

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"timeuntil/internal/model"
	"timeuntil/internal/timecalc"
)

// Layout is the card variant chosen from the widget's size.
type Layout string

const (
	LayoutSmall  Layout = "small"
	LayoutMedium Layout = "medium"
	LayoutLarge  Layout = "large"
)

// Size breakpoints in dp.
const (
	widthSmallBreakpoint  = 150
	widthMediumBreakpoint = 220
	heightSmallBreakpoint = 150
)

// LayoutForSize picks the layout for a widget of the given size.
func LayoutForSize(widthDp, heightDp int) Layout {
	switch {
	case widthDp < widthSmallBreakpoint && heightDp < heightSmallBreakpoint:
		return LayoutSmall
	case widthDp < widthMediumBreakpoint && heightDp < heightSmallBreakpoint:
		return LayoutMedium
	default:
		return LayoutLarge
	}
}

// View is everything a card shows.
type View struct {
	WidgetID  int    `json:"widget_id"`
	EventID   int64  `json:"event_id"`
	Found     bool   `json:"found"`
	Name      string `json:"name"`
	DateText  string `json:"date_text"`
	Remaining string `json:"remaining"`
	Past      bool   `json:"past"`
	Layout    Layout `json:"layout"`
}

// Render builds the view for e at now. Seconds are never shown on widgets.
func Render(widgetID int, e model.Event, now time.Time, loc *time.Location, layout Layout) View {
	r := timecalc.Compute(e.TargetMillis, now.UnixMilli())
	if layout == "" {
		layout = LayoutMedium
	}
	return View{
		WidgetID:  widgetID,
		EventID:   e.ID,
		Found:     true,
		Name:      e.Name,
		DateText:  timecalc.FormatDateTime(e.TargetMillis, loc),
		Remaining: timecalc.Format(r, false),
		Past:      r.IsPast,
		Layout:    layout,
	}
}

// Empty is the view for a widget whose event is unset or deleted.
func Empty(widgetID int, layout Layout) View {
	if layout == "" {
		layout = LayoutMedium
	}
	return View{WidgetID: widgetID, Layout: layout}
}

//go:embed templates/card.html.tmpl
var templatesFS embed.FS

var cardTemplate = template.Must(template.ParseFS(templatesFS, "templates/card.html.tmpl"))

// HTML renders v as a standalone page.
func HTML(v View) ([]byte, error) {
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
