package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	appLog "timeuntil/internal/log"
	"timeuntil/internal/widget"
)

type bindRequest struct {
	EventID int64 `json:"event_id"`
}

// handleListWidgets returns every bound widget rendered at the current time.
func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bindings, err := s.bindings.List(ctx)
	if err != nil {
		appLog.Error("api: list widgets failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read widget bindings")
		return
	}

	views := make([]widget.View, 0, len(bindings))
	for _, b := range bindings {
		v, err := s.updater.RenderWidget(ctx, b.WidgetID, "")
		if err != nil {
			appLog.Error("api: render widget failed", err, "widget_id", b.WidgetID)
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleBindWidget points a widget at an event.
//
// PUT /api/widgets/{wid} {"event_id": 1700000000000}
func (s *Server) handleBindWidget(w http.ResponseWriter, r *http.Request) {
	wid, ok := widgetIDParam(w, r)
	if !ok {
		return
	}

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctx := r.Context()
	if _, found := s.store.GetByID(ctx, req.EventID); !found {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	if err := s.bindings.Bind(ctx, wid, req.EventID); err != nil {
		appLog.Error("api: bind widget failed", err, "widget_id", wid)
		writeError(w, http.StatusInternalServerError, "failed to save widget binding")
		return
	}
	appLog.Info("widget bound", "widget_id", wid, "event_id", req.EventID)
	s.refreshWidgets(ctx)

	v, err := s.updater.RenderWidget(ctx, wid, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render widget")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUnbindWidget(w http.ResponseWriter, r *http.Request) {
	wid, ok := widgetIDParam(w, r)
	if !ok {
		return
	}
	if err := s.bindings.Unbind(r.Context(), wid); err != nil {
		appLog.Error("api: unbind widget failed", err, "widget_id", wid)
		writeError(w, http.StatusInternalServerError, "failed to remove widget binding")
		return
	}
	appLog.Info("widget unbound", "widget_id", wid)
	s.refreshWidgets(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleWidgetPage serves the HTML card for one widget, rendered fresh.
//
// GET /widgets/{wid}?layout=small
// GET /widgets/{wid}?w=180&h=110
//   - layout: small, medium or large
//   - w, h:   widget size in dp, used to pick a layout when layout is absent
func (s *Server) handleWidgetPage(w http.ResponseWriter, r *http.Request) {
	wid, ok := widgetIDParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	layout := widget.Layout(q.Get("layout"))
	switch layout {
	case widget.LayoutSmall, widget.LayoutMedium, widget.LayoutLarge:
	case "":
		width, height := parseIntDefault(q.Get("w"), 0), parseIntDefault(q.Get("h"), 0)
		if width > 0 && height > 0 {
			layout = widget.LayoutForSize(width, height)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown layout")
		return
	}

	v, err := s.updater.RenderWidget(r.Context(), wid, layout)
	if err != nil {
		appLog.Error("widget page render failed", err, "widget_id", wid)
		http.Error(w, "failed to render widget", http.StatusInternalServerError)
		return
	}
	body, err := widget.HTML(v)
	if err != nil {
		appLog.Error("widget page template failed", err, "widget_id", wid)
		http.Error(w, "failed to render widget", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func widgetIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	wid, err := strconv.Atoi(r.PathValue("wid"))
	if err != nil || wid <= 0 {
		writeError(w, http.StatusBadRequest, "invalid widget id")
		return 0, false
	}
	return wid, true
}
