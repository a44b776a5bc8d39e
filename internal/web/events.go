package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"timeuntil/internal/ics"
	appLog "timeuntil/internal/log"
	"timeuntil/internal/model"
	"timeuntil/internal/store"
	"timeuntil/internal/timecalc"
)

// maxImportBytes bounds POST /api/import bodies.
const maxImportBytes = 5 << 20

// eventDTO is an event decorated for display.
type eventDTO struct {
	model.Event
	DateText  string `json:"date_text"`
	Remaining string `json:"remaining"`
	IsPast    bool   `json:"is_past"`
}

// eventInput is the request body for create and update. The target may be
// given as dateTimeMillis or as an RFC3339 "at" string.
type eventInput struct {
	Name                      string `json:"name"`
	Notes                     string `json:"notes"`
	DateTimeMillis            int64  `json:"dateTimeMillis"`
	At                        string `json:"at"`
	NotificationEnabled       bool   `json:"notificationEnabled"`
	NotificationMinutesBefore int    `json:"notificationMinutesBefore"`
}

func (in eventInput) targetMillis() (int64, error) {
	if in.At == "" {
		return in.DateTimeMillis, nil
	}
	t, err := time.Parse(time.RFC3339, in.At)
	if err != nil {
		return 0, errors.New("at must be RFC3339")
	}
	return t.UnixMilli(), nil
}

// apply copies the editable fields of in onto e.
func (in eventInput) apply(e *model.Event) error {
	target, err := in.targetMillis()
	if err != nil {
		return err
	}
	e.Name = strings.TrimSpace(in.Name)
	e.Notes = in.Notes
	e.TargetMillis = target
	e.NotificationEnabled = in.NotificationEnabled
	e.NotificationLeadMinutes = in.NotificationMinutesBefore
	return e.Validate()
}

func (s *Server) decorate(e model.Event, nowMillis int64) eventDTO {
	r := timecalc.Compute(e.TargetMillis, nowMillis)
	return eventDTO{
		Event:     e,
		DateText:  timecalc.FormatDateTime(e.TargetMillis, s.loc),
		Remaining: timecalc.Format(r, false),
		IsPast:    r.IsPast,
	}
}

// handleListEvents returns stored events.
//
// GET /api/events?sort=created&order=desc&q=party
//   - sort:  created (default), target or name
//   - order: asc (default) or desc
//   - q:     case-insensitive name filter
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := store.ParseSortKey(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	desc := strings.EqualFold(q.Get("order"), "desc")

	events := store.Search(s.store.ListAll(r.Context()), q.Get("q"))
	store.Sort(events, key, desc)

	now := s.now().UnixMilli()
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, s.decorate(e, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in eventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	e := s.store.NewEvent("", "", 0)
	if err := in.apply(&e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Add(r.Context(), e); err != nil {
		appLog.Error("api: add event failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save event")
		return
	}

	appLog.Info("event created", "id", e.ID, "name", e.Name)
	s.afterSave(r, e)
	writeJSON(w, http.StatusCreated, s.decorate(e, s.now().UnixMilli()))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEvent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.decorate(e, s.now().UnixMilli()))
}

// handleUpdateEvent replaces the editable fields of an event. The id and
// creation time always come from the stored record.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEvent(w, r)
	if !ok {
		return
	}

	var in eventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := in.apply(&e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateByID(r.Context(), e); err != nil {
		appLog.Error("api: update event failed", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to save event")
		return
	}

	appLog.Info("event updated", "id", e.ID)
	s.afterSave(r, e)
	writeJSON(w, http.StatusOK, s.decorate(e, s.now().UnixMilli()))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEvent(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteByID(r.Context(), e.ID); err != nil {
		appLog.Error("api: delete event failed", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	appLog.Info("event deleted", "id", e.ID)
	if s.reminders != nil {
		s.reminders.Cancel(e.ID)
	}
	s.refreshWidgets(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicateEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEvent(w, r)
	if !ok {
		return
	}
	dup, err := s.store.Duplicate(r.Context(), e)
	if err != nil {
		appLog.Error("api: duplicate event failed", err, "id", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to duplicate event")
		return
	}

	appLog.Info("event duplicated", "id", e.ID, "new_id", dup.ID)
	s.afterSave(r, dup)
	writeJSON(w, http.StatusCreated, s.decorate(dup, s.now().UnixMilli()))
}

// remainingResponse is the JSON response shape for
// /api/events/{id}/remaining.
type remainingResponse struct {
	EventID   int64              `json:"event_id"`
	Remaining timecalc.Remaining `json:"remaining"`
	Text      string             `json:"text"`
}

// handleRemaining returns the countdown breakdown for one event.
//
// GET /api/events/{id}/remaining?seconds=false
//   - seconds: include the seconds unit in text (default true)
func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEvent(w, r)
	if !ok {
		return
	}
	withSeconds := parseBoolDefault(r.URL.Query().Get("seconds"), true)

	rem := timecalc.Compute(e.TargetMillis, s.now().UnixMilli())
	writeJSON(w, http.StatusOK, remainingResponse{
		EventID:   e.ID,
		Remaining: rem,
		Text:      timecalc.Format(rem, withSeconds),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	body := ics.Export(s.store.ListAll(r.Context()), s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timeuntil.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// importResponse is the JSON response shape for /api/import.
type importResponse struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// handleImport merges an ICS payload into the store. Events whose id is
// already stored are replaced; others are appended.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "import body too large")
		return
	}

	events, err := ics.Import(body, s.store.NewEvent)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	var resp importResponse
	for _, e := range events {
		if _, exists := s.store.GetByID(ctx, e.ID); exists {
			err = s.store.UpdateByID(ctx, e)
			resp.Updated++
		} else {
			err = s.store.Add(ctx, e)
			resp.Added++
		}
		if err != nil {
			appLog.Error("api: import save failed", err, "id", e.ID)
			writeError(w, http.StatusInternalServerError, "failed to save imported events")
			return
		}
		if s.reminders != nil {
			s.reminders.Schedule(e)
		}
	}

	appLog.Info("ics imported", "added", resp.Added, "updated", resp.Updated)
	s.refreshWidgets(ctx)
	writeJSON(w, http.StatusOK, resp)
}

// afterSave reschedules the reminder for e and refreshes widgets.
func (s *Server) afterSave(r *http.Request, e model.Event) {
	if s.reminders != nil {
		s.reminders.Schedule(e)
	}
	s.refreshWidgets(r.Context())
}

// lookupEvent resolves the {id} path value. It writes the error response
// and returns false when the id is malformed or unknown.
func (s *Server) lookupEvent(w http.ResponseWriter, r *http.Request) (model.Event, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return model.Event{}, false
	}
	e, ok := s.store.GetByID(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return model.Event{}, false
	}
	return e, true
}
