package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"timeuntil/internal/capture"
	"timeuntil/internal/ics"
	appLog "timeuntil/internal/log"
	"timeuntil/internal/model"
	"timeuntil/internal/store"
	"timeuntil/internal/timecalc"
	"timeuntil/internal/widget"
)

type command func(ctx context.Context, a *app, args []string) error

var commands map[string]command

func init() {
	commands = map[string]command{
		"serve":     runServe,
		"list":      runList,
		"show":      runShow,
		"add":       runAdd,
		"edit":      runEdit,
		"delete":    runDelete,
		"duplicate": runDuplicate,
		"export":    runExport,
		"import":    runImport,
		"widget":    runWidget,
		"snapshot":  runSnapshot,
	}
}

// inputLayout is the short form accepted by -at besides RFC3339.
const inputLayout = "2006-01-02 15:04"

// parseAt reads a target time given as RFC3339 or "2006-01-02 15:04" in loc.
func parseAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(inputLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or %q", s, inputLayout)
	}
	return t, nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("timeuntil "+name, flag.ContinueOnError)
}

func (a *app) mustGet(ctx context.Context, id int64) (model.Event, error) {
	if id == 0 {
		return model.Event{}, errors.New("-id is required")
	}
	e, ok := a.store.GetByID(ctx, id)
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	return e, nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("list")
	sortBy := fs.String("sort", string(store.SortCreated), "Sort key: created, target or name")
	desc := fs.Bool("desc", false, "Sort descending")
	query := fs.String("q", "", "Only events whose name contains this text")
	seconds := fs.Bool("seconds", false, "Include seconds in the remaining time")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := store.ParseSortKey(*sortBy)
	if err != nil {
		return err
	}
	events := store.Search(a.store.ListAll(ctx), *query)
	store.Sort(events, key, *desc)

	now := time.Now().UnixMilli()
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, eventRow(e, now, a.loc, *seconds))
	}
	return writeTable(a.stdout, []string{"ID", "NAME", "WHEN", "REMAINING", "REMINDER"}, rows)
}

func eventRow(e model.Event, nowMillis int64, loc *time.Location, seconds bool) []string {
	reminder := "-"
	if _, ok := e.ReminderAt(); ok {
		reminder = strconv.Itoa(e.NotificationLeadMinutes) + "m before"
	}
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.Name,
		timecalc.FormatDateTime(e.TargetMillis, loc),
		timecalc.Format(timecalc.Compute(e.TargetMillis, nowMillis), seconds),
		reminder,
	}
}

func runShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("show")
	id := fs.Int64("id", 0, "Event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := a.mustGet(ctx, *id)
	if err != nil {
		return err
	}
	printEvent(a.stdout, e, a.loc)
	return nil
}

func printEvent(w io.Writer, e model.Event, loc *time.Location) {
	r := timecalc.Compute(e.TargetMillis, time.Now().UnixMilli())
	fmt.Fprintf(w, "ID:        %d\n", e.ID)
	fmt.Fprintf(w, "Name:      %s\n", e.Name)
	fmt.Fprintf(w, "When:      %s\n", timecalc.FormatDateTime(e.TargetMillis, loc))
	fmt.Fprintf(w, "Remaining: %s\n", timecalc.Format(r, true))
	if _, ok := e.ReminderAt(); ok {
		fmt.Fprintf(w, "Reminder:  %d minutes before\n", e.NotificationLeadMinutes)
	} else {
		fmt.Fprintln(w, "Reminder:  off")
	}
	fmt.Fprintf(w, "Created:   %s\n", timecalc.FormatDateTime(e.CreatedAtMillis, loc))
	if e.Notes != "" {
		fmt.Fprintf(w, "Notes:     %s\n", e.Notes)
	}
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("add")
	name := fs.String("name", "", "Event name")
	at := fs.String("at", "", `Target time, RFC3339 or "2006-01-02 15:04"`)
	notes := fs.String("notes", "", "Free-form notes")
	remind := fs.Int("remind", 0, "Reminder lead time in minutes (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *at == "" {
		return errors.New("-at is required")
	}
	target, err := parseAt(*at, a.loc)
	if err != nil {
		return err
	}

	e := a.store.NewEvent(strings.TrimSpace(*name), *notes, target.UnixMilli())
	e.NotificationEnabled = *remind > 0
	e.NotificationLeadMinutes = *remind
	if err := e.Validate(); err != nil {
		return err
	}
	if err := a.store.Add(ctx, e); err != nil {
		return err
	}
	appLog.Info("event added", "id", e.ID, "name", e.Name)
	fmt.Fprintln(a.stdout, e.ID)
	return nil
}

// runEdit changes only the fields whose flags were given.
func runEdit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("edit")
	id := fs.Int64("id", 0, "Event id")
	name := fs.String("name", "", "New name")
	at := fs.String("at", "", "New target time")
	notes := fs.String("notes", "", "New notes")
	remind := fs.Int("remind", 0, "Reminder lead time in minutes (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := a.mustGet(ctx, *id)
	if err != nil {
		return err
	}

	var visitErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			e.Name = strings.TrimSpace(*name)
		case "notes":
			e.Notes = *notes
		case "remind":
			e.NotificationEnabled = *remind > 0
			e.NotificationLeadMinutes = *remind
		case "at":
			t, perr := parseAt(*at, a.loc)
			if perr != nil {
				visitErr = perr
				return
			}
			e.TargetMillis = t.UnixMilli()
		}
	})
	if visitErr != nil {
		return visitErr
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if err := a.store.UpdateByID(ctx, e); err != nil {
		return err
	}
	appLog.Info("event updated", "id", e.ID)
	printEvent(a.stdout, e, a.loc)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("delete")
	id := fs.Int64("id", 0, "Event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := a.mustGet(ctx, *id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteByID(ctx, e.ID); err != nil {
		return err
	}
	appLog.Info("event deleted", "id", e.ID)
	return nil
}

func runDuplicate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("duplicate")
	id := fs.Int64("id", 0, "Event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := a.mustGet(ctx, *id)
	if err != nil {
		return err
	}
	dup, err := a.store.Duplicate(ctx, e)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, dup.ID)
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("export")
	out := fs.String("o", "-", "Output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	events := a.store.ListAll(ctx)
	body := ics.Export(events, time.Now())
	if *out == "-" {
		_, err := a.stdout.Write(body)
		return err
	}
	if err := os.WriteFile(*out, body, 0o644); err != nil {
		return err
	}
	appLog.Info("events exported", "count", len(events), "path", *out)
	return nil
}

// runImport merges an ICS file into the store. Events that already exist
// by id are replaced.
func runImport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("import")
	in := fs.String("i", "-", "Input file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		body []byte
		err  error
	)
	if *in == "-" {
		body, err = io.ReadAll(a.stdin)
	} else {
		body, err = os.ReadFile(*in)
	}
	if err != nil {
		return err
	}

	events, err := ics.Import(body, a.store.NewEvent)
	if err != nil {
		return err
	}
	added, updated := 0, 0
	for _, e := range events {
		if _, exists := a.store.GetByID(ctx, e.ID); exists {
			err = a.store.UpdateByID(ctx, e)
			updated++
		} else {
			err = a.store.Add(ctx, e)
			added++
		}
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(a.stdout, "added %d, updated %d\n", added, updated)
	return nil
}

func runWidget(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("widget: expected bind, unbind or list")
	}
	sub, args := args[0], args[1:]

	fs := newFlagSet("widget " + sub)
	wid := fs.Int("widget", 0, "Widget id")
	eventID := fs.Int64("event", 0, "Event id (bind)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		list, err := a.bindings.List(ctx)
		if err != nil {
			return err
		}
		updater := widget.NewUpdater(a.store, a.bindings, nil, a.loc)
		rows := make([][]string, 0, len(list))
		for _, b := range list {
			v, err := updater.RenderWidget(ctx, b.WidgetID, "")
			if err != nil {
				return err
			}
			name, remaining := v.Name, v.Remaining
			if !v.Found {
				name, remaining = "(event not found)", "-"
			}
			rows = append(rows, []string{strconv.Itoa(b.WidgetID), strconv.FormatInt(b.EventID, 10), name, remaining})
		}
		return writeTable(a.stdout, []string{"WIDGET", "EVENT", "NAME", "REMAINING"}, rows)
	case "bind":
		if *wid <= 0 {
			return errors.New("-widget is required")
		}
		if _, err := a.mustGet(ctx, *eventID); err != nil {
			return err
		}
		return a.bindings.Bind(ctx, *wid, *eventID)
	case "unbind":
		if *wid <= 0 {
			return errors.New("-widget is required")
		}
		return a.bindings.Unbind(ctx, *wid)
	default:
		return fmt.Errorf("widget: unknown subcommand %q", sub)
	}
}

// runSnapshot captures a widget card from a running server.
func runSnapshot(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("snapshot")
	wid := fs.Int("widget", 0, "Widget id")
	out := fs.String("o", "", "Output PNG path (default: <capture.output_dir>/widget-N.png)")
	layout := fs.String("layout", string(widget.LayoutMedium), "Card layout: small, medium or large")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *wid <= 0 {
		return errors.New("-widget is required")
	}
	path := *out
	if path == "" {
		path = capture.OutputPath(a.cfg.Capture.OutputDir, *wid)
	}

	opts := capture.CaptureOptions{
		URL:        capture.WidgetURL(a.cfg.Capture.BaseURL, *wid, widget.Layout(*layout)),
		OutputPath: path,
		Layout:     widget.Layout(*layout),
	}
	if err := capture.CaptureWidgetPNG(ctx, opts); err != nil {
		return err
	}
	appLog.Info("widget snapshot written", "widget_id", *wid, "path", path)
	fmt.Fprintln(a.stdout, path)
	return nil
}
