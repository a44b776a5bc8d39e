package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"timeuntil/internal/capture"
	appLog "timeuntil/internal/log"
	"timeuntil/internal/reminder"
	"timeuntil/internal/web"
	"timeuntil/internal/widget"
)

// runServe starts the HTTP server, the reminder scheduler and the widget
// refresh schedule, and blocks until SIGINT/SIGTERM or a component fails.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("serve: unexpected arguments %v", fs.Args())
	}

	appLog.Info("timeuntil starting", "version", version, "listen", "http://"+a.cfg.Listen)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := widget.ValidateSchedule(a.cfg.RefreshCron); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var reminders web.Reminders
	if a.cfg.Reminders.Enabled {
		sched := reminder.NewScheduler(gctx, a.store, reminder.LogNotifier{}, reminder.WithLocation(a.loc))
		sched.RescheduleAll(gctx)
		defer sched.Stop()
		reminders = sched
	}

	updater := widget.NewUpdater(a.store, a.bindings, nil, a.loc)
	if a.cfg.Capture.Enabled {
		updater.SetHook(snapshotHook(gctx, a))
	}

	srv := web.NewServer(a.cfg, web.Deps{
		Store:     a.store,
		Bindings:  a.bindings,
		Updater:   updater,
		Reminders: reminders,
	})

	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return updater.Run(gctx, a.cfg.RefreshCron) })

	err := g.Wait()
	appLog.Info("timeuntil exiting")
	return err
}

// snapshotHook captures refreshed widgets in the background so refreshes
// triggered by API requests never wait on the browser. A refresh arriving
// while a capture runs is skipped; the next one catches up.
func snapshotHook(ctx context.Context, a *app) widget.RefreshHook {
	var busy atomic.Bool
	capt := capture.SnapshotHook(a.cfg.Capture.BaseURL, a.cfg.Capture.OutputDir, func(widgetID int, err error) {
		appLog.Error("widget snapshot failed", err, "widget_id", widgetID)
	})

	return func(_ context.Context, views []widget.View) {
		if len(views) == 0 {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			appLog.Debug("widget snapshot skipped, previous capture still running")
			return
		}
		go func() {
			defer busy.Store(false)
			capt(ctx, views)
		}()
	}
}
