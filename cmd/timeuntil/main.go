package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"timeuntil/internal/config"
	appLog "timeuntil/internal/log"
	"timeuntil/internal/prefs"
	"timeuntil/internal/store"
	"timeuntil/internal/widget"
)

const version = "0.1.0"

// globalFlags holds flags accepted before the subcommand name.
type globalFlags struct {
	configPath string
	listen     string
	ephemeral  bool
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	prefs    prefs.Store
	store    *store.EventStore
	bindings *widget.Bindings
	stdin    io.Reader
	stdout   io.Writer
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		appLog.Error("timeuntil failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("timeuntil", flag.ContinueOnError)
	var gf globalFlags
	fs.StringVar(&gf.configPath, "config", config.DefaultPath(), "Path to config file")
	fs.StringVar(&gf.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.BoolVar(&gf.ephemeral, "ephemeral", false, "Keep events in memory only")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	handler, ok := commands[cmd]
	if !ok {
		usage(fs)
		return fmt.Errorf("unknown command %q", cmd)
	}

	a, err := setup(ctx, gf, stdin, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.prefs.Close(); cerr != nil {
			appLog.Error("failed to close storage", cerr)
		}
	}()

	return handler(ctx, a, rest)
}

// setup loads the config and opens storage.
func setup(ctx context.Context, gf globalFlags, stdin io.Reader, stdout io.Writer) (*app, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", gf.configPath, err)
	}

	// CLI --listen overrides config file listen if provided.
	if gf.listen != "" {
		cfg.Listen = gf.listen
	}
	if gf.ephemeral {
		cfg.Storage.Backend = prefs.BackendMemory
	}

	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Debug("effective config",
		"config_path", gf.configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"storage", cfg.Storage.Backend,
		"reminders", cfg.Reminders.Enabled,
		"capture", cfg.Capture.Enabled,
	)

	p, err := prefs.Open(ctx, cfg.PrefsOptions(filepath.Dir(gf.configPath)))
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	return &app{
		cfg:      cfg,
		loc:      cfg.Location(),
		prefs:    p,
		store:    store.New(p, nil),
		bindings: widget.NewBindings(p),
		stdin:    stdin,
		stdout:   stdout,
	}, nil
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "timeuntil %s - countdowns to the events that matter\n\n", version)
	fmt.Fprintln(out, "Usage: timeuntil [global flags] <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve                      run the API, reminders and widget refresh (default)")
	fmt.Fprintln(out, "  list                       list events with time remaining")
	fmt.Fprintln(out, "  show -id ID                show one event")
	fmt.Fprintln(out, "  add -name N -at T          add an event")
	fmt.Fprintln(out, "  edit -id ID [...]          change an event")
	fmt.Fprintln(out, "  delete -id ID              delete an event")
	fmt.Fprintln(out, "  duplicate -id ID           copy an event")
	fmt.Fprintln(out, "  export [-o FILE]           write events as iCalendar")
	fmt.Fprintln(out, "  import [-i FILE]           read events from iCalendar")
	fmt.Fprintln(out, "  widget bind|unbind|list    manage widget bindings")
	fmt.Fprintln(out, "  snapshot -widget N -o PNG  capture a widget card from a running server")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Global flags:")
	fs.PrintDefaults()
}
