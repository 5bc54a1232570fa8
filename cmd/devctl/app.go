package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/devctl/internal/config"
	"github.com/loykin/devctl/internal/envcheck"
	"github.com/loykin/devctl/internal/history"
	"github.com/loykin/devctl/internal/history/sqlite"
	"github.com/loykin/devctl/internal/inspect"
	"github.com/loykin/devctl/internal/killer"
	"github.com/loykin/devctl/internal/logger"
	"github.com/loykin/devctl/internal/port"
	"github.com/loykin/devctl/internal/tracker"
)

// historyStore is what the history sink must offer to the CLI.
type historyStore interface {
	history.Sink
	history.Reader
}

// app wires the components for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	inspector inspect.Inspector
	prober    *port.Prober
	killer    *killer.Killer
	tracker   *tracker.Tracker
	env       *envcheck.Validator
	history   historyStore

	out    io.Writer
	errOut io.Writer
	color  bool

	closers []io.Closer
}

func newApp(g GlobalFlags, out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(g.ConfigPath, g.Dir)
	if err != nil {
		return nil, fail(err)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFile != "" {
		cfg.Log.File = g.LogFile
	}
	log, logCloser, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Console:    errOut,
		Color:      colorFor(errOut),
		File:       cfg.Path(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, failf("logger: %w", err)
	}

	in := inspect.New()
	prober := port.NewProber(in, log)
	a := &app{
		cfg:       cfg,
		logger:    log,
		inspector: in,
		prober:    prober,
		killer:    killer.New(in, prober, log),
		tracker:   tracker.New(tracker.NewFileStore(cfg.Path(cfg.TrackingFile)), in, log),
		env: envcheck.New(envcheck.Options{
			Dir:          cfg.Dir,
			EnvFiles:     cfg.Env.Files,
			Lockfile:     cfg.Env.Lockfile,
			MinNodeMajor: cfg.Env.MinNodeMajor,
		}),
		history: history.Nop{},
		out:     out,
		errOut:  errOut,
		color:   colorFor(out),
		closers: []io.Closer{logCloser},
	}
	if cfg.History.Enabled {
		a.openHistory()
	}
	return a, nil
}

// openHistory falls back to the no-op sink when the database cannot be
// opened; history never blocks a command.
func (a *app) openHistory() {
	dsn := strings.TrimPrefix(a.cfg.History.DSN, "sqlite://")
	if dsn != ":memory:" {
		dsn = a.cfg.Path(dsn)
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			a.logger.Warn("history disabled", "error", err)
			return
		}
	}
	s, err := sqlite.New(dsn)
	if err != nil {
		a.logger.Warn("history disabled", "dsn", dsn, "error", err)
		return
	}
	a.history = s
	a.closers = append(a.closers, s)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *app) warnf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.errOut, "warning: "+format, args...)
}
