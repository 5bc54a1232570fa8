// Package orchestrator runs the dev servers: it validates the environment,
// checks that the service ports are free and then spawns the monorepo task
// runner either attached to the terminal or detached and tracked.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/loykin/devctl/internal/config"
	"github.com/loykin/devctl/internal/envcheck"
	"github.com/loykin/devctl/internal/history"
	"github.com/loykin/devctl/internal/port"
	"github.com/loykin/devctl/internal/tracker"
)

type State string

const (
	StateIdle               State = "idle"
	StateValidatingEnv      State = "validating-env"
	StateCheckingPorts      State = "checking-ports"
	StateSpawning           State = "spawning"
	StateBackgroundTracked  State = "background-tracked"
	StateForegroundAttached State = "foreground-attached"
)

type Options struct {
	Background   bool
	SkipEnvCheck bool
	// Filter limits the run to one configured service.
	Filter string
}

// Outcome describes how far Run got. ExitCode is only meaningful for
// foreground runs.
type Outcome struct {
	State    State
	PID      int
	Ports    []int
	Command  []string
	LogFile  string
	ExitCode int
}

type EnvValidator interface {
	Validate(ctx context.Context) envcheck.Result
}

type PortChecker interface {
	CheckPorts(ctx context.Context, ports []int) []port.Status
}

type Tracker interface {
	Track(r tracker.Record) error
}

// EnvError aborts a run when required variables are missing or malformed.
type EnvError struct {
	Issues []envcheck.Issue
}

func (e *EnvError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.String())
	}
	return "environment validation failed: " + strings.Join(parts, "; ")
}

// PortConflictError lists the required ports that are already bound.
type PortConflictError struct {
	Conflicts []port.Status
}

func (e *PortConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.Describe())
	}
	return fmt.Sprintf("ports already in use: %s; run `devctl kill` to free them", strings.Join(parts, ", "))
}

type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

type Orchestrator struct {
	cfg     *config.Config
	env     EnvValidator
	ports   PortChecker
	tracker Tracker
	history history.Sink
	logger  *slog.Logger

	// Streams used by foreground runs and for warnings.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	state State
}

func New(cfg *config.Config, env EnvValidator, ports PortChecker, tr Tracker, sink history.Sink, logger *slog.Logger) *Orchestrator {
	if sink == nil {
		sink = history.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		env:     env,
		ports:   ports,
		tracker: tr,
		history: sink,
		logger:  logger,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		state:   StateIdle,
	}
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) enter(s State) {
	o.logger.Debug("orchestrator state", "from", o.state, "to", s)
	o.state = s
}

// Command builds the runner argv, appending the filter argument when a
// service is selected.
func (o *Orchestrator) Command(filter string) ([]string, error) {
	argv, err := shlex.Split(o.cfg.Runner.Command)
	if err != nil {
		return nil, fmt.Errorf("parse runner command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("runner command is empty")
	}
	if filter != "" && o.cfg.Runner.FilterArg != "" {
		extra, err := shlex.Split(strings.ReplaceAll(o.cfg.Runner.FilterArg, "{service}", filter))
		if err != nil {
			return nil, fmt.Errorf("parse runner filter argument: %w", err)
		}
		argv = append(argv, extra...)
	}
	return argv, nil
}

// Run walks the state machine once. Preflight failures return *EnvError or
// *PortConflictError; failing to start the runner returns *SpawnError.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Outcome, error) {
	o.enter(StateValidatingEnv)
	if opts.SkipEnvCheck {
		o.logger.Debug("environment check skipped")
	} else if o.env != nil {
		res := o.env.Validate(ctx)
		for _, w := range res.Warnings {
			_, _ = fmt.Fprintf(o.Stderr, "warning: %s\n", w)
		}
		if !res.Valid {
			return Outcome{State: o.state}, &EnvError{Issues: res.Errors}
		}
	}

	o.enter(StateCheckingPorts)
	ports, err := o.cfg.Ports(opts.Filter)
	if err != nil {
		return Outcome{State: o.state}, err
	}
	if conflicts := port.Occupied(o.ports.CheckPorts(ctx, ports)); len(conflicts) > 0 {
		return Outcome{State: o.state, Ports: ports}, &PortConflictError{Conflicts: conflicts}
	}

	o.enter(StateSpawning)
	argv, err := o.Command(opts.Filter)
	if err != nil {
		return Outcome{State: o.state, Ports: ports}, err
	}
	out := Outcome{State: o.state, Ports: ports, Command: argv}
	if opts.Background {
		return o.spawnBackground(ctx, out, opts.Filter)
	}
	return o.runForeground(ctx, out, opts.Filter)
}

func (o *Orchestrator) spawnBackground(ctx context.Context, out Outcome, service string) (Outcome, error) {
	logDir := o.cfg.Path(o.cfg.LogDir)
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return out, &SpawnError{Command: out.Command, Err: fmt.Errorf("create log dir: %w", err)}
	}
	name := service
	if name == "" {
		name = "all"
	}
	out.LogFile = filepath.Join(logDir, name+".log")
	// #nosec G304
	logF, err := os.OpenFile(out.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return out, &SpawnError{Command: out.Command, Err: fmt.Errorf("open log file: %w", err)}
	}
	defer func() { _ = logF.Close() }()

	// Not CommandContext: the child must outlive this process.
	// #nosec G204
	cmd := exec.Command(out.Command[0], out.Command[1:]...)
	cmd.Dir = o.cfg.Dir
	cmd.Stdin = nil
	cmd.Stdout = logF
	cmd.Stderr = logF
	configureDetached(cmd)
	if err := cmd.Start(); err != nil {
		return out, &SpawnError{Command: out.Command, Err: err}
	}
	out.PID = cmd.Process.Pid
	_ = cmd.Process.Release()

	rec := tracker.Record{
		PID:       out.PID,
		Command:   strings.Join(out.Command, " "),
		Ports:     out.Ports,
		StartTime: time.Now(),
		Service:   service,
		LogFile:   out.LogFile,
	}
	if err := o.tracker.Track(rec); err != nil {
		return out, fmt.Errorf("started pid %d but could not track it: %w", out.PID, err)
	}
	o.enter(StateBackgroundTracked)
	out.State = o.state
	o.record(ctx, history.EventStart, out.PID, service, out.Ports, rec.Command)
	o.logger.Info("dev server started in background", "pid", out.PID, "log", out.LogFile)
	return out, nil
}

func (o *Orchestrator) runForeground(ctx context.Context, out Outcome, service string) (Outcome, error) {
	// #nosec G204
	cmd := exec.Command(out.Command[0], out.Command[1:]...)
	cmd.Dir = o.cfg.Dir
	cmd.Stdin = o.Stdin
	cmd.Stdout = o.Stdout
	cmd.Stderr = o.Stderr

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, interruptSignals...)
	defer signal.Stop(sigs)

	if err := cmd.Start(); err != nil {
		return out, &SpawnError{Command: out.Command, Err: err}
	}
	out.PID = cmd.Process.Pid
	o.enter(StateForegroundAttached)
	out.State = o.state
	o.record(ctx, history.EventStart, out.PID, service, out.Ports, strings.Join(out.Command, " "))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	cancelled := ctx.Done()
	for {
		select {
		case s := <-sigs:
			o.logger.Debug("forwarding signal", "signal", s, "pid", out.PID)
			forwardSignal(cmd.Process, s)
		case <-cancelled:
			cancelled = nil
			stopChild(cmd.Process)
		case err := <-done:
			code, werr := exitCode(err)
			if werr != nil {
				return out, fmt.Errorf("wait for %d: %w", out.PID, werr)
			}
			out.ExitCode = code
			o.record(context.WithoutCancel(ctx), history.EventStop, out.PID, service, out.Ports, fmt.Sprintf("exit code %d", code))
			return out, nil
		}
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if c := ee.ExitCode(); c >= 0 {
			return c, nil
		}
		// terminated by a signal
		return 1, nil
	}
	return 0, err
}

func (o *Orchestrator) record(ctx context.Context, t history.EventType, pid int, service string, ports []int, detail string) {
	e := history.Event{Type: t, OccurredAt: time.Now(), PID: pid, Service: service, Ports: ports, Detail: detail}
	if err := o.history.Send(ctx, e); err != nil {
		o.logger.Warn("history event not recorded", "type", t, "pid", pid, "error", err)
	}
}
