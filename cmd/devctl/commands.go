package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/loykin/devctl/internal/envcheck"
	"github.com/loykin/devctl/internal/history"
	"github.com/loykin/devctl/internal/killer"
	"github.com/loykin/devctl/internal/orchestrator"
	"github.com/loykin/devctl/internal/status"
)

func (a *app) cmdDev(ctx context.Context, f DevFlags) error {
	o := orchestrator.New(a.cfg, a.env, a.prober, a.tracker, a.history, a.logger)
	o.Stdout = a.out
	o.Stderr = a.errOut
	out, err := o.Run(ctx, orchestrator.Options{
		Background:   f.Background,
		SkipEnvCheck: f.SkipEnvCheck,
		Filter:       f.Filter,
	})
	if err != nil {
		var envErr *orchestrator.EnvError
		var conflict *orchestrator.PortConflictError
		switch {
		case errors.As(err, &envErr):
			for _, i := range envErr.Issues {
				_, _ = fmt.Fprintf(a.errOut, "error: %s\n", i)
			}
			return failf("environment validation failed; fix the variables above or pass --skip-env-check")
		case errors.As(err, &conflict):
			for _, c := range conflict.Conflicts {
				_, _ = fmt.Fprintf(a.errOut, "port %s is in use\n", c.Describe())
			}
			return failf("cannot start dev servers: run `devctl kill` to free the ports")
		}
		return fail(err)
	}
	if out.State == orchestrator.StateBackgroundTracked {
		a.printf("started %s (pid %d)\n", strings.Join(out.Command, " "), out.PID)
		a.printf("logs: %s\n", out.LogFile)
		return nil
	}
	if out.ExitCode != 0 {
		return &ExitError{Code: out.ExitCode}
	}
	return nil
}

// stopReport is the outcome of a kill pass across tracked pids and ports.
type stopReport struct {
	killer.Result
	StoppedPIDs []int `json:"stoppedPids,omitempty"`
	AlivePIDs   []int `json:"alivePids,omitempty"`
}

func (a *app) stop(ctx context.Context, f KillFlags) stopReport {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Kill.Timeout
	}
	opts := killer.Options{Force: f.Force, Timeout: timeout}
	var rep stopReport

	if f.All {
		procs := a.tracker.GetAll()
		pids := make([]int, 0, len(procs))
		for _, p := range procs {
			if p.Running {
				pids = append(pids, p.PID)
			}
		}
		rep.StoppedPIDs, rep.AlivePIDs = a.killer.KillPIDs(ctx, pids, opts)
		for _, p := range procs {
			if slices.Contains(rep.StoppedPIDs, p.PID) {
				a.record(ctx, history.Event{Type: history.EventKill, PID: p.PID, Service: p.Service, Ports: p.Ports, Detail: "kill --all"})
			}
		}
	}

	ports := f.Ports
	if len(ports) == 0 {
		ports = a.cfg.KnownPorts()
	}
	rep.Result = a.killer.KillPorts(ctx, ports, opts)

	// Tracked records whose pid is gone are stale now, whichever way it died.
	removed, err := a.tracker.Prune()
	if err != nil {
		a.logger.Warn("cannot update tracking file", "error", err)
	}
	for _, r := range removed {
		if f.All && slices.Contains(rep.StoppedPIDs, r.PID) {
			continue
		}
		a.record(ctx, history.Event{Type: history.EventStop, PID: r.PID, Service: r.Service, Ports: r.Ports, Detail: "port freed"})
	}
	// deletes the tracking file once nothing is left
	if err := a.tracker.RemoveAll(rep.StoppedPIDs); err != nil {
		a.logger.Warn("cannot update tracking file", "error", err)
	}
	return rep
}

// cmdKill never fails: ports that could not be freed are reported.
func (a *app) cmdKill(ctx context.Context, f KillFlags) error {
	rep := a.stop(ctx, f)
	for _, pid := range rep.StoppedPIDs {
		a.printf("stopped pid %d\n", pid)
	}
	for _, pid := range rep.AlivePIDs {
		a.warnf("pid %d is still running\n", pid)
	}
	for _, p := range rep.Killed {
		a.printf("freed port %d\n", p)
	}
	for _, p := range rep.Failed {
		a.warnf("could not free port %d\n", p)
	}
	if len(rep.Killed) == 0 && len(rep.Failed) == 0 && len(rep.StoppedPIDs) == 0 && len(rep.AlivePIDs) == 0 {
		a.printf("nothing to kill\n")
	}
	return nil
}

func (a *app) cmdStatus(ctx context.Context, f StatusFlags) error {
	r := status.NewReporter(a.tracker, a.prober, a.env, a.cfg.KnownPorts())
	snap := r.Collect(ctx)
	switch {
	case f.JSON:
		return status.RenderJSON(a.out, snap)
	case f.Prometheus:
		return status.RenderPrometheus(a.out, snap)
	default:
		return status.RenderText(a.out, snap, a.color)
	}
}

func (a *app) cmdEnvValidate(ctx context.Context, f EnvFlags) error {
	res := a.env.Validate(ctx)
	if f.JSON {
		if err := printJSON(a.out, res); err != nil {
			return err
		}
	} else {
		for _, i := range res.Errors {
			a.printf("error: %s\n", i)
		}
		for _, i := range res.Warnings {
			a.printf("warning: %s\n", i)
		}
		if res.Valid {
			a.printf("environment OK\n")
		}
	}
	if !res.Valid {
		return failf("environment validation failed with %d error(s)", len(res.Errors))
	}
	return nil
}

func (a *app) cmdEnvSetup(f EnvFlags) error {
	res, err := envcheck.Setup(a.cfg.Dir, a.cfg.Env.Examples)
	if err != nil {
		return fail(err)
	}
	if f.JSON {
		return printJSON(a.out, res)
	}
	for _, p := range res.Created {
		a.printf("created %s\n", p)
	}
	for _, p := range res.Skipped {
		a.printf("kept existing %s\n", p)
	}
	for _, p := range res.Missing {
		a.warnf("example file %s not found\n", p)
	}
	if len(res.Created) > 0 {
		a.printf("fill in the new files, then run `devctl env validate`\n")
	}
	return nil
}

func (a *app) cmdRestart(ctx context.Context, f RestartFlags) error {
	if !f.SkipKill {
		var ports []int
		if f.Filter != "" {
			p, err := a.cfg.Ports(f.Filter)
			if err != nil {
				return fail(err)
			}
			ports = p
		}
		rep := a.stop(ctx, KillFlags{Ports: ports, All: f.Filter == ""})
		if len(rep.AlivePIDs) > 0 {
			return failf("restart aborted: pids %s are still running", joinInts(rep.AlivePIDs))
		}
		if len(rep.Failed) > 0 {
			return failf("restart aborted: could not free ports %s", joinInts(rep.Failed))
		}
	}
	return a.cmdDev(ctx, DevFlags{Background: true, SkipEnvCheck: f.SkipEnvCheck, Filter: f.Filter})
}

func (a *app) cmdList(f ListFlags) error {
	if f.Prune {
		removed, err := a.tracker.Prune()
		if err != nil {
			return fail(err)
		}
		if !f.JSON {
			a.printf("pruned %d stale record(s)\n", len(removed))
		}
	}
	procs := a.tracker.GetAll()
	if f.JSON {
		return printJSON(a.out, procs)
	}
	return status.RenderProcesses(a.out, procs, time.Now(), a.color)
}

func (a *app) cmdHistory(ctx context.Context, f HistoryFlags) error {
	if !a.cfg.History.Enabled {
		a.printf("history is disabled; set [history] enabled = true in devctl.toml\n")
		return nil
	}
	events, err := a.history.List(ctx, f.Limit)
	if err != nil {
		return failf("read history: %w", err)
	}
	if f.JSON {
		if events == nil {
			events = []history.Event{}
		}
		return printJSON(a.out, events)
	}
	if len(events) == 0 {
		a.printf("no events recorded\n")
		return nil
	}
	for _, e := range events {
		service := e.Service
		if service == "" {
			service = "-"
		}
		a.printf("%s  %-5s  pid %-7d  %-8s  %-12s  %s\n",
			e.OccurredAt.Local().Format(time.DateTime), e.Type, e.PID, service, joinInts(e.Ports), e.Detail)
	}
	return nil
}

func (a *app) record(ctx context.Context, e history.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if err := a.history.Send(ctx, e); err != nil {
		a.logger.Warn("history event not recorded", "type", e.Type, "pid", e.PID, "error", err)
	}
}
