// Package killer frees ports by terminating the processes that hold them.
package killer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/loykin/devctl/internal/inspect"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultReapGrace bounds the wait after a forced kill.
	DefaultReapGrace = time.Second
)

// ExitState is the outcome of WaitForExit.
type ExitState int

const (
	// Exited means the process went away while we were waiting.
	Exited ExitState = iota
	// NotFound means the process was already gone on the first probe.
	NotFound
	// TimedOut means the process was still alive at the deadline.
	TimedOut
)

func (s ExitState) String() string {
	switch s {
	case Exited:
		return "exited"
	case NotFound:
		return "not-found"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

type Options struct {
	Force   bool
	Timeout time.Duration
}

// Result lists ports by outcome. Both lists are deduplicated and sorted.
// Ports that were already free appear in neither.
type Result struct {
	Killed []int `json:"killed"`
	Failed []int `json:"failed"`
}

// PortChecker reports whether a port is currently bindable.
type PortChecker interface {
	IsFree(port int) bool
}

type Killer struct {
	inspector    inspect.Inspector
	ports        PortChecker
	logger       *slog.Logger
	pollInterval time.Duration
	reapGrace    time.Duration
}

func New(in inspect.Inspector, ports PortChecker, logger *slog.Logger) *Killer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Killer{inspector: in, ports: ports, logger: logger, pollInterval: DefaultPollInterval, reapGrace: DefaultReapGrace}
}

// WaitForExit polls pid until it is gone, timeout elapses or ctx is done.
func (k *Killer) WaitForExit(ctx context.Context, pid int, timeout time.Duration) ExitState {
	if !k.inspector.Alive(pid) {
		return NotFound
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(k.pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return TimedOut
		case <-deadline.C:
			if !k.inspector.Alive(pid) {
				return Exited
			}
			return TimedOut
		case <-tick.C:
			if !k.inspector.Alive(pid) {
				return Exited
			}
		}
	}
}

// KillPorts frees each port in input order. A port is reported failed when,
// after every attempt, one of its owners still answers a liveness probe.
func (k *Killer) KillPorts(ctx context.Context, ports []int, opts Options) Result {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	killed := make(map[int]struct{})
	failed := make(map[int]struct{})
	for _, port := range ports {
		if k.ports.IsFree(port) {
			k.logger.Debug("port already free", "port", port)
			continue
		}
		pids, err := k.inspector.PIDsOnPort(ctx, port)
		if err != nil || len(pids) == 0 {
			k.logger.Warn("cannot resolve port owner", "port", port, "error", err)
			failed[port] = struct{}{}
			delete(killed, port)
			continue
		}
		ok := true
		for _, pid := range pids {
			if !k.killPID(ctx, pid, opts) {
				ok = false
			}
		}
		if ok {
			killed[port] = struct{}{}
			delete(failed, port)
		} else {
			failed[port] = struct{}{}
			delete(killed, port)
		}
	}
	return Result{Killed: sortedKeys(killed), Failed: sortedKeys(failed)}
}

// KillPIDs terminates pids directly and returns which ones are gone.
func (k *Killer) KillPIDs(ctx context.Context, pids []int, opts Options) (gone []int, alive []int) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	for _, pid := range pids {
		if k.killPID(ctx, pid, opts) {
			gone = append(gone, pid)
		} else {
			alive = append(alive, pid)
		}
	}
	return gone, alive
}

// killPID returns true once pid no longer answers a liveness probe.
func (k *Killer) killPID(ctx context.Context, pid int, opts Options) bool {
	log := k.logger.With("pid", pid)
	if !opts.Force {
		err := k.inspector.Terminate(pid)
		switch {
		case errors.Is(err, inspect.ErrNotFound):
			return true
		case err != nil:
			log.Debug("graceful termination failed", "error", err)
		default:
			st := k.WaitForExit(ctx, pid, opts.Timeout)
			if st != TimedOut {
				log.Debug("process exited", "state", st.String())
				return true
			}
			log.Warn("process ignored termination, forcing", "timeout", opts.Timeout)
		}
	}
	if err := k.inspector.Kill(pid); err != nil {
		if errors.Is(err, inspect.ErrNotFound) {
			return true
		}
		log.Warn("forced termination failed", "error", err)
	}
	return k.WaitForExit(ctx, pid, k.reapGrace) != TimedOut
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
