// Package inspect answers questions about host processes and listening
// sockets, and delivers termination signals. Business logic depends on the
// Inspector interface only; the platform-specific parts live behind build tags.
package inspect

import (
	"context"
	"errors"
	"sort"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrNotFound is returned when a signal targets a pid that no longer exists.
var ErrNotFound = errors.New("process not found")

// Inspector is the host capability used by the port prober, the killer and
// the tracker.
type Inspector interface {
	// PIDsOnPort returns the pids owning a listening TCP socket on port.
	PIDsOnPort(ctx context.Context, port int) ([]int, error)
	// ProcessName resolves a pid to its command name.
	ProcessName(ctx context.Context, pid int) (string, error)
	// Alive probes pid without changing its state.
	Alive(pid int) bool
	// Terminate asks pid to exit (catchable).
	Terminate(pid int) error
	// Kill ends pid immediately (uncatchable).
	Kill(pid int) error
}

// System inspects the local host through gopsutil and OS signals.
type System struct{}

// New returns the inspector for the running platform.
func New() Inspector { return System{} }

func (System) PIDsOnPort(ctx context.Context, port int) ([]int, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{})
	pids := make([]int, 0, 1)
	for _, c := range conns {
		if int(c.Laddr.Port) != port || c.Pid <= 0 {
			continue
		}
		if c.Status != "LISTEN" {
			continue
		}
		pid := int(c.Pid)
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

func (System) ProcessName(ctx context.Context, pid int) (string, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", err
	}
	return p.NameWithContext(ctx)
}

func (System) Alive(pid int) bool { return pidAlive(pid) }

func (System) Terminate(pid int) error { return terminate(pid) }

func (System) Kill(pid int) error { return forceKill(pid) }
