// Package port probes TCP port availability and identifies occupants.
package port

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/devctl/internal/inspect"
)

// MaxPort is the highest TCP port number.
const MaxPort = 65535

// Status describes one port at query time. It is never persisted.
type Status struct {
	Port      int    `json:"port"`
	Available bool   `json:"available"`
	Process   string `json:"process,omitempty"`
}

// Prober checks ports on the local host.
type Prober struct {
	inspector inspect.Inspector
	logger    *slog.Logger
	// hosts are tried in order when binding; a port is free only if all bind.
	hosts  []string
	listen func(network, address string) (net.Listener, error)
}

func NewProber(in inspect.Inspector, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{inspector: in, logger: logger, hosts: []string{"", "127.0.0.1"}, listen: net.Listen}
}

// CheckPorts probes every port concurrently. The result has the same order and
// length as ports.
func (p *Prober) CheckPorts(ctx context.Context, ports []int) []Status {
	out := make([]Status, len(ports))
	g, gctx := errgroup.WithContext(ctx)
	for i, port := range ports {
		i, port := i, port
		g.Go(func() error {
			out[i] = p.check(gctx, port)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Prober) check(ctx context.Context, port int) Status {
	st := Status{Port: port}
	if port <= 0 || port > MaxPort {
		return st
	}
	if p.IsFree(port) {
		st.Available = true
		return st
	}
	st.Process = p.owner(ctx, port)
	return st
}

// owner resolves the name of the first process listening on port. Lookup
// failures are logged at debug level and yield "".
func (p *Prober) owner(ctx context.Context, port int) string {
	pids, err := p.inspector.PIDsOnPort(ctx, port)
	if err != nil {
		p.logger.Debug("port owner lookup failed", "port", port, "error", err)
		return ""
	}
	for _, pid := range pids {
		name, err := p.inspector.ProcessName(ctx, pid)
		if err == nil && name != "" {
			return name
		}
		p.logger.Debug("process name lookup failed", "port", port, "pid", pid, "error", err)
	}
	return ""
}

// IsFree reports whether port can be bound right now.
func (p *Prober) IsFree(port int) bool {
	for _, h := range p.hosts {
		ln, err := p.listen("tcp", net.JoinHostPort(h, strconv.Itoa(port)))
		if err != nil {
			return false
		}
		_ = ln.Close()
	}
	return true
}

// FirstFree returns the first bindable port at or above start.
func (p *Prober) FirstFree(start int) (int, error) {
	if start <= 0 || start > MaxPort {
		return 0, fmt.Errorf("invalid port %d", start)
	}
	for port := start; port <= MaxPort; port++ {
		if p.IsFree(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port at or above %d", start)
}

// Occupied filters statuses down to the ports that are in use.
func Occupied(sts []Status) []Status {
	var out []Status
	for _, s := range sts {
		if !s.Available {
			out = append(out, s)
		}
	}
	return out
}

// Describe renders "3000 (node)" or "3000" when the occupant is unknown.
func (s Status) Describe() string {
	if s.Process == "" {
		return strconv.Itoa(s.Port)
	}
	return fmt.Sprintf("%d (%s)", s.Port, s.Process)
}
