// Package status composes tracked processes, port availability and an
// environment summary into one read-only snapshot.
package status

import (
	"context"
	"time"

	"github.com/loykin/devctl/internal/envcheck"
	"github.com/loykin/devctl/internal/port"
	"github.com/loykin/devctl/internal/tracker"
)

type ProcessLister interface {
	GetAll() []tracker.Process
}

type PortChecker interface {
	CheckPorts(ctx context.Context, ports []int) []port.Status
}

type EnvSummarizer interface {
	Summarize(ctx context.Context) envcheck.Summary
}

type Snapshot struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Environment envcheck.Summary  `json:"environment"`
	Processes   []tracker.Process `json:"processes"`
	Ports       []port.Status     `json:"ports"`
}

type Reporter struct {
	processes ProcessLister
	ports     PortChecker
	env       EnvSummarizer
	known     []int
	now       func() time.Time
}

func NewReporter(processes ProcessLister, ports PortChecker, env EnvSummarizer, knownPorts []int) *Reporter {
	return &Reporter{processes: processes, ports: ports, env: env, known: knownPorts, now: time.Now}
}

// Collect never mutates state and never fails; unreadable parts come back
// empty.
func (r *Reporter) Collect(ctx context.Context) Snapshot {
	s := Snapshot{GeneratedAt: r.now(), Processes: r.processes.GetAll(), Ports: r.ports.CheckPorts(ctx, r.known)}
	if r.env != nil {
		s.Environment = r.env.Summarize(ctx)
	}
	if s.Processes == nil {
		s.Processes = []tracker.Process{}
	}
	if s.Ports == nil {
		s.Ports = []port.Status{}
	}
	return s
}
