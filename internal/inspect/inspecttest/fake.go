// Package inspecttest provides an in-memory inspect.Inspector.
package inspecttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loykin/devctl/internal/inspect"
)

// Proc describes one simulated process.
type Proc struct {
	PID   int
	Name  string
	Ports []int
	// IgnoreTerm makes Terminate a no-op.
	IgnoreTerm bool
	// TermDelay delays the exit after Terminate.
	TermDelay time.Duration
	// Unkillable makes Kill fail and leaves the process running.
	Unkillable bool
}

// Fake is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	procs   map[int]*Proc
	signals []string
	// PortErr is returned by PIDsOnPort when set.
	PortErr error
}

func New(procs ...Proc) *Fake {
	f := &Fake{procs: make(map[int]*Proc)}
	for _, p := range procs {
		f.Add(p)
	}
	return f
}

func (f *Fake) Add(p Proc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.procs[p.PID] = &cp
}

func (f *Fake) exit(pid int) {
	f.mu.Lock()
	delete(f.procs, pid)
	f.mu.Unlock()
}

// Signals returns the delivered signals as "TERM:<pid>" / "KILL:<pid>".
func (f *Fake) Signals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signals...)
}

// IsFree reports whether no simulated process holds port.
func (f *Fake) IsFree(port int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		for _, pp := range p.Ports {
			if pp == port {
				return false
			}
		}
	}
	return true
}

func (f *Fake) PIDsOnPort(_ context.Context, port int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PortErr != nil {
		return nil, f.PortErr
	}
	var pids []int
	for pid, p := range f.procs {
		for _, pp := range p.Ports {
			if pp == port {
				pids = append(pids, pid)
				break
			}
		}
	}
	sort.Ints(pids)
	return pids, nil
}

func (f *Fake) ProcessName(_ context.Context, pid int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok || p.Name == "" {
		return "", fmt.Errorf("no name for pid %d", pid)
	}
	return p.Name, nil
}

func (f *Fake) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.procs[pid]
	return ok
}

func (f *Fake) Terminate(pid int) error {
	f.mu.Lock()
	f.signals = append(f.signals, fmt.Sprintf("TERM:%d", pid))
	p, ok := f.procs[pid]
	f.mu.Unlock()
	if !ok {
		return inspect.ErrNotFound
	}
	if p.IgnoreTerm {
		return nil
	}
	if p.TermDelay > 0 {
		time.AfterFunc(p.TermDelay, func() { f.exit(pid) })
		return nil
	}
	f.exit(pid)
	return nil
}

func (f *Fake) Kill(pid int) error {
	f.mu.Lock()
	f.signals = append(f.signals, fmt.Sprintf("KILL:%d", pid))
	p, ok := f.procs[pid]
	f.mu.Unlock()
	if !ok {
		return inspect.ErrNotFound
	}
	if p.Unkillable {
		return errors.New("operation not permitted")
	}
	f.exit(pid)
	return nil
}
