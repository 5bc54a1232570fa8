// Package tracker remembers background processes started by devctl.
package tracker

import (
	"fmt"
	"log/slog"
	"time"
)

// Process is a Record plus liveness computed at read time.
type Process struct {
	Record
	Running bool `json:"running"`
}

// Liveness probes a pid without changing its state.
type Liveness interface {
	Alive(pid int) bool
}

type Tracker struct {
	store  Store
	alive  Liveness
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, alive Liveness, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, alive: alive, logger: logger, now: time.Now}
}

// Track stores r, replacing any record with the same pid. A zero StartTime is
// set to now.
func (t *Tracker) Track(r Record) error {
	if r.PID <= 0 {
		return fmt.Errorf("track: invalid pid %d", r.PID)
	}
	if r.StartTime.IsZero() {
		r.StartTime = t.now()
	}
	f, err := t.store.Load()
	if err != nil {
		return fmt.Errorf("track: load: %w", err)
	}
	f.Processes = append(without(f.Processes, r.PID), r)
	return t.save(f)
}

// GetAll returns every tracked process with Running filled in. Read errors
// are logged and yield an empty list.
func (t *Tracker) GetAll() []Process {
	f, err := t.store.Load()
	if err != nil {
		t.logger.Warn("cannot read tracked processes", "error", err)
		return []Process{}
	}
	out := make([]Process, 0, len(f.Processes))
	for _, r := range f.Processes {
		out = append(out, Process{Record: r, Running: t.alive.Alive(r.PID)})
	}
	return out
}

func (t *Tracker) Remove(pid int) error {
	f, err := t.store.Load()
	if err != nil {
		return fmt.Errorf("remove: load: %w", err)
	}
	f.Processes = without(f.Processes, pid)
	return t.save(f)
}

// RemoveAll drops the given pids; when nothing remains the file is deleted.
func (t *Tracker) RemoveAll(pids []int) error {
	f, err := t.store.Load()
	if err != nil {
		return fmt.Errorf("remove: load: %w", err)
	}
	for _, pid := range pids {
		f.Processes = without(f.Processes, pid)
	}
	if len(f.Processes) == 0 {
		return t.Cleanup()
	}
	return t.save(f)
}

// Cleanup deletes the backing file. A missing file is not an error.
func (t *Tracker) Cleanup() error {
	if err := t.store.Delete(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

// Prune drops records whose pid is no longer alive and returns them.
func (t *Tracker) Prune() ([]Record, error) {
	f, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("prune: load: %w", err)
	}
	var kept, dead []Record
	for _, r := range f.Processes {
		if t.alive.Alive(r.PID) {
			kept = append(kept, r)
		} else {
			dead = append(dead, r)
		}
	}
	if len(dead) == 0 {
		return nil, nil
	}
	f.Processes = kept
	return dead, t.save(f)
}

func (t *Tracker) save(f File) error {
	f.LastUpdated = t.now()
	if err := t.store.Save(f); err != nil {
		return fmt.Errorf("write tracking file: %w", err)
	}
	return nil
}

func without(rs []Record, pid int) []Record {
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		if r.PID != pid {
			out = append(out, r)
		}
	}
	return out
}
