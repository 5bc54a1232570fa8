//go:build !windows

package orchestrator

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/loykin/devctl/internal/history"
	"github.com/loykin/devctl/internal/tracker"
)

func reap(t *testing.T, pid int) {
	t.Helper()
	t.Cleanup(func() {
		_ = syscall.Kill(pid, syscall.SIGKILL)
		if p, err := os.FindProcess(pid); err == nil {
			_, _ = p.Wait()
		}
	})
}

func TestRunBackgroundTracksProcess(t *testing.T) {
	cfg := testConfig(t, "sleep 5")
	cfg.Runner.FilterArg = ""
	h := newHarness(t, cfg, fixedEnv{Valid: true}, busyPorts{})
	out, err := h.o.Run(context.Background(), Options{Background: true, Filter: "web"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	reap(t, out.PID)
	if out.State != StateBackgroundTracked || out.PID <= 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	f, err := h.store.Load()
	if err != nil || len(f.Processes) != 1 {
		t.Fatalf("expected one tracked record, got %+v (%v)", f, err)
	}
	rec := f.Processes[0]
	if rec.PID != out.PID || rec.Service != "web" || rec.Command != "sleep 5" || !reflect.DeepEqual(rec.Ports, []int{3000}) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := os.Stat(out.LogFile); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.HasSuffix(out.LogFile, "web.log") {
		t.Fatalf("log file = %s", out.LogFile)
	}
	if len(h.sink.events) != 1 || h.sink.events[0].Type != history.EventStart || h.sink.events[0].PID != out.PID {
		t.Fatalf("unexpected history %+v", h.sink.events)
	}
}

func TestRunBackgroundTrackFailure(t *testing.T) {
	cfg := testConfig(t, "sleep 5")
	h := newHarness(t, cfg, fixedEnv{Valid: true}, busyPorts{})
	h.store.SaveFn = func(tracker.File) error { return errors.New("disk full") }
	out, err := h.o.Run(context.Background(), Options{Background: true})
	if out.PID > 0 {
		reap(t, out.PID)
	}
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected tracking error, got %v", err)
	}
}

func TestShouldForward(t *testing.T) {
	if shouldForward(os.Interrupt) {
		t.Fatalf("interrupt already reaches the child through the terminal")
	}
	if !shouldForward(syscall.SIGTERM) {
		t.Fatalf("SIGTERM must be relayed to the child")
	}
}

func TestRunForegroundStopsChildOnCancel(t *testing.T) {
	h := newHarness(t, testConfig(t, "sleep 5"), fixedEnv{Valid: true}, busyPorts{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	out, err := h.o.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("child was not stopped on cancel")
	}
	if out.ExitCode == 0 {
		t.Fatalf("terminated child should report a non-zero exit code")
	}
}
