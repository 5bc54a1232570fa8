package killer

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/loykin/devctl/internal/inspect/inspecttest"
)

func newKiller(f *inspecttest.Fake) *Killer {
	k := New(f, f, nil)
	k.pollInterval = 10 * time.Millisecond
	k.reapGrace = 50 * time.Millisecond
	return k
}

func TestKillPortsSkipsFreePorts(t *testing.T) {
	f := inspecttest.New()
	res := newKiller(f).KillPorts(context.Background(), []int{3000, 3333}, Options{})
	if len(res.Killed) != 0 || len(res.Failed) != 0 {
		t.Fatalf("free ports must not be reported: %+v", res)
	}
	if len(f.Signals()) != 0 {
		t.Fatalf("no signals expected, got %v", f.Signals())
	}
}

func TestKillPortsGracefulExit(t *testing.T) {
	f := inspecttest.New(inspecttest.Proc{PID: 100, Ports: []int{3000}, TermDelay: 50 * time.Millisecond})
	res := newKiller(f).KillPorts(context.Background(), []int{3000}, Options{})
	if !reflect.DeepEqual(res.Killed, []int{3000}) || len(res.Failed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.Signals(); !reflect.DeepEqual(got, []string{"TERM:100"}) {
		t.Fatalf("signals = %v, want only TERM", got)
	}
}

func TestKillPortsFallsBackToForce(t *testing.T) {
	f := inspecttest.New(inspecttest.Proc{PID: 100, Ports: []int{3000}, IgnoreTerm: true})
	res := newKiller(f).KillPorts(context.Background(), []int{3000}, Options{Timeout: 100 * time.Millisecond})
	if !reflect.DeepEqual(res.Killed, []int{3000}) || len(res.Failed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.Signals(); !reflect.DeepEqual(got, []string{"TERM:100", "KILL:100"}) {
		t.Fatalf("signals = %v", got)
	}
}

func TestKillPortsReportsFailureWhenProcessSurvives(t *testing.T) {
	f := inspecttest.New(inspecttest.Proc{PID: 100, Ports: []int{3000}, IgnoreTerm: true, Unkillable: true})
	res := newKiller(f).KillPorts(context.Background(), []int{3000}, Options{Timeout: 50 * time.Millisecond})
	if len(res.Killed) != 0 || !reflect.DeepEqual(res.Failed, []int{3000}) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestKillPortsPartialFailureMarksPortFailed(t *testing.T) {
	f := inspecttest.New(
		inspecttest.Proc{PID: 100, Ports: []int{3000}},
		inspecttest.Proc{PID: 101, Ports: []int{3000}, IgnoreTerm: true, Unkillable: true},
	)
	res := newKiller(f).KillPorts(context.Background(), []int{3000}, Options{Timeout: 30 * time.Millisecond})
	if len(res.Killed) != 0 || !reflect.DeepEqual(res.Failed, []int{3000}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.Alive(100) {
		t.Fatalf("pid 100 should have been terminated")
	}
}

func TestKillPortsForceSkipsGraceful(t *testing.T) {
	f := inspecttest.New(inspecttest.Proc{PID: 100, Ports: []int{3000}, IgnoreTerm: true})
	res := newKiller(f).KillPorts(context.Background(), []int{3000}, Options{Force: true})
	if !reflect.DeepEqual(res.Killed, []int{3000}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.Signals(); !reflect.DeepEqual(got, []string{"KILL:100"}) {
		t.Fatalf("signals = %v, want only KILL", got)
	}
}

func TestKillPortsDeduplicates(t *testing.T) {
	f := inspecttest.New(
		inspecttest.Proc{PID: 100, Ports: []int{3000}},
		inspecttest.Proc{PID: 200, Ports: []int{3333}},
	)
	res := newKiller(f).KillPorts(context.Background(), []int{3333, 3000, 3333, 3000}, Options{})
	if !reflect.DeepEqual(res.Killed, []int{3000, 3333}) {
		t.Fatalf("killed = %v", res.Killed)
	}
}

func TestKillPortsUnresolvedOwnerFails(t *testing.T) {
	f := inspecttest.New(inspecttest.Proc{PID: 100, Ports: []int{3000}})
	f.PortErr = errors.New("permission denied")
	res := newKiller(f).KillPorts(context.Background(), []int{3000}, Options{})
	if !reflect.DeepEqual(res.Failed, []int{3000}) {
		t.Fatalf("failed = %v", res.Failed)
	}
}

func TestWaitForExitStates(t *testing.T) {
	f := inspecttest.New(
		inspecttest.Proc{PID: 1},
		inspecttest.Proc{PID: 2, IgnoreTerm: true},
	)
	k := newKiller(f)
	ctx := context.Background()

	if st := k.WaitForExit(ctx, 99, time.Second); st != NotFound {
		t.Fatalf("missing pid: got %v", st)
	}
	time.AfterFunc(30*time.Millisecond, func() { _ = f.Kill(1) })
	if st := k.WaitForExit(ctx, 1, time.Second); st != Exited {
		t.Fatalf("exiting pid: got %v", st)
	}
	if st := k.WaitForExit(ctx, 2, 50*time.Millisecond); st != TimedOut {
		t.Fatalf("stubborn pid: got %v", st)
	}
}

func TestKillPIDs(t *testing.T) {
	f := inspecttest.New(
		inspecttest.Proc{PID: 1},
		inspecttest.Proc{PID: 2, IgnoreTerm: true, Unkillable: true},
	)
	gone, alive := newKiller(f).KillPIDs(context.Background(), []int{1, 2, 3}, Options{Timeout: 20 * time.Millisecond})
	if !reflect.DeepEqual(gone, []int{1, 3}) || !reflect.DeepEqual(alive, []int{2}) {
		t.Fatalf("gone=%v alive=%v", gone, alive)
	}
}

func TestExitStateString(t *testing.T) {
	for st, want := range map[ExitState]string{Exited: "exited", NotFound: "not-found", TimedOut: "timed-out"} {
		if st.String() != want {
			t.Fatalf("%d.String() = %q", st, st.String())
		}
	}
}
