package inspect

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix signals")
	}
}

func TestAliveSelf(t *testing.T) {
	if !New().Alive(os.Getpid()) {
		t.Fatalf("current process should be alive")
	}
}

func TestAliveInvalidPID(t *testing.T) {
	in := New()
	for _, pid := range []int{0, -1} {
		if in.Alive(pid) {
			t.Fatalf("pid %d reported alive", pid)
		}
	}
}

func TestTerminateExitedProcess(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	pid := cmd.Process.Pid
	in := New()
	if in.Alive(pid) {
		t.Skip("pid reused by another process")
	}
	if err := in.Terminate(pid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Terminate on exited pid: got %v want ErrNotFound", err)
	}
}

func TestKillSleep(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()

	in := New()
	if !in.Alive(cmd.Process.Pid) {
		t.Fatalf("sleep should be alive")
	}
	if err := in.Kill(cmd.Process.Pid); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sleep did not exit after kill")
	}
	if in.Alive(cmd.Process.Pid) {
		t.Fatalf("reaped process reported alive")
	}
}

func TestPIDsOnPortFindsSelf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	pids, err := New().PIDsOnPort(context.Background(), port)
	if err != nil {
		t.Skipf("connection table unavailable: %v", err)
	}
	if len(pids) == 0 {
		t.Skip("socket owner not visible in this environment")
	}
	found := false
	for _, pid := range pids {
		if pid == os.Getpid() {
			found = true
		}
	}
	if !found {
		t.Fatalf("own pid %d not among owners %v", os.Getpid(), pids)
	}
}
