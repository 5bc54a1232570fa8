//go:build windows

package orchestrator

import (
	"os"
	"os/exec"
	"syscall"
)

const (
	createNewProcessGroup = 0x00000200
	detachedProcess       = 0x00000008
)

var interruptSignals = []os.Signal{os.Interrupt}

func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup | detachedProcess}
}

// The console already sends Ctrl-C to the attached child.
func forwardSignal(_ *os.Process, _ os.Signal) {}

// Windows cannot deliver a catchable signal to another process.
func stopChild(p *os.Process) {
	_ = p.Kill()
}
