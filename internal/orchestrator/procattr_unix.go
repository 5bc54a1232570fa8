//go:build !windows

package orchestrator

import (
	"os"
	"os/exec"
	"syscall"
)

var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// configureDetached starts the child in its own session so it survives the
// terminal closing.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shouldForward reports whether s must be relayed to an attached child. The
// child shares the terminal's process group, so the terminal already
// delivers Ctrl-C to it; a relayed copy would count as a second interrupt.
func shouldForward(s os.Signal) bool {
	return s != os.Interrupt
}

func forwardSignal(p *os.Process, s os.Signal) {
	if shouldForward(s) {
		_ = p.Signal(s)
	}
}

func stopChild(p *os.Process) {
	_ = p.Signal(syscall.SIGTERM)
}
