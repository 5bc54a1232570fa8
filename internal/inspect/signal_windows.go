//go:build windows

package inspect

import (
	"os/exec"
	"strconv"
	"syscall"
	"unsafe"
)

var (
	kernel32               = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess        = kernel32.NewProc("OpenProcess")
	procTerminateProcess   = kernel32.NewProc("TerminateProcess")
	procGetExitCodeProcess = kernel32.NewProc("GetExitCodeProcess")
	procCloseHandle        = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate               = 0x0001
	processQueryLimitedInformation = 0x1000
	stillActive                    = 259
)

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := openProcess(processQueryLimitedInformation, uint32(pid))
	if err != nil {
		return false
	}
	defer closeHandle(h)
	var code uint32
	ret, _, _ := procGetExitCodeProcess.Call(uintptr(h), uintptr(unsafe.Pointer(&code)))
	if ret == 0 {
		return true
	}
	return code == stillActive
}

// terminate uses taskkill without /F, which posts WM_CLOSE and lets the
// process shut down on its own.
func terminate(pid int) error {
	if !pidAlive(pid) {
		return ErrNotFound
	}
	// #nosec G204
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd.Run()
}

func forceKill(pid int) error {
	h, err := openProcess(processTerminate, uint32(pid))
	if err != nil {
		return ErrNotFound
	}
	defer closeHandle(h)
	ret, _, err := procTerminateProcess.Call(uintptr(h), uintptr(1))
	if ret == 0 {
		return err
	}
	return nil
}

func openProcess(access uint32, pid uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(uintptr(access), 0, uintptr(pid))
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(h syscall.Handle) {
	_, _, _ = procCloseHandle.Call(uintptr(h))
}
