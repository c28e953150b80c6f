//go:build windows

package agent

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// setupProcess creates a new process group on Windows.
func setupProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateProcess uses taskkill to terminate the process tree.
func terminateProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/T", "/PID", strconv.Itoa(cmd.Process.Pid))
	return kill.Run()
}

// killProcess force-kills the process tree.
func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	return kill.Run()
}

// processResponds checks whether the process handle is still open.
func processResponds(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Windows FindProcess succeeds for dead PIDs; Signal(0) probes it.
	return proc.Signal(syscall.Signal(0)) == nil
}

// exitSignal has no equivalent on Windows.
func exitSignal(_ *os.ProcessState) string {
	return ""
}
