//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// isProcessRunning reports whether a process with the given PID exists. On
// Unix, signal 0 performs the existence check without delivering a signal.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// stopProcess asks the process to shut down gracefully.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
