//go:build windows

package cli

import (
	"os"
)

// isProcessRunning reports whether a process with the given PID exists.
// Windows has no signal 0; FindProcess succeeding is the best available check.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}

// stopProcess terminates the process. Windows has no SIGTERM equivalent for
// console-less processes, so Kill is used.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
