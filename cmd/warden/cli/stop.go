package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running gateway",
		Long:  "Send a termination signal to a locally started gateway process and wait for it to exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}
}

func runStop() error {
	pid, err := readPID()
	if err != nil {
		fmt.Println("Gateway is not running (no PID file).")
		return nil
	}

	if !isProcessRunning(pid) {
		fmt.Printf("Gateway is not running (stale PID file, pid %d).\n", pid)
		removePID()
		return nil
	}

	fmt.Printf("Stopping gateway (pid %d)...\n", pid)
	if err := stopProcess(pid); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	for i := 0; i < 50; i++ {
		if !isProcessRunning(pid) {
			removePID()
			fmt.Println("Gateway stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("gateway (pid %d) did not exit within 5s", pid)
}
