package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Check whether a locally started gateway process is running and responding to health checks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
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

	fmt.Printf("Gateway is running (pid %d).\n", pid)

	host := viper.GetString("server.host")
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port := viper.GetInt("server.port")
	if port == 0 {
		port = 8080
	}

	url := fmt.Sprintf("http://%s:%d/healthz", host, port)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("Health check failed: %v\n", err)
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusOK {
		fmt.Printf("Health check OK: %s\n", string(body))
	} else {
		fmt.Printf("Health check returned %d: %s\n", resp.StatusCode, string(body))
	}
	return nil
}
