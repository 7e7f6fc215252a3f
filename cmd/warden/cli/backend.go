package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/model"
)

func newBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Manage backend servers",
		Long:  "Register, list, test, and remove the upstream protocol servers Warden proxies calls to.",
	}

	cmd.AddCommand(newBackendAddCmd())
	cmd.AddCommand(newBackendListCmd())
	cmd.AddCommand(newBackendTestCmd())
	cmd.AddCommand(newBackendRemoveCmd())

	return cmd
}

// ---------- backend add ----------

func newBackendAddCmd() *cobra.Command {
	var (
		kind    string
		url     string
		label   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new backend server",
		Example: `  warden backend add github --kind mcp --url http://localhost:3001/mcp
  warden backend add billing --kind http --url https://billing.internal/rpc --timeout 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendAdd(args[0], kind, url, label, timeout)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "http", "Backend kind: http or mcp")
	cmd.Flags().StringVar(&url, "url", "", "Backend URL (required)")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Dispatch timeout (default 30s)")
	cmd.MarkFlagRequired("url")

	return cmd
}

func runBackendAdd(name, kind, url, label string, timeout time.Duration) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	b := model.BackendConfig{
		Name:     name,
		Label:    label,
		Kind:     kind,
		URL:      url,
		Timeout:  timeout,
		IsActive: true,
	}
	if err := store.CreateBackend(context.Background(), &b); err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	fmt.Printf("Registered backend %q (%s, %s)\n", name, kind, url)
	fmt.Println("Run 'warden backend test " + name + "' to verify connectivity.")
	return nil
}

// ---------- backend list ----------

func newBackendListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runBackendList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	backends, err := store.ListBackends(context.Background())
	if err != nil {
		return fmt.Errorf("list backends: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(backends)
	}

	if len(backends) == 0 {
		fmt.Println("No backends registered. Use 'warden backend add' to register one.")
		return nil
	}

	fmt.Printf("%-20s %-8s %-40s %-8s\n", "NAME", "KIND", "URL", "ACTIVE")
	fmt.Printf("%-20s %-8s %-40s %-8s\n", "----", "----", "---", "------")
	for _, b := range backends {
		active := "yes"
		if !b.IsActive {
			active = "no"
		}
		url := b.URL
		if len(url) > 38 {
			url = url[:35] + "..."
		}
		fmt.Printf("%-20s %-8s %-40s %-8s\n", b.Name, b.Kind, url, active)
	}
	return nil
}

// ---------- backend test ----------

func newBackendTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Test connectivity to a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendTest(args[0])
		},
	}
}

func runBackendTest(name string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	b, err := store.GetBackendByName(context.Background(), name)
	if err != nil {
		return fmt.Errorf("backend %q not found", name)
	}

	registry := gateway.NewRegistry()
	defer registry.CloseAll()

	backend, err := registry.Connect(*b)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := backend.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	fmt.Printf("Backend %q is reachable (%s)\n", name, time.Since(start).Round(time.Millisecond))
	return nil
}

// ---------- backend remove ----------

func newBackendRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a backend",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendRemove(args[0])
		},
	}
}

func runBackendRemove(name string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	b, err := store.GetBackendByName(ctx, name)
	if err != nil {
		return fmt.Errorf("backend %q not found", name)
	}
	if err := store.DeleteBackend(ctx, b.ID); err != nil {
		return fmt.Errorf("delete backend: %w", err)
	}
	fmt.Printf("Removed backend %q\n", name)
	return nil
}
