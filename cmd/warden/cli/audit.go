package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/audit"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log",
		Long:  "Search and prune the local audit log. With a PostgreSQL appender, query the database directly instead.",
	}

	cmd.AddCommand(newAuditSearchCmd())
	cmd.AddCommand(newAuditPruneCmd())

	return cmd
}

// openAuditLogger opens the local SQLite-backed audit log. The caller must
// invoke the returned cleanup.
func openAuditLogger() (*audit.Logger, func(), error) {
	store, err := openConfigStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open config store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLog := audit.NewLogger(audit.NewSQLiteAppender(store.DB()), logger)
	return auditLog, func() { store.Close() }, nil
}

func newAuditSearchCmd() *cobra.Command {
	var (
		principal  string
		server     string
		status     string
		since      string
		until      string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "search",
		Aliases: []string{"ls"},
		Short:   "Search audit records",
		Example: `  warden audit search --principal alice@example.com --limit 20
  warden audit search --server github --status denied --since 2026-01-01T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := audit.Query{
				Principal: principal,
				Server:    server,
				Status:    status,
				Limit:     limit,
			}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("--since must be RFC 3339: %w", err)
				}
				q.Since = t
			}
			if until != "" {
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("--until must be RFC 3339: %w", err)
				}
				q.Until = t
			}
			return runAuditSearch(q, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "Filter by principal")
	cmd.Flags().StringVar(&server, "server", "", "Filter by backend server")
	cmd.Flags().StringVar(&status, "status", "", "Filter by result status")
	cmd.Flags().StringVar(&since, "since", "", "Only records at or after this RFC 3339 timestamp")
	cmd.Flags().StringVar(&until, "until", "", "Only records before this RFC 3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAuditSearch(q audit.Query, jsonOutput bool) error {
	auditLog, cleanup, err := openAuditLogger()
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := auditLog.Search(context.Background(), q)
	if err != nil {
		return fmt.Errorf("search audit log: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}

	fmt.Printf("%-20s %-24s %-24s %-14s %s\n", "TIME", "PRINCIPAL", "OPERATION", "STATUS", "ERROR")
	fmt.Printf("%-20s %-24s %-24s %-14s %s\n", "----", "---------", "---------", "------", "-----")
	for _, rec := range records {
		op := rec.Server + ":" + rec.Method
		if len(op) > 22 {
			op = op[:19] + "..."
		}
		fmt.Printf("%-20s %-24s %-24s %-14s %s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Principal, op, rec.Status, rec.ErrorKind)
	}
	return nil
}

func newAuditPruneCmd() *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit records older than a cutoff",
		Example: `  warden audit prune --before 2026-01-01T00:00:00Z
  warden audit prune --before 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := parseCutoff(before)
			if err != nil {
				return err
			}
			return runAuditPrune(cutoff)
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "Cutoff as RFC 3339 timestamp or age duration (required)")
	cmd.MarkFlagRequired("before")

	return cmd
}

// parseCutoff accepts either an absolute RFC 3339 timestamp or a duration
// interpreted as an age relative to now.
func parseCutoff(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("--before must be an RFC 3339 timestamp or a duration like 720h")
}

func runAuditPrune(before time.Time) error {
	auditLog, cleanup, err := openAuditLogger()
	if err != nil {
		return err
	}
	defer cleanup()

	deleted, err := auditLog.Prune(context.Background(), before)
	if err != nil {
		return fmt.Errorf("prune audit log: %w", err)
	}

	fmt.Printf("Deleted %d audit records older than %s\n", deleted, before.Format(time.RFC3339))
	return nil
}
