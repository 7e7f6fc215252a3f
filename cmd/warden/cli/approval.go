package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/approval"
	"github.com/wardenmcp/warden/internal/model"
	"github.com/wardenmcp/warden/internal/notify"
)

func newApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "approval",
		Aliases: []string{"approvals"},
		Short:   "Manage approval requests",
		Long:    "List, inspect, and resolve pending approval requests from the command line.",
	}

	cmd.AddCommand(newApprovalListCmd())
	cmd.AddCommand(newApprovalShowCmd())
	cmd.AddCommand(newApprovalApproveCmd())
	cmd.AddCommand(newApprovalRejectCmd())
	cmd.AddCommand(newApprovalCancelCmd())

	return cmd
}

// openApprovalEngine opens the config store and builds an approval engine
// backed by the same database. The caller must invoke the returned cleanup.
func openApprovalEngine() (*approval.Engine, func(), error) {
	store, err := openConfigStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open config store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	dispatcher := notify.NewDispatcher(logger)
	dispatcher.Register(notify.NewLogSender("log", logger))

	engine := approval.NewEngine(approval.NewSQLiteStore(store.DB()), dispatcher, logger)
	return engine, func() { store.Close() }, nil
}

func newApprovalListCmd() *cobra.Command {
	var (
		state      string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalList(state, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&state, "state", "pending", "Filter by state (pending, approved, rejected, timed_out, canceled, all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of requests to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runApprovalList(state string, limit int, jsonOutput bool) error {
	engine, cleanup, err := openApprovalEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	var filter model.ApprovalState
	if state != "" && state != "all" {
		filter = model.ApprovalState(state)
	}

	requests, err := engine.List(context.Background(), filter, limit)
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(requests)
	}

	if len(requests) == 0 {
		fmt.Println("No approval requests found.")
		return nil
	}

	fmt.Printf("%-38s %-10s %-20s %-24s %s\n", "ID", "STATE", "REQUESTER", "OPERATION", "DEADLINE")
	fmt.Printf("%-38s %-10s %-20s %-24s %s\n", "--", "-----", "---------", "---------", "--------")
	for _, req := range requests {
		op := req.Server + ":" + req.Method
		if len(op) > 22 {
			op = op[:19] + "..."
		}
		deadline := "-"
		if req.State == model.ApprovalPending {
			deadline = time.Until(req.Deadline).Round(time.Second).String()
		}
		fmt.Printf("%-38s %-10s %-20s %-24s %s\n", req.ID, req.State, req.Requester, op, deadline)
	}
	return nil
}

func newApprovalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := openApprovalEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			req, err := engine.Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("get approval: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(req)
		},
	}
}

func newApprovalApproveCmd() *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Record an approval vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalVote(args[0], approver, "approve")
		},
	}

	cmd.Flags().StringVar(&approver, "as", "", "Approver identity (required)")
	cmd.MarkFlagRequired("as")

	return cmd
}

func newApprovalRejectCmd() *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalVote(args[0], approver, "reject")
		},
	}

	cmd.Flags().StringVar(&approver, "as", "", "Approver identity (required)")
	cmd.MarkFlagRequired("as")

	return cmd
}

func runApprovalVote(id, approver, action string) error {
	engine, cleanup, err := openApprovalEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()

	var req *model.ApprovalRequest
	switch action {
	case "approve":
		req, err = engine.Approve(ctx, id, approver)
	case "reject":
		req, err = engine.Reject(ctx, id, approver)
	}
	if err != nil {
		return fmt.Errorf("%s approval: %w", action, err)
	}

	fmt.Printf("Approval %s is now %s (%d/%d votes)\n", req.ID, req.State, len(req.ApprovedBy), req.Require)
	return nil
}

func newApprovalCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := openApprovalEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			req, err := engine.Cancel(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("cancel approval: %w", err)
			}

			fmt.Printf("Approval %s canceled\n", req.ID)
			return nil
		},
	}
}
