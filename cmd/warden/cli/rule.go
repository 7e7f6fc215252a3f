package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/policy"
)

func newRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Inspect approval rules",
		Long:  "Show the approval rules loaded from the policy configuration, in match order.",
	}

	cmd.AddCommand(newRuleListCmd())

	return cmd
}

func newRuleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List approval rules in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuleList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRuleList(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	snap, err := policy.Build(context.Background(), cfg, store)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap.ApprovalRules)
	}

	if len(snap.ApprovalRules) == 0 {
		fmt.Println("No approval rules configured. Calls dispatch without human gates.")
		return nil
	}

	fmt.Printf("%-3s %-20s %-24s %-7s %-8s %s\n", "#", "NAME", "PATTERN", "REQUIRE", "TIMEOUT", "APPROVERS")
	fmt.Printf("%-3s %-20s %-24s %-7s %-8s %s\n", "-", "----", "-------", "-------", "-------", "---------")
	for i, rule := range snap.ApprovalRules {
		fmt.Printf("%-3d %-20s %-24s %-7d %-8s %s\n",
			i+1, rule.Name, rule.Pattern, rule.Require, rule.Timeout, strings.Join(rule.Approvers, ", "))
		for k, v := range rule.Params {
			fmt.Printf("    where %s == %s\n", k, v)
		}
	}
	return nil
}
