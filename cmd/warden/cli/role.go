package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/model"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles",
		Long:  "Create and list the roles that bind API keys to permission sets.",
	}

	cmd.AddCommand(newRoleCreateCmd())
	cmd.AddCommand(newRoleListCmd())

	return cmd
}

func newRoleCreateCmd() *cobra.Command {
	var (
		description string
		permissions []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new role",
		Example: `  warden role create developer --permissions "github:*,jira:read" --description "Engineering default"
  warden role create admin --permissions "*"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleCreate(args[0], description, permissions)
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Role description")
	cmd.Flags().StringSliceVar(&permissions, "permissions", nil, "Permission grants, server:action pairs (required)")
	cmd.MarkFlagRequired("permissions")

	return cmd
}

func runRoleCreate(name, description string, permissions []string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	for _, p := range permissions {
		if p == "" {
			return fmt.Errorf("empty permission grant")
		}
	}

	role := &model.Role{
		Name:        name,
		Description: description,
		Permissions: permissions,
		IsActive:    true,
	}
	if err := store.CreateRole(context.Background(), role); err != nil {
		return fmt.Errorf("create role: %w", err)
	}

	fmt.Printf("Created role %q with permissions: %s\n", name, strings.Join(permissions, ", "))
	return nil
}

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	roles, err := store.ListRoles(context.Background())
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(roles)
	}

	if len(roles) == 0 {
		fmt.Println("No roles configured. Use 'warden role create' to create one.")
		return nil
	}

	fmt.Printf("%-4s %-16s %-36s %s\n", "ID", "NAME", "PERMISSIONS", "DESCRIPTION")
	fmt.Printf("%-4s %-16s %-36s %s\n", "--", "----", "-----------", "-----------")
	for _, r := range roles {
		perms := strings.Join(r.Permissions, ",")
		if len(perms) > 34 {
			perms = perms[:31] + "..."
		}
		fmt.Printf("%-4d %-16s %-36s %s\n", r.ID, r.Name, perms, r.Description)
	}
	return nil
}
