package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenmcp/warden/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		output  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  "Generate the OpenAPI 3.1 specification for the gateway API, with the backend enum populated from the configured backends.",
		Example: `  warden openapi
  warden openapi --output warden-openapi.json --base-url https://warden.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(output, baseURL)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the spec to a file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Server URL embedded in the spec")

	return cmd
}

func runOpenAPI(output, baseURL string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	backends, err := store.ListBackends(context.Background())
	if err != nil {
		return fmt.Errorf("list backends: %w", err)
	}
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name)
	}

	spec := openapi.Generate(baseURL, versionString(), names)

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	data = append(data, '\n')

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Printf("Wrote OpenAPI spec to %s\n", output)
	return nil
}
