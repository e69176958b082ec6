package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification of the HTTP API",
		Long:  "Print the OpenAPI 3 document served at /openapi.json without starting the server.",
		Example: `  tablekeeper openapi
  tablekeeper openapi -o api.json --base-url https://maint.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := openapi.Generate(versionString(), baseURL)
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal openapi: %w", err)
			}
			data = append(data, '\n')
			if outputFile == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outputFile, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8080", "server URL in the document")

	return cmd
}
