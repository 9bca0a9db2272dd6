package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/usher/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  `Generate the OpenAPI 3.1 document describing the authentication and user administration API.`,
		Example: `  usher openapi
  usher openapi -o openapi.json --base-url https://api.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(baseURL, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8000", "Server URL to embed in the document")

	return cmd
}

func runOpenAPI(baseURL, outputFile string) error {
	doc := openapi.Generate(baseURL, versionString())

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal openapi: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(b))
		return nil
	}
	if err := os.WriteFile(outputFile, append(b, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}
