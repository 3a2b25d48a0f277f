package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/koscakluka/natlang-core/core/actions"
	"github.com/koscakluka/natlang-core/core/llms"
	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schemas of the demo actions",
		Long: `Prints the function schemas offered to the model, one entry per action
that has an argument schema. Actions without a schema are not listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				w = file
			}
			return writeSchemas(w, demoActions(&notebook{}, time.Now))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the schemas to a file instead of stdout")
	return cmd
}

func writeSchemas(w io.Writer, factories []actions.Factory) error {
	registry, err := actions.NewRegistry(nil, factories...)
	if err != nil {
		return fmt.Errorf("failed to register actions: %w", err)
	}

	schemas := registry.Schemas()
	if schemas == nil {
		schemas = []llms.FunctionSchema{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schemas); err != nil {
		return fmt.Errorf("failed to encode schemas: %w", err)
	}
	return nil
}
