package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/style"
	"github.com/skilletai/skillet/internal/tools"
	"github.com/skilletai/skillet/internal/tools/builtin"
	"github.com/skilletai/skillet/pkg/schema"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Output the skill document schema and runtime capabilities",
	Long:   `Output the JSON Schema of the skill document model together with the providers and tools this binary can dispatch to. Intended for editor integrations.`,
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		toolRegistry := tools.NewRegistry()
		if err := builtin.Register(toolRegistry); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error registering tools: %v\n", err)
			os.Exit(1)
		}

		providers := provider.NewRegistry()
		provider.RegisterFromEnv(providers)

		output, err := schema.Get(providers, toolRegistry)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error generating schema: %v\n", err)
			os.Exit(1)
		}

		style.PrintJSON(cmd.OutOrStdout(), output)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
