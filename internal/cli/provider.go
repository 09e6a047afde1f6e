package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/providers"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Provider and model management",
}

// knownModels are the Anthropic model names accepted on every backend.
var knownModels = []string{
	"claude-opus-4-20250514",
	"claude-sonnet-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-haiku-20241022",
}

var providerModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models and their Vertex and Bedrock identifiers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-28s  %-28s  %s\n", "ANTHROPIC", "VERTEX", "BEDROCK")
		for _, m := range knownModels {
			fmt.Fprintf(out, "%-28s  %-28s  %s\n", m, providers.VertexModel(m), providers.BedrockModel(m))
		}
	},
}

var providerValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate provider credentials with a minimal call",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checking %s (%s)...\n", cfg.Provider, cfg.Model)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		client, err := newClient(ctx, cfg)
		if err != nil {
			return err
		}
		if err := client.Validate(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %v\n", err)
			if providers.IsAuthError(err) {
				exitCode = ExitAuthError
			} else {
				exitCode = ExitRuntimeError
			}
			return nil
		}
		fmt.Fprintf(out, "OK: %s is configured and responding (model %s)\n", client.Name(), client.Model())
		return nil
	},
}

func init() {
	providerCmd.AddCommand(providerModelsCmd)
	providerCmd.AddCommand(providerValidateCmd)
	providerValidateCmd.Flags().StringVar(&flagProvider, "provider", "", "Provider to check ("+strings.Join(config.Providers, ", ")+")")
	providerValidateCmd.Flags().StringVar(&flagModel, "model", "", "Model to check")
}
