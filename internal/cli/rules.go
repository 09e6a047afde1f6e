package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/hardrule"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect hard-rule exclusions",
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective rule set as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rs, err := buildRules(cfg)
		if err != nil {
			return err
		}
		doc := struct {
			Version string          `yaml:"version"`
			Rules   []hardrule.Rule `yaml:"rules"`
		}{rs.Version(), rs.Rules()}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		return enc.Close()
	},
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a directives file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := hardrule.LoadDirectives(args[0])
		if err != nil {
			return err
		}
		rs, err := hardrule.New(hardrule.FromConfig(config.Default().Filter).Merge(d))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d user rule(s), %d total, version %s\n",
			rs.UserRules(), len(rs.Rules()), rs.Version())
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
	rulesShowCmd.Flags().StringVar(&flagRules, "rules", "", "Hard-rule directives file (YAML)")
}
