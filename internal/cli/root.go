package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/providers"
)

// version is overridden at build time with -ldflags "-X ...cli.version=".
var version = "0.3.0-dev"

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "secreview",
	Short: "Filter and normalize LLM security review findings",
	Long: "secreview parses the raw output of LLM security review passes, drops known false-positive\n" +
		"classes with deterministic rules, asks an LLM to triage the rest, and emits a\n" +
		"deduplicated, ordered artifact with deterministic exit codes.",
	SilenceUsage: true,
}

// Run executes the root command and returns an exit code.
func Run() int {
	return execute(nil)
}

// execute runs the tree with args (os.Args when nil) and maps the outcome
// to an exit code.
func execute(args []string) int {
	exitCode = ExitSuccess
	if args != nil {
		rootCmd.SetArgs(args)
	}
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return exitCodeFor(err)
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// exitCodeFor classifies an error returned by a command. Handlers report
// runtime failures through exitCode, so a returned error is a usage or
// configuration problem unless it is an auth failure.
func exitCodeFor(err error) int {
	if providers.IsAuthError(err) {
		return ExitAuthError
	}
	return ExitUsageError
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print secreview version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "secreview version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: "+config.ProjectFile+" then user config)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(providerCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}
