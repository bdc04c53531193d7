package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookgate/hookgate/pkg/buildinfo"
	"github.com/hookgate/hookgate/pkg/exitcode"
	"github.com/hookgate/hookgate/pkg/logger"
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return "gate failed"
}

func (e *exitError) Unwrap() error { return e.err }

// newRootCommand creates a fresh root command instance.
// The factory pattern lets tests build isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hookgate",
		Short: "Gate engine for pre-commit hook pipelines",
		Long: `Hookgate runs a manifest of check and auto-fix hooks against a changeset,
filters files per hook, executes hooks concurrently where safe, and folds
the results into a single pass/fail verdict.

Examples:
   hookgate run                    # Gate the staged changeset
   hookgate run --scope=all        # Gate every tracked file
   hookgate run src/a.py src/b.py  # Gate explicit paths
   hookgate validate               # Check the manifest without running hooks`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json-logs", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config", "hookgate.yaml", "Path to the hook manifest")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("hookgate {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the command tree and maps the result to a process exit code:
// 0 gate passed, 1 hook failures, 2 configuration or internal error.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			logger.Error(ee.err.Error())
		}
		os.Exit(ee.code)
	}
	logger.Error("command execution failed", logger.Err(err))
	os.Exit(exitcode.ConfigError)
}

func init() {
	registerSubcommands(rootCmd)
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	noColor, _ := cmd.Flags().GetBool("no-color")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "hookgate",
	}

	if err := logger.Initialize(config); err != nil {
		if _, writeErr := os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n"); writeErr != nil {
			_ = writeErr
		}
		os.Exit(exitcode.ConfigError)
	}
}
