package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hookgate/hookgate/internal/changeset"
	"github.com/hookgate/hookgate/internal/gate"
	"github.com/hookgate/hookgate/internal/report"
	"github.com/hookgate/hookgate/pkg/exitcode"
	"github.com/hookgate/hookgate/pkg/logger"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run the gate against a changeset",
		Long: `Run resolves the changeset, matches hooks against it, executes them, and
prints the verdict. Positional paths gate exactly those files; otherwise
--scope picks the staged or the full tracked changeset.`,
		RunE: runRun,
	}

	cmd.Flags().String("scope", "staged", "Changeset scope (staged|all); ignored when paths are given")
	cmd.Flags().Bool("fail-fast", false, "Stop scheduling new hooks after the first failure")
	cmd.Flags().Int("concurrency", 0, "Worker pool size (0 = number of CPUs)")
	cmd.Flags().Int("timeout", 0, "Overall run timeout in seconds (0 = no limit)")
	cmd.Flags().String("format", "markdown", "Report format (markdown|json|html|concise)")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().String("root", ".", "Repository root to run against")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	manifest, _ := cmd.Flags().GetString("config")
	root, _ := cmd.Flags().GetString("root")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	scope, err := resolveScope(cmd, args)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, err: err}
	}

	cfg := gate.Config{
		ManifestPath: manifest,
		Root:         root,
		Scope:        scope,
		Format:       report.OutputFormat(format),
		Overrides:    collectOverrides(cmd.Flags()),
	}

	w := cmd.OutOrStdout()
	var file *os.File
	if output != "" {
		file, err = os.Create(output)
		if err != nil {
			return &exitError{code: exitcode.ConfigError, err: fmt.Errorf("create report file: %w", err)}
		}
		defer func() {
			if closeErr := file.Close(); closeErr != nil {
				logger.Warn("closing report file", logger.Err(closeErr))
			}
		}()
		w = file
	}

	code, err := gate.Run(cmd.Context(), cfg, w)
	if err != nil {
		return &exitError{code: code, err: err}
	}
	if code != exitcode.Success {
		return &exitError{code: code}
	}
	return nil
}

func resolveScope(cmd *cobra.Command, args []string) (changeset.Scope, error) {
	if len(args) > 0 {
		if cmd.Flags().Changed("scope") {
			return changeset.Scope{}, fmt.Errorf("--scope cannot be combined with explicit paths")
		}
		return changeset.Scope{Kind: changeset.ScopePaths, Paths: args}, nil
	}

	scope, _ := cmd.Flags().GetString("scope")
	switch changeset.ScopeKind(scope) {
	case changeset.ScopeStaged:
		return changeset.Scope{Kind: changeset.ScopeStaged}, nil
	case changeset.ScopeAll:
		return changeset.Scope{Kind: changeset.ScopeAll}, nil
	default:
		return changeset.Scope{}, fmt.Errorf("unknown scope %q (want staged or all)", scope)
	}
}

// collectOverrides turns only the flags the user actually set into overrides,
// so manifest settings survive for everything left at its default.
func collectOverrides(flags *pflag.FlagSet) gate.Overrides {
	var o gate.Overrides
	if flags.Changed("fail-fast") {
		v, _ := flags.GetBool("fail-fast")
		o.FailFast = &v
	}
	if flags.Changed("concurrency") {
		v, _ := flags.GetInt("concurrency")
		o.Concurrency = &v
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetInt("timeout")
		d := time.Duration(v) * time.Second
		o.Timeout = &d
	}
	return o
}
