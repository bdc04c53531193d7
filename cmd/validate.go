package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookgate/hookgate/internal/registry"
	"github.com/hookgate/hookgate/pkg/exitcode"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the hook manifest without running anything",
		Long: `Validate loads the manifest, checks it against the schema, and reports
every declaration problem. No changeset is resolved and no hook runs.`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	manifest, _ := cmd.Flags().GetString("config")

	hooks, err := registry.Load(manifest)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, err: err}
	}
	if _, err := registry.LoadSettings(manifest); err != nil {
		return &exitError{code: exitcode.ConfigError, err: err}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: OK (%d hook(s))\n", manifest, len(hooks))
	for _, h := range hooks {
		fmt.Fprintf(out, "  %s: %s [%s]\n", h.ID, h.Command, h.Mode)
	}
	return nil
}
