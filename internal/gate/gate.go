// Package gate drives a full run: load, resolve, match, execute, aggregate.
package gate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hookgate/hookgate/internal/changeset"
	"github.com/hookgate/hookgate/internal/engine"
	"github.com/hookgate/hookgate/internal/filter"
	"github.com/hookgate/hookgate/internal/registry"
	"github.com/hookgate/hookgate/internal/report"
	"github.com/hookgate/hookgate/pkg/exitcode"
	"github.com/hookgate/hookgate/pkg/logger"
)

// Overrides are CLI-level knobs that take precedence over manifest settings.
// Nil means "use the manifest's value".
type Overrides struct {
	FailFast    *bool
	Concurrency *int
	Timeout     *time.Duration
}

// Config describes one gate invocation.
type Config struct {
	ManifestPath string
	Root         string
	Scope        changeset.Scope
	Format       report.OutputFormat
	Overrides    Overrides

	// newEngine is swappable for tests.
	newEngine func(engine.Options) *engine.Engine
}

// Run executes the gate and writes the report to w. It returns the process
// exit code: 0 pass, 1 hook failures, 2 configuration/resolution/internal
// error. Fatal errors abort before any report is written.
func Run(ctx context.Context, cfg Config, w io.Writer) (int, error) {
	start := time.Now()

	hooks, err := registry.Load(cfg.ManifestPath)
	if err != nil {
		return exitcode.ConfigError, err
	}
	settings, err := registry.LoadSettings(cfg.ManifestPath)
	if err != nil {
		return exitcode.ConfigError, err
	}
	applyOverrides(&settings, cfg.Overrides)

	files, err := changeset.NewResolver(cfg.Root).Resolve(cfg.Scope)
	if err != nil {
		return exitcode.ConfigError, err
	}

	groups := filter.GroupByHook(hooks, files)
	logger.Info(fmt.Sprintf("gate: %d hook(s), %d file(s), %d matched group(s)",
		len(hooks), len(files), len(groups)))

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	opts := engine.Options{
		Root:        cfg.Root,
		Concurrency: settings.Concurrency,
		FailFast:    settings.FailFast,
		Policy:      settings.Policy,
	}
	eng := engine.New(opts)
	if cfg.newEngine != nil {
		eng = cfg.newEngine(opts)
	}

	results, err := eng.Run(ctx, groups)
	if err != nil {
		return exitcode.ConfigError, err
	}

	verdict := report.Aggregate(results, report.Meta{
		Target:   cfg.Root,
		Scope:    string(cfg.Scope.Kind),
		Duration: time.Since(start),
	})

	rendered, err := report.NewFormatter(cfg.Format).Format(verdict)
	if err != nil {
		return exitcode.ConfigError, err
	}
	if _, err := io.WriteString(w, rendered); err != nil {
		return exitcode.ConfigError, fmt.Errorf("write report: %w", err)
	}

	logger.Info(fmt.Sprintf("gate: %s in %s", verdict.Overall, verdict.Duration),
		logger.Int("exit", verdict.ExitCode()))
	return verdict.ExitCode(), nil
}

func applyOverrides(s *registry.Settings, o Overrides) {
	if o.FailFast != nil {
		s.FailFast = *o.FailFast
	}
	if o.Concurrency != nil {
		s.Concurrency = *o.Concurrency
	}
	if o.Timeout != nil {
		s.Timeout = *o.Timeout
	}
}
