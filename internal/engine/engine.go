// Package engine executes matched hooks under ordering and concurrency
// constraints.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hookgate/hookgate/internal/filter"
	"github.com/hookgate/hookgate/internal/registry"
	"github.com/hookgate/hookgate/pkg/logger"
)

// Status classifies a hook's outcome.
type Status string

const (
	// StatusSuccess covers clean passes and converged auto-fixes.
	StatusSuccess Status = "success"
	// StatusFailure means the hook reported violations via its exit protocol.
	StatusFailure Status = "failure"
	// StatusError means the hook process could not run, crashed, or timed
	// out. Always fatal to the verdict.
	StatusError Status = "error"
	// StatusSkipped means fail-fast or a timeout cancelled the hook before
	// it started.
	StatusSkipped Status = "skipped"
)

// HookResult is the recorded outcome of one hook over its matched files.
type HookResult struct {
	HookID        string        `json:"hook_id"`
	Status        Status        `json:"status"`
	ModifiedFiles []string      `json:"modified_files,omitempty"`
	Diagnostics   string        `json:"diagnostics,omitempty"`
	Cause         string        `json:"cause,omitempty"`
	Attempts      int           `json:"attempts"`
	Duration      time.Duration `json:"duration"`
}

// Options configures a run.
type Options struct {
	// Root is the working directory hooks are invoked in.
	Root string
	// Concurrency bounds the worker pool; <=0 means NumCPU.
	Concurrency int
	// FailFast skips not-yet-started hooks after the first failure or error.
	FailFast bool
	// Policy governs mutation-hook convergence.
	Policy registry.Policy
}

// Engine runs hook groups. The invoker is swappable for tests.
type Engine struct {
	opts   Options
	invoke Invoker
}

// New creates an engine that spawns real hook processes.
func New(opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Engine{opts: opts, invoke: ExecInvoker{Dir: opts.Root}}
}

// NewWithInvoker creates an engine with a custom invoker.
func NewWithInvoker(opts Options, inv Invoker) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Engine{opts: opts, invoke: inv}
}

// Run executes the groups and returns one HookResult per group, in group
// (declaration) order regardless of completion order. Skipped hooks still
// produce a result; only an engine-internal fault yields an error.
func (e *Engine) Run(ctx context.Context, groups []filter.Group) ([]HookResult, error) {
	results := make([]HookResult, len(groups))
	if len(groups) == 0 {
		return results, nil
	}

	sched := newScheduler(groups)

	var mu sync.Mutex
	stopped := false
	shouldStop := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopped
	}
	recordStop := func(r HookResult) {
		if !e.opts.FailFast {
			return
		}
		if r.Status == StatusFailure || r.Status == StatusError {
			mu.Lock()
			stopped = true
			mu.Unlock()
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(e.opts.Concurrency)

	for i := range groups {
		i := i
		group := groups[i]

		if shouldStop() || ctx.Err() != nil {
			results[i] = skippedResult(group, ctx)
			sched.finish(i)
			continue
		}

		g.Go(func() error {
			defer sched.finish(i)

			if err := sched.wait(ctx, i); err != nil {
				results[i] = skippedResult(group, ctx)
				return nil
			}
			// Re-check once the predecessors are done: earlier hooks may
			// have failed while this one waited.
			if shouldStop() || ctx.Err() != nil {
				results[i] = skippedResult(group, ctx)
				return nil
			}

			r := e.runGroup(ctx, group)
			results[i] = r
			recordStop(r)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("execution engine: %w", err)
	}
	return results, nil
}

func skippedResult(group filter.Group, ctx context.Context) HookResult {
	cause := "fail-fast"
	if ctx.Err() != nil {
		cause = "timeout"
	}
	return HookResult{HookID: group.Hook.ID, Status: StatusSkipped, Cause: cause}
}

// runGroup invokes one hook over its matched files, driving the bounded
// auto-fix convergence loop for mutation hooks.
func (e *Engine) runGroup(ctx context.Context, group filter.Group) HookResult {
	start := time.Now()
	hook := group.Hook

	paths := make([]string, len(group.Files))
	for i, f := range group.Files {
		paths[i] = f.Path
	}

	result := HookResult{HookID: hook.ID}
	modified := make(map[string]bool)

	var snap snapshot
	if hook.Mutates {
		snap = takeSnapshot(e.opts.Root, paths)
	}

	maxAttempts := 1
	if hook.Mutates {
		maxAttempts += e.opts.Policy.MaxFixRetries
	}

	targets := paths
	var out Outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		logger.Debug(fmt.Sprintf("invoking hook %s (attempt %d, %d files)", hook.ID, attempt, len(targets)))

		out = e.invoke.Invoke(ctx, hook, targets)
		result.Diagnostics = appendDiagnostics(result.Diagnostics, out.Output)

		if out.Err != nil || out.TimedOut {
			result.Status = StatusError
			result.Cause = errorCause(out)
			result.Duration = time.Since(start)
			result.ModifiedFiles = sortedKeys(modified)
			return result
		}

		var changed []string
		if hook.Mutates {
			changed = snap.changed(e.opts.Root, paths)
			for _, p := range changed {
				modified[p] = true
			}
			snap = takeSnapshot(e.opts.Root, paths)
		}

		if out.ExitCode == 0 {
			// Clean exit. A mutating hook that rewrote files needs a clean
			// second pass under the convergence policy.
			if hook.Mutates && len(changed) > 0 && e.opts.Policy.RequireCleanPass {
				if attempt < maxAttempts {
					targets = rerunTargets(e.opts.Root, changed, paths)
					continue
				}
				result.Status = StatusFailure
				result.Cause = "did not converge within retry bound"
				break
			}
			result.Status = StatusSuccess
			break
		}

		// Violations reported. A mutating hook that made progress gets its
		// bounded retry; everything else is a failure.
		if hook.Mutates && len(changed) > 0 && attempt < maxAttempts {
			targets = rerunTargets(e.opts.Root, changed, paths)
			continue
		}
		result.Status = StatusFailure
		break
	}

	result.ModifiedFiles = sortedKeys(modified)
	result.Duration = time.Since(start)
	return result
}

// rerunTargets picks the file list for a convergence re-run: the still
// present files the previous pass touched, falling back to the full set.
// Files the hook deleted are counted as modified but never re-passed.
func rerunTargets(root string, changed, all []string) []string {
	var present []string
	for _, p := range changed {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err == nil {
			present = append(present, p)
		}
	}
	if len(present) > 0 {
		return present
	}
	return all
}

func errorCause(out Outcome) string {
	if out.TimedOut {
		return "timeout"
	}
	if out.Err != nil {
		return out.Err.Error()
	}
	return "process fault"
}

func appendDiagnostics(existing, output string) string {
	if output == "" {
		return existing
	}
	if existing == "" {
		return output
	}
	return existing + "\n" + output
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
