package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hookgate/hookgate/internal/changeset"
	"github.com/hookgate/hookgate/internal/filter"
	"github.com/hookgate/hookgate/internal/registry"
)

// fakeInvoker drives the engine without spawning processes. The behavior
// func sees the per-hook attempt number.
type fakeInvoker struct {
	mu       sync.Mutex
	attempts map[string]int
	active   int
	maxSeen  int
	behavior func(hook registry.Hook, paths []string, attempt int) Outcome
	delay    time.Duration
}

func newFakeInvoker(behavior func(hook registry.Hook, paths []string, attempt int) Outcome) *fakeInvoker {
	return &fakeInvoker{attempts: make(map[string]int), behavior: behavior}
}

func (f *fakeInvoker) Invoke(_ context.Context, hook registry.Hook, paths []string) Outcome {
	f.mu.Lock()
	f.attempts[hook.ID]++
	attempt := f.attempts[hook.ID]
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	out := f.behavior(hook, paths, attempt)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return out
}

func pass(registry.Hook, []string, int) Outcome { return Outcome{} }

func group(hook registry.Hook, paths ...string) filter.Group {
	g := filter.Group{Hook: hook}
	for _, p := range paths {
		g.Files = append(g.Files, changeset.FileEntry{Path: p, Types: []string{"python"}})
	}
	return g
}

func defaultOpts(root string) Options {
	return Options{
		Root:        root,
		Concurrency: 4,
		Policy:      registry.Policy{RequireCleanPass: true, MaxFixRetries: 1},
	}
}

func TestRunProducesOneResultPerGroupInDeclarationOrder(t *testing.T) {
	inv := newFakeInvoker(func(hook registry.Hook, _ []string, _ int) Outcome {
		// First hook finishes last; ordering must still hold.
		if hook.ID == "first" {
			time.Sleep(30 * time.Millisecond)
		}
		return Outcome{}
	})
	eng := NewWithInvoker(defaultOpts(t.TempDir()), inv)

	groups := []filter.Group{
		group(registry.Hook{ID: "first", Mode: registry.ModeParallel}, "a.py"),
		group(registry.Hook{ID: "second", Mode: registry.ModeParallel}, "a.py"),
		group(registry.Hook{ID: "third", Mode: registry.ModeParallel}, "a.py"),
	}
	results, err := eng.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, id := range []string{"first", "second", "third"} {
		if results[i].HookID != id {
			t.Errorf("result %d = %s, want %s", i, results[i].HookID, id)
		}
		if results[i].Status != StatusSuccess {
			t.Errorf("result %d status = %s, want success", i, results[i].Status)
		}
	}
}

func TestRunWithoutFailFastRunsEverything(t *testing.T) {
	inv := newFakeInvoker(func(hook registry.Hook, _ []string, _ int) Outcome {
		if hook.ID == "linter" {
			return Outcome{ExitCode: 1, Output: "violations"}
		}
		return Outcome{}
	})
	opts := defaultOpts(t.TempDir())
	opts.Concurrency = 1
	eng := NewWithInvoker(opts, inv)

	groups := []filter.Group{
		group(registry.Hook{ID: "linter", Mode: registry.ModeParallel}, "a.py"),
		group(registry.Hook{ID: "after", Mode: registry.ModeParallel}, "a.py"),
	}
	results, err := eng.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusFailure {
		t.Errorf("linter status = %s, want failure", results[0].Status)
	}
	if results[1].Status != StatusSuccess {
		t.Errorf("after status = %s, want success (fail-fast disabled)", results[1].Status)
	}
}

func TestRunFailFastSkipsRemaining(t *testing.T) {
	inv := newFakeInvoker(func(hook registry.Hook, _ []string, _ int) Outcome {
		if hook.ID == "linter" {
			return Outcome{ExitCode: 1}
		}
		return Outcome{}
	})
	opts := defaultOpts(t.TempDir())
	opts.Concurrency = 1
	opts.FailFast = true
	eng := NewWithInvoker(opts, inv)

	groups := []filter.Group{
		group(registry.Hook{ID: "linter", Mode: registry.ModeParallel}, "a.py"),
		group(registry.Hook{ID: "after", Mode: registry.ModeParallel}, "a.py"),
	}
	results, err := eng.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusFailure {
		t.Errorf("linter status = %s, want failure", results[0].Status)
	}
	if results[1].Status != StatusSkipped || results[1].Cause != "fail-fast" {
		t.Errorf("after = %+v, want skipped/fail-fast", results[1])
	}
}

func TestSpawnFaultIsError(t *testing.T) {
	inv := newFakeInvoker(func(registry.Hook, []string, int) Outcome {
		return Outcome{Err: errors.New("exec: not found")}
	})
	eng := NewWithInvoker(defaultOpts(t.TempDir()), inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "ghost", Mode: registry.ModeParallel}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusError {
		t.Errorf("status = %s, want error", results[0].Status)
	}
}

func TestTimeoutIsErrorWithCause(t *testing.T) {
	inv := newFakeInvoker(func(registry.Hook, []string, int) Outcome {
		return Outcome{TimedOut: true}
	})
	eng := NewWithInvoker(defaultOpts(t.TempDir()), inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "slow", Mode: registry.ModeParallel}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusError || results[0].Cause != "timeout" {
		t.Errorf("result = %+v, want error/timeout", results[0])
	}
}

func TestExpiredContextSkipsGroups(t *testing.T) {
	inv := newFakeInvoker(pass)
	eng := NewWithInvoker(defaultOpts(t.TempDir()), inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := eng.Run(ctx, []filter.Group{
		group(registry.Hook{ID: "late", Mode: registry.ModeParallel}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusSkipped || results[0].Cause != "timeout" {
		t.Errorf("result = %+v, want skipped/timeout", results[0])
	}
}

// writeFile is a helper for mutation tests.
func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestMutationConvergesToSuccess(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x=1\n")

	inv := newFakeInvoker(func(_ registry.Hook, _ []string, attempt int) Outcome {
		if attempt == 1 {
			// Formatter rewrites the file and reports it did so.
			writeFile(t, root, "a.py", "x = 1\n")
			return Outcome{ExitCode: 1, Output: "reformatted a.py"}
		}
		return Outcome{}
	})
	eng := NewWithInvoker(defaultOpts(root), inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "black", Mode: registry.ModeSerial, Mutates: true}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r := results[0]
	if r.Status != StatusSuccess {
		t.Fatalf("status = %s, want success (converged), diag=%q", r.Status, r.Diagnostics)
	}
	if r.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", r.Attempts)
	}
	if len(r.ModifiedFiles) != 1 || r.ModifiedFiles[0] != "a.py" {
		t.Errorf("modified = %v, want [a.py]", r.ModifiedFiles)
	}
}

func TestMutationThatNeverConvergesFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x=1\n")

	counter := 0
	inv := newFakeInvoker(func(_ registry.Hook, _ []string, _ int) Outcome {
		// Rewrites to fresh content each pass and keeps reporting violations.
		counter++
		writeFile(t, root, "a.py", "x = 1\n"+string(rune('a'+counter))+"\n")
		return Outcome{ExitCode: 1}
	})
	opts := defaultOpts(root)
	opts.Policy.MaxFixRetries = 2
	eng := NewWithInvoker(opts, inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "fixer", Mode: registry.ModeSerial, Mutates: true}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r := results[0]
	if r.Status != StatusFailure {
		t.Fatalf("status = %s, want failure", r.Status)
	}
	if r.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 + 2 retries)", r.Attempts)
	}
}

func TestCleanExitWithMutationNeedsCleanPass(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x=1\n")

	inv := newFakeInvoker(func(_ registry.Hook, _ []string, attempt int) Outcome {
		if attempt == 1 {
			writeFile(t, root, "a.py", "x = 1\n")
		}
		return Outcome{}
	})
	eng := NewWithInvoker(defaultOpts(root), inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "black", Mode: registry.ModeSerial, Mutates: true}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusSuccess || results[0].Attempts != 2 {
		t.Errorf("result = %+v, want success after clean second pass", results[0])
	}
}

func TestCleanExitWithMutationPassesWithoutCleanPassPolicy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x=1\n")

	inv := newFakeInvoker(func(_ registry.Hook, _ []string, attempt int) Outcome {
		if attempt == 1 {
			writeFile(t, root, "a.py", "x = 1\n")
		}
		return Outcome{}
	})
	opts := defaultOpts(root)
	opts.Policy.RequireCleanPass = false
	eng := NewWithInvoker(opts, inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "black", Mode: registry.ModeSerial, Mutates: true}, "a.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != StatusSuccess || results[0].Attempts != 1 {
		t.Errorf("result = %+v, want success on first pass", results[0])
	}
}

func TestSerialHookNeverOverlaps(t *testing.T) {
	var mu sync.Mutex
	overlapped := false

	inv := newFakeInvoker(nil)
	inv.delay = 10 * time.Millisecond
	inv.behavior = func(hook registry.Hook, _ []string, _ int) Outcome {
		if hook.Mode == registry.ModeSerial {
			inv.mu.Lock()
			if inv.active > 1 {
				mu.Lock()
				overlapped = true
				mu.Unlock()
			}
			inv.mu.Unlock()
		}
		return Outcome{}
	}
	eng := NewWithInvoker(defaultOpts(t.TempDir()), inv)

	groups := []filter.Group{
		group(registry.Hook{ID: "p1", Mode: registry.ModeParallel}, "a.py"),
		group(registry.Hook{ID: "serial", Mode: registry.ModeSerial}, "a.py"),
		group(registry.Hook{ID: "p2", Mode: registry.ModeParallel}, "b.py"),
		group(registry.Hook{ID: "p3", Mode: registry.ModeParallel}, "c.py"),
	}
	if _, err := eng.Run(context.Background(), groups); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if overlapped {
		t.Error("serial-required hook ran concurrently with another hook")
	}
}

func TestOverlappingMutationHooksSerialized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shared.py", "x=1\n")

	var mu sync.Mutex
	activeMutators := 0
	overlapped := false

	inv := newFakeInvoker(func(hook registry.Hook, _ []string, _ int) Outcome {
		if hook.Mutates {
			mu.Lock()
			activeMutators++
			if activeMutators > 1 {
				overlapped = true
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			activeMutators--
			mu.Unlock()
		}
		return Outcome{}
	})
	eng := NewWithInvoker(defaultOpts(root), inv)

	groups := []filter.Group{
		group(registry.Hook{ID: "fix1", Mode: registry.ModeParallel, Mutates: true}, "shared.py"),
		group(registry.Hook{ID: "fix2", Mode: registry.ModeParallel, Mutates: true}, "shared.py"),
	}
	if _, err := eng.Run(context.Background(), groups); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if overlapped {
		t.Error("mutation hooks with overlapping files ran concurrently")
	}
}

func TestLaterHookWaitsForSerialFormatter(t *testing.T) {
	root := t.TempDir()

	groups := []filter.Group{
		group(registry.Hook{ID: "black", Mode: registry.ModeSerial, Mutates: true}, "a.py"),
		group(registry.Hook{ID: "flake8", Mode: registry.ModeParallel}, "a.py"),
	}

	// The formatter dawdles, so a scheduler that only prevents overlap
	// (without declaration-order precedence) would let the linter in first.
	for i := 0; i < 50; i++ {
		writeFile(t, root, "a.py", "x=1\n")

		inv := newFakeInvoker(func(hook registry.Hook, _ []string, attempt int) Outcome {
			switch hook.ID {
			case "black":
				time.Sleep(time.Millisecond)
				if attempt == 1 {
					writeFile(t, root, "a.py", "x = 1\n")
					return Outcome{ExitCode: 1, Output: "reformatted a.py"}
				}
				return Outcome{}
			case "flake8":
				data, err := os.ReadFile(filepath.Join(root, "a.py"))
				if err != nil || string(data) != "x = 1\n" {
					return Outcome{ExitCode: 1, Output: "saw unformatted content"}
				}
				return Outcome{}
			}
			return Outcome{}
		})
		eng := NewWithInvoker(defaultOpts(root), inv)

		results, err := eng.Run(context.Background(), groups)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if results[0].Status != StatusSuccess {
			t.Fatalf("iteration %d: formatter = %+v, want success", i, results[0])
		}
		if results[1].Status != StatusSuccess {
			t.Fatalf("iteration %d: linter ran before the formatter finished: %+v", i, results[1])
		}
	}
}

func TestOverlappingMutatorsRunInDeclarationOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shared.py", "x=1\n")

	var mu sync.Mutex
	var order []string

	inv := newFakeInvoker(func(hook registry.Hook, _ []string, _ int) Outcome {
		if hook.ID == "fix1" {
			time.Sleep(5 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, hook.ID)
		mu.Unlock()
		return Outcome{}
	})
	eng := NewWithInvoker(defaultOpts(root), inv)

	groups := []filter.Group{
		group(registry.Hook{ID: "fix1", Mode: registry.ModeParallel, Mutates: true}, "shared.py"),
		group(registry.Hook{ID: "fix2", Mode: registry.ModeParallel, Mutates: true}, "shared.py"),
	}
	if _, err := eng.Run(context.Background(), groups); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "fix1" || order[1] != "fix2" {
		t.Errorf("execution order = %v, want [fix1 fix2]", order)
	}
}

func TestMutationDeletingFileIsRecorded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x=1\n")
	writeFile(t, root, "b.py", "y=2\n")

	inv := newFakeInvoker(func(registry.Hook, []string, int) Outcome {
		_ = os.Remove(filepath.Join(root, "a.py"))
		return Outcome{}
	})
	opts := defaultOpts(root)
	opts.Policy.RequireCleanPass = false
	eng := NewWithInvoker(opts, inv)

	results, err := eng.Run(context.Background(), []filter.Group{
		group(registry.Hook{ID: "pruner", Mode: registry.ModeSerial, Mutates: true}, "a.py", "b.py"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r := results[0]
	if r.Status != StatusSuccess || r.Attempts != 1 {
		t.Fatalf("result = %+v, want success on first pass", r)
	}
	if len(r.ModifiedFiles) != 1 || r.ModifiedFiles[0] != "a.py" {
		t.Errorf("modified = %v, want [a.py] (deletion is a mutation)", r.ModifiedFiles)
	}
}

func TestEmptyGroups(t *testing.T) {
	eng := NewWithInvoker(defaultOpts(t.TempDir()), newFakeInvoker(pass))
	results, err := eng.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
