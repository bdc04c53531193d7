// Package report aggregates hook results into the gate verdict.
package report

import (
	"time"

	"github.com/hookgate/hookgate/internal/engine"
	"github.com/hookgate/hookgate/pkg/buildinfo"
	"github.com/hookgate/hookgate/pkg/exitcode"
)

// Overall is the gate-level outcome.
type Overall string

const (
	OverallPass Overall = "pass"
	OverallFail Overall = "fail"
)

// Verdict is the aggregate of all hook results for one gate invocation.
// Entries keep hook declaration order for deterministic output.
type Verdict struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Tool        string              `json:"tool"`
	Version     string              `json:"version"`
	Target      string              `json:"target"`
	Scope       string              `json:"scope"`
	Overall     Overall             `json:"overall"`
	Hooks       []engine.HookResult `json:"hooks"`
	Duration    time.Duration       `json:"duration"`
}

// Meta carries run identification for the verdict header.
type Meta struct {
	Target   string
	Scope    string
	Duration time.Duration
}

// Aggregate folds per-hook results into a verdict. The gate passes iff
// every hook result is success (auto-fix-converged counts as success; a
// skipped hook only occurs after a failure, so it never flips a pass).
func Aggregate(results []engine.HookResult, meta Meta) *Verdict {
	overall := OverallPass
	for _, r := range results {
		if r.Status != engine.StatusSuccess {
			overall = OverallFail
			break
		}
	}

	return &Verdict{
		GeneratedAt: time.Now(),
		Tool:        "hookgate",
		Version:     buildinfo.BinaryVersion,
		Target:      meta.Target,
		Scope:       meta.Scope,
		Overall:     overall,
		Hooks:       results,
		Duration:    meta.Duration,
	}
}

// ExitCode maps the verdict to the CLI contract.
func (v *Verdict) ExitCode() int {
	if v.Overall == OverallPass {
		return exitcode.Success
	}
	return exitcode.HookFailure
}
