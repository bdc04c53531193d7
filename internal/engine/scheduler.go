package engine

import (
	"context"

	"github.com/hookgate/hookgate/internal/filter"
	"github.com/hookgate/hookgate/internal/registry"
)

// scheduler enforces declaration-order precedence between groups. A
// serial-required hook is a barrier: it starts only after every
// earlier-declared group has finished, and every later group waits for it.
// A parallelizable group additionally waits for any earlier group that
// mutates files it shares, so a later hook always sees the earlier fixer's
// output. Independent parallelizable groups still overlap freely.
type scheduler struct {
	deps [][]int
	done []chan struct{}
}

func newScheduler(groups []filter.Group) *scheduler {
	s := &scheduler{
		deps: make([][]int, len(groups)),
		done: make([]chan struct{}, len(groups)),
	}
	for i := range groups {
		s.done[i] = make(chan struct{})
		for j := 0; j < i; j++ {
			if dependsOn(groups[i], groups[j]) {
				s.deps[i] = append(s.deps[i], j)
			}
		}
	}
	return s
}

// dependsOn reports whether later must wait for earlier to complete.
func dependsOn(later, earlier filter.Group) bool {
	if later.Hook.Mode == registry.ModeSerial || earlier.Hook.Mode == registry.ModeSerial {
		return true
	}
	if !later.Hook.Mutates && !earlier.Hook.Mutates {
		return false
	}
	return sharesFiles(later, earlier)
}

func sharesFiles(a, b filter.Group) bool {
	paths := make(map[string]bool, len(a.Files))
	for _, f := range a.Files {
		paths[f.Path] = true
	}
	for _, f := range b.Files {
		if paths[f.Path] {
			return true
		}
	}
	return false
}

// wait blocks until every dependency of group i has finished, or the context
// expires. Dependencies always point at earlier-declared groups, which hold
// worker slots no later than group i, so waiting inside a slot cannot
// deadlock.
func (s *scheduler) wait(ctx context.Context, i int) error {
	for _, j := range s.deps[i] {
		select {
		case <-s.done[j]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// finish marks group i complete, releasing its dependents. Must be called
// exactly once per group, including skipped ones.
func (s *scheduler) finish(i int) {
	close(s.done[i])
}
