// Package filter matches resolved files to declared hooks.
package filter

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/hookgate/hookgate/internal/changeset"
	"github.com/hookgate/hookgate/internal/registry"
)

// Match pairs a hook with one file it applies to. Transient.
type Match struct {
	Hook registry.Hook
	File changeset.FileEntry
}

// Group collects every file matched to one hook, in file order. Groups keep
// the registry declaration order.
type Group struct {
	Hook  registry.Hook
	Files []changeset.FileEntry
}

// Apply returns the matches for hooks over files, hook declaration order
// first, file order within each hook. Pure function.
func Apply(hooks []registry.Hook, files []changeset.FileEntry) []Match {
	var matches []Match
	for _, hook := range hooks {
		for _, file := range files {
			if Matches(hook, file) {
				matches = append(matches, Match{Hook: hook, File: file})
			}
		}
	}
	return matches
}

// GroupByHook returns per-hook groups in declaration order, dropping hooks
// with no matched files.
func GroupByHook(hooks []registry.Hook, files []changeset.FileEntry) []Group {
	var groups []Group
	for _, hook := range hooks {
		var matched []changeset.FileEntry
		for _, file := range files {
			if Matches(hook, file) {
				matched = append(matched, file)
			}
		}
		if len(matched) > 0 {
			groups = append(groups, Group{Hook: hook, Files: matched})
		}
	}
	return groups
}

// Matches reports whether a file belongs to a hook: its type must be in the
// hook's applicable set, its path must satisfy every include pattern and no
// exclude pattern. Exclude wins on conflict.
func Matches(hook registry.Hook, file changeset.FileEntry) bool {
	if !typeApplies(hook.Types, file.Types) {
		return false
	}
	for _, pattern := range hook.Include {
		if !pathMatch(pattern, file.Path) {
			return false
		}
	}
	for _, pattern := range hook.Exclude {
		if pathMatch(pattern, file.Path) {
			return false
		}
	}
	return true
}

// typeApplies checks tag-set intersection; a hook with no declared types
// applies to every file.
func typeApplies(hookTypes, fileTypes []string) bool {
	if len(hookTypes) == 0 {
		return true
	}
	for _, ht := range hookTypes {
		for _, ft := range fileTypes {
			if ht == ft {
				return true
			}
		}
	}
	return false
}

// pathMatch evaluates a doublestar glob against a slash-separated path.
// Invalid patterns never match; Load has already schema-checked shapes, but
// a bad glob should fail closed rather than panic.
func pathMatch(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
