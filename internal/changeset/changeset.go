// Package changeset resolves the set of files a gate run considers.
package changeset

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/hookgate/hookgate/pkg/ignore"
	"github.com/hookgate/hookgate/pkg/logger"
)

// ScopeKind selects which files a run considers.
type ScopeKind string

const (
	// ScopeStaged resolves files staged in the git index.
	ScopeStaged ScopeKind = "staged"
	// ScopeAll resolves every tracked file.
	ScopeAll ScopeKind = "all"
	// ScopePaths resolves an explicit path list.
	ScopePaths ScopeKind = "paths"
)

// Scope describes the changeset to resolve.
type Scope struct {
	Kind  ScopeKind
	Paths []string // only for ScopePaths
}

// FileEntry is one file under consideration, with its detected type tags.
// Derived per run; never persisted.
type FileEntry struct {
	Path   string
	Types  []string
	Staged bool
}

// ResolutionError reports that the changeset could not be determined. It is
// fatal: the gate aborts with no report.
type ResolutionError struct {
	Scope  ScopeKind
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s changeset: %s: %v", e.Scope, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s changeset: %s", e.Scope, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver inspects the working tree at Root. Read-only.
type Resolver struct {
	Root    string
	matcher *ignore.Matcher
}

// NewResolver creates a resolver rooted at root. Ignore-file matching is
// best-effort: a failed matcher init degrades to no ignore filtering.
func NewResolver(root string) *Resolver {
	r := &Resolver{Root: root}
	if matcher, err := ignore.NewMatcher(root); err == nil {
		r.matcher = matcher
	} else {
		logger.Warn(fmt.Sprintf("ignore matcher unavailable: %v", err))
	}
	return r
}

// Resolve returns the files in scope, sorted by path for deterministic
// downstream ordering.
func (r *Resolver) Resolve(scope Scope) ([]FileEntry, error) {
	var entries []FileEntry
	var err error

	switch scope.Kind {
	case ScopeStaged:
		entries, err = r.resolveStaged()
	case ScopeAll:
		entries, err = r.resolveTracked()
	case ScopePaths:
		entries, err = r.resolveExplicit(scope.Paths)
	default:
		return nil, &ResolutionError{Scope: scope.Kind, Reason: "unknown scope"}
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	logger.Debug(fmt.Sprintf("resolved %d file(s) for scope %s", len(entries), scope.Kind))
	return entries, nil
}

// resolveStaged lists files staged in the index, preferring go-git with a
// git CLI fallback.
func (r *Resolver) resolveStaged() ([]FileEntry, error) {
	if paths, ok := r.stagedGoGit(); ok {
		return r.toEntries(paths, true), nil
	}
	paths, err := r.stagedCLI()
	if err != nil {
		return nil, &ResolutionError{Scope: ScopeStaged, Reason: "not a git work tree", Err: err}
	}
	return r.toEntries(paths, true), nil
}

func (r *Resolver) stagedGoGit() ([]string, bool) {
	repo, err := git.PlainOpenWithOptions(r.Root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, false
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, false
	}
	st, err := wt.Status()
	if err != nil {
		return nil, false
	}
	var paths []string
	for path, s := range st {
		switch s.Staging {
		case git.Added, git.Modified, git.Renamed, git.Copied:
			paths = append(paths, filepath.ToSlash(path))
		}
	}
	return paths, true
}

func (r *Resolver) stagedCLI() ([]string, error) {
	out, err := r.runGit("diff", "--cached", "--name-only", "--diff-filter=ACMR")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// resolveTracked lists every tracked file from the git index.
func (r *Resolver) resolveTracked() ([]FileEntry, error) {
	if repo, err := git.PlainOpenWithOptions(r.Root, &git.PlainOpenOptions{DetectDotGit: true}); err == nil {
		if idx, err := repo.Storer.Index(); err == nil {
			paths := make([]string, 0, len(idx.Entries))
			for _, entry := range idx.Entries {
				paths = append(paths, filepath.ToSlash(entry.Name))
			}
			return r.toEntries(paths, false), nil
		}
	}
	out, err := r.runGit("ls-files")
	if err != nil {
		return nil, &ResolutionError{Scope: ScopeAll, Reason: "not a git work tree", Err: err}
	}
	return r.toEntries(splitLines(out), false), nil
}

// resolveExplicit stat-checks an explicit path list. Ignore files do not
// apply: the caller asked for these paths.
func (r *Resolver) resolveExplicit(paths []string) ([]FileEntry, error) {
	var entries []FileEntry
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(r.Root, p)
		}
		info, err := os.Stat(full)
		if err != nil {
			return nil, &ResolutionError{Scope: ScopePaths, Reason: fmt.Sprintf("path %q", p), Err: err}
		}
		if info.IsDir() {
			continue
		}
		entries = append(entries, FileEntry{
			Path:  filepath.ToSlash(p),
			Types: DetectTypes(full),
		})
	}
	return entries, nil
}

// toEntries converts repo-relative paths into FileEntries, dropping files
// that no longer exist (deleted-but-staged) or are ignore-listed.
func (r *Resolver) toEntries(paths []string, staged bool) []FileEntry {
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		full := filepath.Join(r.Root, filepath.FromSlash(p))
		if _, err := os.Stat(full); err != nil {
			continue
		}
		if r.matcher != nil && r.matcher.IsIgnored(full) {
			logger.Debug(fmt.Sprintf("skipping %s: matches ignore pattern", p))
			continue
		}
		entries = append(entries, FileEntry{
			Path:   p,
			Types:  DetectTypes(full),
			Staged: staged,
		})
	}
	return entries
}

func (r *Resolver) runGit(args ...string) ([]byte, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, err
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Root
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func splitLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
