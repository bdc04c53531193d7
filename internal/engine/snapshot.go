package engine

import (
	"crypto/sha256"
	"os"
	"path/filepath"
)

// snapshot records content digests of a file set so the engine can tell
// which files a mutation hook rewrote.
type snapshot map[string][32]byte

func takeSnapshot(root string, paths []string) snapshot {
	snap := make(snapshot, len(paths))
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		data, err := os.ReadFile(full) // #nosec G304 -- paths come from the resolved changeset
		if err != nil {
			continue
		}
		snap[p] = sha256.Sum256(data)
	}
	return snap
}

// changed returns the paths whose content differs from the snapshot, in
// input order. A snapshotted file that no longer exists counts as changed:
// deletion is a mutation too.
func (s snapshot) changed(root string, paths []string) []string {
	var out []string
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		data, err := os.ReadFile(full) // #nosec G304
		if err != nil {
			if _, ok := s[p]; ok {
				out = append(out, p)
			}
			continue
		}
		if sha256.Sum256(data) != s[p] {
			out = append(out, p)
		}
	}
	return out
}
