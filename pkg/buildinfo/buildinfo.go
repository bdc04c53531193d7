// Package buildinfo carries version metadata injected at build time.
package buildinfo

import "runtime/debug"

// These are set at build time via -ldflags. Defaults apply to source builds.
var (
	BinaryVersion = "dev"
	GitCommit     = ""
)

// ModuleVersion returns the module version embedded by the Go toolchain (when available).
func ModuleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return ""
}
