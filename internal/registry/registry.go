// Package registry loads and validates the declared hook manifest.
package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hookgate/hookgate/pkg/logger"
)

// Mode controls how a hook's invocation may be scheduled.
type Mode string

const (
	// ModeSerial forbids any concurrent overlap with other invocations.
	ModeSerial Mode = "serial-required"
	// ModeParallel allows the hook to share the worker pool with others.
	ModeParallel Mode = "parallelizable"
)

// Hook is a single declared check or fixer. Immutable once loaded.
type Hook struct {
	ID            string   `yaml:"id"`
	Command       string   `yaml:"command"`
	Args          []string `yaml:"args"`
	Types         []string `yaml:"types"`
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	Mode          Mode     `yaml:"mode"`
	Mutates       bool     `yaml:"mutates"`
	PassFilenames *bool    `yaml:"pass_filenames"`
	Timeout       string   `yaml:"timeout"`
}

// AppendsFilenames reports whether matched file paths are appended to the
// hook's argument list (the default invocation protocol).
func (h Hook) AppendsFilenames() bool {
	return h.PassFilenames == nil || *h.PassFilenames
}

// InvocationTimeout returns the per-hook timeout override, or zero when the
// run-level timeout governs.
func (h Hook) InvocationTimeout() time.Duration {
	if h.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ConfigError reports a malformed hook manifest. It is fatal: the gate
// aborts before any execution.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// manifest is the on-disk shape of the hook declaration file.
type manifest struct {
	Hooks []Hook `yaml:"hooks"`
}

// Load parses the manifest at path and returns hooks in declaration order.
// Declaration order is semantically significant: later hooks may assume
// earlier ones already normalized files.
func Load(path string) ([]Hook, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- manifest path comes from the CLI
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: "cannot read manifest", Err: err}
	}
	return Parse(path, data)
}

// Parse validates raw manifest bytes and returns the declared hooks.
func Parse(path string, data []byte) ([]Hook, error) {
	if err := validateSchema(data); err != nil {
		return nil, &ConfigError{Path: path, Reason: "schema validation failed", Err: err}
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ConfigError{Path: path, Reason: "invalid YAML", Err: err}
	}
	if len(m.Hooks) == 0 {
		return nil, &ConfigError{Path: path, Reason: "manifest declares no hooks"}
	}

	seen := make(map[string]bool, len(m.Hooks))
	for i := range m.Hooks {
		h := &m.Hooks[i]
		if h.ID == "" {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("hook #%d has no id", i+1)}
		}
		if seen[h.ID] {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("duplicate hook id %q", h.ID)}
		}
		seen[h.ID] = true

		if h.Command == "" {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("hook %q has no command", h.ID)}
		}
		if h.Mode == "" {
			h.Mode = ModeParallel
		}
		switch h.Mode {
		case ModeSerial, ModeParallel:
		default:
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("hook %q has unknown mode %q", h.ID, h.Mode)}
		}
		if h.Timeout != "" {
			if _, err := time.ParseDuration(h.Timeout); err != nil {
				return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("hook %q has invalid timeout %q", h.ID, h.Timeout), Err: err}
			}
		}
	}

	logger.Debug(fmt.Sprintf("loaded %d hook(s) from %s", len(m.Hooks), path))
	return m.Hooks, nil
}
