// Package exitcode provides standardized exit codes for hookgate
package exitcode

// Exit codes for the hookgate CLI. A gate run exits Success when every hook
// passed, HookFailure when one or more hooks reported violations, and
// ConfigError for configuration, changeset-resolution, or internal faults
// that abort the run before a verdict exists.
const (
	Success     = 0
	HookFailure = 1
	ConfigError = 2
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case HookFailure:
		return "Hook failure"
	case ConfigError:
		return "Configuration or internal error"
	default:
		return "Unknown error"
	}
}
