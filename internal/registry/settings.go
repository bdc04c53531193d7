package registry

import (
	"time"

	"github.com/spf13/viper"
)

// Settings carries run-level defaults declared alongside the hooks. CLI
// flags override anything set here.
type Settings struct {
	Concurrency int           `mapstructure:"concurrency"`
	FailFast    bool          `mapstructure:"fail_fast"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Policy      Policy        `mapstructure:"policy"`
}

// Policy governs how mutation hooks converge to a verdict.
type Policy struct {
	// RequireCleanPass demands a clean re-run before a mutating hook that
	// rewrote files counts as passed.
	RequireCleanPass bool `mapstructure:"require_clean_pass"`
	// MaxFixRetries bounds the auto-fix convergence loop.
	MaxFixRetries int `mapstructure:"max_fix_retries"`
}

// DefaultSettings returns the settings used when the manifest declares none.
func DefaultSettings() Settings {
	return Settings{
		Concurrency: 0, // engine falls back to NumCPU
		FailFast:    false,
		Timeout:     0,
		Policy: Policy{
			RequireCleanPass: true,
			MaxFixRetries:    1,
		},
	}
}

// LoadSettings reads the settings block from the manifest file, applying
// defaults for anything unset.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("settings.concurrency", 0)
	v.SetDefault("settings.fail_fast", false)
	v.SetDefault("settings.timeout", time.Duration(0))
	v.SetDefault("settings.policy.require_clean_pass", true)
	v.SetDefault("settings.policy.max_fix_retries", 1)

	if err := v.ReadInConfig(); err != nil {
		return DefaultSettings(), &ConfigError{Path: path, Reason: "cannot read settings", Err: err}
	}

	// Per-key reads keep default fallback intact for partially declared
	// settings blocks (Sub/UnmarshalKey would drop defaults).
	s := Settings{
		Concurrency: v.GetInt("settings.concurrency"),
		FailFast:    v.GetBool("settings.fail_fast"),
		Timeout:     v.GetDuration("settings.timeout"),
		Policy: Policy{
			RequireCleanPass: v.GetBool("settings.policy.require_clean_pass"),
			MaxFixRetries:    v.GetInt("settings.policy.max_fix_retries"),
		},
	}
	if s.Policy.MaxFixRetries < 0 {
		s.Policy.MaxFixRetries = 0
	}
	return s, nil
}
