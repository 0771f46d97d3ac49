package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete pair-review configuration
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// EngineConfig controls analysis run behavior
type EngineConfig struct {
	// ThrottleMs is the minimum interval between progress broadcasts for
	// one level slot (default: 300)
	ThrottleMs int `mapstructure:"throttle_ms"`
	// SuppressMs is the window after a text delta during which tool-call
	// events for the same slot are dropped (default: 2000)
	SuppressMs int `mapstructure:"suppress_ms"`
	// TimeoutMs is the wall-clock budget per provider execution in
	// milliseconds (default: 300000)
	TimeoutMs int `mapstructure:"timeout_ms"`
	// Council runs every configured provider per level and consolidates
	// their findings, instead of one provider per level (default: false)
	Council bool `mapstructure:"council"`
	// Verbose traces unrecognized provider stream records (default: false)
	Verbose bool `mapstructure:"verbose"`
}

// ProvidersConfig holds per-provider settings
type ProvidersConfig struct {
	// Default is the provider used when a run does not name one
	// (default: "claude")
	Default string         `mapstructure:"default"`
	Claude  ProviderConfig `mapstructure:"claude"`
	Codex   ProviderConfig `mapstructure:"codex"`
}

// ProviderConfig configures one reviewer CLI
type ProviderConfig struct {
	// Command overrides the binary path; empty uses the provider default
	Command string `mapstructure:"command"`
	// Model selects the model tier; empty uses the provider default
	Model string `mapstructure:"model"`
	// FallbackModel overrides the low-cost tier used by the extraction
	// fallback pass
	FallbackModel string `mapstructure:"fallback_model"`
}

// SandboxConfig controls the command sandbox applied to reviewers
type SandboxConfig struct {
	// Unrestricted drops all denial rules (default: false)
	Unrestricted bool `mapstructure:"unrestricted"`
	// PolicyFile is an optional YAML policy file; it is hot-reloaded
	// while the engine runs
	PolicyFile string `mapstructure:"policy_file"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where log files are written; empty uses the config directory
	Dir string `mapstructure:"dir"`
}

// Throttle returns the broadcast throttle as a time.Duration
func (e *EngineConfig) Throttle() time.Duration {
	return time.Duration(e.ThrottleMs) * time.Millisecond
}

// Suppress returns the tool-call suppression window as a time.Duration
func (e *EngineConfig) Suppress() time.Duration {
	return time.Duration(e.SuppressMs) * time.Millisecond
}

// Timeout returns the provider execution budget as a time.Duration
func (e *EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ThrottleMs: 300,
			SuppressMs: 2000,
			TimeoutMs:  300000, // 5 minutes per provider execution
			Council:    false,
			Verbose:    false,
		},
		Providers: ProvidersConfig{
			Default: "claude",
			Claude:  ProviderConfig{},
			Codex:   ProviderConfig{},
		},
		Sandbox: SandboxConfig{
			Unrestricted: false,
			PolicyFile:   "",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Engine defaults
	viper.SetDefault("engine.throttle_ms", defaults.Engine.ThrottleMs)
	viper.SetDefault("engine.suppress_ms", defaults.Engine.SuppressMs)
	viper.SetDefault("engine.timeout_ms", defaults.Engine.TimeoutMs)
	viper.SetDefault("engine.council", defaults.Engine.Council)
	viper.SetDefault("engine.verbose", defaults.Engine.Verbose)

	// Provider defaults
	viper.SetDefault("providers.default", defaults.Providers.Default)
	viper.SetDefault("providers.claude.command", defaults.Providers.Claude.Command)
	viper.SetDefault("providers.claude.model", defaults.Providers.Claude.Model)
	viper.SetDefault("providers.claude.fallback_model", defaults.Providers.Claude.FallbackModel)
	viper.SetDefault("providers.codex.command", defaults.Providers.Codex.Command)
	viper.SetDefault("providers.codex.model", defaults.Providers.Codex.Model)
	viper.SetDefault("providers.codex.fallback_model", defaults.Providers.Codex.FallbackModel)

	// Sandbox defaults
	viper.SetDefault("sandbox.unrestricted", defaults.Sandbox.Unrestricted)
	viper.SetDefault("sandbox.policy_file", defaults.Sandbox.PolicyFile)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pair-review")
	}
	// Fall back to ~/.config/pair-review
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pair-review"
	}
	return filepath.Join(home, ".config", "pair-review")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir returns the resolved log directory
func (l *LoggingConfig) LogDir() string {
	if l.Dir != "" {
		return l.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}
