package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "engine.throttle_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidProviders returns the list of recognized provider names
func ValidProviders() []string {
	return []string{"claude", "codex"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateEngine()...)
	errors = append(errors, c.validateProviders()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateEngine validates the EngineConfig
func (c *Config) validateEngine() []ValidationError {
	var errors []ValidationError

	if c.Engine.ThrottleMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.throttle_ms",
			Value:   c.Engine.ThrottleMs,
			Message: "must be >= 0",
		})
	}
	if c.Engine.SuppressMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.suppress_ms",
			Value:   c.Engine.SuppressMs,
			Message: "must be >= 0",
		})
	}
	if c.Engine.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.timeout_ms",
			Value:   c.Engine.TimeoutMs,
			Message: "must be > 0",
		})
	}

	return errors
}

// validateProviders validates the ProvidersConfig
func (c *Config) validateProviders() []ValidationError {
	var errors []ValidationError

	if c.Providers.Default != "" && !slices.Contains(ValidProviders(), c.Providers.Default) {
		errors = append(errors, ValidationError{
			Field:   "providers.default",
			Value:   c.Providers.Default,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
