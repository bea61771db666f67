package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/dshills/buildlink/internal/backend"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "cancellation.threshold")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the accepted logging formats.
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns every
// validation error found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateCancellation()...)
	errs = append(errs, c.validatePlugins()...)
	errs = append(errs, c.validateHooks()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateCancellation() []ValidationError {
	var errs []ValidationError
	if _, err := backend.ParseVersion(c.Cancellation.Threshold); err != nil {
		errs = append(errs, ValidationError{
			Field:   "cancellation.threshold",
			Value:   c.Cancellation.Threshold,
			Message: "must be a dotted version such as 2.1",
		})
	}
	if c.Cancellation.GraceSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "cancellation.grace_seconds",
			Value:   c.Cancellation.GraceSeconds,
			Message: "must be non-negative",
		})
	}
	if c.Cancellation.VersionTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cancellation.version_timeout_seconds",
			Value:   c.Cancellation.VersionTimeoutSeconds,
			Message: "must be positive",
		})
	}
	return errs
}

func (c *Config) validatePlugins() []ValidationError {
	var errs []ValidationError
	if c.Plugins.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "plugins.timeout_ms",
			Value:   c.Plugins.TimeoutMs,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}
	return errs
}

func (c *Config) validateHooks() []ValidationError {
	var errs []ValidationError
	for i, p := range c.Hooks.Skip {
		if _, err := glob.Compile(p, ':'); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("hooks.skip[%d]", i),
				Value:   p,
				Message: "invalid task pattern: " + err.Error(),
			})
		}
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of " + strings.Join(ValidLogLevels(), ", "),
		})
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: "must be one of " + strings.Join(ValidLogFormats(), ", "),
		})
	}
	return errs
}
