// Package errors provides centralized error definitions and error handling
// utilities for the pair-review analysis engine. It defines the failure
// taxonomy for provider execution, error constructors with context wrapping,
// and error classification helpers.
//
// # Error Types
//
// Provider execution can fail in five distinct ways:
//   - SpawnNotFoundError: the external reviewer binary is missing
//   - TimeoutError: the wall-clock budget for a provider run expired
//   - ProviderExitError: the provider exited non-zero
//   - CancellationError: the run was stopped by the user
//   - ExtractionError: no JSON payload could be recovered from output
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewProviderExitError("claude", 1, stderrTail)
//	err := errors.NewTimeoutError("provider execution", 5*time.Minute).WithProvider("codex")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSpawnNotFound) { ... }
//
//	var exitErr *errors.ProviderExitError
//	if errors.As(err, &exitErr) { ... }
//
//	if errors.IsCancellation(err) { /* not an error from the user's view */ }
//
// # Classification
//
// Cancellation is user-initiated and must never be presented as a failure.
// Timeouts are retryable by the caller but are never retried by this engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Provider execution sentinel errors
var (
	// ErrSpawnNotFound indicates the external reviewer binary is not installed.
	ErrSpawnNotFound = New("reviewer binary not found")
	// ErrTimeout indicates that a provider run exceeded its wall-clock budget.
	ErrTimeout = New("operation timed out")
	// ErrProviderExit indicates a provider process exited non-zero.
	ErrProviderExit = New("provider exited with error")
	// ErrCanceled indicates a run was stopped by the user.
	ErrCanceled = New("run canceled")
	// ErrExtraction indicates no structured payload could be recovered.
	ErrExtraction = New("no JSON payload found in output")
)

// Run bookkeeping sentinel errors
var (
	// ErrRunNotFound indicates that a run id is not tracked.
	ErrRunNotFound = New("run not found")
	// ErrUnknownProvider indicates the requested provider is not registered.
	ErrUnknownProvider = New("unknown provider")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// EngineError is the base interface for all engine errors. It extends the
// standard error interface with classification methods.
type EngineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Provider Execution Errors
// -----------------------------------------------------------------------------

// SpawnNotFoundError indicates the reviewer binary could not be started
// because it is not installed or not on PATH. It carries installation
// guidance for the user.
//
// Example:
//
//	err := errors.NewSpawnNotFoundError("claude", "npm install -g @anthropic-ai/claude-code")
type SpawnNotFoundError struct {
	baseError
	Command  string
	Guidance string
}

// NewSpawnNotFoundError creates a new SpawnNotFoundError.
func NewSpawnNotFoundError(command, guidance string) *SpawnNotFoundError {
	return &SpawnNotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("command %q not found", command),
			cause:      ErrSpawnNotFound,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Command:  command,
		Guidance: guidance,
	}
}

// WithCause adds an underlying cause to the error.
func (e *SpawnNotFoundError) WithCause(cause error) *SpawnNotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *SpawnNotFoundError) Error() string {
	msg := fmt.Sprintf("command %q not found", e.Command)
	if e.Guidance != "" {
		msg = fmt.Sprintf("%s (install with: %s)", msg, e.Guidance)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *SpawnNotFoundError) Is(target error) bool {
	if _, ok := target.(*SpawnNotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrSpawnNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents a provider run that exceeded its wall-clock budget.
//
// Example:
//
//	err := errors.NewTimeoutError("provider execution", 5*time.Minute)
//	fmt.Println(err) // "timeout error: provider execution (timeout: 5m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
	Provider  string
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // the caller may retry; the engine never does
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithProvider adds the provider name to the error context.
func (e *TimeoutError) WithProvider(name string) *TimeoutError {
	e.Provider = name
	return e
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.Provider != "" {
		base = fmt.Sprintf("timeout error [provider=%s]: %s (timeout: %s)", e.Provider, e.Operation, e.Duration)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// ProviderExitError represents a provider process that exited non-zero.
// It carries the captured stderr tail for diagnostics.
//
// Example:
//
//	err := errors.NewProviderExitError("claude", 1, stderrTail)
type ProviderExitError struct {
	baseError
	Provider string
	ExitCode int
	Stderr   string
}

// NewProviderExitError creates a new ProviderExitError.
func NewProviderExitError(provider string, exitCode int, stderr string) *ProviderExitError {
	return &ProviderExitError{
		baseError: baseError{
			message:    fmt.Sprintf("%s exited with code %d", provider, exitCode),
			cause:      ErrProviderExit,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Provider: provider,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

// WithCause adds an underlying cause to the error.
func (e *ProviderExitError) WithCause(cause error) *ProviderExitError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ProviderExitError) Error() string {
	msg := fmt.Sprintf("provider error [provider=%s, exit=%d]", e.Provider, e.ExitCode)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *ProviderExitError) Is(target error) bool {
	if _, ok := target.(*ProviderExitError); ok {
		return true
	}
	if errors.Is(target, ErrProviderExit) {
		return true
	}
	return e.baseError.Is(target)
}

// CancellationError represents a run stopped by the user. It is distinct
// from ProviderExitError so callers can avoid presenting user-initiated
// stoppage as a failure.
type CancellationError struct {
	baseError
	RunID string
}

// NewCancellationError creates a new CancellationError.
func NewCancellationError(runID string) *CancellationError {
	return &CancellationError{
		baseError: baseError{
			message:    "analysis canceled",
			cause:      ErrCanceled,
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
		RunID: runID,
	}
}

// Error returns the formatted error message.
func (e *CancellationError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("analysis canceled [run=%s]", e.RunID)
	}
	return "analysis canceled"
}

// Is checks if this error matches the target.
func (e *CancellationError) Is(target error) bool {
	if _, ok := target.(*CancellationError); ok {
		return true
	}
	if errors.Is(target, ErrCanceled) {
		return true
	}
	return e.baseError.Is(target)
}

// ExtractionError indicates that neither the deterministic strategies nor
// the LLM fallback recovered a JSON payload. It carries a bounded preview
// of the offending text for diagnostics. The provider adapter degrades to
// a raw result rather than rejecting on this error.
type ExtractionError struct {
	baseError
	Preview string
}

// NewExtractionError creates a new ExtractionError with a bounded preview
// of the text that could not be parsed.
func NewExtractionError(preview string) *ExtractionError {
	return &ExtractionError{
		baseError: baseError{
			message:    "no JSON payload found",
			cause:      ErrExtraction,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: false,
		},
		Preview: preview,
	}
}

// WithCause adds an underlying cause to the error.
func (e *ExtractionError) WithCause(cause error) *ExtractionError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ExtractionError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("no JSON payload found in output: %s", e.Preview)
	}
	return "no JSON payload found in output"
}

// Is checks if this error matches the target.
func (e *ExtractionError) Is(target error) bool {
	if _, ok := target.(*ExtractionError); ok {
		return true
	}
	if errors.Is(target, ErrExtraction) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsCancellation returns true if the error represents user-initiated
// stoppage. Cancelled runs must be labeled "cancelled", never surfaced as
// failures.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var cancelErr *CancellationError
	return As(err, &cancelErr) || Is(err, ErrCanceled)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. The engine itself never retries; this is a
// hint for callers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to
// end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error. Returns
// SeverityError for errors that don't implement EngineError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.Severity()
	}

	return SeverityError
}

// UserLabel returns the short status label a terminal error maps to in
// user-visible output: "cancelled" for cancellation, "timeout" with the
// elapsed bound for timeouts, and "failed" otherwise.
func UserLabel(err error) string {
	if err == nil {
		return "completed"
	}
	if IsCancellation(err) {
		return "cancelled"
	}
	var timeoutErr *TimeoutError
	if As(err, &timeoutErr) {
		return fmt.Sprintf("timed out after %s", timeoutErr.Duration)
	}
	return "failed"
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// FirstLine returns the first non-empty line of diagnostic text, for
// compact display of captured stderr.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
