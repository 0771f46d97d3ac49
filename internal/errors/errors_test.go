package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestSpawnNotFoundError(t *testing.T) {
	err := NewSpawnNotFoundError("claude", "npm install -g @anthropic-ai/claude-code")

	if !Is(err, ErrSpawnNotFound) {
		t.Error("expected error to match ErrSpawnNotFound")
	}

	var spawnErr *SpawnNotFoundError
	if !As(err, &spawnErr) {
		t.Fatal("expected error to be a *SpawnNotFoundError")
	}
	if spawnErr.Command != "claude" {
		t.Errorf("Command = %q, want %q", spawnErr.Command, "claude")
	}

	msg := err.Error()
	if want := `command "claude" not found (install with: npm install -g @anthropic-ai/claude-code)`; msg != want {
		t.Errorf("Error() = %q, want %q", msg, want)
	}

	if IsRetryable(err) {
		t.Error("spawn-not-found should not be retryable")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("severity = %v, want critical", GetSeverity(err))
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("provider execution", 5*time.Minute).WithProvider("codex")

	if !Is(err, ErrTimeout) {
		t.Error("expected error to match ErrTimeout")
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
	if !IsUserFacing(err) {
		t.Error("timeouts should be user-facing")
	}

	want := "timeout error [provider=codex]: provider execution (timeout: 5m0s)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestProviderExitError(t *testing.T) {
	err := NewProviderExitError("claude", 2, "segfault in plugin")

	var exitErr *ProviderExitError
	if !As(err, &exitErr) {
		t.Fatal("expected error to be a *ProviderExitError")
	}
	if exitErr.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", exitErr.ExitCode)
	}
	if !Is(err, ErrProviderExit) {
		t.Error("expected error to match ErrProviderExit")
	}
	if IsCancellation(err) {
		t.Error("provider exit must not classify as cancellation")
	}
}

func TestCancellationError(t *testing.T) {
	err := NewCancellationError("run-42")

	if !IsCancellation(err) {
		t.Error("expected IsCancellation to be true")
	}
	if !Is(err, ErrCanceled) {
		t.Error("expected error to match ErrCanceled")
	}
	if GetSeverity(err) != SeverityInfo {
		t.Errorf("severity = %v, want info", GetSeverity(err))
	}

	// Cancellation survives wrapping.
	wrapped := Wrap(err, "level 2 voice claude")
	if !IsCancellation(wrapped) {
		t.Error("expected wrapped cancellation to classify as cancellation")
	}
}

func TestExtractionError(t *testing.T) {
	err := NewExtractionError("The review found no issues...")

	if !Is(err, ErrExtraction) {
		t.Error("expected error to match ErrExtraction")
	}
	var extractErr *ExtractionError
	if !As(err, &extractErr) {
		t.Fatal("expected error to be an *ExtractionError")
	}
	if extractErr.Preview == "" {
		t.Error("expected a preview to be attached")
	}
	if IsUserFacing(err) {
		t.Error("extraction failures degrade to raw output; they are not shown directly")
	}
}

func TestUserLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "completed"},
		{"cancellation", NewCancellationError("r1"), "cancelled"},
		{"wrapped cancellation", fmt.Errorf("voice: %w", NewCancellationError("r1")), "cancelled"},
		{"timeout", NewTimeoutError("provider execution", 300*time.Second), "timed out after 5m0s"},
		{"exit", NewProviderExitError("claude", 1, ""), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserLabel(tt.err); got != tt.want {
				t.Errorf("UserLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\n  error: boom\nmore"); got != "error: boom" {
		t.Errorf("FirstLine() = %q", got)
	}
	if got := FirstLine("   \n\t\n"); got != "" {
		t.Errorf("FirstLine() on blank input = %q, want empty", got)
	}
}
