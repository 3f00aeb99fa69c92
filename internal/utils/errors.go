package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// Common error constructors with suggestions

// ErrRecordNotFound creates an error when a local record does not exist
func ErrRecordNotFound(kind, id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s '%s' not found", kind, id),
		Suggestion: fmt.Sprintf("Run 'fieldsync %s list' to see local records", kind),
	}
}

// ErrNotLoggedIn creates an error when no session token is available
func ErrNotLoggedIn(server string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("not logged in to %s", server),
		Suggestion: "Run 'fieldsync login --prompt' or set FIELDSYNC_TOKEN",
	}
}

// ErrSessionExpired creates an error when the server rejected the session
func ErrSessionExpired() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("session expired"),
		Suggestion: "Run 'fieldsync login --prompt' to sign in again",
	}
}

// ErrServerOffline creates an error when the server cannot be reached
func ErrServerOffline(server, reason string) error {
	suggestion := "Check your internet connection and try again. Local changes stay queued"
	if strings.Contains(reason, "DNS") || strings.Contains(reason, "no such host") {
		suggestion = "Check your DNS settings and internet connection"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the server is running and accessible"
	} else if strings.Contains(reason, "timeout") {
		suggestion = "The server may be slow or unreachable. Try again later"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("server %s is offline: %s", server, reason),
		Suggestion: suggestion,
	}
}

// ErrSyncFailed creates an error when a sync ends with failed records
func ErrSyncFailed(failed int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("sync finished with %d failed record(s)", failed),
		Suggestion: "Run 'fieldsync sync queue' to see the recorded errors",
	}
}

// ErrInvalidDate creates an error for invalid date formats
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date format: %s", dateStr),
		Suggestion: "Use YYYY-MM-DD format (e.g., 2026-01-15)",
	}
}

// ErrInvalidTime creates an error for invalid time-of-day formats
func ErrInvalidTime(timeStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid time format: %s", timeStr),
		Suggestion: "Use 24-hour HH:MM format (e.g., 14:30)",
	}
}

// ErrInvalidStatus creates an error for invalid status values
func ErrInvalidStatus(status string, validStatuses []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid statuses: %s", strings.Join(validStatuses, ", ")),
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/fieldsync/config.yaml and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
