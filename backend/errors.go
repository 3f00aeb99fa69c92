package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a record does not exist locally or is tombstoned
	ErrNotFound = errors.New("record not found")

	// ErrAuthRequired is returned when no valid session is available for sync
	ErrAuthRequired = errors.New("authentication required")

	// ErrSyncInFlight is returned when a sync cycle is already running
	ErrSyncInFlight = errors.New("sync already in progress")
)

// RemoteError represents a failed call against the remote service.
// It carries the HTTP status (0 for transport failures) and the business message
// from the response envelope when there is one.
type RemoteError struct {
	Operation  string // e.g., "CreateCustomer", "PullBills", "Health"
	StatusCode int    // HTTP status code (0 if the request never got a response)
	Message    string // Human-readable error message
	Entity     string // Optional: affected entity kind
	EntityID   string // Optional: affected record id
	Body       string // Optional: response body for debugging
	Err        error  // Optional: underlying error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying error for error wrapping
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a 404 Not Found
func (e *RemoteError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 Unauthorized or 403 Forbidden
func (e *RemoteError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsServerError returns true if the error is a 5xx server error
func (e *RemoteError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsTransient reports whether retrying the same request may succeed:
// transport failures, timeouts, throttling and 5xx responses
func (e *RemoteError) IsTransient() bool {
	switch e.StatusCode {
	case 0, 408, 429:
		return true
	}
	return e.IsServerError()
}

// IsTransientError reports whether err is a transient RemoteError
func IsTransientError(err error) bool {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.IsTransient()
	}
	return false
}

// NewRemoteError creates a new RemoteError
func NewRemoteError(operation string, statusCode int, message string) *RemoteError {
	return &RemoteError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithEntity adds the entity kind and record id to the error for context
func (e *RemoteError) WithEntity(entity, id string) *RemoteError {
	e.Entity = entity
	e.EntityID = id
	return e
}

// WithBody adds the response body to the error for debugging
func (e *RemoteError) WithBody(body string) *RemoteError {
	e.Body = body
	return e
}

// WithError wraps an underlying error
func (e *RemoteError) WithError(err error) *RemoteError {
	e.Err = err
	return e
}

// IsAuthError reports whether err should abort a sync cycle as an
// authentication failure rather than be retried.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.IsUnauthorized()
	}
	return false
}

// ValidationError is returned by local writes when required business fields are blank.
// Nothing is written when it is returned.
type ValidationError struct {
	Entity string
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: missing required field(s) %s", e.Entity, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError converts validator output into a ValidationError.
// Field names are reported as local column names when the struct carries db tags.
func NewValidationError(entity string, err error) *ValidationError {
	ve := &ValidationError{Entity: entity, Err: err}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			ve.Fields = append(ve.Fields, fe.Field())
		}
	}
	if len(ve.Fields) == 0 {
		ve.Fields = []string{"unknown"}
	}
	return ve
}

// NotYetSyncedError is returned when a mutation targets a record that still
// holds a client-temporary id.
type NotYetSyncedError struct {
	Entity string
	ID     string
	Op     SyncOp
}

func (e *NotYetSyncedError) Error() string {
	return fmt.Sprintf("%s %s is waiting for a server id; cannot %s yet", e.Entity, e.ID, e.Op.Verb())
}

// WaitingMessage is the sync_error recorded on records that cannot be pushed yet.
func (e *NotYetSyncedError) WaitingMessage() string {
	return WaitingForServerID(e.Op)
}

// WaitingForServerID returns the message recorded when op cannot target a client-temporary id
func WaitingForServerID(op SyncOp) string {
	return "Waiting for server id to " + op.Verb()
}

// ExhaustedRetriesError is returned when every attempt of a sync cycle failed
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("sync failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}
