// Package apierr defines the error kinds the SSE bridge and timer engine
// surface across their HTTP boundary, identified by type rather than by
// message string, matching the sentinel-plus-wrapper-struct convention
// used throughout the originating codebase's pkg/config and pkg/services
// packages.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	// ErrAuth indicates a missing or invalid access key.
	ErrAuth = errors.New("unauthorized")

	// ErrNotFound indicates an unknown client_id or job_id.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates a correlation slot exceeded its configured window.
	ErrTimeout = errors.New("timed out waiting for client response")

	// ErrTransientDelivery indicates an enqueue or POST failure that is
	// either retried (client->server responses) or surfaced as false to
	// the caller after all clients are exhausted (server->client requests).
	ErrTransientDelivery = errors.New("transient delivery failure")
)

// ValidationError wraps a schema mismatch, missing header, malformed cron
// expression, bad timezone, or out-of-range value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// JobExecutionError wraps a failure raised while firing a recurring job.
// It is captured by the engine, stored as the job's last error, and counts
// toward the auto-pause threshold.
type JobExecutionError struct {
	JobID string
	Err   error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s execution failed: %v", e.JobID, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }

// NewJobExecutionError wraps err as a JobExecutionError for jobID.
func NewJobExecutionError(jobID string, err error) error {
	return &JobExecutionError{JobID: jobID, Err: err}
}

// HTTPStatus maps an error produced by this package (or a plain sentinel
// from errors.New elsewhere in these packages) to the HTTP status it
// should be reported with. Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrTransientDelivery):
		return http.StatusBadGateway
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WriteHTTP maps err to its HTTP status via HTTPStatus and writes a
// {"error": "..."} JSON body, the single boundary point where domain
// errors become HTTP responses (the Command Router and timer HTTP
// handlers never construct status codes themselves).
func WriteHTTP(c *gin.Context, err error) {
	status := HTTPStatus(err)
	message := "internal server error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	c.JSON(status, gin.H{"error": message})
}
