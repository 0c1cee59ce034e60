package loader

import (
	"errors"
	"fmt"
)

// TransportErrorCode categorizes retrieval failures.
type TransportErrorCode string

const (
	// ErrCodeRequestFailed indicates the request could not be completed.
	ErrCodeRequestFailed TransportErrorCode = "REQUEST_FAILED"

	// ErrCodeBadStatus indicates a non-success HTTP status.
	ErrCodeBadStatus TransportErrorCode = "BAD_STATUS"

	// ErrCodeErrorPayload indicates the endpoint answered with an error
	// payload instead of step records.
	ErrCodeErrorPayload TransportErrorCode = "ERROR_PAYLOAD"
)

// TransportError reports that step retrieval failed. It is surfaced to the
// user and never retried automatically.
type TransportError struct {
	Code      TransportErrorCode
	SubjectID string

	// Status is the HTTP status code, when there was one.
	Status int

	// Message is the human-readable message shown in the Failed state.
	Message string

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (subject=%s, status=%d)", e.Code, e.Message, e.SubjectID, e.Status)
	}
	return fmt.Sprintf("%s: %s (subject=%s)", e.Code, e.Message, e.SubjectID)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// FailureMessage returns the message to display for a failed load:
// the transport message when err is a TransportError, err.Error()
// otherwise.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}
