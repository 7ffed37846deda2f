package ai

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

var (
	// ErrInvalidInput means the outgoing value does not match the declared input shape.
	ErrInvalidInput = errors.New("input does not match declared shape")
	// ErrMalformedResponse means the reply could not be coerced to the declared output shape.
	ErrMalformedResponse = errors.New("response does not match declared shape")
	// ErrEmptyResponse means the provider answered without any content.
	ErrEmptyResponse = errors.New("empty response from model")
)

// ServiceError is the single error kind surfaced by a structured call. Stage
// names the prompt template that failed; Err carries the underlying cause.
type ServiceError struct {
	Stage string
	Err   error
}

func (e *ServiceError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("ai service: %v", e.Err)
	}
	return fmt.Sprintf("ai service (%s): %v", e.Stage, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError wraps err unless it already is a ServiceError.
func NewServiceError(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Stage: stage, Err: err}
}

// IsServiceError reports whether err has a ServiceError in its chain.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
