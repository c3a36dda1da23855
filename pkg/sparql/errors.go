package sparql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrInvalidParams marks a query that could not be rendered. Never retried.
	ErrInvalidParams = errors.New("invalid query parameters")
	// ErrMalformedResponse marks a response body that is not a SPARQL result document. Never retried.
	ErrMalformedResponse = errors.New("malformed SPARQL response")
)

// QueryError is returned by Client.Execute once a query has failed for good
type QueryError struct {
	Template   TemplateID
	Attempts   int
	StatusCode int // Zero unless the endpoint answered
	Err        error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("sparql %s failed", e.Template)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	return msg + ": " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// StatusError is a non-200 answer from the endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether a failed attempt may succeed when repeated:
// transport failures, timeouts and 5xx answers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode >= 500
	}
	if errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
