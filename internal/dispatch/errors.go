package dispatch

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
)

// ErrNotReady is returned when the transport is not authenticated.
var ErrNotReady = &NotReadyError{}

type NotReadyError struct{}

func (*NotReadyError) Error() string {
	return "whatsapp client is not ready, wait for authentication"
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type ChatNotFoundError struct {
	RecipientID string
	Attempts    []Attempt
}

func (e *ChatNotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("chat not found for ")
	b.WriteString(e.RecipientID)
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s(%s)", a.Method, a.Target)
		if a.Reason != "" {
			b.WriteString(" ")
			b.WriteString(a.Reason)
		}
	}
	return b.String()
}

// TransportTransientError wraps a failure thrown by the underlying client.
type TransportTransientError struct {
	Op  string
	Err error
}

func (e *TransportTransientError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Op + " failed: " + e.Err.Error()
}

func (e *TransportTransientError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var tte *TransportTransientError
	if errors.As(err, &tte) {
		return err
	}
	return &TransportTransientError{Op: op, Err: err}
}

// HTTPStatus maps a dispatch error onto the status used by single-send endpoints.
func HTTPStatus(err error) int {
	var (
		notReady   *NotReadyError
		validation *ValidationError
		notFound   *ChatNotFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notReady):
		return http.StatusServiceUnavailable
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
