package api

import (
	"errors"
	"net/http"
	"strings"

	"vrdl/internal/queue"
	"vrdl/internal/workflow"
)

// Stable error codes carried by HTTP and IPC responses.
const (
	CodeDuplicate         = "duplicate"
	CodeNotFound          = "not_found"
	CodeBusy              = "busy"
	CodeInvalidTransition = "invalid_transition"
	CodeNotRunning        = "not_running"
	CodeInternal          = "internal"
)

var codeErrors = []struct {
	code string
	err  error
}{
	{CodeDuplicate, queue.ErrDuplicateKey},
	{CodeNotFound, queue.ErrNotFound},
	{CodeBusy, queue.ErrItemBusy},
	{CodeInvalidTransition, queue.ErrInvalidTransition},
	{CodeNotRunning, workflow.ErrNotRunning},
}

// ErrorCode classifies a command error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeInternal
}

// HTTPStatus maps a command error to a response status.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case "":
		return http.StatusOK
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicate, CodeBusy, CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotRunning:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RestoreError rebuilds a classified error from text received over a
// transport that only carries strings, so callers can use errors.Is.
func RestoreError(message string) error {
	if message == "" {
		return nil
	}
	for _, ce := range codeErrors {
		if strings.Contains(message, ce.err.Error()) {
			return &remoteError{message: message, kind: ce.err}
		}
	}
	return errors.New(message)
}

type remoteError struct {
	message string
	kind    error
}

func (e *remoteError) Error() string { return e.message }
func (e *remoteError) Unwrap() error { return e.kind }
