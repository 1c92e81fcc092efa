package http

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorBody is the error envelope returned by every endpoint: {"error": "..."}.
type ErrorBody struct {
	status  int
	Message string `json:"error" doc:"Human readable error message"`
}

// Error implements error.
func (e *ErrorBody) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *ErrorBody) GetStatus() int {
	return e.status
}

func newError(status int, message string) *ErrorBody {
	return &ErrorBody{status: status, Message: message}
}

// newHumaError replaces huma's RFC 9457 problem documents. Unreadable or
// invalid request bodies are reported as 400.
func newHumaError(status int, message string, errs ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}

	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	if len(details) > 0 {
		message = message + ": " + strings.Join(details, "; ")
	}

	return newError(status, message)
}

func init() {
	huma.NewError = newHumaError
}
