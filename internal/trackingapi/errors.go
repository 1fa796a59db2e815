package trackingapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message ErrorMessage `json:"message"`
}

// ErrorMessage describes a failed request.
type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
	Cause  error  `json:"-"`
}

func (e ErrorMessage) Error() string {
	lines := []string{e.Reason}
	if e.Advice != "" {
		lines = append(lines, e.Advice)
	}
	if e.Cause != nil {
		lines = append(lines, "caused by: "+e.Cause.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

func newError(code int, reason string, cause error) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason, Cause: cause}
	return echo.NewHTTPError(code, ErrorResponse{Message: msg}).SetInternal(msg)
}

func badRequest(reason string, cause error) *echo.HTTPError {
	return newError(http.StatusBadRequest, reason, cause)
}

// storeError maps tracking sentinels onto HTTP status codes.
func storeError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		return newError(http.StatusNotFound, err.Error(), err)
	case errors.Is(err, tracking.ErrNoRuns):
		return newError(http.StatusNotFound, err.Error(), err)
	case errors.Is(err, tracking.ErrAlreadyExists):
		return newError(http.StatusConflict, err.Error(), err)
	}
	return newError(http.StatusInternalServerError, "tracking store failure", err)
}

// statusError maps a response status back onto tracking sentinels.
func statusError(code int, reason string) error {
	switch code {
	case http.StatusNotFound:
		return &remoteError{code: code, reason: reason, sentinel: tracking.ErrNotFound}
	case http.StatusConflict:
		return &remoteError{code: code, reason: reason, sentinel: tracking.ErrAlreadyExists}
	}
	return &remoteError{code: code, reason: reason}
}

type remoteError struct {
	code     int
	reason   string
	sentinel error
}

func (e *remoteError) Error() string {
	return http.StatusText(e.code) + ": " + e.reason
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}
