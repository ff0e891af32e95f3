package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Common ingestion errors
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidAPIKey     = errors.New("invalid api key")
	ErrKeyDisabled       = errors.New("api key disabled")
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrStrategyDeleted   = errors.New("strategy deleted")
	ErrNoActiveStrategy  = errors.New("no active strategy")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrMissingFields     = errors.New("required fields could not be resolved")
	ErrChannelConfig     = errors.New("invalid channel configuration")
)

// ServiceError carries the HTTP status and structured detail for an
// ingestion-path failure. Dispatch-path failures never use it; they are
// recorded in the delivery log only.
type ServiceError struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
	Err     error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new service error
func NewServiceError(status int, code, message string, err error) *ServiceError {
	return &ServiceError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail attaches a structured detail payload, returned to the caller so
// it can self-correct without trial and error
func (e *ServiceError) WithDetail(detail map[string]interface{}) *ServiceError {
	e.Detail = detail
	return e
}

// HTTPStatus maps an error to the status code returned to the ingesting
// caller. Unknown errors map to 500; the handler boundary never leaks them.
func HTTPStatus(err error) int {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Status
	}
	switch {
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, ErrKeyDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrStrategyNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStrategyDeleted):
		return http.StatusGone
	case errors.Is(err, ErrNoActiveStrategy), errors.Is(err, ErrMissingFields), errors.Is(err, ErrChannelConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
