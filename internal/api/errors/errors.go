// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/remiblancher/qp12/internal/api/dto"
	"github.com/remiblancher/qp12/pkg/p12"
)

// Error codes for API responses.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeConstructFailed     = "CONSTRUCT_FAILED"
	CodeMACFailed           = "MAC_FAILED"
	CodeSerializeFailed     = "SERIALIZE_FAILED"
	CodeDecodeFailed        = "DECODE_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	var status int
	var code string
	switch {
	case errors.Is(err, p12.ErrInvalidInput):
		status, code = http.StatusBadRequest, CodeValidation
	case errors.Is(err, p12.ErrProviderLoad):
		status, code = http.StatusServiceUnavailable, CodeProviderUnavailable
	case errors.Is(err, p12.ErrDecode):
		status, code = http.StatusUnprocessableEntity, CodeDecodeFailed
	case errors.Is(err, p12.ErrConstruct):
		status, code = http.StatusUnprocessableEntity, CodeConstructFailed
	case errors.Is(err, p12.ErrMAC):
		status, code = http.StatusInternalServerError, CodeMACFailed
	case errors.Is(err, p12.ErrSerialize):
		status, code = http.StatusInternalServerError, CodeSerializeFailed
	default:
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeInternal,
			Message: "An internal error occurred",
		}
	}

	apiErr := &dto.APIError{Code: code, Message: err.Error()}

	// Add the operation and its diagnostics
	var opErr *p12.OpError
	if errors.As(err, &opErr) {
		apiErr.Details = map[string]string{"operation": opErr.Op}
		if len(opErr.Diag) > 0 {
			apiErr.Details["diagnostics"] = strings.Join(opErr.Diag, "\n")
		}
	}
	return status, apiErr
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, details map[string]string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}
