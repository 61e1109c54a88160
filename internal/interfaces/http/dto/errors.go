package dto

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// Standardized error codes for API responses
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	// General errors
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"

	// Validation errors
	ErrCodeValidation = "ERR_VALIDATION"

	// Authentication & authorization errors
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeAccessDenied = "ERR_ACCESS_DENIED"

	// Resource errors
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"

	// Input errors
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"

	// Tenancy errors
	ErrCodeTenantRequired        = "ERR_TENANT_REQUIRED"
	ErrCodeTenantInvalid         = "ERR_TENANT_INVALID"
	ErrCodeTenantUnknown         = "ERR_TENANT_UNKNOWN"
	ErrCodeDataSourceUnavailable = "ERR_DATASOURCE_UNAVAILABLE"

	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeAccessDenied: http.StatusForbidden,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeTenantRequired:        http.StatusBadRequest,
	ErrCodeTenantInvalid:         http.StatusBadRequest,
	ErrCodeTenantUnknown:         http.StatusNotFound,
	ErrCodeDataSourceUnavailable: http.StatusServiceUnavailable,

	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to standardized codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":        ErrCodeNotFound,
	"ALREADY_EXISTS":   ErrCodeAlreadyExists,
	"INVALID_INPUT":    ErrCodeInvalidInput,
	"UNAUTHORIZED":     ErrCodeUnauthorized,
	"FORBIDDEN":        ErrCodeForbidden,
	"VALIDATION_ERROR": ErrCodeValidation,
	"BAD_REQUEST":      ErrCodeBadRequest,
	"INTERNAL_ERROR":   ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the standardized format.
// Domain codes such as INVALID_CODE or INVALID_EMAIL collapse to ERR_INVALID_INPUT.
// Codes already in the ERR_ format, and unknown codes, are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	if strings.HasPrefix(code, "INVALID_") {
		return ErrCodeInvalidInput
	}
	return code
}

// ErrorCodeFor classifies err into a standardized error code.
// The second return value is the client-facing message; internal failures
// never leak their error text.
func ErrorCodeFor(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, tenancy.ErrMissingTenantContext):
		return ErrCodeTenantRequired, "Tenant identifier is required"
	case errors.Is(err, tenancy.ErrInvalidTenantID):
		return ErrCodeTenantInvalid, "Tenant identifier is malformed"
	case errors.Is(err, tenancy.ErrUnknownTenant):
		return ErrCodeTenantUnknown, "Tenant is not known"
	case errors.Is(err, tenancy.ErrConnectionUnavailable):
		return ErrCodeDataSourceUnavailable, "Tenant datasource is unavailable"
	case errors.Is(err, tenancy.ErrTenantMismatch):
		return ErrCodeInternal, "An internal error occurred"
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := NormalizeErrorCode(domainErr.Code)
		if GetHTTPStatus(code) >= http.StatusInternalServerError {
			return ErrCodeInternal, "An internal error occurred"
		}
		return code, domainErr.Message
	}

	return ErrCodeInternal, "An internal error occurred"
}
