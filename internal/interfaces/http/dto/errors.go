package dto

import (
	"net/http"
	"strings"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Sync error codes
const (
	// ErrCodeVersionConflict is used when an edit collides with an upstream change
	ErrCodeVersionConflict = "ERR_VERSION_CONFLICT"
	// ErrCodeNoActiveRuleset is used when no mapping ruleset covers the requested time
	ErrCodeNoActiveRuleset = "ERR_NO_ACTIVE_RULESET"
	// ErrCodeRunInProgress is used when a sync run is already active
	ErrCodeRunInProgress = "ERR_RUN_IN_PROGRESS"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeVersionConflict: http.StatusConflict,
	ErrCodeNoActiveRuleset: http.StatusUnprocessableEntity,
	ErrCodeRunInProgress:   http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeBusinessRule: http.StatusUnprocessableEntity,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodeMapping maps domain error codes to standardized API codes
var domainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
	"DB_ERROR":             ErrCodeInternal,

	"VERSION_CONFLICT":              ErrCodeVersionConflict,
	"RUN_IN_PROGRESS":               ErrCodeRunInProgress,
	"RULESET_NONE_ACTIVE":           ErrCodeNoActiveRuleset,
	"MIRROR_VERSION_REGRESSION":     ErrCodeConcurrencyConflict,
	"MODIFICATION_EMPTY_DELTA":      ErrCodeInvalidInput,
	"MODIFICATION_ALREADY_LIVE":     ErrCodeAlreadyExists,
	"CONFLICT_ALREADY_RESOLVED":     ErrCodeInvalidState,
	"CONFLICT_INVALID_STRATEGY":     ErrCodeInvalidInput,
	"CONFLICT_MERGED_DATA_REQUIRED": ErrCodeInvalidInput,
	"INGEST_INVALID_ENDPOINT":       ErrCodeInvalidInput,
	"INGEST_INVALID_MODE":           ErrCodeInvalidInput,
	"INGEST_BATCH_COMPLETE":         ErrCodeInvalidState,
	"RULESET_INVALID_MAPPING":       ErrCodeInvalidInput,
	"RULESET_MISSING_DESTINATION":   ErrCodeInvalidInput,
}

// NormalizeErrorCode converts a domain error code to the standardized
// API format. Codes ending in _NOT_FOUND map to ERR_NOT_FOUND; unknown
// codes pass through unchanged.
func NormalizeErrorCode(code string) string {
	if newCode, ok := domainErrorCodeMapping[code]; ok {
		return newCode
	}
	if strings.HasSuffix(code, "_NOT_FOUND") {
		return ErrCodeNotFound
	}
	return code
}
