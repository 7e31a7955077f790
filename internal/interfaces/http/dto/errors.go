package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeTokenRevoked = "ERR_TOKEN_REVOKED"
	// ErrCodeSignatureInvalid is returned when a webhook payload fails verification
	ErrCodeSignatureInvalid = "ERR_SIGNATURE_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeVersionConflict means the caller must re-fetch and retry
	ErrCodeVersionConflict = "ERR_VERSION_CONFLICT"
)

// Cart and checkout error codes
const (
	ErrCodeCartLocked           = "ERR_CART_LOCKED"
	ErrCodeCartClosed           = "ERR_CART_CLOSED"
	ErrCodeItemNotFound         = "ERR_ITEM_NOT_FOUND"
	ErrCodeNoCheckout           = "ERR_NO_CHECKOUT_IN_PROGRESS"
	ErrCodePriceMismatch        = "ERR_PRICE_MISMATCH"
	ErrCodeItemUnavailable      = "ERR_ITEM_UNAVAILABLE"
	ErrCodeVendorIneligible     = "ERR_VENDOR_INELIGIBLE"
	ErrCodeInsufficientStock    = "ERR_INSUFFICIENT_STOCK"
	ErrCodeInvalidState         = "ERR_INVALID_STATE"
	ErrCodeQuotaExceeded        = "ERR_QUOTA_EXCEEDED"
	ErrCodeProviderUnavailable  = "ERR_PROVIDER_UNAVAILABLE"
	ErrCodeServiceUnavailable   = "ERR_SERVICE_UNAVAILABLE"
	ErrCodeRateLimited          = "ERR_RATE_LIMITED"
	ErrCodeWebhookProcessFailed = "ERR_WEBHOOK_PROCESSING"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,
	ErrCodeTokenRevoked:     http.StatusUnauthorized,
	ErrCodeSignatureInvalid: http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeVersionConflict:     http.StatusConflict,

	// Locked carts share the 409 family so clients re-fetch before retrying
	ErrCodeCartLocked:        http.StatusConflict,
	ErrCodeCartClosed:        http.StatusConflict,
	ErrCodePriceMismatch:     http.StatusConflict,
	ErrCodeItemNotFound:      http.StatusNotFound,
	ErrCodeNoCheckout:        http.StatusConflict,
	ErrCodeItemUnavailable:   http.StatusUnprocessableEntity,
	ErrCodeVendorIneligible:  http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock: http.StatusUnprocessableEntity,
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeQuotaExceeded:     http.StatusForbidden,

	ErrCodeProviderUnavailable:  http.StatusBadGateway,
	ErrCodeServiceUnavailable:   http.StatusServiceUnavailable,
	ErrCodeRateLimited:          http.StatusTooManyRequests,
	ErrCodeWebhookProcessFailed: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to their API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":               ErrCodeNotFound,
	"ALREADY_EXISTS":          ErrCodeAlreadyExists,
	"INVALID_INPUT":           ErrCodeInvalidInput,
	"INVALID_STATE":           ErrCodeInvalidState,
	"UNAUTHORIZED":            ErrCodeUnauthorized,
	"FORBIDDEN":               ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":    ErrCodeConcurrencyConflict,
	"INSUFFICIENT_STOCK":      ErrCodeInsufficientStock,
	"VALIDATION_ERROR":        ErrCodeValidation,
	"VERSION_CONFLICT":        ErrCodeVersionConflict,
	"CART_LOCKED":             ErrCodeCartLocked,
	"CART_CLOSED":             ErrCodeCartClosed,
	"ITEM_NOT_FOUND":          ErrCodeItemNotFound,
	"NO_CHECKOUT_IN_PROGRESS": ErrCodeNoCheckout,
	"PRICE_MISMATCH":          ErrCodePriceMismatch,
	"ITEM_UNAVAILABLE":        ErrCodeItemUnavailable,
	"VENDOR_INELIGIBLE":       ErrCodeVendorIneligible,
	"QUOTA_EXCEEDED":          ErrCodeQuotaExceeded,
	"PROVIDER_ERROR":          ErrCodeProviderUnavailable,
}

// NormalizeErrorCode converts a domain error code to its API code.
// Codes already in API form, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
