package shared

import (
	"fmt"
	"strings"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error carrying structured details for the client
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// Error codes shared by the checkout engine
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeVersionConflict  = "VERSION_CONFLICT"
	CodeCartLocked       = "CART_LOCKED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeVendorIneligible = "VENDOR_INELIGIBLE"
	CodePriceMismatch    = "PRICE_MISMATCH"
	CodeItemUnavailable  = "ITEM_UNAVAILABLE"
	CodeProviderError    = "PROVIDER_ERROR"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
)

// ValidationError is returned for malformed input. It never leaves partial state behind.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap exposes the error as a DomainError for transport mapping
func (e *ValidationError) Unwrap() error {
	de := NewDomainError(CodeValidation, e.Error())
	if e.Field != "" {
		de.Details = map[string]any{"field": e.Field}
	}
	return de
}

// VersionConflictError signals that an aggregate was modified since the caller last read it.
// The caller must re-fetch and retry.
type VersionConflictError struct {
	Resource string
	ID       string
	Expected int
	Actual   int
}

// NewVersionConflictError creates a version conflict error
func NewVersionConflictError(resource, id string, expected, actual int) *VersionConflictError {
	return &VersionConflictError{Resource: resource, ID: id, Expected: expected, Actual: actual}
}

func (e *VersionConflictError) Error() string {
	if e.Actual > 0 {
		return fmt.Sprintf("%s %s was modified concurrently: expected version %d, current version %d",
			e.Resource, e.ID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s %s was modified concurrently: expected version %d", e.Resource, e.ID, e.Expected)
}

// Unwrap exposes the error as a DomainError for transport mapping
func (e *VersionConflictError) Unwrap() error {
	de := NewDomainError(CodeVersionConflict, e.Error())
	de.Details = map[string]any{"expected_version": e.Expected}
	if e.Actual > 0 {
		de.Details["current_version"] = e.Actual
	}
	return de
}

// ProviderError wraps a failure from an external provider (payment gateway, shipping API).
// Retryable errors may be retried by the caller with bounded backoff.
type ProviderError struct {
	Provider  string
	Operation string
	Retryable bool
	Err       error
}

// NewProviderError creates a provider error
func NewProviderError(provider, operation string, retryable bool, err error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Retryable: retryable, Err: err}
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Operation)
	b.WriteString(" failed")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns both the transport mapping and the underlying cause
func (e *ProviderError) Unwrap() []error {
	de := NewDomainError(CodeProviderError, fmt.Sprintf("%s is temporarily unavailable", e.Provider))
	de.Details = map[string]any{"retryable": e.Retryable, "operation": e.Operation}
	if e.Err == nil {
		return []error{de}
	}
	return []error{de, e.Err}
}
