// FilePath: internal/errors/errors.go
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types
	ErrorTypeMalformedPacket  ErrorType = "malformed_packet"
	ErrorTypePersistenceWrite ErrorType = "persistence_write"
	ErrorTypePersistenceRead  ErrorType = "persistence_read"
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeInternal         ErrorType = "internal"
)

// ServiceError represents a structured service error
type ServiceError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error     // Internal error for logging
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped internal error
func (e *ServiceError) Unwrap() error {
	return e.err
}

// WithRequestID adds a request ID to the error
func (e *ServiceError) WithRequestID(id string) *ServiceError {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details any) *ServiceError {
	e.Details = details
	return e
}

// NewMalformedPacketError creates an error for a packet that failed
// normalization. These are logged and dropped, never propagated to the store.
func NewMalformedPacketError(msg string, err error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeMalformedPacket,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewPersistenceWriteError creates an error for a failed snapshot write
func NewPersistenceWriteError(msg string, err error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypePersistenceWrite,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewPersistenceReadError creates an error for a failed snapshot load
func NewPersistenceReadError(msg string, err error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypePersistenceRead,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeValidation,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeNotFound,
		Message: msg,
		Code:    http.StatusNotFound,
		err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(msg string, err error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeInternal,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// IsMalformedPacket checks if an error is a MalformedPacket error
func IsMalformedPacket(err error) bool {
	if svcErr, ok := err.(*ServiceError); ok {
		return svcErr.Type == ErrorTypeMalformedPacket
	}
	return false
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	if svcErr, ok := err.(*ServiceError); ok {
		return svcErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsPersistenceRead checks if an error is a PersistenceRead error
func IsPersistenceRead(err error) bool {
	if svcErr, ok := err.(*ServiceError); ok {
		return svcErr.Type == ErrorTypePersistenceRead
	}
	return false
}
