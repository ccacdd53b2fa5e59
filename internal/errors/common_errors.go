package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an error for logging and for HTTP mapping
type ErrorType string

const (
	ErrTypeSchema        ErrorType = "SCHEMA"
	ErrTypeEmptyResult   ErrorType = "EMPTY_RESULT"
	ErrTypeConfiguration ErrorType = "CONFIGURATION"
	ErrTypeTraining      ErrorType = "TRAINING"
	ErrTypePrediction    ErrorType = "PREDICTION"
	ErrTypeStructure     ErrorType = "STRUCTURE"
	ErrTypeParsing       ErrorType = "PARSING"
	ErrTypeValidation    ErrorType = "VALIDATION"
	ErrTypeNotFound      ErrorType = "NOT_FOUND"
	ErrTypeConflict      ErrorType = "CONFLICT"
	ErrTypeStorage       ErrorType = "STORAGE"
	ErrTypeConfig        ErrorType = "CONFIG"
)

// Typed is implemented by domain errors that know their ErrorType.
type Typed interface {
	error
	ErrorType() ErrorType
}

// TypeOf returns the ErrorType of the first Typed error in err's chain,
// or the empty string.
func TypeOf(err error) ErrorType {
	var typed Typed
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	return ""
}

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// ErrorType implements Typed
func (e *AppError) ErrorType() ErrorType {
	return e.Type
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConflictError creates an error for a request that does not fit the current state
func NewConflictError(message string) *AppError {
	return NewAppError(ErrTypeConflict, message, nil)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}
