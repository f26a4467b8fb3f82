package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidType is returned when a value does not match the declared data type
	ErrInvalidType = errors.New("invalid attribute type")

	// ErrInvalidRelationValue is returned when a relation value is not an instance of the target
	ErrInvalidRelationValue = errors.New("relation value is not an instance of the target")

	// ErrMissingMandatoryValue is returned when a mandatory attribute is empty
	ErrMissingMandatoryValue = errors.New("missing mandatory value")
)

// FieldError represents a validation error on a specific attribute
type FieldError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface
func (fe FieldError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// Unwrap returns the sentinel behind the field error
func (fe FieldError) Unwrap() error {
	return fe.Err
}

// ValidationErrors contains the validation errors of one entity
type ValidationErrors struct {
	Entity string
	Errors []FieldError
}

// Add adds a validation error for a specific attribute
func (ve *ValidationErrors) Add(field string, err error) {
	ve.Errors = append(ve.Errors, FieldError{Field: field, Message: err.Error(), Err: err})
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// Fields returns the sorted names of the attributes in error
func (ve *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		fields = append(fields, fe.Field)
	}
	sort.Strings(fields)
	return fields
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed for %s: %s", ve.Entity, ve.Errors[0].Error())
	}

	messages := make([]string, len(ve.Errors))
	for i, fe := range ve.Errors {
		messages[i] = "  - " + fe.Error()
	}
	return fmt.Sprintf("validation failed for %s:\n%s", ve.Entity, strings.Join(messages, "\n"))
}

// Unwrap exposes the field errors to errors.Is and errors.As
func (ve *ValidationErrors) Unwrap() []error {
	errs := make([]error, len(ve.Errors))
	for i, fe := range ve.Errors {
		errs[i] = fe
	}
	return errs
}

// IsValidationFailed returns true if the error is a validation error
func IsValidationFailed(err error) bool {
	var ve *ValidationErrors
	return errors.As(err, &ve)
}
