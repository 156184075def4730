// Package domain holds the quote model and the errors every layer agrees on.
// Adapters decide how an error kind is presented; the domain only names it.
package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Error kinds. Match them with errors.Is or the Is helpers below.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("unavailable")
)

// NotFoundError reports a lookup that matched nothing. ID is optional and
// holds whatever key the caller searched by: an id, a category, a path.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "no " + e.Entity + " found"
	}

	return fmt.Sprintf("no %s found for %q", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError reports that no entity exists for id.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a write that would break store invariants, most
// often a quote id that is already taken. QuoteID is zero when the conflict
// is not tied to one record.
type ConflictError struct {
	Entity  string
	Reason  string
	QuoteID int
}

func (e *ConflictError) Error() string {
	msg := e.Entity + " conflict: " + e.Reason
	if e.QuoteID != 0 {
		msg += " (id " + strconv.Itoa(e.QuoteID) + ")"
	}

	return msg
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError reports a conflict on entity.
func NewConflictError(entity, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}

// NewIDConflictError reports a conflict over the quote identified by id.
func NewIDConflictError(id int, reason string) error {
	return &ConflictError{Entity: "quote", Reason: reason, QuoteID: id}
}

// ValidationError reports input that breaks a quote rule. Field is empty
// when the whole payload is at fault.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}

	return "invalid " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError reports that field fails with message.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue is NewValidationError that also keeps the
// rejected value for logging.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// UnavailableError reports a dependency that could not serve the call:
// the remote feed, or the storage backend.
type UnavailableError struct {
	Service string
	Reason  string
}

func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return e.Service + " is unavailable"
	}

	return e.Service + " is unavailable: " + e.Reason
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// NewUnavailableError reports that service could not be used.
func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

// IsNotFound and its siblings report an error's kind anywhere in its chain.
func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool  { return errors.Is(err, ErrValidation) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
