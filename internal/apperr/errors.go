package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError indicates a malformed id, a missing field or a content rule violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UnauthorizedError indicates the trusted caller identity is missing or failed verification.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// ForbiddenError indicates the caller lacks membership or role for the action.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// NotFoundError indicates the chat, message or participant is absent.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ConflictError indicates a duplicate write, e.g. a repeated reaction.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// CollaboratorError wraps a failure of the identity or membership service.
type CollaboratorError struct {
	Service string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func Forbidden(message string) error {
	return &ForbiddenError{Message: message}
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func Conflict(message string) error {
	return &ConflictError{Message: message}
}

func Unauthorized(message string) error {
	return &UnauthorizedError{Message: message}
}

func Collaborator(service string, err error) error {
	return &CollaboratorError{Service: service, Err: err}
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsForbidden reports whether err carries a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// Status maps err to the HTTP status and the message safe to show the client.
// Collaborator and unknown failures never leak their cause.
func Status(err error) (int, string) {
	var validation *ValidationError
	var unauthorized *UnauthorizedError
	var forbidden *ForbiddenError
	var notFound *NotFoundError
	var conflict *ConflictError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized, unauthorized.Error()
	case errors.As(err, &forbidden):
		return http.StatusForbidden, forbidden.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &conflict):
		return http.StatusBadRequest, conflict.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
