package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// NotFoundMessage is returned when a requested record does not exist.
	NotFoundMessage = "record not found"
	// PersistenceErrorMessage describes storage failures outside Redis.
	PersistenceErrorMessage = "persistence operation failed"
	// InvalidRequestMessage is returned for malformed caller input.
	InvalidRequestMessage = "invalid request"
)

// ErrNotFound is the sentinel every storage backend returns for a missing record.
var ErrNotFound = errors.New("not found")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NotFound wraps err as a 404 that still matches ErrNotFound.
func NotFound(err error) error {
	if err == nil {
		err = ErrNotFound
	} else if !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return New(err, http.StatusNotFound, NotFoundMessage)
}

// WrapPersistence wraps a storage error. Missing records keep their 404 status.
func WrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return NotFound(err)
	}
	return New(err, http.StatusInternalServerError, PersistenceErrorMessage)
}

// BadRequest wraps a validation failure in caller input.
func BadRequest(err error) error {
	return New(err, http.StatusBadRequest, InvalidRequestMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
