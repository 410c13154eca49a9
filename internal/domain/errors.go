package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals bad caller input (empty text, batch too large,
	// limit out of range, zero-norm vector). Raised before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrModelLoading signals the embedding model is still warming up.
	// Retryable after a short delay.
	ErrModelLoading = errors.New("embedding model is loading")
	// ErrTimeout signals the provider or store exceeded its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrRemote signals a non-success, non-loading provider response.
	ErrRemote = errors.New("embedding provider error")
	// ErrPersistence signals the document store rejected an operation or is unreachable.
	ErrPersistence = errors.New("document store error")
	// ErrUnexpected signals an uncategorized failure (network-level, decode failure).
	ErrUnexpected = errors.New("unexpected error")
)

// RemoteError wraps ErrRemote with the provider's HTTP status and message.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrRemote.Error(), e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// NewRemoteError creates a provider error carrying status and message.
func NewRemoteError(status int, message string) error {
	return &RemoteError{Status: status, Message: message}
}
