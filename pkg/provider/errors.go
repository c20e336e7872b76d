// Package provider holds the error contract shared by all provider kinds.
//
// Every error returned by an STT, LLM, moderation, chat, or config-store
// backend is wrapped in an [Error] carrying a provider tag and a retryable
// flag. The failover controller in internal/resilience uses the flag to decide
// whether to advance to the next provider or abort immediately.
package provider

import (
	"errors"
	"fmt"
)

// Error wraps a provider failure with routing metadata.
type Error struct {
	// Provider tags which backend produced the error (e.g., "deepgram").
	Provider string

	// Retryable reports whether the operation may succeed on another provider
	// or on a later attempt. Network faults, timeouts, and 429/5xx responses
	// are retryable; auth failures and invalid input are not.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a retryable provider error.
func Retryable(name string, err error) error {
	return &Error{Provider: name, Retryable: true, Err: err}
}

// Fatal wraps err as a non-retryable provider error.
func Fatal(name string, err error) error {
	return &Error{Provider: name, Retryable: false, Err: err}
}

// IsRetryable reports whether err (or any error in its chain) is a provider
// error marked retryable. Errors that carry no provider metadata are treated
// as retryable so that transport-level failures still trigger failover.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// Tag returns the provider tag of err, or "" if err carries none.
func Tag(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Provider
	}
	return ""
}
