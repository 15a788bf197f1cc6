package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateActivity reports that an activity already exists for the
	// identity key. It is benign: a racing import loses as a skip, never as
	// duplicate data.
	ErrDuplicateActivity = errors.New("activity already stored for identity key")

	// ErrRemoteNotFound reports that the provider no longer has the
	// requested activity.
	ErrRemoteNotFound = errors.New("activity not found at provider")
)

// ProviderError wraps a remote list/fetch failure. It is transient and never
// implies local mutation.
type ProviderError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed raw payload. It is permanent for that
// payload and recorded per activity without aborting a batch.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError rejects malformed query input before any processing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
