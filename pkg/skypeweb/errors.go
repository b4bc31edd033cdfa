// Copyright 2024-2026 Aiku AI

package skypeweb

import (
	"errors"
	"fmt"
)

// AuthError means the remote network rejected the credentials or session.
// It is not retried automatically.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("skype authentication failed: %s", e.Reason)
}

// FatalProtocolError means the gateway reported an unrecoverable protocol
// violation. The connection must not be retried.
type FatalProtocolError struct {
	Reason string
}

func (e *FatalProtocolError) Error() string {
	return fmt.Sprintf("skype protocol error: %s", e.Reason)
}

// RequestError is an HTTP-level failure from the REST surface.
type RequestError struct {
	Status int
	Path   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("skype request %s failed with status %d", e.Path, e.Status)
}

// ErrNotFound marks contact/conversation lookups whose target does not
// exist remotely. Callers cache it as a negative result.
var ErrNotFound = errors.New("skype: not found")

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsFatal reports whether err is (or wraps) a FatalProtocolError.
func IsFatal(err error) bool {
	var fe *FatalProtocolError
	return errors.As(err, &fe)
}
