// Package errs holds sentinel errors mapped to HTTP codes at the handler
// boundary.
package errs

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMissingField    = errors.New("missing required field")
	ErrUnknownKind     = errors.New("unknown message kind")
)
