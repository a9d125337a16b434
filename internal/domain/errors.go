package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the boundary surfaces. Adapters translate
// these to their transport's error shape; pipeline failures never use them,
// they land on the job record instead.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Invalidf wraps ErrInvalidInput with a caller-facing reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}
