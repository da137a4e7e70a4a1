package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal
var (
	// Session store errors
	ErrInvalidScope     = errors.New("session scope id is required")
	ErrInvalidKey       = errors.New("session key is required")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrCorruptValue     = errors.New("stored session value is corrupt")

	// Account errors
	ErrMissingCredentials = errors.New("email and password are required")
	ErrMissingEmail       = errors.New("email is required")
	ErrRecoveryRequired   = errors.New("a recovery session is required")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrPasswordMismatch   = errors.New("passwords do not match")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
