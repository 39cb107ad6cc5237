package config

import (
	"errors"
	"fmt"
)

// Error reports an unusable configuration value. It is fatal at startup.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrMissing marks a required setting that was not supplied
var ErrMissing = errors.New("required setting is missing")

// IsConfigError reports whether err is or wraps an *Error
func IsConfigError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

func missing(key string) error {
	return &Error{Key: key, Err: ErrMissing}
}

func invalid(key, format string, args ...interface{}) error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}
