package datastore

import (
	"errors"
	"fmt"
)

// ErrMissingAggregate marks a model that lacks a required aggregate
var ErrMissingAggregate = errors.New("missing model aggregate")

// StoreError reports a failure to read model aggregates
type StoreError struct {
	Op        string // operation, e.g. "category_total"
	Key       string // category, feature or storage key involved
	Transient bool   // true when a retry may succeed
	Err       error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("datastore %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("datastore %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a StoreError worth retrying
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Transient
}

func permanent(op, key string, err error) error {
	return &StoreError{Op: op, Key: key, Err: err}
}

func transient(op, key string, err error) error {
	return &StoreError{Op: op, Key: key, Transient: true, Err: err}
}
