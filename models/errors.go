package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidInput marks bad state codes, out-of-range years and missing fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoResults is the portal reporting zero matches. It is an outcome, not a failure.
	ErrNoResults = errors.New("no results")
	// ErrNavigation means the browser could not be started or driven at all.
	ErrNavigation = errors.New("browser navigation failed")
	// ErrTimeout is matched by every ExhaustedError.
	ErrTimeout = errors.New("operation timed out")
)

// TransientError marks a failure that is worth retrying: navigation
// timeouts, elements that have not rendered yet, network hiccups.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err should consume retry budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNoResults) || errors.Is(err, ErrNavigation) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ExhaustedError is returned once every retry attempt failed with a
// transient error. It carries the last cause for diagnostics.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s timed out after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrTimeout }
