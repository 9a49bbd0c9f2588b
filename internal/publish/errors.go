package publish

import (
	"errors"
	"fmt"
)

// Typed publish errors so the pipeline can classify without string parsing.

type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: authentication rejected: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type TooLargeError struct {
	Op  string
	Err error
}

func (e *TooLargeError) Error() string { return fmt.Sprintf("%s: artifact rejected as too large: %v", e.Op, e.Err) }
func (e *TooLargeError) Unwrap() error { return e.Err }

type RateLimitError struct {
	Op  string
	Err error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err) }
func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError marks server-side or network failures worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// DeploymentFailedError reports a deployment that reached a terminal failed state.
type DeploymentFailedError struct {
	ID     string
	Reason string
}

func (e *DeploymentFailedError) Error() string {
	return fmt.Sprintf("deployment %s failed: %s", e.ID, e.Reason)
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return errors.As(err, new(*TransientError)) || errors.As(err, new(*RateLimitError))
}
