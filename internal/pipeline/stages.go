// Package pipeline is the stage engine that drives a docship run: checkout,
// documentation generation, site composition and build, packaging, publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is a discrete unit of work in a pipeline run.
type Stage func(ctx context.Context, rs *RunState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal     StageErrorKind = "fatal"     // Run must abort.
	StageErrorWarning   StageErrorKind = "warning"   // Non-fatal; record and continue.
	StageErrorCanceled  StageErrorKind = "canceled"  // Context cancellation.
	StageErrorTransient StageErrorKind = "transient" // Retry per policy, fatal when exhausted.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Helpers to classify errors.
func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}
func newTransientStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorTransient, Stage: stage, Err: err}
}

// AsStageError unwraps err into a *StageError if possible.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	ok := errors.As(err, &se)
	return se, ok
}
