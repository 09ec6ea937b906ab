// Package stage names the pipeline stages and defines the error taxonomy
// shared by every lvlake package.
//
// Every fatal error produced by split, train, grid, predict or analyze is a
// *stage.Error carrying the stage name and one of the four kind sentinels
// below. Callers match kinds with errors.Is and read the stage (and, for
// training failures, the last valid iteration) with errors.As:
//
//	var se *stage.Error
//	if errors.As(err, &se) && errors.Is(err, stage.ErrNumericalInstability) {
//		log.Printf("%s failed after iteration %d", se.Stage, se.Iteration)
//	}
package stage

import (
	"errors"
	"fmt"
)

// Name identifies the pipeline stage an error originated from.
type Name string

const (
	Split   Name = "split"
	Train   Name = "train"
	Grid    Name = "grid"
	Predict Name = "predict"
	Analyze Name = "analyze"
)

// Error kinds. Package-level sentinels; DO NOT compare with ==, use errors.Is.
var (
	// ErrInputValidation: missing required columns, invalid configuration
	// or an empty usable output set. Surfaced before computation starts.
	ErrInputValidation = errors.New("stage: input validation failed")

	// ErrNumericalInstability: non-finite loss or a covariance that cannot
	// be factorized even with jitter.
	ErrNumericalInstability = errors.New("stage: numerical instability")

	// ErrInsufficientData: too few points, neighbors or strata for a computation.
	ErrInsufficientData = errors.New("stage: insufficient data")

	// ErrBoundaryComputation: degenerate point set, triangulation impossible.
	ErrBoundaryComputation = errors.New("stage: boundary computation failed")
)

// Error is the stage-tagged error returned across package boundaries.
// Iteration is the last valid training iteration (1-based) for train-stage
// numerical failures and -1 otherwise.
type Error struct {
	Stage     Name
	Kind      error
	Iteration int
	Err       error
}

// Error implements the error interface. The kind text is omitted when the
// cause already carries it.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	if e.Err != nil && errors.Is(e.Err, e.Kind) {
		msg = string(e.Stage)
	}
	if e.Iteration >= 0 {
		msg = fmt.Sprintf("%s (last valid iteration %d)", msg, e.Iteration)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// New builds a stage error of the given kind wrapping cause (may be nil).
func New(name Name, kind, cause error) *Error {
	return &Error{Stage: name, Kind: kind, Iteration: -1, Err: cause}
}

// Errorf builds a stage error whose cause is a formatted message.
func Errorf(name Name, kind error, format string, args ...any) *Error {
	return New(name, kind, fmt.Errorf(format, args...))
}

// Wrap tags err with a stage. If err already is a *Error it is returned
// unchanged, so the innermost stage wins. The kind is taken from err when it
// already matches one of the sentinels, otherwise fallback is used.
func Wrap(name Name, fallback, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	kind := fallback
	for _, k := range []error{ErrInputValidation, ErrNumericalInstability, ErrInsufficientData, ErrBoundaryComputation} {
		if errors.Is(err, k) {
			kind = k

			break
		}
	}

	return New(name, kind, err)
}

// Of reports the stage recorded in err, or "" when err carries none.
func Of(err error) Name {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}

	return ""
}
