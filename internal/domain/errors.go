// Package domain holds the shared types that cross module boundaries:
// the error taxonomy used by the estimation and optimization pipeline.
package domain

import "fmt"

// DataAlignmentError indicates a length or index mismatch between two
// time-indexed series that must share the same observations.
type DataAlignmentError struct {
	Context string
	Want    int
	Got     int
}

func (e *DataAlignmentError) Error() string {
	return fmt.Sprintf("data alignment: %s: expected %d observations, got %d", e.Context, e.Want, e.Got)
}

// InsufficientDataError indicates too few observations for the requested
// estimator.
type InsufficientDataError struct {
	Context string
	Need    int
	Got     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s: need at least %d observations, got %d", e.Context, e.Need, e.Got)
}

// SingularInputError indicates a degenerate covariance or regression input
// (zero-variance asset, collinear series, non-finite values).
type SingularInputError struct {
	Matrix string
	Reason string
}

func (e *SingularInputError) Error() string {
	return fmt.Sprintf("singular input: %s: %s", e.Matrix, e.Reason)
}

// PosteriorComputationError indicates that one of the linear systems in the
// Black-Litterman posterior could not be solved. Matrix names which one.
type PosteriorComputationError struct {
	Matrix string
	Err    error
}

func (e *PosteriorComputationError) Error() string {
	return fmt.Sprintf("posterior computation: matrix %s is singular: %v", e.Matrix, e.Err)
}

func (e *PosteriorComputationError) Unwrap() error { return e.Err }

// InfeasibleConstraintsError indicates a self-contradictory constraint set,
// detected before the solver is invoked.
type InfeasibleConstraintsError struct {
	Reason string
}

func (e *InfeasibleConstraintsError) Error() string {
	return fmt.Sprintf("infeasible constraints: %s", e.Reason)
}

// OptimizationError indicates that the solver failed to converge, exceeded
// its budget, or returned weights that violate the declared constraints.
type OptimizationError struct {
	Status string
	Err    error
}

func (e *OptimizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("optimization failed: %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("optimization failed: %s", e.Status)
}

func (e *OptimizationError) Unwrap() error { return e.Err }
