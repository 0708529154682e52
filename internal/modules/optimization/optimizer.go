// Package optimization provides the classical optimizers that drive a variational run.
//
// Optimizers are looked up by name in a process-wide registry. The built-in
// strategies delegate the numerics to gonum's optimize package and only add what a
// noisy, expensive, possibly failing objective needs on top: cancellation, an
// evaluation budget that is never exceeded, best-point tracking and a status flag
// instead of an error when the method does not converge.
package optimization

import (
	"context"
)

// Status reports how a minimization ended. None of the statuses is an error.
type Status string

const (
	// StatusConverged means the method met its convergence criterion.
	StatusConverged Status = "converged"
	// StatusBudgetExhausted means the evaluation or iteration budget ran out first.
	StatusBudgetExhausted Status = "budget-exhausted"
	// StatusStalled means the method gave up, e.g. a line search could not make progress.
	StatusStalled Status = "stalled"
)

// Problem is the objective handed to an optimizer.
// Func and Grad may fail; a failure aborts the minimization with that error.
// The x slices are only valid for the duration of the call.
type Problem struct {
	Func func(ctx context.Context, x []float64) (float64, error)
	Grad func(ctx context.Context, x []float64, grad []float64) error
}

// Result is the best point an optimizer found.
type Result struct {
	Energy      float64
	Params      []float64
	Status      Status
	Reason      string // Method-specific termination reason
	Evaluations int    // Objective calls, repeats included
	Iterations  int
}

// Optimizer minimizes a Problem from an initial point.
type Optimizer interface {
	Name() string
	// RequiresGradient reports whether Problem.Grad must be set.
	RequiresGradient() bool
	Minimize(ctx context.Context, p Problem, initial []float64) (*Result, error)
}

// Factory builds a configured optimizer.
type Factory func(opts Options) (Optimizer, error)

// Info describes a registered optimizer.
type Info struct {
	Name             string `json:"name"`
	RequiresGradient bool   `json:"requires_gradient"`
	Default          bool   `json:"default"`
}
