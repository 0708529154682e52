package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/hybrid/internal/domain"
)

// convergeIterations is how many major iterations without an improvement larger
// than the tolerance count as convergence.
const convergeIterations = 20

func init() {
	Register("nelder-mead", newNelderMead)
	Register("bfgs", newGradientMethod("bfgs", func(Options) (optimize.Method, error) {
		return &optimize.BFGS{}, nil
	}))
	Register("l-bfgs", newGradientMethod("l-bfgs", func(opts Options) (optimize.Method, error) {
		store, err := opts.PositiveInt(KeyLBFGSStore, 15)
		if err != nil {
			return nil, err
		}
		return &optimize.LBFGS{Store: store}, nil
	}))
	Register("cg", newGradientMethod("cg", func(Options) (optimize.Method, error) {
		return &optimize.CG{}, nil
	}))
	Register("gradient-descent", newGradientMethod("gradient-descent", func(Options) (optimize.Method, error) {
		return &optimize.GradientDescent{}, nil
	}))
}

// successStatuses are the gonum statuses that count as convergence.
var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.FunctionConvergence: true,
	optimize.GradientThreshold:   true,
	optimize.StepConvergence:     true,
	optimize.FunctionThreshold:   true,
	optimize.MethodConverge:      true,
}

// budgetStatuses are the gonum statuses raised by the settings limits.
var budgetStatuses = map[optimize.Status]bool{
	optimize.FunctionEvaluationLimit: true,
	optimize.GradientEvaluationLimit: true,
	optimize.IterationLimit:          true,
	optimize.RuntimeLimit:            true,
}

// gonumOptimizer adapts a gonum optimize.Method to Optimizer.
type gonumOptimizer struct {
	name           string
	gradient       bool
	method         func() optimize.Method
	maxEvaluations int
	maxIterations  int
	tolerance      float64
}

func newNelderMead(opts Options) (Optimizer, error) {
	base, err := newBase("nelder-mead", false, opts)
	if err != nil {
		return nil, err
	}
	simplex, err := opts.Float(KeySimplexSize, 0)
	if err != nil {
		return nil, err
	}
	if simplex < 0 {
		return nil, domain.NewConfigurationError(KeySimplexSize, "must be positive, got %g", simplex)
	}
	base.method = func() optimize.Method {
		return &optimize.NelderMead{SimplexSize: simplex}
	}
	return base, nil
}

func newGradientMethod(name string, build func(Options) (optimize.Method, error)) Factory {
	return func(opts Options) (Optimizer, error) {
		base, err := newBase(name, true, opts)
		if err != nil {
			return nil, err
		}
		// Validate method options up front so Minimize cannot fail on them.
		if _, err := build(opts); err != nil {
			return nil, err
		}
		base.method = func() optimize.Method {
			m, _ := build(opts)
			return m
		}
		return base, nil
	}
}

func newBase(name string, gradient bool, opts Options) (*gonumOptimizer, error) {
	maxEval, err := opts.PositiveInt(KeyMaxEvaluations, DefaultMaxEvaluations)
	if err != nil {
		return nil, err
	}
	maxIter, err := opts.Int(KeyMaxIterations, 0)
	if err != nil {
		return nil, err
	}
	if maxIter < 0 {
		return nil, domain.NewConfigurationError(KeyMaxIterations, "must not be negative, got %d", maxIter)
	}
	tol, err := opts.PositiveFloat(KeyTolerance, DefaultTolerance)
	if err != nil {
		return nil, err
	}
	return &gonumOptimizer{
		name:           name,
		gradient:       gradient,
		maxEvaluations: maxEval,
		maxIterations:  maxIter,
		tolerance:      tol,
	}, nil
}

func (g *gonumOptimizer) Name() string {
	return g.name
}

func (g *gonumOptimizer) RequiresGradient() bool {
	return g.gradient
}

// Minimize runs the gonum method. The objective is never called more than
// max-evaluations times; gradient calls are not counted against it. Evaluation
// errors and context cancellation stop the method through the problem's Status
// hook and are returned as errors; every other way of stopping yields the best
// point seen with a Status.
func (g *gonumOptimizer) Minimize(ctx context.Context, p Problem, initial []float64) (*Result, error) {
	if len(initial) == 0 {
		return nil, domain.NewConfigurationError("initial", "at least one parameter is required")
	}
	if p.Func == nil {
		return nil, domain.NewConfigurationError("problem", "objective function is nil")
	}
	if g.gradient && p.Grad == nil {
		return nil, domain.NewConfigurationError(KeyGradientStrategy, "%s requires a gradient", g.name)
	}

	run := &minimization{ctx: ctx, problem: p, budget: g.maxEvaluations}

	problem := optimize.Problem{
		Func:   run.objective,
		Status: run.status,
	}
	if g.gradient {
		problem.Grad = run.gradient
	}

	settings := &optimize.Settings{
		FuncEvaluations: g.maxEvaluations,
		MajorIterations: g.maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   g.tolerance,
			Iterations: convergeIterations,
		},
	}

	result, err := optimize.Minimize(problem, append([]float64(nil), initial...), settings, g.method())

	if run.err != nil {
		return nil, run.err
	}
	if run.best == nil {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
		return nil, fmt.Errorf("%s: no point was evaluated", g.name)
	}

	res := &Result{
		Energy:      run.bestF,
		Params:      run.best,
		Evaluations: run.evaluations,
	}
	if result != nil {
		res.Iterations = result.Stats.MajorIterations
		res.Reason = result.Status.String()
	}

	switch {
	case run.exhausted:
		res.Status = StatusBudgetExhausted
	case err != nil:
		res.Status = StatusStalled
		res.Reason = err.Error()
	case result != nil && successStatuses[result.Status]:
		res.Status = StatusConverged
	case result != nil && budgetStatuses[result.Status]:
		res.Status = StatusBudgetExhausted
	default:
		res.Status = StatusStalled
	}

	return res, nil
}

// minimization carries the state of one Minimize call across gonum's callbacks.
// gonum evaluates sequentially when Settings.Concurrent is zero.
type minimization struct {
	ctx         context.Context
	problem     Problem
	budget      int
	evaluations int
	exhausted   bool
	best        []float64
	bestF       float64
	err         error
}

func (m *minimization) objective(x []float64) float64 {
	if m.err != nil {
		return math.Inf(1)
	}
	if m.evaluations >= m.budget {
		m.exhausted = true
		return math.Inf(1)
	}
	if err := m.ctx.Err(); err != nil {
		m.err = err
		return math.Inf(1)
	}

	pt := append([]float64(nil), x...)
	f, err := m.problem.Func(m.ctx, pt)
	m.evaluations++
	if err != nil {
		m.err = err
		return math.Inf(1)
	}

	if !math.IsNaN(f) && (m.best == nil || f < m.bestF) {
		m.best = pt
		m.bestF = f
	}
	return f
}

func (m *minimization) gradient(grad, x []float64) {
	if m.err != nil || m.exhausted {
		for i := range grad {
			grad[i] = 0
		}
		return
	}
	if err := m.problem.Grad(m.ctx, append([]float64(nil), x...), grad); err != nil {
		m.err = err
		for i := range grad {
			grad[i] = 0
		}
	}
}

func (m *minimization) status() (optimize.Status, error) {
	switch {
	case m.err != nil:
		return optimize.Failure, m.err
	case m.exhausted:
		return optimize.FunctionEvaluationLimit, nil
	}
	return optimize.NotTerminated, nil
}
