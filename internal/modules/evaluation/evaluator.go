package evaluation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// Config holds evaluator settings.
type Config struct {
	Gradient GradientStrategy
	Step     float64 // Finite-difference step; DefaultStep when zero
}

// RecordHook is called after every newly inserted record, on the evaluating goroutine.
type RecordHook func(rec Record)

// Evaluator computes energies for one kernel/observable pair.
// It is driven by a single goroutine at a time; the cache it writes may be read
// concurrently.
type Evaluator struct {
	binding    *kernel.Binding
	observable *observable.Observable
	executor   Executor
	cache      *Cache
	gradient   GradientStrategy
	step       float64
	hook       RecordHook
	calls      atomic.Int64
	log        zerolog.Logger
}

// NewEvaluator creates an evaluator writing into cache.
func NewEvaluator(
	binding *kernel.Binding,
	obs *observable.Observable,
	executor Executor,
	cache *Cache,
	cfg Config,
	log zerolog.Logger,
) (*Evaluator, error) {
	if binding == nil {
		return nil, domain.NewConfigurationError("kernel", "no kernel bound")
	}
	if obs == nil {
		return nil, domain.NewConfigurationError("observable", "no observable given")
	}
	if executor == nil && !obs.IsZero() {
		return nil, domain.NewConfigurationError("executor", "observable %s needs an executor", obs)
	}
	if cache == nil {
		cache = NewCache()
	}

	strategy, err := ParseGradientStrategy(string(cfg.Gradient))
	if err != nil {
		return nil, err
	}
	step := cfg.Step
	if step == 0 {
		step = DefaultStep
	}
	if step < 0 {
		return nil, domain.NewConfigurationError("step", "must be positive, got %g", step)
	}

	return &Evaluator{
		binding:    binding,
		observable: obs,
		executor:   executor,
		cache:      cache,
		gradient:   strategy,
		step:       step,
		log:        log.With().Str("component", "evaluator").Str("kernel", binding.Name).Logger(),
	}, nil
}

// SetRecordHook installs a callback for new records. Pass nil to remove it.
func (e *Evaluator) SetRecordHook(hook RecordHook) {
	e.hook = hook
}

// Cache returns the cache the evaluator writes to.
func (e *Evaluator) Cache() *Cache {
	return e.cache
}

// GradientStrategy returns the configured gradient strategy.
func (e *Evaluator) GradientStrategy() GradientStrategy {
	return e.gradient
}

// ExecutorCalls returns the number of executor invocations made so far.
func (e *Evaluator) ExecutorCalls() int64 {
	return e.calls.Load()
}

// Evaluate returns the energy record for params, measuring it only if this exact
// vector has never been evaluated. The new record is stored before it is returned.
//
// The context is checked before every executor call; an executor call already in
// progress is allowed to finish.
func (e *Evaluator) Evaluate(ctx context.Context, params parameters.Vector) (Record, error) {
	if err := params.CheckArity(e.binding.Arity); err != nil {
		return Record{}, err
	}

	if rec, ok := e.cache.Lookup(params); ok {
		e.log.Trace().Str("params", params.String()).Msg("Cache hit")
		return rec, nil
	}

	terms := e.observable.Terms()
	values := make([]TermValue, 0, len(terms))
	energy := 0.0

	for i, term := range terms {
		if term.IsIdentity() {
			energy += term.Coefficient
			values = append(values, TermValue{Index: i, Term: term, Expectation: 1})
			continue
		}

		if err := ctx.Err(); err != nil {
			return Record{}, fmt.Errorf("evaluation of %s interrupted: %w", params, err)
		}

		m, err := e.executor.Execute(ctx, e.binding, params.Clone(), term.Basis)
		e.calls.Add(1)
		if err != nil {
			return Record{}, &domain.ExecutorFailure{Term: term.Basis.String(), Err: err}
		}

		expectation, err := m.Reduce(term.Basis)
		if err != nil {
			return Record{}, &domain.ExecutorFailure{Term: term.Basis.String(), Err: err}
		}

		energy += term.Coefficient * expectation
		values = append(values, TermValue{Index: i, Term: term, Expectation: expectation})
	}

	rec, err := e.cache.Insert(Record{
		Params:      params.Clone(),
		Energy:      energy,
		TermValues:  values,
		EvaluatedAt: time.Now(),
	})
	if err != nil {
		return Record{}, err
	}

	e.log.Debug().
		Int("sequence", rec.Sequence).
		Str("params", rec.Params.String()).
		Float64("energy", rec.Energy).
		Msg("Evaluated parameters")

	if e.hook != nil {
		e.hook(rec)
	}

	return rec, nil
}

// Energy is Evaluate reduced to the scalar energy.
func (e *Evaluator) Energy(ctx context.Context, params parameters.Vector) (float64, error) {
	rec, err := e.Evaluate(ctx, params)
	if err != nil {
		return 0, err
	}
	return rec.Energy, nil
}
