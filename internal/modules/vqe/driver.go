// Package vqe drives hybrid variational runs.
//
// A Driver owns one kernel binding, one observable and one evaluation cache. Each
// run hands an optimizer an objective backed by the cache, so parameter vectors
// seen in earlier runs of the same driver are never measured twice.
package vqe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/events"
	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/parameters"
	"github.com/aristath/hybrid/internal/utils"
)

const eventModule = "vqe"

// State is the lifecycle state of a driver.
type State string

const (
	StateConfigured State = "configured"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Result summarizes one finished run.
type Result struct {
	RunID          string
	Energy         float64
	Params         parameters.Vector
	Status         optimization.Status
	Reason         string
	Evaluations    int // New distinct parameter vectors measured by this run
	ObjectiveCalls int // Objective calls made by the optimizer, repeats included
	ExecutorCalls  int64
	CacheHits      uint64
	Iterations     int
	Duration       time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithOptions sets the optimizer options. They select the default optimizer,
// the gradient strategy and the finite-difference step.
func WithOptions(opts optimization.Options) Option {
	return func(d *Driver) {
		d.options = d.options.Merge(opts)
	}
}

// WithOptimizer sets the optimizer used by Execute and ExecuteAsync.
func WithOptimizer(opt optimization.Optimizer) Option {
	return func(d *Driver) {
		d.optimizer = opt
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

// WithEvents publishes run and evaluation events to m.
func WithEvents(m *events.Manager) Option {
	return func(d *Driver) {
		d.events = m
	}
}

// WithID fixes the run ID of the first run. Later runs get "/2", "/3" appended.
func WithID(id string) Option {
	return func(d *Driver) {
		d.id = id
	}
}

// Driver runs an optimizer against the energy of one kernel/observable pair.
// Accessors are safe to call from any goroutine, including while a run is active.
type Driver struct {
	id         string
	binding    *kernel.Binding
	observable *observable.Observable
	executor   evaluation.Executor
	options    optimization.Options
	optimizer  optimization.Optimizer
	cache      *evaluation.Cache
	events     *events.Manager
	log        zerolog.Logger

	mu      sync.Mutex
	state   State
	runs    int
	runID   string
	last    *Result
	lastErr error
}

// New creates a driver in the Configured state. The optimizer is resolved from
// the options unless one is given with WithOptimizer; an unknown algorithm or a
// malformed option fails here rather than at execution.
func New(binding *kernel.Binding, obs *observable.Observable, executor evaluation.Executor, opts ...Option) (*Driver, error) {
	d := &Driver{
		binding:    binding,
		observable: obs,
		executor:   executor,
		options:    optimization.Options{},
		cache:      evaluation.NewCache(),
		log:        zerolog.Nop(),
		state:      StateConfigured,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.optimizer == nil {
		o, err := optimization.FromOptions(d.options)
		if err != nil {
			return nil, err
		}
		d.optimizer = o
	}

	// Surfaces nil kernel/observable/executor and bad gradient settings now.
	if _, err := d.newEvaluator(d.optimizer); err != nil {
		return nil, err
	}

	logger := d.log.With().Str("component", "vqe_driver")
	if binding != nil {
		logger = logger.Str("kernel", binding.Name)
	}
	d.log = logger.Logger()

	return d, nil
}

// newEvaluator builds a per-run evaluator over the shared cache.
func (d *Driver) newEvaluator(opt optimization.Optimizer) (*evaluation.Evaluator, error) {
	strategy, err := d.gradientStrategy(opt)
	if err != nil {
		return nil, err
	}
	step, err := d.options.PositiveFloat(optimization.KeyStep, evaluation.DefaultStep)
	if err != nil {
		return nil, err
	}
	return evaluation.NewEvaluator(d.binding, d.observable, d.executor, d.cache, evaluation.Config{
		Gradient: strategy,
		Step:     step,
	}, d.log)
}

// gradientStrategy resolves the strategy for opt. Gradient-based optimizers
// default to central differences and reject an explicit "none".
func (d *Driver) gradientStrategy(opt optimization.Optimizer) (evaluation.GradientStrategy, error) {
	name, err := d.options.String(optimization.KeyGradientStrategy, "")
	if err != nil {
		return "", err
	}
	strategy, err := evaluation.ParseGradientStrategy(name)
	if err != nil {
		return "", err
	}
	if opt == nil || !opt.RequiresGradient() {
		return strategy, nil
	}
	if name == "" {
		return evaluation.GradientCentral, nil
	}
	if !strategy.Enabled() {
		return "", domain.NewConfigurationError(optimization.KeyGradientStrategy,
			"optimizer %s needs a gradient, got strategy %q", opt.Name(), name)
	}
	return strategy, nil
}

// ID returns the ID of the current or most recent run, or the configured ID
// before the first run.
func (d *Driver) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runID != "" {
		return d.runID
	}
	return d.id
}

// Binding returns the kernel binding.
func (d *Driver) Binding() *kernel.Binding {
	return d.binding
}

// Observable returns the observable.
func (d *Driver) Observable() *observable.Observable {
	return d.observable
}

// Optimizer returns the default optimizer.
func (d *Driver) Optimizer() optimization.Optimizer {
	return d.optimizer
}

// State returns the lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastResult returns the outcome of the most recent finished run. Both values
// are nil before any run has finished.
func (d *Driver) LastResult() (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.lastErr
}

// UniqueParameters returns every distinct parameter vector evaluated, first-seen first.
func (d *Driver) UniqueParameters() []parameters.Vector {
	return d.cache.UniqueParameters()
}

// UniqueEnergies returns every (energy, params) pair evaluated, first-seen first.
func (d *Driver) UniqueEnergies() []evaluation.EnergyParams {
	return d.cache.UniqueEnergies()
}

// History returns every evaluation record in insertion order.
func (d *Driver) History() []evaluation.Record {
	return d.cache.Records()
}

// HistorySince returns the records with Sequence >= seq.
func (d *Driver) HistorySince(seq int) []evaluation.Record {
	return d.cache.Since(seq)
}

// CacheStats returns the cache hit/miss counters across all runs.
func (d *Driver) CacheStats() evaluation.CacheStats {
	return d.cache.Stats()
}

// Execute runs the default optimizer from initial and blocks until it finishes.
func (d *Driver) Execute(ctx context.Context, initial parameters.Vector) (*Result, error) {
	return d.ExecuteWith(ctx, d.optimizer, initial)
}

// ExecuteWith runs opt instead of the default optimizer.
func (d *Driver) ExecuteWith(ctx context.Context, opt optimization.Optimizer, initial parameters.Vector) (*Result, error) {
	r, err := d.begin(opt, initial)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, r)
}

// ExecuteAsync starts the default optimizer on its own goroutine. The driver is
// Running when ExecuteAsync returns unless the run could not start, in which case
// the handle is already done and Get returns the error.
func (d *Driver) ExecuteAsync(ctx context.Context, initial parameters.Vector) *Handle {
	return d.ExecuteAsyncWith(ctx, d.optimizer, initial)
}

// ExecuteAsyncWith is ExecuteAsync with opt instead of the default optimizer.
func (d *Driver) ExecuteAsyncWith(ctx context.Context, opt optimization.Optimizer, initial parameters.Vector) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)

	r, err := d.begin(opt, initial)
	if err != nil {
		h.complete(nil, err)
		return h
	}

	go func() {
		h.complete(d.run(ctx, r))
	}()
	return h
}

// pendingRun is a run that has passed begin.
type pendingRun struct {
	id        string
	optimizer optimization.Optimizer
	evaluator *evaluation.Evaluator
	initial   parameters.Vector
}

// begin validates the request and moves the driver to Running.
// Nothing changes when it fails.
func (d *Driver) begin(opt optimization.Optimizer, initial parameters.Vector) (*pendingRun, error) {
	if opt == nil {
		return nil, domain.NewConfigurationError(optimization.KeyAlgorithm, "no optimizer given")
	}
	if err := initial.CheckArity(d.binding.Arity); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", d.binding.Name, err)
	}
	ev, err := d.newEvaluator(opt)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateRunning {
		return nil, fmt.Errorf("driver %s: %w", d.runID, domain.ErrRunInProgress)
	}

	d.runs++
	id := d.id
	switch {
	case id == "":
		id = uuid.New().String()
	case d.runs > 1:
		id = fmt.Sprintf("%s/%d", d.id, d.runs)
	}
	d.runID = id
	d.state = StateRunning

	return &pendingRun{
		id:        id,
		optimizer: opt,
		evaluator: ev,
		initial:   initial.Clone(),
	}, nil
}

func (d *Driver) run(ctx context.Context, r *pendingRun) (*Result, error) {
	log := d.log.With().Str("run_id", r.id).Str("optimizer", r.optimizer.Name()).Logger()
	timer := utils.NewTimer("vqe_run", log)

	before := d.cache.Stats()

	r.evaluator.SetRecordHook(func(rec evaluation.Record) {
		if d.events == nil {
			return
		}
		d.events.EmitTyped(eventModule, &events.EvaluationCompletedData{
			RunID:    r.id,
			Sequence: rec.Sequence,
			Params:   rec.Params.Floats(),
			Energy:   rec.Energy,
		})
	})

	log.Info().
		Str("initial", r.initial.String()).
		Str("observable", d.observable.String()).
		Str("gradient", string(r.evaluator.GradientStrategy())).
		Msg("Starting run")
	d.emit(&events.RunStartedData{
		RunID:     r.id,
		Kernel:    d.binding.Name,
		Optimizer: r.optimizer.Name(),
		Initial:   r.initial.Floats(),
		Terms:     d.observable.TermCount(),
	})

	var (
		res *Result
		err error
	)
	if d.observable.MeasuredTermCount() == 0 {
		res, err = d.constant(ctx, r)
	} else {
		res, err = d.minimize(ctx, r, log)
	}

	after := d.cache.Stats()
	duration := timer.Stop()
	evaluations := after.Entries - before.Entries

	if err != nil {
		d.finish(nil, err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Int("evaluations", evaluations).Msg("Run cancelled")
			d.emit(&events.RunCancelledData{RunID: r.id, Evaluations: evaluations})
		} else {
			log.Error().Err(err).Int("evaluations", evaluations).Msg("Run failed")
			d.emit(&events.RunFailedData{RunID: r.id, Error: err.Error(), Evaluations: evaluations})
		}
		return nil, fmt.Errorf("run %s failed: %w", r.id, err)
	}

	res.RunID = r.id
	res.Evaluations = evaluations
	res.ExecutorCalls = r.evaluator.ExecutorCalls()
	res.CacheHits = after.Hits - before.Hits
	res.Duration = duration

	d.finish(res, nil)

	log.Info().
		Float64("energy", res.Energy).
		Str("params", res.Params.String()).
		Str("status", string(res.Status)).
		Int("evaluations", res.Evaluations).
		Int64("executor_calls", res.ExecutorCalls).
		Dur("duration", duration).
		Msg("Run completed")
	d.emit(&events.RunCompletedData{
		RunID:         r.id,
		Energy:        res.Energy,
		Params:        res.Params.Floats(),
		Status:        string(res.Status),
		Evaluations:   res.Evaluations,
		ExecutorCalls: res.ExecutorCalls,
		DurationMs:    duration.Milliseconds(),
	})

	return res, nil
}

// constant handles observables without measured terms: the energy is the
// constant offset everywhere, so one evaluation at the initial point is final.
func (d *Driver) constant(ctx context.Context, r *pendingRun) (*Result, error) {
	rec, err := r.evaluator.Evaluate(ctx, r.initial)
	if err != nil {
		return nil, err
	}
	return &Result{
		Energy:         rec.Energy,
		Params:         rec.Params,
		Status:         optimization.StatusConverged,
		Reason:         "constant observable",
		ObjectiveCalls: 1,
	}, nil
}

func (d *Driver) minimize(ctx context.Context, r *pendingRun, log zerolog.Logger) (*Result, error) {
	ev := r.evaluator

	problem := optimization.Problem{
		Func: func(ctx context.Context, x []float64) (float64, error) {
			return ev.Energy(ctx, parameters.Vector(x))
		},
	}
	if ev.GradientStrategy().Enabled() {
		problem.Grad = func(ctx context.Context, x []float64, grad []float64) error {
			g, err := ev.Gradient(ctx, parameters.Vector(x))
			if err != nil {
				return err
			}
			copy(grad, g)
			log.Trace().Float64("grad_norm", floats.Norm(g, 2)).Msg("Gradient")
			return nil
		}
	}

	out, err := r.optimizer.Minimize(ctx, problem, r.initial.Floats())
	if err != nil {
		return nil, err
	}

	return &Result{
		Energy:         out.Energy,
		Params:         parameters.Of(out.Params...),
		Status:         out.Status,
		Reason:         out.Reason,
		ObjectiveCalls: out.Evaluations,
		Iterations:     out.Iterations,
	}, nil
}

func (d *Driver) finish(res *Result, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = res
	d.lastErr = err
	if err != nil {
		d.state = StateFailed
	} else {
		d.state = StateCompleted
	}
}

func (d *Driver) emit(data events.EventData) {
	if d.events != nil {
		d.events.EmitTyped(eventModule, data)
	}
}
