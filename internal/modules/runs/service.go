package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/events"
	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/parameters"
	"github.com/aristath/hybrid/internal/modules/vqe"
)

const eventModule = "runs"

// activeRun is an in-flight run and its driver.
type activeRun struct {
	run       Run
	driver    *vqe.Driver
	handle    *vqe.Handle
	persisted chan struct{} // Closed once the final state is stored
}

// Service starts, tracks and persists optimization runs.
type Service struct {
	repo     *Repository
	executor evaluation.Executor
	defaults optimization.Options
	events   *events.Manager
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	active map[string]*activeRun
}

// NewService creates a run service. Every run uses executor as its backend and
// defaults as the base of its optimizer options.
func NewService(
	repo *Repository,
	executor evaluation.Executor,
	defaults optimization.Options,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:     repo,
		executor: executor,
		defaults: defaults.Clone(),
		events:   eventManager,
		log:      log.With().Str("service", "runs").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]*activeRun),
	}
}

// Events returns the event manager runs publish to, nil if none.
func (s *Service) Events() *events.Manager {
	return s.events
}

// Start validates req, stores the run and starts it in the background.
func (s *Service) Start(req StartRequest) (*Run, error) {
	problem, err := deuteron.Lookup(req.Problem)
	if err != nil {
		return nil, domain.NewConfigurationError("problem", "unknown problem %q (known: %v)", req.Problem, deuteron.ProblemNames())
	}

	opts := s.defaults.Merge(problem.Options).Merge(req.Options)

	initial := problem.Initial
	if len(req.InitialParams) > 0 {
		initial = parameters.Of(req.InitialParams...)
	}
	if err := initial.CheckArity(problem.Kernel.Arity); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	driver, err := vqe.New(problem.Kernel, problem.Observable, s.executor,
		vqe.WithOptions(opts),
		vqe.WithID(id),
		vqe.WithLogger(s.log),
		vqe.WithEvents(s.events),
	)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:            id,
		Problem:       problem.Name,
		Kernel:        problem.Kernel.Name,
		Optimizer:     driver.Optimizer().Name(),
		Options:       opts,
		InitialParams: initial.Floats(),
		State:         StateRunning,
		StartedAt:     time.Now(),
	}
	if err := s.repo.Create(&run); err != nil {
		return nil, err
	}

	ar := &activeRun{
		run:       run,
		driver:    driver,
		persisted: make(chan struct{}),
	}

	s.mu.Lock()
	s.active[id] = ar
	ar.handle = driver.ExecuteAsync(s.ctx, initial)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.await(ar)

	s.log.Info().
		Str("run_id", id).
		Str("problem", problem.Name).
		Str("optimizer", run.Optimizer).
		Str("options", opts.Describe()).
		Msg("Run started")

	return s.snapshot(ar), nil
}

// await stores the outcome of a run once its driver finishes.
func (s *Service) await(ar *activeRun) {
	defer s.wg.Done()

	res, runErr := ar.handle.Get()

	run := ar.run
	now := time.Now()
	run.FinishedAt = &now

	history := ar.driver.History()
	evaluations := make([]Evaluation, len(history))
	for i, rec := range history {
		evaluations[i] = FromRecord(rec)
	}
	run.Evaluations = len(evaluations)

	switch {
	case runErr == nil:
		run.State = StateCompleted
		run.Status = string(res.Status)
		energy := res.Energy
		run.Energy = &energy
		run.Params = res.Params.Floats()
		run.ExecutorCalls = res.ExecutorCalls
	case errors.Is(runErr, context.Canceled):
		run.State = StateCancelled
		run.Error = runErr.Error()
	default:
		run.State = StateFailed
		run.Error = runErr.Error()
	}

	if err := s.repo.Finish(&run, evaluations); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist run")
		if s.events != nil {
			s.events.EmitError(eventModule, err, map[string]interface{}{"run_id": run.ID})
		}
	}

	s.mu.Lock()
	delete(s.active, run.ID)
	s.mu.Unlock()
	close(ar.persisted)
}

func (s *Service) snapshot(ar *activeRun) *Run {
	run := ar.run
	run.Evaluations = len(ar.driver.UniqueParameters())
	return &run
}

func (s *Service) lookupActive(id string) (*activeRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ar, ok := s.active[id]
	return ar, ok
}

// Get returns a run, live if it is still in flight.
func (s *Service) Get(id string) (*Run, error) {
	if ar, ok := s.lookupActive(id); ok {
		return s.snapshot(ar), nil
	}
	return s.repo.Get(id)
}

// List returns stored runs matching filter, with live counts for in-flight runs.
func (s *Service) List(filter ListFilter) ([]Run, error) {
	runs, err := s.repo.List(filter)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if ar, ok := s.lookupActive(runs[i].ID); ok {
			runs[i].Evaluations = len(ar.driver.UniqueParameters())
		}
	}
	return runs, nil
}

// History returns the evaluation history of a run in first-seen order.
func (s *Service) History(id string) ([]Evaluation, error) {
	return s.HistorySince(id, 0)
}

// HistorySince returns the evaluations of a run with Sequence >= seq.
func (s *Service) HistorySince(id string, seq int) ([]Evaluation, error) {
	if ar, ok := s.lookupActive(id); ok {
		records := ar.driver.HistorySince(seq)
		out := make([]Evaluation, len(records))
		for i, rec := range records {
			out[i] = FromRecord(rec)
		}
		return out, nil
	}

	if _, err := s.repo.Get(id); err != nil {
		return nil, err
	}
	all, err := s.repo.Evaluations(id)
	if err != nil {
		return nil, err
	}
	out := make([]Evaluation, 0, len(all))
	for _, ev := range all {
		if ev.Sequence >= seq {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Finished returns a channel closed once the run is stored in a terminal
// state. The channel is already closed for runs that are not in flight.
func (s *Service) Finished(id string) <-chan struct{} {
	if ar, ok := s.lookupActive(id); ok {
		return ar.persisted
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Cancel stops an in-flight run and waits until its final state is stored.
func (s *Service) Cancel(ctx context.Context, id string) error {
	ar, ok := s.lookupActive(id)
	if !ok {
		if _, err := s.repo.Get(id); err != nil {
			return err
		}
		return nil
	}

	ar.handle.Cancel()
	select {
	case <-ar.persisted:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for run %s to stop: %w", id, ctx.Err())
	}
}

// Delete cancels the run if it is in flight and removes it with its history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Cancel(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.log.Info().Str("run_id", id).Msg("Run deleted")
	return nil
}

// ActiveCount returns the number of in-flight runs.
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Prune deletes finished runs older than retentionDays. Zero disables pruning.
func (s *Service) Prune(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n, err := s.repo.PruneFinishedBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Int("retention_days", retentionDays).Msg("Pruned old runs")
	}
	if s.events != nil {
		s.events.EmitTyped(eventModule, &events.RunsPrunedData{Deleted: n, RetentionDays: retentionDays})
	}
	return n, nil
}

// Recover marks runs left running by a previous process as failed.
func (s *Service) Recover() error {
	_, err := s.repo.MarkInterrupted(time.Now())
	return err
}

// Shutdown cancels every in-flight run and waits for them to be stored.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runs still in flight at shutdown: %w", ctx.Err())
	}
}
