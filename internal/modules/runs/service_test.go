package runs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/events"
	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/parameters"
	testutil "github.com/aristath/hybrid/internal/testing"
)

// holdUntilCancelled answers every call only once the run context is done,
// so a run stays in flight until it is cancelled.
type holdUntilCancelled struct {
	entered chan struct{}
}

func newHoldUntilCancelled() *holdUntilCancelled {
	return &holdUntilCancelled{entered: make(chan struct{}, 64)}
}

func (h *holdUntilCancelled) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
	h.entered <- struct{}{}
	<-ctx.Done()
	return testutil.DeuteronExecutor().Execute(context.Background(), k, params, basis)
}

type recordedEvents struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordedEvents) add(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
}

func (r *recordedEvents) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.types {
		if got == t {
			n++
		}
	}
	return n
}

func setupService(t *testing.T, executor evaluation.Executor) (*Service, *recordedEvents) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	bus := events.NewBus(log)
	recorded := &recordedEvents{}
	bus.Subscribe(recorded.add)

	svc := NewService(setupRepository(t), executor, optimization.Options{
		optimization.KeyMaxEvaluations: 200,
	}, events.NewManager(bus, log), log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, recorded
}

func waitFinished(t *testing.T, svc *Service, id string) {
	t.Helper()
	select {
	case <-svc.Finished(id):
	case <-time.After(10 * time.Second):
		t.Fatalf("run %s did not finish", id)
	}
}

func TestService_StartRunsToCompletion(t *testing.T) {
	svc, recorded := setupService(t, testutil.DeuteronExecutor())

	run, err := svc.Start(StartRequest{Problem: deuteron.ProblemScalar})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, run.State)
	assert.Equal(t, "nelder-mead", run.Optimizer)
	assert.Equal(t, []float64{0}, run.InitialParams)

	waitFinished(t, svc, run.ID)
	assert.Zero(t, svc.ActiveCount())

	got, err := svc.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	require.NotNil(t, got.Energy)
	assert.InDelta(t, deuteron.GroundStateEnergy, *got.Energy, 0.1)
	assert.Equal(t, int64(4*got.Evaluations), got.ExecutorCalls)

	history, err := svc.History(run.ID)
	require.NoError(t, err)
	assert.Len(t, history, got.Evaluations)
	for i, ev := range history {
		assert.Equal(t, i, ev.Sequence)
		assert.Len(t, ev.TermValues, 5)
	}

	tail, err := svc.HistorySince(run.ID, 2)
	require.NoError(t, err)
	assert.Len(t, tail, got.Evaluations-2)

	assert.Equal(t, 1, recorded.count(events.RunStarted))
	assert.Equal(t, 1, recorded.count(events.RunCompleted))
	assert.Equal(t, got.Evaluations, recorded.count(events.EvaluationCompleted))
}

func TestService_ProblemOptionsAndOverrides(t *testing.T) {
	svc, _ := setupService(t, testutil.DeuteronExecutor())

	run, err := svc.Start(StartRequest{Problem: deuteron.ProblemMixed})
	require.NoError(t, err)
	assert.Equal(t, "l-bfgs", run.Optimizer)
	assert.Equal(t, []float64{0.55}, run.InitialParams)
	waitFinished(t, svc, run.ID)

	run, err = svc.Start(StartRequest{
		Problem:       deuteron.ProblemMixed,
		InitialParams: []float64{0.3},
		Options:       optimization.Options{optimization.KeyAlgorithm: "bfgs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bfgs", run.Optimizer)
	assert.Equal(t, []float64{0.3}, run.InitialParams)
	waitFinished(t, svc, run.ID)

	got, err := svc.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
}

func TestService_StartValidation(t *testing.T) {
	svc, _ := setupService(t, testutil.DeuteronExecutor())

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"unknown problem", StartRequest{Problem: "helium"}},
		{"arity mismatch", StartRequest{Problem: deuteron.ProblemScalar, InitialParams: []float64{0, 1}}},
		{"unknown optimizer", StartRequest{Problem: deuteron.ProblemScalar, Options: optimization.Options{optimization.KeyAlgorithm: "annealing"}}},
		{"bad budget", StartRequest{Problem: deuteron.ProblemScalar, Options: optimization.Options{optimization.KeyMaxEvaluations: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(tt.req)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}

	runs, err := svc.List(ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_CancelInFlightRun(t *testing.T) {
	hold := newHoldUntilCancelled()
	svc, recorded := setupService(t, hold)

	run, err := svc.Start(StartRequest{Problem: deuteron.ProblemScalar})
	require.NoError(t, err)
	<-hold.entered

	live, err := svc.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, live.State)
	assert.Equal(t, 1, svc.ActiveCount())

	listed, err := svc.List(ListFilter{States: []State{StateRunning}})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, svc.Cancel(context.Background(), run.ID))

	got, err := svc.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
	assert.Zero(t, got.Evaluations)
	assert.Contains(t, got.Error, "context canceled")
	assert.Equal(t, 1, recorded.count(events.RunCancelled))

	// Cancelling a finished run is a no-op; an unknown one is not found
	assert.NoError(t, svc.Cancel(context.Background(), run.ID))
	assert.ErrorIs(t, svc.Cancel(context.Background(), "missing"), domain.ErrNotFound)
}

func TestService_DeleteInFlightRun(t *testing.T) {
	hold := newHoldUntilCancelled()
	svc, _ := setupService(t, hold)

	run, err := svc.Start(StartRequest{Problem: deuteron.ProblemVector})
	require.NoError(t, err)
	<-hold.entered

	require.NoError(t, svc.Delete(context.Background(), run.ID))

	_, err = svc.Get(run.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.History(run.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), run.ID), domain.ErrNotFound)
}

func TestService_ShutdownCancelsRuns(t *testing.T) {
	hold := newHoldUntilCancelled()
	svc, _ := setupService(t, hold)

	run, err := svc.Start(StartRequest{Problem: deuteron.ProblemScalar})
	require.NoError(t, err)
	<-hold.entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	got, err := svc.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
}

func TestService_PruneAndRecover(t *testing.T) {
	svc, recorded := setupService(t, testutil.DeuteronExecutor())

	old := newRun("old", time.Now().AddDate(0, 0, -60))
	require.NoError(t, svc.repo.Create(old))
	require.NoError(t, svc.repo.Finish(finish(old, StateCompleted, -1), nil))
	require.NoError(t, svc.repo.Create(newRun("stale", time.Now())))

	n, err := svc.Prune(0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.Prune(30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, recorded.count(events.RunsPruned))

	require.NoError(t, svc.Recover())
	stale, err := svc.Get("stale")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, stale.State)
}
