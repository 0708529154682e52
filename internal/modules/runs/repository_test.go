package runs

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/optimization"
	testutil "github.com/aristath/hybrid/internal/testing"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "runs")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func newRun(id string, startedAt time.Time) *Run {
	return &Run{
		ID:            id,
		Problem:       "deuteron",
		Kernel:        "ansatz",
		Optimizer:     "nelder-mead",
		Options:       optimization.Options{optimization.KeyMaxEvaluations: 20},
		InitialParams: []float64{0.5},
		State:         StateRunning,
		StartedAt:     startedAt.Truncate(time.Millisecond),
	}
}

func finish(run *Run, state State, energy float64) *Run {
	run.State = state
	run.Status = string(optimization.StatusConverged)
	run.Energy = &energy
	run.Params = []float64{0.59}
	run.Evaluations = 2
	run.ExecutorCalls = 8
	now := run.StartedAt.Add(time.Second)
	run.FinishedAt = &now
	return run
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := setupRepository(t)
	started := time.Now()

	require.NoError(t, repo.Create(newRun("r1", started)))

	run, err := repo.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "deuteron", run.Problem)
	assert.Equal(t, StateRunning, run.State)
	assert.Equal(t, []float64{0.5}, run.InitialParams)
	assert.Equal(t, started.Truncate(time.Millisecond).UnixMilli(), run.StartedAt.UnixMilli())
	assert.Nil(t, run.Energy)
	assert.Nil(t, run.Params)
	assert.Nil(t, run.FinishedAt)
	assert.Empty(t, run.Status)

	// Options go through JSON, so numbers come back as float64
	n, err := run.Options.Int(optimization.KeyMaxEvaluations, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, repo.Create(newRun("r1", started)), "duplicate id")
}

func TestRepository_CreateWithoutOptions(t *testing.T) {
	repo := setupRepository(t)
	run := newRun("bare", time.Now())
	run.Options = nil

	require.NoError(t, repo.Create(run))
	got, err := repo.Get("bare")
	require.NoError(t, err)
	assert.Empty(t, got.Options)
}

func TestRepository_FinishStoresSummaryAndHistory(t *testing.T) {
	repo := setupRepository(t)
	run := newRun("r1", time.Now())
	require.NoError(t, repo.Create(run))

	at := time.UnixMilli(time.Now().UnixMilli())
	history := []Evaluation{
		{Sequence: 0, Params: []float64{0.5}, Energy: -1.5, EvaluatedAt: at, TermValues: []TermValue{
			{Index: 0, Basis: "I", Coefficient: 5.907, Expectation: 1},
			{Index: 1, Basis: "X0X1", Coefficient: -2.1433, Expectation: -0.4},
		}},
		{Sequence: 1, Params: []float64{0.59}, Energy: -1.74, EvaluatedAt: at},
	}
	require.NoError(t, repo.Finish(finish(run, StateCompleted, -1.74), history))

	got, err := repo.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, "converged", got.Status)
	require.NotNil(t, got.Energy)
	assert.Equal(t, -1.74, *got.Energy)
	assert.Equal(t, []float64{0.59}, got.Params)
	assert.Equal(t, 2, got.Evaluations)
	assert.Equal(t, int64(8), got.ExecutorCalls)
	require.NotNil(t, got.FinishedAt)

	stored, err := repo.Evaluations("r1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, history[0].TermValues, stored[0].TermValues)
	assert.Equal(t, []float64{0.59}, stored[1].Params)
	assert.Empty(t, stored[1].TermValues)
	assert.Equal(t, at, stored[0].EvaluatedAt)

	// Finishing twice keeps the stored history intact
	require.NoError(t, repo.Finish(run, history))
	stored, err = repo.Evaluations("r1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRepository_FinishUnknownRun(t *testing.T) {
	repo := setupRepository(t)
	err := repo.Finish(finish(newRun("ghost", time.Now()), StateFailed, 0), nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_ListFilters(t *testing.T) {
	repo := setupRepository(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(newRun(id, base.Add(time.Duration(i)*time.Minute))))
	}
	b := newRun("b", base.Add(time.Minute))
	require.NoError(t, repo.Finish(finish(b, StateFailed, 0), nil))
	other := newRun("d", base.Add(10*time.Minute))
	other.Problem = "deuteron-vector"
	require.NoError(t, repo.Create(other))

	ids := func(runs []Run) []string {
		out := make([]string, len(runs))
		for i, r := range runs {
			out[i] = r.ID
		}
		return out
	}

	all, err := repo.List(ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

	running, err := repo.List(ListFilter{States: []State{StateRunning}, Problem: "deuteron"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(running))

	finished, err := repo.List(ListFilter{States: []State{StateCompleted, StateFailed}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(finished))

	limited, err := repo.List(ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, ids(limited))
}

func TestRepository_DeleteCascades(t *testing.T) {
	repo := setupRepository(t)
	run := newRun("r1", time.Now())
	require.NoError(t, repo.Create(run))
	require.NoError(t, repo.Finish(finish(run, StateCompleted, -1), []Evaluation{
		{Sequence: 0, Params: []float64{0}, Energy: -1, EvaluatedAt: time.Now()},
	}))

	require.NoError(t, repo.Delete("r1"))

	_, err := repo.Get("r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	stored, err := repo.Evaluations("r1")
	require.NoError(t, err)
	assert.Empty(t, stored)

	assert.ErrorIs(t, repo.Delete("r1"), domain.ErrNotFound)
}

func TestRepository_PruneKeepsRunningRuns(t *testing.T) {
	repo := setupRepository(t)
	old := time.Now().AddDate(0, 0, -40)

	oldDone := newRun("old-done", old)
	require.NoError(t, repo.Create(oldDone))
	require.NoError(t, repo.Finish(finish(oldDone, StateCompleted, -1), nil))
	require.NoError(t, repo.Create(newRun("old-running", old)))
	recent := newRun("recent-done", time.Now())
	require.NoError(t, repo.Create(recent))
	require.NoError(t, repo.Finish(finish(recent, StateCancelled, 0), nil))

	n, err := repo.PruneFinishedBefore(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Get("old-done")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.Get("old-running")
	assert.NoError(t, err)
	_, err = repo.Get("recent-done")
	assert.NoError(t, err)
}

func TestRepository_MarkInterrupted(t *testing.T) {
	repo := setupRepository(t)
	require.NoError(t, repo.Create(newRun("stale", time.Now())))

	n, err := repo.MarkInterrupted(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	run, err := repo.Get("stale")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, run.State)
	assert.Contains(t, run.Error, "interrupted")
	assert.NotNil(t, run.FinishedAt)

	n, err = repo.MarkInterrupted(time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
