package testing

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// MockExecutor is a testify mock of evaluation.Executor.
// Expectations match on the rendered basis, e.g. On("Execute", "X0X1").
type MockExecutor struct {
	mock.Mock
}

// Execute records the call and returns the configured measurement
func (m *MockExecutor) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
	args := m.Called(basis.String())
	return args.Get(0).(evaluation.Measurement), args.Error(1)
}

// CountingExecutor wraps an executor and counts calls per parameter key and basis
type CountingExecutor struct {
	inner evaluation.Executor

	mu      sync.Mutex
	total   int
	byPoint map[string]int
	bases   []string
}

// NewCountingExecutor wraps inner
func NewCountingExecutor(inner evaluation.Executor) *CountingExecutor {
	return &CountingExecutor{
		inner:   inner,
		byPoint: make(map[string]int),
	}
}

// Execute counts the call and delegates
func (c *CountingExecutor) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
	c.mu.Lock()
	c.total++
	c.byPoint[params.Key()]++
	c.bases = append(c.bases, basis.String())
	c.mu.Unlock()

	return c.inner.Execute(ctx, k, params, basis)
}

// Calls returns the total number of calls
func (c *CountingExecutor) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// CallsAt returns the number of calls made for params
func (c *CountingExecutor) CallsAt(params parameters.Vector) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byPoint[params.Key()]
}

// DistinctPoints returns how many distinct parameter vectors were executed
func (c *CountingExecutor) DistinctPoints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byPoint)
}

// Bases returns the measured bases in call order
func (c *CountingExecutor) Bases() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.bases))
	copy(out, c.bases)
	return out
}

// FailingExecutor delegates until After calls have succeeded, then returns Err forever
type FailingExecutor struct {
	Inner evaluation.Executor
	After int
	Err   error

	mu    sync.Mutex
	calls int
}

// Execute fails once the budget of successful calls is spent
func (f *FailingExecutor) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls > f.After
	f.mu.Unlock()

	if fail {
		return evaluation.Measurement{}, f.Err
	}
	return f.Inner.Execute(ctx, k, params, basis)
}

// GatedExecutor blocks every call until a token is available on Gate, which lets
// tests hold a run at a known point. Entered receives one value per call.
type GatedExecutor struct {
	Inner   evaluation.Executor
	Gate    chan struct{}
	Entered chan struct{}
}

// NewGatedExecutor wraps inner with unbuffered gate and a buffered entered signal
func NewGatedExecutor(inner evaluation.Executor) *GatedExecutor {
	return &GatedExecutor{
		Inner:   inner,
		Gate:    make(chan struct{}),
		Entered: make(chan struct{}, 1024),
	}
}

// Execute waits for the gate, then delegates. The call completes even if ctx is
// cancelled while waiting, the way an in-flight backend call would.
func (g *GatedExecutor) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
	g.Entered <- struct{}{}
	<-g.Gate
	return g.Inner.Execute(ctx, k, params, basis)
}
