package quantum

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// Config configures the simulator.
type Config struct {
	Shots int    // 0 returns exact expectation values
	Seed  uint64 // Seed for shot sampling
}

// Simulator executes kernels on a fresh statevector per call.
// It is safe for concurrent use; sampled runs draw from one seeded stream.
type Simulator struct {
	shots int
	mu    sync.Mutex
	rng   *rand.Rand
	calls atomic.Int64
	log   zerolog.Logger
}

// NewSimulator creates a simulator.
func NewSimulator(cfg Config, log zerolog.Logger) (*Simulator, error) {
	if cfg.Shots < 0 {
		return nil, fmt.Errorf("shots must not be negative, got %d", cfg.Shots)
	}
	return &Simulator{
		shots: cfg.Shots,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		log:   log.With().Str("component", "statevector").Logger(),
	}, nil
}

// Shots returns the configured shot count, 0 for exact mode.
func (s *Simulator) Shots() int {
	return s.shots
}

// Calls returns the number of Execute calls served.
func (s *Simulator) Calls() int64 {
	return s.calls.Load()
}

// Prepare runs the kernel on |0...0> and returns the final state. The register is
// wide enough for every qubit the kernel touches and for minQubits.
func (s *Simulator) Prepare(k *kernel.Binding, params parameters.Vector, minQubits int) (*State, error) {
	width := &widthCircuit{}
	if err := k.Emit(width, params); err != nil {
		return nil, err
	}
	n := width.max + 1
	if minQubits > n {
		n = minQubits
	}

	state, err := NewState(n)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	if err := k.Emit(state, params); err != nil {
		return nil, err
	}
	if err := state.Err(); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	return state, nil
}

// Execute implements evaluation.Executor.
func (s *Simulator) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return evaluation.Measurement{}, err
	}
	s.calls.Add(1)

	state, err := s.Prepare(k, params, basis.MaxQubit()+1)
	if err != nil {
		return evaluation.Measurement{}, err
	}

	if s.shots == 0 {
		v, err := state.Expectation(basis)
		if err != nil {
			return evaluation.Measurement{}, err
		}
		s.log.Trace().
			Str("kernel", k.Name).
			Str("basis", basis.String()).
			Float64("expectation", v).
			Msg("Exact expectation")
		return evaluation.ExpectationValue(v), nil
	}

	return evaluation.ShotCounts(s.sample(state, basis)), nil
}

// sample measures the register in the eigenbasis of pauli.
func (s *Simulator) sample(state *State, pauli observable.Basis) map[string]int {
	rotated := state.clone()
	rotated.rotateToZ(pauli)

	probs := rotated.Probabilities()
	// Guard against rounding drift before building the distribution.
	floats.Scale(1/floats.Sum(probs), probs)

	s.mu.Lock()
	dist := distuv.NewCategorical(probs, s.rng)
	outcomes := make([]int, s.shots)
	for i := range outcomes {
		outcomes[i] = int(dist.Rand())
	}
	s.mu.Unlock()

	counts := make(map[string]int)
	for _, idx := range outcomes {
		counts[bitstring(idx, rotated.n)]++
	}
	return counts
}

// bitstring renders a basis index with qubit 0 as the rightmost character.
func bitstring(idx, n int) string {
	b := strconv.FormatInt(int64(idx), 2)
	for len(b) < n {
		b = "0" + b
	}
	return b
}

// widthCircuit records the highest qubit index a program touches.
type widthCircuit struct {
	max int
}

func (w *widthCircuit) touch(qubits ...int) {
	for _, q := range qubits {
		if q > w.max {
			w.max = q
		}
	}
}

func (w *widthCircuit) X(q int) { w.touch(q) }
func (w *widthCircuit) Y(q int) { w.touch(q) }
func (w *widthCircuit) Z(q int) { w.touch(q) }
func (w *widthCircuit) H(q int) { w.touch(q) }
func (w *widthCircuit) S(q int) { w.touch(q) }
func (w *widthCircuit) Sdg(q int) { w.touch(q) }
func (w *widthCircuit) Rx(q int, _ float64) { w.touch(q) }
func (w *widthCircuit) Ry(q int, _ float64) { w.touch(q) }
func (w *widthCircuit) Rz(q int, _ float64) { w.touch(q) }
func (w *widthCircuit) CX(control, target int) { w.touch(control, target) }
func (w *widthCircuit) CZ(control, target int) { w.touch(control, target) }
func (w *widthCircuit) ExpPauli(_ float64, p observable.Basis) { w.touch(p.Qubits()...) }
