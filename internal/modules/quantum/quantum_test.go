package quantum

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

var (
	z0   = observable.Basis{observable.Z(0)}
	x0   = observable.Basis{observable.X(0)}
	y0   = observable.Basis{observable.Y(0)}
	z0z1 = observable.Basis{observable.Z(0), observable.Z(1)}
	x0x1 = observable.Basis{observable.X(0), observable.X(1)}
	y0y1 = observable.Basis{observable.Y(0), observable.Y(1)}
)

func exact(t *testing.T) *Simulator {
	t.Helper()
	sim, err := NewSimulator(Config{}, zerolog.Nop())
	require.NoError(t, err)
	return sim
}

func expectation(t *testing.T, sim *Simulator, k *kernel.Binding, x float64, basis observable.Basis) float64 {
	t.Helper()
	m, err := sim.Execute(context.Background(), k, parameters.Scalar(x), basis)
	require.NoError(t, err)
	v, err := m.Reduce(basis)
	require.NoError(t, err)
	return v
}

func TestGates_SingleQubitExpectations(t *testing.T) {
	sim := exact(t)
	theta := 0.7

	tests := []struct {
		name  string
		gates func(c kernel.Circuit, x float64)
		basis observable.Basis
		want  float64
	}{
		{"ground", func(c kernel.Circuit, x float64) {}, z0, 1},
		{"x flips", func(c kernel.Circuit, x float64) { c.X(0) }, z0, -1},
		{"y flips", func(c kernel.Circuit, x float64) { c.Y(0) }, z0, -1},
		{"z keeps", func(c kernel.Circuit, x float64) { c.Z(0) }, z0, 1},
		{"h makes plus", func(c kernel.Circuit, x float64) { c.H(0) }, x0, 1},
		{"s on plus", func(c kernel.Circuit, x float64) { c.H(0); c.S(0) }, y0, 1},
		{"sdg on plus", func(c kernel.Circuit, x float64) { c.H(0); c.Sdg(0) }, y0, -1},
		{"rx", func(c kernel.Circuit, x float64) { c.Rx(0, x) }, z0, math.Cos(theta)},
		{"rx y component", func(c kernel.Circuit, x float64) { c.Rx(0, x) }, y0, -math.Sin(theta)},
		{"ry", func(c kernel.Circuit, x float64) { c.Ry(0, x) }, x0, math.Sin(theta)},
		{"rz on plus", func(c kernel.Circuit, x float64) { c.H(0); c.Rz(0, x) }, x0, math.Cos(theta)},
		{"exp z is a phase on basis states", func(c kernel.Circuit, x float64) { c.ExpPauli(x, z0) }, z0, 1},
		{"exp x rotates", func(c kernel.Circuit, x float64) { c.ExpPauli(x, x0) }, z0, math.Cos(2 * theta)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := kernel.BindScalar(tt.name, tt.gates)
			assert.InDelta(t, tt.want, expectation(t, sim, k, theta, tt.basis), 1e-12)
		})
	}
}

func TestGates_BellState(t *testing.T) {
	sim := exact(t)
	bell := kernel.BindScalar("bell", func(c kernel.Circuit, _ float64) {
		c.H(0)
		c.CX(0, 1)
	})

	assert.InDelta(t, 1, expectation(t, sim, bell, 0, z0z1), 1e-12)
	assert.InDelta(t, 1, expectation(t, sim, bell, 0, x0x1), 1e-12)
	assert.InDelta(t, -1, expectation(t, sim, bell, 0, y0y1), 1e-12)
	assert.InDelta(t, 0, expectation(t, sim, bell, 0, z0), 1e-12)

	cz := kernel.BindScalar("cz", func(c kernel.Circuit, _ float64) {
		c.H(0)
		c.H(1)
		c.CZ(0, 1)
	})
	// CZ|++> has <X0> = 0 and <X0 Z1> = 1
	assert.InDelta(t, 0, expectation(t, sim, cz, 0, x0), 1e-12)
	assert.InDelta(t, 1, expectation(t, sim, cz, 0, observable.Basis{observable.X(0), observable.Z(1)}), 1e-12)
}

func TestSimulator_DeuteronAnsatzMatchesClosedForm(t *testing.T) {
	sim := exact(t)
	ansatz := deuteron.Ansatz()
	mixed := deuteron.AnsatzMixed()

	for _, x := range []float64{-0.9, 0, 0.3, deuteron.OptimalAngle(), 2.2} {
		for _, term := range deuteron.Hamiltonian().Terms() {
			want, ok := deuteron.Expectation(x, term.Basis)
			require.True(t, ok)
			assert.InDelta(t, want, expectation(t, sim, ansatz, x, term.Basis), 1e-12, "x=%g basis=%s", x, term.Basis)
			assert.InDelta(t, want, expectation(t, sim, mixed, x, term.Basis), 1e-12, "x=%g basis=%s", x, term.Basis)
		}
	}
}

func TestSimulator_VectorAnsatzIsReparameterized(t *testing.T) {
	sim := exact(t)
	vec := deuteron.AnsatzVector()

	for _, theta := range []float64{-0.15, 0, 0.1, 0.4} {
		for _, term := range deuteron.Hamiltonian().Terms() {
			want, _ := deuteron.Expectation(-4*theta, term.Basis)
			m, err := sim.Execute(context.Background(), vec, parameters.Of(theta), term.Basis)
			require.NoError(t, err)
			got, err := m.Reduce(term.Basis)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-12, "theta=%g basis=%s", theta, term.Basis)
		}
	}
}

func TestSimulator_InvalidKernel(t *testing.T) {
	sim := exact(t)

	bad := kernel.BindScalar("bad", func(c kernel.Circuit, _ float64) {
		c.X(0)
		c.CX(1, 1)
	})
	_, err := sim.Execute(context.Background(), bad, parameters.Scalar(0), z0)
	assert.Error(t, err)

	negative := kernel.BindScalar("negative", func(c kernel.Circuit, _ float64) { c.H(-1) })
	_, err = sim.Execute(context.Background(), negative, parameters.Scalar(0), z0)
	assert.Error(t, err)

	_, err = sim.Execute(context.Background(), deuteron.Ansatz(), parameters.Of(1, 2), z0)
	assert.Error(t, err)
}

func TestSimulator_CancelledContext(t *testing.T) {
	sim := exact(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Execute(ctx, deuteron.Ansatz(), parameters.Scalar(0), z0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), sim.Calls())
}

func TestSimulator_ShotSampling(t *testing.T) {
	newSampler := func() *Simulator {
		sim, err := NewSimulator(Config{Shots: 20000, Seed: 7}, zerolog.Nop())
		require.NoError(t, err)
		return sim
	}

	sim := newSampler()
	x := 0.8
	for _, basis := range []observable.Basis{z0, x0x1, y0y1, {observable.Z(1)}} {
		m, err := sim.Execute(context.Background(), deuteron.Ansatz(), parameters.Scalar(x), basis)
		require.NoError(t, err)
		require.Nil(t, m.Expectation)

		total := 0
		for bits, n := range m.Counts {
			assert.Len(t, bits, 2)
			total += n
		}
		assert.Equal(t, 20000, total)

		got, err := evaluation.ExpectationFromCounts(m.Counts, basis)
		require.NoError(t, err)
		want, _ := deuteron.Expectation(x, basis)
		assert.InDelta(t, want, got, 0.03, "basis %s", basis)
	}

	// Same seed, same call sequence, same counts.
	a, err := newSampler().Execute(context.Background(), deuteron.Ansatz(), parameters.Scalar(x), z0)
	require.NoError(t, err)
	b, err := newSampler().Execute(context.Background(), deuteron.Ansatz(), parameters.Scalar(x), z0)
	require.NoError(t, err)
	assert.Equal(t, a.Counts, b.Counts)
}

func TestSimulator_CountsAreLittleEndian(t *testing.T) {
	sim, err := NewSimulator(Config{Shots: 10, Seed: 1}, zerolog.Nop())
	require.NoError(t, err)

	flipQ0 := kernel.BindScalar("flip", func(c kernel.Circuit, _ float64) {
		c.X(0)
		c.Z(2)
	})
	m, err := sim.Execute(context.Background(), flipQ0, parameters.Scalar(0), z0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"001": 10}, m.Counts)
}

func TestNewSimulator_RejectsNegativeShots(t *testing.T) {
	_, err := NewSimulator(Config{Shots: -1}, zerolog.Nop())
	assert.Error(t, err)
}

func TestState_Bounds(t *testing.T) {
	_, err := NewState(0)
	assert.Error(t, err)
	_, err = NewState(MaxQubits + 1)
	assert.Error(t, err)

	s, err := NewState(1)
	require.NoError(t, err)
	_, err = s.Expectation(z0z1)
	assert.Error(t, err)

	s.H(0)
	assert.InDelta(t, 0.5, s.Probabilities()[1], 1e-12)
	assert.Len(t, s.Amplitudes(), 2)
}
