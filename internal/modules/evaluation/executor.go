package evaluation

import (
	"context"
	"fmt"

	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// Executor runs a bound kernel with concrete parameters and measures one Pauli basis.
// Implementations may be remote and slow; the evaluator calls them sequentially and
// never retries a failed call.
type Executor interface {
	Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (Measurement, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (Measurement, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (Measurement, error) {
	return f(ctx, k, params, basis)
}

// Measurement is what an executor returns for one basis: either a precomputed
// expectation value or raw shot counts keyed by bitstring.
type Measurement struct {
	Expectation *float64
	Counts      map[string]int
}

// ExpectationValue wraps a precomputed expectation value.
func ExpectationValue(v float64) Measurement {
	return Measurement{Expectation: &v}
}

// ShotCounts wraps raw counts.
func ShotCounts(counts map[string]int) Measurement {
	return Measurement{Counts: counts}
}

// Reduce returns the expectation value of basis for this measurement.
// A precomputed expectation takes precedence over counts.
func (m Measurement) Reduce(basis observable.Basis) (float64, error) {
	if m.Expectation != nil {
		return *m.Expectation, nil
	}
	if m.Counts != nil {
		return ExpectationFromCounts(m.Counts, basis)
	}
	return 0, fmt.Errorf("measurement of %s carries neither an expectation value nor counts", basis)
}

// ExpectationFromCounts reduces shot counts to the expectation of a Pauli string
// measured in its eigenbasis. Bitstrings are little-endian: the rightmost character
// is qubit 0. Each shot contributes +1 for even parity over the measured qubits and
// -1 for odd parity.
func ExpectationFromCounts(counts map[string]int, basis observable.Basis) (float64, error) {
	if basis.IsIdentity() {
		return 1, nil
	}

	total := 0
	signed := 0
	for bits, n := range counts {
		if n < 0 {
			return 0, fmt.Errorf("negative count %d for bitstring %q", n, bits)
		}
		parity := 0
		for _, op := range basis {
			idx := len(bits) - 1 - op.Qubit
			if idx < 0 {
				return 0, fmt.Errorf("bitstring %q too short for qubit %d", bits, op.Qubit)
			}
			switch bits[idx] {
			case '1':
				parity ^= 1
			case '0':
			default:
				return 0, fmt.Errorf("invalid bitstring %q", bits)
			}
		}
		if parity == 0 {
			signed += n
		} else {
			signed -= n
		}
		total += n
	}

	if total == 0 {
		return 0, fmt.Errorf("no shots recorded for %s", basis)
	}
	return float64(signed) / float64(total), nil
}
