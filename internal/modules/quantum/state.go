// Package quantum is a dense statevector backend.
//
// It is the reference executor for kernels: small enough to run the deuteron
// problem and the test suites exactly, and able to sample shot counts when a
// finite number of shots is configured.
package quantum

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/aristath/hybrid/internal/modules/observable"
)

// MaxQubits bounds the register size; the state holds 2^n amplitudes.
const MaxQubits = 20

// State is an n-qubit register. Basis index bit q is the value of qubit q.
//
// Gate methods never fail; the first invalid gate is recorded and every later
// gate is ignored. Check Err after emitting a program.
type State struct {
	n   int
	amp []complex128
	err error
}

// NewState returns |0...0> on n qubits.
func NewState(n int) (*State, error) {
	if n < 1 || n > MaxQubits {
		return nil, fmt.Errorf("qubit count must be between 1 and %d, got %d", MaxQubits, n)
	}
	amp := make([]complex128, 1<<n)
	amp[0] = 1
	return &State{n: n, amp: amp}, nil
}

// Qubits returns the register size.
func (s *State) Qubits() int {
	return s.n
}

// Err returns the first gate error.
func (s *State) Err() error {
	return s.err
}

// Amplitudes returns a copy of the statevector.
func (s *State) Amplitudes() []complex128 {
	out := make([]complex128, len(s.amp))
	copy(out, s.amp)
	return out
}

// Probabilities returns |amplitude|^2 for every basis index.
func (s *State) Probabilities() []float64 {
	p := make([]float64, len(s.amp))
	for i, a := range s.amp {
		p[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return p
}

func (s *State) clone() *State {
	return &State{n: s.n, amp: s.Amplitudes(), err: s.err}
}

func (s *State) check(qubits ...int) bool {
	if s.err != nil {
		return false
	}
	for i, q := range qubits {
		if q < 0 || q >= s.n {
			s.err = fmt.Errorf("qubit %d out of range for a %d-qubit register", q, s.n)
			return false
		}
		for _, other := range qubits[:i] {
			if other == q {
				s.err = fmt.Errorf("gate uses qubit %d twice", q)
				return false
			}
		}
	}
	return true
}

// apply1 applies the 2x2 unitary [[m00, m01], [m10, m11]] to qubit q.
func (s *State) apply1(q int, m00, m01, m10, m11 complex128) {
	if !s.check(q) {
		return
	}
	bit := 1 << q
	for i := range s.amp {
		if i&bit != 0 {
			continue
		}
		j := i | bit
		a0, a1 := s.amp[i], s.amp[j]
		s.amp[i] = m00*a0 + m01*a1
		s.amp[j] = m10*a0 + m11*a1
	}
}

func (s *State) X(q int) { s.apply1(q, 0, 1, 1, 0) }
func (s *State) Y(q int) { s.apply1(q, 0, -1i, 1i, 0) }
func (s *State) Z(q int) { s.apply1(q, 1, 0, 0, -1) }

func (s *State) H(q int) {
	r := complex(1/math.Sqrt2, 0)
	s.apply1(q, r, r, r, -r)
}

func (s *State) S(q int) { s.apply1(q, 1, 0, 0, 1i) }
func (s *State) Sdg(q int) { s.apply1(q, 1, 0, 0, -1i) }

// Rx applies exp(-i*theta*X/2).
func (s *State) Rx(q int, theta float64) {
	c, sn := complex(math.Cos(theta/2), 0), complex(0, -math.Sin(theta/2))
	s.apply1(q, c, sn, sn, c)
}

// Ry applies exp(-i*theta*Y/2).
func (s *State) Ry(q int, theta float64) {
	c, sn := complex(math.Cos(theta/2), 0), complex(math.Sin(theta/2), 0)
	s.apply1(q, c, -sn, sn, c)
}

// Rz applies exp(-i*theta*Z/2).
func (s *State) Rz(q int, theta float64) {
	s.apply1(q, cmplx.Exp(complex(0, -theta/2)), 0, 0, cmplx.Exp(complex(0, theta/2)))
}

func (s *State) CX(control, target int) {
	if !s.check(control, target) {
		return
	}
	cb, tb := 1<<control, 1<<target
	for i := range s.amp {
		if i&cb != 0 && i&tb == 0 {
			j := i | tb
			s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
		}
	}
}

func (s *State) CZ(control, target int) {
	if !s.check(control, target) {
		return
	}
	mask := 1<<control | 1<<target
	for i := range s.amp {
		if i&mask == mask {
			s.amp[i] = -s.amp[i]
		}
	}
}

// ExpPauli applies exp(i*theta*P) = cos(theta) I + i sin(theta) P.
func (s *State) ExpPauli(theta float64, pauli observable.Basis) {
	if pauli.IsIdentity() {
		if s.err == nil {
			phase := cmplx.Exp(complex(0, theta))
			for i := range s.amp {
				s.amp[i] *= phase
			}
		}
		return
	}
	if !s.check(pauli.Qubits()...) {
		return
	}
	p := s.applyPauli(pauli)
	c, sn := complex(math.Cos(theta), 0), complex(0, math.Sin(theta))
	for i := range s.amp {
		s.amp[i] = c*s.amp[i] + sn*p[i]
	}
}

// applyPauli returns P|psi> without modifying the state.
func (s *State) applyPauli(pauli observable.Basis) []complex128 {
	flip := 0
	for _, op := range pauli {
		if op.Axis == observable.AxisX || op.Axis == observable.AxisY {
			flip |= 1 << op.Qubit
		}
	}

	out := make([]complex128, len(s.amp))
	for k, a := range s.amp {
		if a == 0 {
			continue
		}
		phase := complex(1, 0)
		for _, op := range pauli {
			set := k&(1<<op.Qubit) != 0
			switch op.Axis {
			case observable.AxisY:
				// Y|0> = i|1>, Y|1> = -i|0>
				if set {
					phase *= -1i
				} else {
					phase *= 1i
				}
			case observable.AxisZ:
				if set {
					phase = -phase
				}
			}
		}
		out[k^flip] += phase * a
	}
	return out
}

// Expectation returns <psi|P|psi>.
func (s *State) Expectation(pauli observable.Basis) (float64, error) {
	if pauli.IsIdentity() {
		return 1, nil
	}
	if pauli.MaxQubit() >= s.n {
		return 0, fmt.Errorf("basis %s exceeds the %d-qubit register", pauli, s.n)
	}
	p := s.applyPauli(pauli)
	var sum complex128
	for i, a := range s.amp {
		sum += cmplx.Conj(a) * p[i]
	}
	return real(sum), nil
}

// rotateToZ changes basis so that measuring Z on every factor of pauli measures
// the factor's own axis.
func (s *State) rotateToZ(pauli observable.Basis) {
	for _, op := range pauli {
		switch op.Axis {
		case observable.AxisX:
			s.H(op.Qubit)
		case observable.AxisY:
			s.Sdg(op.Qubit)
			s.H(op.Qubit)
		}
	}
}
