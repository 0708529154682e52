// Package observable holds the decomposed form of a Hamiltonian: an ordered list of
// weighted Pauli measurement terms.
package observable

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/hybrid/internal/domain"
)

// Axis is a single-qubit Pauli measurement axis.
type Axis byte

const (
	AxisX Axis = 'X'
	AxisY Axis = 'Y'
	AxisZ Axis = 'Z'
)

// String returns the axis letter.
func (a Axis) String() string {
	return string(a)
}

// Valid reports whether a is one of X, Y or Z.
func (a Axis) Valid() bool {
	return a == AxisX || a == AxisY || a == AxisZ
}

// PauliOp is one factor of a Pauli string: an axis acting on a qubit.
type PauliOp struct {
	Qubit int
	Axis  Axis
}

// X returns the Pauli X operator on qubit q.
func X(q int) PauliOp { return PauliOp{Qubit: q, Axis: AxisX} }

// Y returns the Pauli Y operator on qubit q.
func Y(q int) PauliOp { return PauliOp{Qubit: q, Axis: AxisY} }

// Z returns the Pauli Z operator on qubit q.
func Z(q int) PauliOp { return PauliOp{Qubit: q, Axis: AxisZ} }

func (p PauliOp) String() string {
	return p.Axis.String() + strconv.Itoa(p.Qubit)
}

// Basis is the ordered measurement basis of a term. An empty basis is the identity.
type Basis []PauliOp

// IsIdentity reports whether the basis measures nothing.
func (b Basis) IsIdentity() bool {
	return len(b) == 0
}

// Qubits returns the qubit indices touched by the basis, in basis order.
func (b Basis) Qubits() []int {
	qubits := make([]int, len(b))
	for i, op := range b {
		qubits[i] = op.Qubit
	}
	return qubits
}

// MaxQubit returns the highest qubit index in the basis, or -1 for the identity.
func (b Basis) MaxQubit() int {
	max := -1
	for _, op := range b {
		if op.Qubit > max {
			max = op.Qubit
		}
	}
	return max
}

// String renders the basis as e.g. "X0Y1", or "I" for the identity.
func (b Basis) String() string {
	if b.IsIdentity() {
		return "I"
	}
	var sb strings.Builder
	for _, op := range b {
		sb.WriteString(op.String())
	}
	return sb.String()
}

func (b Basis) validate() error {
	seen := make(map[int]bool, len(b))
	for _, op := range b {
		if op.Qubit < 0 {
			return domain.NewConfigurationError("basis", "negative qubit index %d", op.Qubit)
		}
		if !op.Axis.Valid() {
			return domain.NewConfigurationError("basis", "invalid axis %q on qubit %d", byte(op.Axis), op.Qubit)
		}
		if seen[op.Qubit] {
			return domain.NewConfigurationError("basis", "qubit %d appears twice in %s", op.Qubit, b)
		}
		seen[op.Qubit] = true
	}
	return nil
}

// Term is a coefficient times a Pauli string.
type Term struct {
	Coefficient float64
	Basis       Basis
}

// NewTerm builds a term from a coefficient and its Pauli factors.
// Calling it with no factors yields an identity (constant) term.
func NewTerm(coefficient float64, ops ...PauliOp) Term {
	basis := make(Basis, len(ops))
	copy(basis, ops)
	return Term{Coefficient: coefficient, Basis: basis}
}

// Constant builds an identity term.
func Constant(value float64) Term {
	return Term{Coefficient: value}
}

// IsIdentity reports whether the term is a constant.
func (t Term) IsIdentity() bool {
	return t.Basis.IsIdentity()
}

func (t Term) String() string {
	if t.IsIdentity() {
		return strconv.FormatFloat(t.Coefficient, 'g', -1, 64)
	}
	return strconv.FormatFloat(t.Coefficient, 'g', -1, 64) + " " + t.Basis.String()
}

func (t Term) clone() Term {
	basis := make(Basis, len(t.Basis))
	copy(basis, t.Basis)
	return Term{Coefficient: t.Coefficient, Basis: basis}
}

// Observable is an immutable weighted sum of Pauli terms kept in definition order.
type Observable struct {
	terms    []Term
	offset   float64
	measured int
	qubits   int
}

// New validates the terms and builds an Observable.
// An empty sum is valid and yields the zero observable.
func New(terms ...Term) (*Observable, error) {
	o := &Observable{terms: make([]Term, 0, len(terms))}
	for i, t := range terms {
		if err := t.Basis.validate(); err != nil {
			return nil, fmt.Errorf("term %d (%s): %w", i, t, err)
		}
		o.terms = append(o.terms, t.clone())
		if t.IsIdentity() {
			o.offset += t.Coefficient
			continue
		}
		o.measured++
		if q := t.Basis.MaxQubit() + 1; q > o.qubits {
			o.qubits = q
		}
	}
	return o, nil
}

// MustNew is New for statically known observables; it panics on invalid input.
func MustNew(terms ...Term) *Observable {
	o, err := New(terms...)
	if err != nil {
		panic(err)
	}
	return o
}

// Terms returns a copy of the terms in definition order.
func (o *Observable) Terms() []Term {
	out := make([]Term, len(o.terms))
	for i, t := range o.terms {
		out[i] = t.clone()
	}
	return out
}

// Term returns the i-th term.
func (o *Observable) Term(i int) Term {
	return o.terms[i].clone()
}

// TermCount returns the number of terms, identity terms included.
func (o *Observable) TermCount() int {
	return len(o.terms)
}

// MeasuredTermCount returns the number of terms that need an executor call.
func (o *Observable) MeasuredTermCount() int {
	return o.measured
}

// MeasuredTerms returns copies of the non-identity terms in definition order.
func (o *Observable) MeasuredTerms() []Term {
	out := make([]Term, 0, o.measured)
	for _, t := range o.terms {
		if !t.IsIdentity() {
			out = append(out, t.clone())
		}
	}
	return out
}

// ConstantOffset returns the sum of the identity-term coefficients.
func (o *Observable) ConstantOffset() float64 {
	return o.offset
}

// QubitCount returns one past the highest qubit index measured by any term.
func (o *Observable) QubitCount() int {
	return o.qubits
}

// IsZero reports whether no term needs measuring.
func (o *Observable) IsZero() bool {
	return o.measured == 0
}

// String renders the weighted sum, e.g. "5.907 - 2.1433 X0X1 + 0.21829 Z0".
func (o *Observable) String() string {
	if len(o.terms) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range o.terms {
		coeff := t.Coefficient
		switch {
		case i == 0 && coeff < 0:
			sb.WriteString("-")
			coeff = -coeff
		case i > 0 && coeff < 0:
			sb.WriteString(" - ")
			coeff = -coeff
		case i > 0:
			sb.WriteString(" + ")
		}
		sb.WriteString(strconv.FormatFloat(coeff, 'g', -1, 64))
		if !t.IsIdentity() {
			sb.WriteString(" ")
			sb.WriteString(t.Basis.String())
		}
	}
	return sb.String()
}

// SortedQubits returns the distinct qubits measured by the observable in ascending order.
func (o *Observable) SortedQubits() []int {
	seen := make(map[int]bool)
	for _, t := range o.terms {
		for _, op := range t.Basis {
			seen[op.Qubit] = true
		}
	}
	qubits := make([]int, 0, len(seen))
	for q := range seen {
		qubits = append(qubits, q)
	}
	sort.Ints(qubits)
	return qubits
}
