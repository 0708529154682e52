// Package kernel binds parameterized quantum programs to the engine.
//
// A program is any Go function that emits gates onto a Circuit. How the program was
// authored does not matter here; binding only records its arity and the shape of the
// parameters it was written against, and normalizes both shapes to a single
// parameters.Vector entry point.
package kernel

import (
	"fmt"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// Circuit is the gate-level surface a backend exposes to programs.
// Qubit indices are zero-based; rotation angles are in radians.
type Circuit interface {
	X(q int)
	Y(q int)
	Z(q int)
	H(q int)
	S(q int)
	Sdg(q int)
	Rx(q int, theta float64)
	Ry(q int, theta float64)
	Rz(q int, theta float64)
	CX(control, target int)
	CZ(control, target int)
	// ExpPauli applies exp(i * theta * P) for the Pauli string P.
	ExpPauli(theta float64, pauli observable.Basis)
}

// Program emits the circuit for one parameter vector.
type Program func(c Circuit, params parameters.Vector)

// Shape records how the original program accepted its parameters.
type Shape int

const (
	// ShapeScalar is a program written against a single float64.
	ShapeScalar Shape = iota
	// ShapeVector is a program written against a []float64.
	ShapeVector
)

// String returns a human-readable name for the shape.
func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Binding pairs a program with its arity. Bindings are immutable.
type Binding struct {
	Name    string
	Arity   int
	Shape   Shape
	program Program
}

// BindScalar binds a program that takes one scalar parameter.
func BindScalar(name string, fn func(c Circuit, x float64)) *Binding {
	return &Binding{
		Name:  name,
		Arity: 1,
		Shape: ShapeScalar,
		program: func(c Circuit, params parameters.Vector) {
			fn(c, params[0])
		},
	}
}

// BindVector binds a program that takes a vector of arity parameters.
// The program receives its own copy of the parameters.
func BindVector(name string, arity int, fn func(c Circuit, x []float64)) (*Binding, error) {
	if arity <= 0 {
		return nil, domain.NewConfigurationError("arity", "kernel %s must take at least one parameter, got %d", name, arity)
	}
	return &Binding{
		Name:  name,
		Arity: arity,
		Shape: ShapeVector,
		program: func(c Circuit, params parameters.Vector) {
			fn(c, params.Floats())
		},
	}, nil
}

// MustBindVector is BindVector for statically known kernels.
func MustBindVector(name string, arity int, fn func(c Circuit, x []float64)) *Binding {
	b, err := BindVector(name, arity, fn)
	if err != nil {
		panic(err)
	}
	return b
}

// Emit runs the program against c after checking the arity.
func (b *Binding) Emit(c Circuit, params parameters.Vector) error {
	if err := params.CheckArity(b.Arity); err != nil {
		return fmt.Errorf("kernel %s: %w", b.Name, err)
	}
	b.program(c, params)
	return nil
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s(%s/%d)", b.Name, b.Shape, b.Arity)
}
