// Package deuteron provides the two-qubit deuteron binding-energy problem: its
// Hamiltonian, three equivalent ansatz kernels written against different parameter
// shapes, and the closed-form expectation values of the scalar ansatz.
package deuteron

import (
	"math"
	"sort"

	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
)

// GroundStateEnergy is the exact minimum of the Hamiltonian over the ansatz family.
const GroundStateEnergy = -1.74886

// Hamiltonian coefficients.
const (
	constantTerm = 5.907
	hoppingTerm  = -2.1433
	z0Term       = 0.21829
	z1Term       = -6.125
)

// Hamiltonian returns H = 5.907 - 2.1433 X0X1 - 2.1433 Y0Y1 + 0.21829 Z0 - 6.125 Z1.
func Hamiltonian() *observable.Observable {
	return observable.MustNew(
		observable.Constant(constantTerm),
		observable.NewTerm(hoppingTerm, observable.X(0), observable.X(1)),
		observable.NewTerm(hoppingTerm, observable.Y(0), observable.Y(1)),
		observable.NewTerm(z0Term, observable.Z(0)),
		observable.NewTerm(z1Term, observable.Z(1)),
	)
}

// Ansatz prepares cos(x/2)|10> + sin(x/2)|01> (qubit 0 written first) from a scalar angle.
func Ansatz() *kernel.Binding {
	return kernel.BindScalar("ansatz", func(c kernel.Circuit, x float64) {
		c.X(0)
		c.Ry(1, x)
		c.CX(1, 0)
	})
}

// AnsatzVector prepares the same family through exp(i*x*(X0Y1 - Y0X1)) on a
// one-element parameter vector. Its angle maps to the scalar ansatz as x_scalar = -4x.
func AnsatzVector() *kernel.Binding {
	return kernel.MustBindVector("ansatz_vec", 1, func(c kernel.Circuit, x []float64) {
		c.X(0)
		// X0Y1 and Y0X1 commute, so the exponential of their difference factorizes.
		c.ExpPauli(x[0], observable.Basis{observable.X(0), observable.Y(1)})
		c.ExpPauli(-x[0], observable.Basis{observable.Y(0), observable.X(1)})
	})
}

// AnsatzMixed is the scalar ansatz authored as a separate program, the way a kernel
// mixing two gate dialects reaches the engine: as one opaque program.
func AnsatzMixed() *kernel.Binding {
	return kernel.BindScalar("mixed_ansatz", func(c kernel.Circuit, xx float64) {
		c.X(0)
		c.Ry(1, xx)
		c.CX(1, 0)
	})
}

// Expectation returns <Ansatz(x)| P |Ansatz(x)> for the Pauli strings of the
// Hamiltonian and a few others. ok is false for bases it does not know.
func Expectation(x float64, basis observable.Basis) (value float64, ok bool) {
	switch canonical(basis) {
	case "I":
		return 1, true
	case "Z0":
		return -math.Cos(x), true
	case "Z1":
		return math.Cos(x), true
	case "Z0Z1":
		return -1, true
	case "X0X1", "Y0Y1":
		return math.Sin(x), true
	case "X0", "X1", "Y0", "Y1", "X0Y1", "Y0X1", "X0Z1", "Z0X1", "Y0Z1", "Z0Y1":
		return 0, true
	}
	return 0, false
}

// Energy returns the exact energy of the Hamiltonian for the scalar ansatz at x.
func Energy(x float64) float64 {
	return constantTerm + 2*hoppingTerm*math.Sin(x) + (z1Term-z0Term)*math.Cos(x)
}

// OptimalAngle returns the scalar angle minimizing Energy.
func OptimalAngle() float64 {
	return math.Atan2(-2*hoppingTerm, z0Term-z1Term)
}

func canonical(basis observable.Basis) string {
	ops := make(observable.Basis, len(basis))
	copy(ops, basis)
	sort.Slice(ops, func(i, j int) bool { return ops[i].Qubit < ops[j].Qubit })
	return ops.String()
}
