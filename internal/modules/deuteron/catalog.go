package deuteron

import (
	"fmt"
	"sort"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// Problem names served by Lookup.
const (
	ProblemScalar = "deuteron"
	ProblemVector = "deuteron-vector"
	ProblemMixed  = "deuteron-mixed"
)

// Problem pairs a kernel with the observable it minimizes and the settings of
// the reference run.
type Problem struct {
	Name       string
	Kernel     *kernel.Binding
	Observable *observable.Observable
	Initial    parameters.Vector
	Options    optimization.Options // Overrides applied on top of the caller's defaults
}

var problems = map[string]func() Problem{
	ProblemScalar: func() Problem {
		return Problem{
			Name:       ProblemScalar,
			Kernel:     Ansatz(),
			Observable: Hamiltonian(),
			Initial:    parameters.Scalar(0),
		}
	},
	ProblemVector: func() Problem {
		return Problem{
			Name:       ProblemVector,
			Kernel:     AnsatzVector(),
			Observable: Hamiltonian(),
			Initial:    parameters.Of(0),
		}
	},
	ProblemMixed: func() Problem {
		return Problem{
			Name:       ProblemMixed,
			Kernel:     AnsatzMixed(),
			Observable: Hamiltonian(),
			Initial:    parameters.Scalar(0.55),
			Options: optimization.Options{
				optimization.KeyAlgorithm:        "l-bfgs",
				optimization.KeyGradientStrategy: "central",
				optimization.KeyMaxEvaluations:   20,
			},
		}
	},
}

// Lookup returns a fresh copy of the named problem.
func Lookup(name string) (Problem, error) {
	build, ok := problems[name]
	if !ok {
		return Problem{}, fmt.Errorf("problem %q: %w", name, domain.ErrNotFound)
	}
	return build(), nil
}

// ProblemNames returns the known problem names, sorted.
func ProblemNames() []string {
	names := make([]string, 0, len(problems))
	for name := range problems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kernels returns every kernel of the catalog keyed by kernel name.
func Kernels() map[string]*kernel.Binding {
	out := make(map[string]*kernel.Binding, len(problems))
	for _, build := range problems {
		p := build()
		out[p.Kernel.Name] = p.Kernel
	}
	return out
}
