package testing

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// DeuteronExecutor answers with the closed-form expectations of the deuteron
// kernels. The vector kernel is mapped onto the scalar angle -4*theta.
func DeuteronExecutor() evaluation.Executor {
	return evaluation.ExecutorFunc(func(_ context.Context, k *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
		x := params[0]
		if k.Shape == kernel.ShapeVector {
			x = -4 * x
		}
		v, ok := deuteron.Expectation(x, basis)
		if !ok {
			return evaluation.Measurement{}, fmt.Errorf("no closed form for basis %s", basis)
		}
		return evaluation.ExpectationValue(v), nil
	})
}

// ParabolaExecutor returns <Z0> = sum_i (x_i - center_i)^2 for any kernel, so an
// observable with the single term 1*Z0 has its minimum 0 at center.
func ParabolaExecutor(center ...float64) evaluation.Executor {
	return evaluation.ExecutorFunc(func(_ context.Context, _ *kernel.Binding, params parameters.Vector, basis observable.Basis) (evaluation.Measurement, error) {
		if len(params) != len(center) {
			return evaluation.Measurement{}, fmt.Errorf("expected %d parameters, got %d", len(center), len(params))
		}
		sum := 0.0
		for i, x := range params {
			sum += math.Pow(x-center[i], 2)
		}
		return evaluation.ExpectationValue(sum), nil
	})
}

// SingleZ is the observable 1*Z0.
func SingleZ() *observable.Observable {
	return observable.MustNew(observable.NewTerm(1, observable.Z(0)))
}

// ScalarKernel binds a one-gate program against a scalar parameter.
func ScalarKernel() *kernel.Binding {
	return kernel.BindScalar("ry", func(c kernel.Circuit, x float64) {
		c.Ry(0, x)
	})
}

// VectorKernel binds the same program against a one-element vector.
func VectorKernel() *kernel.Binding {
	return kernel.MustBindVector("ry_vec", 1, func(c kernel.Circuit, x []float64) {
		c.Ry(0, x[0])
	})
}
