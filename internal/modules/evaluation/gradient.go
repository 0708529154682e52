package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// GradientStrategy selects how gradients are estimated from energy evaluations.
type GradientStrategy string

const (
	GradientNone           GradientStrategy = "none"
	GradientForward        GradientStrategy = "forward"
	GradientCentral        GradientStrategy = "central"
	GradientParameterShift GradientStrategy = "parameter-shift"
)

// DefaultStep is the finite-difference step used when none is configured.
const DefaultStep = 1e-4

// ParameterShift is the shift applied by the parameter-shift rule. It is exact for
// gates of the form exp(-i*theta*P/2), which covers Rx, Ry and Rz.
const ParameterShift = math.Pi / 2

// ErrNoGradient is returned when a gradient is requested with strategy "none".
var ErrNoGradient = errors.New("gradient strategy is none")

// ParseGradientStrategy validates a strategy name. An empty name means "none".
func ParseGradientStrategy(name string) (GradientStrategy, error) {
	switch GradientStrategy(name) {
	case "":
		return GradientNone, nil
	case GradientNone, GradientForward, GradientCentral, GradientParameterShift:
		return GradientStrategy(name), nil
	default:
		return "", domain.NewConfigurationError("gradient-strategy", "unknown strategy %q (want none, forward, central or parameter-shift)", name)
	}
}

// Enabled reports whether the strategy produces gradients.
func (g GradientStrategy) Enabled() bool {
	return g != GradientNone && g != ""
}

// ProbesPerGradient returns how many energy evaluations one gradient needs for
// the given number of parameters, counting the center point for forward differences.
func (g GradientStrategy) ProbesPerGradient(n int) int {
	switch g {
	case GradientForward:
		return n + 1
	case GradientCentral, GradientParameterShift:
		return 2 * n
	default:
		return 0
	}
}

// Gradient estimates dE/dx at params. Every probe point goes through Evaluate, so
// probes are cached like any other point and a repeated request is free.
func (e *Evaluator) Gradient(ctx context.Context, params parameters.Vector) ([]float64, error) {
	if err := params.CheckArity(e.binding.Arity); err != nil {
		return nil, err
	}

	n := params.Len()
	grad := make([]float64, n)
	h := e.step

	switch e.gradient {
	case GradientForward:
		center, err := e.Evaluate(ctx, params)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			plus, err := e.Evaluate(ctx, params.Shifted(i, h))
			if err != nil {
				return nil, fmt.Errorf("forward probe %d: %w", i, err)
			}
			grad[i] = (plus.Energy - center.Energy) / h
		}

	case GradientCentral:
		for i := 0; i < n; i++ {
			plus, minus, err := e.probePair(ctx, params, i, h)
			if err != nil {
				return nil, fmt.Errorf("central probe %d: %w", i, err)
			}
			grad[i] = (plus - minus) / (2 * h)
		}

	case GradientParameterShift:
		for i := 0; i < n; i++ {
			plus, minus, err := e.probePair(ctx, params, i, ParameterShift)
			if err != nil {
				return nil, fmt.Errorf("parameter-shift probe %d: %w", i, err)
			}
			grad[i] = (plus - minus) / 2
		}

	default:
		return nil, ErrNoGradient
	}

	return grad, nil
}

func (e *Evaluator) probePair(ctx context.Context, params parameters.Vector, i int, delta float64) (float64, float64, error) {
	plus, err := e.Evaluate(ctx, params.Shifted(i, delta))
	if err != nil {
		return 0, 0, err
	}
	minus, err := e.Evaluate(ctx, params.Shifted(i, -delta))
	if err != nil {
		return 0, 0, err
	}
	return plus.Energy, minus.Energy, nil
}
