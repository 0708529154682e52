package optimization

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/hybrid/internal/domain"
)

// Recognized option keys.
const (
	KeyAlgorithm        = "algorithm"
	KeyMaxEvaluations   = "max-evaluations"
	KeyGradientStrategy = "gradient-strategy"
	KeyStep             = "step"
	KeyTolerance        = "tolerance"
	KeySimplexSize      = "simplex-size"
	KeyLBFGSStore       = "lbfgs-store"
	KeyMaxIterations    = "max-iterations"
)

// Defaults applied when an option is absent.
const (
	DefaultAlgorithm      = "nelder-mead"
	DefaultMaxEvaluations = 200
	DefaultTolerance      = 1e-8
)

// Options is a flat bag of string, number and bool settings.
// Keys not listed above are passed through untouched.
type Options map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Merge returns a copy of o overlaid with other.
func (o Options) Merge(other Options) Options {
	out := o.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Has reports whether key is set.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value of key, or def when unset.
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", domain.NewConfigurationError(key, "expected a string, got %T", v)
	}
	return strings.TrimSpace(s), nil
}

// Int returns the integer value of key, or def when unset. Integral floats and
// numeric strings are accepted since options often arrive as JSON or flags.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, domain.NewConfigurationError(key, "expected an integer, got %g", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, domain.NewConfigurationError(key, "expected an integer, got %q", n)
		}
		return i, nil
	default:
		return 0, domain.NewConfigurationError(key, "expected an integer, got %T", v)
	}
}

// Float returns the numeric value of key, or def when unset.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, domain.NewConfigurationError(key, "expected a number, got %q", n)
		}
		f = parsed
	default:
		return 0, domain.NewConfigurationError(key, "expected a number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, domain.NewConfigurationError(key, "expected a finite number, got %g", f)
	}
	return f, nil
}

// Bool returns the boolean value of key, or def when unset.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, domain.NewConfigurationError(key, "expected a bool, got %q", b)
		}
		return parsed, nil
	default:
		return false, domain.NewConfigurationError(key, "expected a bool, got %T", v)
	}
}

// PositiveInt is Int that also rejects values below 1.
func (o Options) PositiveInt(key string, def int) (int, error) {
	n, err := o.Int(key, def)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, domain.NewConfigurationError(key, "must be positive, got %d", n)
	}
	return n, nil
}

// PositiveFloat is Float that also rejects values <= 0.
func (o Options) PositiveFloat(key string, def float64) (float64, error) {
	f, err := o.Float(key, def)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, domain.NewConfigurationError(key, "must be positive, got %g", f)
	}
	return f, nil
}

// Algorithm returns the configured strategy name, DefaultAlgorithm when unset.
func (o Options) Algorithm() (string, error) {
	name, err := o.String(KeyAlgorithm, DefaultAlgorithm)
	if err != nil {
		return "", err
	}
	if name == "" {
		return DefaultAlgorithm, nil
	}
	return strings.ToLower(name), nil
}

// Describe renders the options sorted by key, for logs.
func (o Options) Describe() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, o[k])
	}
	return strings.Join(parts, " ")
}
