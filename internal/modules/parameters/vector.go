// Package parameters provides the normalized parameter vector passed between the
// optimizer, the evaluator and the kernel executor.
package parameters

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/hybrid/internal/domain"
)

// Vector is an ordered tuple of real parameters. Its length equals the arity of the
// kernel it is bound to.
type Vector []float64

// Of builds a vector from the given values. The values are copied.
func Of(values ...float64) Vector {
	v := make(Vector, len(values))
	copy(v, values)
	return v
}

// Scalar wraps a single value as a vector of length one.
func Scalar(x float64) Vector {
	return Vector{x}
}

// Zeros returns a vector of n zeros.
func Zeros(n int) Vector {
	return make(Vector, n)
}

// Len returns the number of parameters.
func (v Vector) Len() int {
	return len(v)
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Floats returns a copy as a plain float slice.
func (v Vector) Floats() []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Equal compares bit patterns element-wise. It is the equality the cache uses:
// +0 and -0 differ, and a NaN equals an identical NaN.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if math.Float64bits(v[i]) != math.Float64bits(other[i]) {
			return false
		}
	}
	return true
}

// Key returns a canonical string built from the raw IEEE-754 bits of every element.
// Two vectors have the same key exactly when Equal reports true.
func (v Vector) Key() string {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return strconv.Itoa(len(v)) + ":" + hex.EncodeToString(buf)
}

// With returns a copy with element i replaced by x.
func (v Vector) With(i int, x float64) Vector {
	out := v.Clone()
	out[i] = x
	return out
}

// Shifted returns a copy with delta added to element i.
func (v Vector) Shifted(i int, delta float64) Vector {
	return v.With(i, v[i]+delta)
}

// CheckArity returns a configuration error when the vector length is not arity.
func (v Vector) CheckArity(arity int) error {
	if len(v) != arity {
		return domain.NewConfigurationError("parameters", "expected %d parameters, got %d", arity, len(v))
	}
	return nil
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
