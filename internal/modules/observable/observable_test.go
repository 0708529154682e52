package observable

import (
	"errors"
	"testing"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deuteronTerms() []Term {
	return []Term{
		Constant(5.907),
		NewTerm(-2.1433, X(0), X(1)),
		NewTerm(-2.1433, Y(0), Y(1)),
		NewTerm(0.21829, Z(0)),
		NewTerm(-6.125, Z(1)),
	}
}

func TestNew_Deuteron(t *testing.T) {
	o, err := New(deuteronTerms()...)
	require.NoError(t, err)

	assert.Equal(t, 5, o.TermCount())
	assert.Equal(t, 4, o.MeasuredTermCount())
	assert.InDelta(t, 5.907, o.ConstantOffset(), 1e-12)
	assert.Equal(t, 2, o.QubitCount())
	assert.Equal(t, []int{0, 1}, o.SortedQubits())
	assert.False(t, o.IsZero())
	assert.Equal(t, "5.907 - 2.1433 X0X1 - 2.1433 Y0Y1 + 0.21829 Z0 - 6.125 Z1", o.String())
}

func TestNew_PreservesDefinitionOrder(t *testing.T) {
	o, err := New(deuteronTerms()...)
	require.NoError(t, err)

	terms := o.Terms()
	require.Len(t, terms, 5)
	assert.Equal(t, "I", terms[0].Basis.String())
	assert.Equal(t, "X0X1", terms[1].Basis.String())
	assert.Equal(t, "Y0Y1", terms[2].Basis.String())
	assert.Equal(t, "Z0", terms[3].Basis.String())
	assert.Equal(t, "Z1", terms[4].Basis.String())

	measured := o.MeasuredTerms()
	require.Len(t, measured, 4)
	assert.Equal(t, "X0X1", measured[0].Basis.String())
	assert.Equal(t, -6.125, measured[3].Coefficient)
}

func TestNew_EmptyIsZeroObservable(t *testing.T) {
	o, err := New()
	require.NoError(t, err)

	assert.Equal(t, 0, o.TermCount())
	assert.Equal(t, 0.0, o.ConstantOffset())
	assert.True(t, o.IsZero())
	assert.Equal(t, "0", o.String())
}

func TestNew_ConstantOnly(t *testing.T) {
	o, err := New(Constant(1.5), Constant(-0.5))
	require.NoError(t, err)

	assert.True(t, o.IsZero())
	assert.InDelta(t, 1.0, o.ConstantOffset(), 1e-12)
	assert.Equal(t, 0, o.QubitCount())
}

func TestNew_RejectsInvalidBasis(t *testing.T) {
	tests := []struct {
		name string
		term Term
	}{
		{"duplicate qubit", NewTerm(1.0, X(0), Z(0))},
		{"negative qubit", NewTerm(1.0, PauliOp{Qubit: -1, Axis: AxisZ})},
		{"bad axis", NewTerm(1.0, PauliOp{Qubit: 0, Axis: 'Q'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.term)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))
		})
	}
}

func TestObservable_IsImmutable(t *testing.T) {
	ops := []PauliOp{X(0), X(1)}
	term := Term{Coefficient: 2.0, Basis: ops}
	o, err := New(term)
	require.NoError(t, err)

	// Mutating the caller's slice after construction must not leak in.
	ops[0] = Z(3)
	assert.Equal(t, "X0X1", o.Term(0).Basis.String())

	// Nor must mutating a returned copy.
	terms := o.Terms()
	terms[0].Basis[1] = Y(7)
	terms[0].Coefficient = 99
	assert.Equal(t, "2 X0X1", o.Term(0).String())
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(NewTerm(1.0, Z(1), Z(1)))
	})
}
