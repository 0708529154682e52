// Package runs manages optimization runs as a service: it starts drivers for
// named problems, tracks in-flight runs and persists finished ones.
package runs

import (
	"time"

	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/optimization"
)

// State is the persisted state of a run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Finished reports whether the run reached a terminal state.
func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Run is the summary of one optimization run.
type Run struct {
	ID            string               `json:"id"`
	Problem       string               `json:"problem"`
	Kernel        string               `json:"kernel"`
	Optimizer     string               `json:"optimizer"`
	Options       optimization.Options `json:"options"`
	InitialParams []float64            `json:"initial_params"`
	State         State                `json:"state"`
	Status        string               `json:"status,omitempty"`
	Energy        *float64             `json:"energy,omitempty"`
	Params        []float64            `json:"params,omitempty"`
	Evaluations   int                  `json:"evaluations"`
	ExecutorCalls int64                `json:"executor_calls"`
	Error         string               `json:"error,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    *time.Time           `json:"finished_at,omitempty"`
}

// Evaluation is one persisted evaluation record.
type Evaluation struct {
	Sequence    int         `json:"sequence"`
	Params      []float64   `json:"params"`
	Energy      float64     `json:"energy"`
	TermValues  []TermValue `json:"term_values"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// TermValue is the measured expectation of one observable term.
type TermValue struct {
	Index       int     `json:"index" msgpack:"i"`
	Basis       string  `json:"basis" msgpack:"b"`
	Coefficient float64 `json:"coefficient" msgpack:"c"`
	Expectation float64 `json:"expectation" msgpack:"e"`
}

// ListFilter narrows List results.
type ListFilter struct {
	States  []State
	Problem string
	Limit   int // 0 means DefaultListLimit
}

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 100

// StartRequest asks the service to run a named problem.
type StartRequest struct {
	Problem       string               `json:"problem"`
	InitialParams []float64            `json:"initial_params,omitempty"` // Problem default when empty
	Options       optimization.Options `json:"options,omitempty"`
}

// FromRecord converts an evaluation record for storage and transport.
func FromRecord(rec evaluation.Record) Evaluation {
	values := make([]TermValue, len(rec.TermValues))
	for i, tv := range rec.TermValues {
		values[i] = TermValue{
			Index:       tv.Index,
			Basis:       tv.Term.Basis.String(),
			Coefficient: tv.Term.Coefficient,
			Expectation: tv.Expectation,
		}
	}
	return Evaluation{
		Sequence:    rec.Sequence,
		Params:      rec.Params.Floats(),
		Energy:      rec.Energy,
		TermValues:  values,
		EvaluatedAt: rec.EvaluatedAt,
	}
}
