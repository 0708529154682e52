// Package handlers provides HTTP handlers for the statevector backend.
package handlers

import (
	"encoding/json"
	"fmt"
	"math/cmplx"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
	"github.com/aristath/hybrid/internal/modules/quantum"
)

// Handler handles quantum backend HTTP requests
type Handler struct {
	kernels map[string]*kernel.Binding
	log     zerolog.Logger
}

// NewHandler creates a new quantum handler serving the given kernels
func NewHandler(kernels map[string]*kernel.Binding, log zerolog.Logger) *Handler {
	return &Handler{
		kernels: kernels,
		log:     log.With().Str("handler", "quantum").Logger(),
	}
}

// PauliFactor is one factor of a measurement basis in a request
type PauliFactor struct {
	Qubit int    `json:"qubit"`
	Axis  string `json:"axis"`
}

// StateRequest represents a request to prepare a kernel's state
type StateRequest struct {
	Kernel string    `json:"kernel"`
	Params []float64 `json:"params"`
}

// ExpectationRequest represents a request to measure one Pauli string
type ExpectationRequest struct {
	Kernel string        `json:"kernel"`
	Params []float64     `json:"params"`
	Basis  []PauliFactor `json:"basis"`
	Shots  int           `json:"shots"`
	Seed   uint64        `json:"seed"`
}

// HandleListKernels handles GET /api/quantum/kernels
func (h *Handler) HandleListKernels(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.kernels))
	for name := range h.kernels {
		names = append(names, name)
	}
	sort.Strings(names)

	kernels := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		k := h.kernels[name]
		kernels = append(kernels, map[string]interface{}{
			"name":  k.Name,
			"arity": k.Arity,
			"shape": k.Shape.String(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"kernels": kernels,
			"count":   len(kernels),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandlePrepareState handles POST /api/quantum/state
func (h *Handler) HandlePrepareState(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	k, ok := h.kernels[req.Kernel]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown kernel %q", req.Kernel), http.StatusNotFound)
		return
	}

	params := kernelParams(k, req.Params)
	sim, _ := quantum.NewSimulator(quantum.Config{}, h.log)
	state, err := sim.Prepare(k, params, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	amps := state.Amplitudes()
	amplitudes := make([]map[string]interface{}, len(amps))
	for i, a := range amps {
		amplitudes[i] = map[string]interface{}{
			"real":      real(a),
			"imaginary": imag(a),
			"magnitude": cmplx.Abs(a),
			"phase":     cmplx.Phase(a),
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"kernel":        k.Name,
			"params":        params.Floats(),
			"qubits":        state.Qubits(),
			"amplitudes":    amplitudes,
			"probabilities": state.Probabilities(),
			"note":          "Index bit i is qubit i",
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleMeasureExpectation handles POST /api/quantum/expectation
func (h *Handler) HandleMeasureExpectation(w http.ResponseWriter, r *http.Request) {
	var req ExpectationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	k, ok := h.kernels[req.Kernel]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown kernel %q", req.Kernel), http.StatusNotFound)
		return
	}
	if req.Shots < 0 {
		http.Error(w, "Shots must be non-negative", http.StatusBadRequest)
		return
	}

	basis, err := parseBasis(req.Basis)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sim, _ := quantum.NewSimulator(quantum.Config{Shots: req.Shots, Seed: req.Seed}, h.log)
	params := kernelParams(k, req.Params)
	if err := params.CheckArity(k.Arity); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := sim.Execute(r.Context(), k, params, basis)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expectation, err := m.Reduce(basis)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"kernel":      k.Name,
		"params":      params.Floats(),
		"basis":       basis.String(),
		"expectation": expectation,
		"shots":       req.Shots,
	}
	if m.Counts != nil {
		data["counts"] = m.Counts
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func parseBasis(factors []PauliFactor) (observable.Basis, error) {
	basis := make(observable.Basis, 0, len(factors))
	for _, f := range factors {
		if len(f.Axis) != 1 {
			return nil, fmt.Errorf("axis %q must be one of X, Y, Z", f.Axis)
		}
		axis := observable.Axis(strings.ToUpper(f.Axis)[0])
		if !axis.Valid() {
			return nil, fmt.Errorf("axis %q must be one of X, Y, Z", f.Axis)
		}
		basis = append(basis, observable.PauliOp{Qubit: f.Qubit, Axis: axis})
	}
	// Term construction validates qubit ranges and duplicates
	if _, err := observable.New(observable.NewTerm(1, basis...)); err != nil {
		return nil, err
	}
	return basis, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// kernelParams binds the request parameters, defaulting to all zeros when none are given.
func kernelParams(k *kernel.Binding, values []float64) parameters.Vector {
	if len(values) == 0 {
		return parameters.Zeros(k.Arity)
	}
	return parameters.Of(values...)
}
