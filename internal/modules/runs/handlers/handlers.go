// Package handlers provides HTTP handlers for optimization runs.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/runs"
	"github.com/aristath/hybrid/internal/utils"
)

// Handler handles run HTTP requests
type Handler struct {
	service *runs.Service
	log     zerolog.Logger
}

// NewHandler creates a new run handler
func NewHandler(service *runs.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// HandleStartRun handles POST /api/runs
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runs.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	run, err := h.service.Start(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, envelope(run))
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := runs.ListFilter{Problem: query.Get("problem")}
	for _, s := range utils.ParseCSV(query.Get("state")) {
		state := runs.State(s)
		if state != runs.StateRunning && !state.Finished() {
			http.Error(w, fmt.Sprintf("Unknown state %q", s), http.StatusBadRequest)
			return
		}
		filter.States = append(filter.States, state)
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "Limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	list, err := h.service.List(filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"runs":  list,
		"count": len(list),
	}))
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleGetHistory handles GET /api/runs/{id}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	since := 0
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}

	history, err := h.service.HistorySince(chi.URLParam(r, "id"), since)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"evaluations": history,
		"count":       len(history),
	}))
}

// HandleGetParameters handles GET /api/runs/{id}/parameters
func (h *Handler) HandleGetParameters(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	params := make([][]float64, len(history))
	for i, ev := range history {
		params[i] = ev.Params
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"parameters": params,
		"count":      len(params),
	}))
}

// HandleGetEnergies handles GET /api/runs/{id}/energies
func (h *Handler) HandleGetEnergies(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	energies := make([]float64, len(history))
	for i, ev := range history {
		energies[i] = ev.Energy
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"energies": energies,
		"count":    len(energies),
	}))
}

// HandleCancelRun handles POST /api/runs/{id}/cancel
func (h *Handler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	run, err := h.service.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleDeleteRun handles DELETE /api/runs/{id}
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListProblems handles GET /api/problems
func (h *Handler) HandleListProblems(w http.ResponseWriter, r *http.Request) {
	names := deuteron.ProblemNames()
	problems := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		p, err := deuteron.Lookup(name)
		if err != nil {
			continue
		}
		problems = append(problems, map[string]interface{}{
			"name":       p.Name,
			"kernel":     p.Kernel.Name,
			"arity":      p.Kernel.Arity,
			"terms":      p.Observable.TermCount(),
			"observable": p.Observable.String(),
			"initial":    p.Initial.Floats(),
			"options":    p.Options,
		})
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"problems": problems,
		"count":    len(problems),
	}))
}

// HandleListOptimizers handles GET /api/optimizers
func (h *Handler) HandleListOptimizers(w http.ResponseWriter, r *http.Request) {
	available := optimization.Available()
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"optimizers": available,
		"count":      len(available),
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeError maps service errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error().Err(err).Msg("Run request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
