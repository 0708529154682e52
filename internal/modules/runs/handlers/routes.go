package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all run routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/problems", h.HandleListProblems)
	r.Get("/optimizers", h.HandleListOptimizers)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.HandleStartRun)
		r.Get("/", h.HandleListRuns)
		r.Get("/{id}", h.HandleGetRun)
		r.Delete("/{id}", h.HandleDeleteRun)
		r.Post("/{id}/cancel", h.HandleCancelRun)
		r.Get("/{id}/history", h.HandleGetHistory)
		r.Get("/{id}/parameters", h.HandleGetParameters)
		r.Get("/{id}/energies", h.HandleGetEnergies)
		r.Get("/{id}/stream", h.HandleStreamRun)
	})
}
