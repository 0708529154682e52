package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all quantum backend routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/quantum", func(r chi.Router) {
		r.Get("/kernels", h.HandleListKernels)
		r.Post("/state", h.HandlePrepareState)
		r.Post("/expectation", h.HandleMeasureExpectation)
	})
}
