package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		// Routing and answering
		r.Post("/answer", h.HandleAnswer)

		// Knowledge base maintenance
		r.Post("/kb/rebuild", h.HandleKBRebuild)
		r.Get("/kb/status", h.HandleKBStatus)

		// Recent routing decisions (requires the Postgres decision log)
		r.Get("/decisions", h.HandleDecisions)
	})
}
