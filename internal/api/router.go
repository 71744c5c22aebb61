package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all API endpoints
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Health)
	r.Get("/filters", h.Filters)

	// Job lifecycle
	r.Post("/upload", h.Upload)
	r.Post("/process", h.Process)
	r.Get("/status/{id}", h.Status)
	r.Get("/download/{id}", h.Download)
	r.Delete("/cleanup/{id}", h.Cleanup)

	// Observation
	r.Get("/jobs", h.ListJobs)
	r.Get("/events", h.JobStream)

	return r
}
