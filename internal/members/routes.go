package members

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the member admin routes. protect guards every route
// that changes data or takes the reconcile lock.
func SetupRoutes(h *Handler, protect func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/{externalID}", h.GetMember)

	// Admin routes
	r.Group(func(r chi.Router) {
		if protect != nil {
			r.Use(protect)
		}
		r.Post("/import", h.StartImport)
		r.Get("/import", h.ListImports)
		r.Get("/import/{jobID}", h.GetImportStatus)
		r.Delete("/import/{jobID}", h.CancelImport)
		r.Post("/reconcile", h.Reconcile)
		r.Get("/duplicates", h.ListDuplicates)
		r.Get("/near-duplicates", h.ListNearDuplicates)
	})

	return r
}
