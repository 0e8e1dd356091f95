package journals

import "github.com/go-chi/chi/v5"

// MountRoutes registers /api/journals endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Post)
	r.Post("/drafts", h.SaveDraft)
	r.Post("/drafts/{id}/post", h.PostDraft)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/void", h.Void)
}

// MountAccountRoutes registers ledger-derived endpoints under /api/accounts.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Get("/{id}/balance", h.Balance)
	r.Get("/{id}/ledger", h.Ledger)
}
