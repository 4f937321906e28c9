package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tenxafrica/intake/internal/identity"
	"github.com/tenxafrica/intake/internal/tracking"
	"github.com/tenxafrica/intake/internal/validate"
)

type formSummary struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Stages      int    `json:"stages"`
}

// ListForms returns the forms this server runs.
func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	forms := make([]formSummary, 0, len(h.order))
	for _, slug := range h.order {
		def := h.engines[slug].Definition()
		forms = append(forms, formSummary{
			Slug:        def.Slug,
			Title:       def.Title,
			Description: def.Description,
			Stages:      def.StageCount(),
		})
	}
	JSON(w, http.StatusOK, map[string]any{"forms": forms})
}

// GetForm returns the public part of a form definition. Webhook endpoints
// and submission settings are not serialised.
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engines[chi.URLParam(r, "slug")]
	if !ok {
		Error(w, http.StatusNotFound, "form_not_found")
		return
	}
	JSON(w, http.StatusOK, eng.Definition())
}

// Countries lists the selectable phone regions.
func (h *Handler) Countries(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"countries": validate.Regions(),
		"default":   h.opts.DefaultCountry,
	})
}

// CreateSession starts a session of a form. Tracking parameters and field
// prefills are read from the query string.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	eng, ok := h.engines[slug]
	if !ok {
		Error(w, http.StatusNotFound, "form_not_found")
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	s := eng.NewSession(uuid.NewString(), visitorID)
	tracked, prefill := tracking.Capture(eng.Definition(), r.URL.RawQuery)
	tracking.Apply(s, tracked, prefill)

	if err := h.repo.SaveSession(r.Context(), s); err != nil {
		slog.Error("Failed to save session", "error", err, "form", slug)
		Error(w, http.StatusInternalServerError, "save_failed")
		return
	}

	slog.Info("Session started", "session_id", s.ID, "form", slug, "visitor_id", visitorID, "tracked", len(tracked))
	JSON(w, http.StatusCreated, eng.View(s))
}
