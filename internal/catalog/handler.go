// Package catalog exposes the provider catalogs the configuration UI needs:
// email brands and lists, WhatsApp templates, and per-subscriber status.
package catalog

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kwetu-labs/whatsdrip/internal/beem"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/httputil"
	"github.com/kwetu-labs/whatsdrip/internal/sendy"
)

// EmailCatalog is the listing surface of the email provider client.
type EmailCatalog interface {
	Brands(ctx context.Context) ([]sendy.Brand, error)
	Lists(ctx context.Context, brandID string) ([]sendy.List, error)
	SubscriberStatus(ctx context.Context, email, listID string) (string, error)
}

// TemplateCatalog is the template listing surface of the WhatsApp client.
type TemplateCatalog interface {
	Templates(ctx context.Context) ([]beem.Template, error)
}

// Handler handles catalog HTTP requests.
type Handler struct {
	email     EmailCatalog
	templates TemplateCatalog
}

// NewHandler creates a catalog handler.
func NewHandler(email EmailCatalog, templates TemplateCatalog) *Handler {
	return &Handler{email: email, templates: templates}
}

// RegisterRoutes registers catalog routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/brands", h.ListBrands)
	r.Get("/lists", h.ListLists)
	r.Get("/templates", h.ListTemplates)
	r.Get("/subscribers/status", h.SubscriberStatus)
}

// ListBrands handles GET /brands.
func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.email.Brands(r.Context())
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("brand listing failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "email provider unavailable")
		return
	}
	httputil.JSON(w, http.StatusOK, brands)
}

// ListLists handles GET /lists?brand_id=X.
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	brandID := r.URL.Query().Get("brand_id")
	if brandID == "" {
		httputil.Error(w, http.StatusBadRequest, "missing brand_id parameter")
		return
	}

	lists, err := h.email.Lists(r.Context(), brandID)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("list listing failed", "brand_id", brandID, "error", err)
		httputil.Error(w, http.StatusBadGateway, "email provider unavailable")
		return
	}
	httputil.JSON(w, http.StatusOK, lists)
}

// ListTemplates handles GET /templates. Only enabled, approved WhatsApp
// templates are returned.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.Templates(r.Context())
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("template listing failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "whatsapp provider unavailable")
		return
	}
	httputil.JSON(w, http.StatusOK, templates)
}

// SubscriberStatus handles GET /subscribers/status?email=X&list_id=Y.
func (h *Handler) SubscriberStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	listID := r.URL.Query().Get("list_id")
	if email == "" || listID == "" {
		httputil.Error(w, http.StatusBadRequest, "missing email or list_id parameter")
		return
	}

	status, err := h.email.SubscriberStatus(r.Context(), email, listID)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("subscriber status lookup failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "email provider unavailable")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"list_id": listID,
		"status":  status,
	})
}
