package drip

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kwetu-labs/whatsdrip/internal/pkg/httputil"
)

// Handler exposes queue processing and statistics over HTTP.
type Handler struct {
	processors map[string]*Processor
}

// NewHandler creates a queue handler over the named processors. The map key
// is the queue family used in URLs, e.g. "drip" or "hybrid".
func NewHandler(processors map[string]*Processor) *Handler {
	return &Handler{processors: processors}
}

// RegisterRoutes registers queue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queues", func(r chi.Router) {
		r.Get("/", h.ListQueues)
		r.Post("/{queue}/process", h.Process)
		r.Get("/{queue}/stats", h.QueueStats)
	})
}

// ListQueues handles GET /queues.
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.processors))
	for name := range h.processors {
		names = append(names, name)
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"queues": names})
}

// Process handles POST /queues/{queue}/process. It runs one full pass
// synchronously and returns the pass counters.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	processor, ok := h.processors[chi.URLParam(r, "queue")]
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown queue")
		return
	}

	result, err := processor.ProcessPass(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "queue pass failed")
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// QueueStats handles GET /queues/{queue}/stats.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	processor, ok := h.processors[chi.URLParam(r, "queue")]
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown queue")
		return
	}

	stats, err := processor.Stats(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to load queue")
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
