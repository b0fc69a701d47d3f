// Package subscription routes list-manager subscription webhooks to
// per-mode handlers and manages webhook configurations.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
)

// ErrUnknownMode is returned when a configuration references a mode no
// handler is registered for.
var ErrUnknownMode = errors.New("unknown webhook mode")

// Result is the structured outcome of handling one subscription event.
type Result struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Mode    domain.Mode `json:"mode"`

	JobID   string `json:"job_id,omitempty"`
	EntryID string `json:"drip_id,omitempty"`

	EmailSteps    int `json:"email_steps,omitempty"`
	WhatsAppSteps int `json:"whatsapp_steps,omitempty"`
}

// Handler implements one webhook mode.
type Handler interface {
	// Mode returns the mode tag this handler serves.
	Mode() domain.Mode

	// ValidateConfig checks a configuration before it is persisted.
	// Returns human-readable problems; empty means valid.
	ValidateConfig(config *WebhookConfig) []string

	// HandleSubscription reacts to one subscribe event. A returned error
	// is an internal failure; expected rejections (missing phone number)
	// come back as an error-status Result.
	HandleSubscription(ctx context.Context, sub domain.Subscriber, config *WebhookConfig) (*Result, error)
}

// Registry maps mode tags to handlers. Lookup of an unregistered mode is
// an explicit error, never a silent fallback.
type Registry struct {
	handlers map[domain.Mode]Handler
}

// NewRegistry creates a registry over the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[domain.Mode]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Mode()] = h
	}
	return r
}

// Get returns the handler for a mode, or ErrUnknownMode.
func (r *Registry) Get(mode domain.Mode) (Handler, error) {
	h, ok := r.handlers[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return h, nil
}

// Modes lists the registered mode tags.
func (r *Registry) Modes() []domain.Mode {
	modes := make([]domain.Mode, 0, len(r.handlers))
	for mode := range r.handlers {
		modes = append(modes, mode)
	}
	return modes
}
