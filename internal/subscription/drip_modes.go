package subscription

import (
	"context"
	"fmt"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/drip"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
)

// Enroller adds a subscriber to a delayed-send queue.
type Enroller interface {
	Enroll(ctx context.Context, sub domain.Subscriber, sequence []domain.Step) (*drip.Entry, error)
}

// DripSequenceHandler enrolls subscribers into a WhatsApp-only sequence.
type DripSequenceHandler struct {
	queue Enroller
}

func NewDripSequenceHandler(queue Enroller) *DripSequenceHandler {
	return &DripSequenceHandler{queue: queue}
}

func (h *DripSequenceHandler) Mode() domain.Mode {
	return domain.ModeDrip
}

func (h *DripSequenceHandler) ValidateConfig(config *WebhookConfig) []string {
	errs := domain.ValidateSequence(config.Sequence)
	for i, step := range config.Sequence {
		if step.Channel.Normalized() != domain.ChannelWhatsApp {
			errs = append(errs, fmt.Sprintf("step %d: drip_sequence steps must use the whatsapp channel", i))
		}
	}
	return errs
}

func (h *DripSequenceHandler) HandleSubscription(ctx context.Context, sub domain.Subscriber, config *WebhookConfig) (*Result, error) {
	if sub.Phone == "" {
		ctxlog.FromContext(ctx).Warn("drip subscription without phone number", "email", sub.Email)
		return &Result{
			Status:  "error",
			Message: "Phone number is required",
			Mode:    h.Mode(),
		}, nil
	}

	entry, err := h.queue.Enroll(ctx, sub, config.Sequence)
	if err != nil {
		return nil, fmt.Errorf("enroll drip sequence: %w", err)
	}

	return &Result{
		Status:  "success",
		Message: fmt.Sprintf("Drip sequence queued with %d steps", len(config.Sequence)),
		Mode:    h.Mode(),
		EntryID: entry.ID,
	}, nil
}

// HybridDripHandler enrolls subscribers into a sequence mixing email and
// WhatsApp steps.
type HybridDripHandler struct {
	queue Enroller
}

func NewHybridDripHandler(queue Enroller) *HybridDripHandler {
	return &HybridDripHandler{queue: queue}
}

func (h *HybridDripHandler) Mode() domain.Mode {
	return domain.ModeHybrid
}

func (h *HybridDripHandler) ValidateConfig(config *WebhookConfig) []string {
	return domain.ValidateSequence(config.Sequence)
}

func (h *HybridDripHandler) HandleSubscription(ctx context.Context, sub domain.Subscriber, config *WebhookConfig) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	// A phone number is only mandatory when the sequence actually
	// delivers over WhatsApp.
	if domain.HasWhatsAppStep(config.Sequence) && sub.Phone == "" {
		logger.Warn("hybrid subscription without phone number", "email", sub.Email)
		return &Result{
			Status:  "error",
			Message: "Phone number is required for campaigns with WhatsApp steps",
			Mode:    h.Mode(),
		}, nil
	}

	entry, err := h.queue.Enroll(ctx, sub, config.Sequence)
	if err != nil {
		return nil, fmt.Errorf("enroll hybrid sequence: %w", err)
	}

	whatsapp := 0
	for _, step := range config.Sequence {
		if step.Channel.Normalized() == domain.ChannelWhatsApp {
			whatsapp++
		}
	}
	email := len(config.Sequence) - whatsapp

	logger.Info("hybrid sequence queued",
		"email", sub.Email,
		"steps", len(config.Sequence),
		"email_steps", email,
		"whatsapp_steps", whatsapp,
	)

	return &Result{
		Status:        "success",
		Message:       fmt.Sprintf("Hybrid drip sequence queued with %d steps (%d email, %d WhatsApp)", len(config.Sequence), email, whatsapp),
		Mode:          h.Mode(),
		EntryID:       entry.ID,
		EmailSteps:    email,
		WhatsAppSteps: whatsapp,
	}, nil
}
