package subscription

import (
	"context"

	"github.com/kwetu-labs/whatsdrip/internal/beem"
	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
)

// TemplateSender is the WhatsApp delivery surface handlers need.
type TemplateSender interface {
	SendTemplate(ctx context.Context, phone, templateID string, params []string) (*beem.SendResult, error)
}

// SingleMessageHandler sends one WhatsApp template immediately on
// subscription. The original integration behavior.
type SingleMessageHandler struct {
	sender TemplateSender
}

func NewSingleMessageHandler(sender TemplateSender) *SingleMessageHandler {
	return &SingleMessageHandler{sender: sender}
}

func (h *SingleMessageHandler) Mode() domain.Mode {
	return domain.ModeSingle
}

func (h *SingleMessageHandler) ValidateConfig(config *WebhookConfig) []string {
	if config.TemplateID == "" {
		return []string{"template_id is required for single mode"}
	}
	return nil
}

func (h *SingleMessageHandler) HandleSubscription(ctx context.Context, sub domain.Subscriber, config *WebhookConfig) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if sub.Phone == "" {
		logger.Warn("single mode subscription without phone number", "email", sub.Email)
		return &Result{
			Status:  "error",
			Message: "Phone number is required",
			Mode:    h.Mode(),
		}, nil
	}

	result, err := h.sender.SendTemplate(ctx, sub.Phone, config.TemplateID, []string{})
	if err != nil {
		logger.Error("single mode send failed", "email", sub.Email, "error", err)
		return &Result{
			Status:  "error",
			Message: "Failed to send WhatsApp message",
			Mode:    h.Mode(),
		}, nil
	}

	logger.Info("single mode message sent", "email", sub.Email, "job_id", result.JobID)
	return &Result{
		Status:  "success",
		Message: "WhatsApp message sent",
		Mode:    h.Mode(),
		JobID:   result.JobID,
	}, nil
}
