package subscription

import (
	"time"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
)

// WebhookConfig is one configured webhook: a routing token bound to a list
// and a delivery mode with its mode-specific settings.
type WebhookConfig struct {
	Token    string      `json:"token"`
	Name     string      `json:"webhook_name"`
	ListID   string      `json:"list_id"`
	ListName string      `json:"list_name"`
	Mode     domain.Mode `json:"mode"`

	// TemplateID is the single-mode WhatsApp template.
	TemplateID string `json:"template_id,omitempty"`

	// Sequence drives drip_sequence and hybrid_drip modes.
	Sequence []domain.Step `json:"sequence,omitempty"`

	// AutoresponderID and TemplateMap drive mirror_autoresponder mode.
	// TemplateMap maps autoresponder step numbers to WhatsApp templates.
	AutoresponderID string            `json:"autoresponder_id,omitempty"`
	TemplateMap     map[string]string `json:"template_map,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
