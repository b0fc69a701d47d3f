package subscription

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
	"github.com/kwetu-labs/whatsdrip/internal/store"
)

const subscriberCacheDoc = "subscriber_cache"

// CachedSubscriber is the contact info remembered at subscription time so
// later autoresponder triggers can resolve a phone number from an email.
type CachedSubscriber struct {
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	ListID    string    `json:"list_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutoresponderEvent is the payload of the email provider's autoresponder
// webhook.
type AutoresponderEvent struct {
	Email  string
	ListID string
	Step   int
}

// MirrorHandler implements mirror_autoresponder mode: nothing is sent on
// subscription, WhatsApp messages go out when the email provider fires its
// own autoresponder webhook.
type MirrorHandler struct {
	store  store.Store
	locker store.Locker
	sender TemplateSender
	now    func() time.Time
}

func NewMirrorHandler(st store.Store, locker store.Locker, sender TemplateSender) *MirrorHandler {
	return &MirrorHandler{
		store:  st,
		locker: locker,
		sender: sender,
		now:    time.Now,
	}
}

func (h *MirrorHandler) Mode() domain.Mode {
	return domain.ModeMirror
}

func (h *MirrorHandler) ValidateConfig(config *WebhookConfig) []string {
	var errs []string
	if config.AutoresponderID == "" {
		errs = append(errs, "autoresponder_id is required for mirror_autoresponder mode")
	}
	if len(config.TemplateMap) == 0 {
		errs = append(errs, "template_map cannot be empty for mirror_autoresponder mode")
	}
	return errs
}

func (h *MirrorHandler) HandleSubscription(ctx context.Context, sub domain.Subscriber, _ *WebhookConfig) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if sub.Phone == "" {
		logger.Warn("mirror subscription without phone number", "email", sub.Email)
		return &Result{
			Status:  "warning",
			Message: "Subscribed but phone number missing - autoresponder WhatsApp messages will fail",
			Mode:    h.Mode(),
		}, nil
	}

	if err := h.cacheSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("cache subscriber: %w", err)
	}

	logger.Info("mirror subscriber cached, waiting for autoresponder triggers", "email", sub.Email)
	return &Result{
		Status:  "success",
		Message: "Subscribed - WhatsApp will be sent when autoresponder triggers",
		Mode:    h.Mode(),
	}, nil
}

func (h *MirrorHandler) cacheSubscriber(ctx context.Context, sub domain.Subscriber) error {
	release, err := h.locker.Acquire(ctx, subscriberCacheDoc)
	if err != nil {
		return err
	}
	defer release()

	cache := map[string]CachedSubscriber{}
	if err := h.store.Load(ctx, subscriberCacheDoc, &cache); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	cache[sub.Email] = CachedSubscriber{
		Email:     sub.Email,
		Phone:     sub.Phone,
		Name:      sub.DisplayName(),
		ListID:    sub.ListID,
		UpdatedAt: h.now(),
	}

	return h.store.Save(ctx, subscriberCacheDoc, cache)
}

// HandleAutoresponderTrigger sends the WhatsApp template mapped to the
// triggered autoresponder step. The caller resolves the list's webhook
// configuration first.
func (h *MirrorHandler) HandleAutoresponderTrigger(ctx context.Context, event AutoresponderEvent, config *WebhookConfig) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if config.Mode != domain.ModeMirror {
		return &Result{
			Status:  "error",
			Message: "List not configured for autoresponder mirroring",
		}, nil
	}

	templateID, ok := config.TemplateMap[strconv.Itoa(event.Step)]
	if !ok || templateID == "" {
		logger.Warn("no template mapped for autoresponder step",
			"list_id", event.ListID,
			"step", event.Step,
		)
		return &Result{
			Status:  "error",
			Message: fmt.Sprintf("No WhatsApp template configured for autoresponder step %d", event.Step),
			Mode:    h.Mode(),
		}, nil
	}

	cache := map[string]CachedSubscriber{}
	if err := h.store.Load(ctx, subscriberCacheDoc, &cache); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load subscriber cache: %w", err)
	}

	sub, ok := cache[event.Email]
	if !ok || sub.Phone == "" {
		logger.Warn("no cached phone for autoresponder trigger", "email", event.Email)
		return &Result{
			Status:  "error",
			Message: "Phone number not found for subscriber",
			Mode:    h.Mode(),
		}, nil
	}

	result, err := h.sender.SendTemplate(ctx, sub.Phone, templateID, []string{})
	if err != nil {
		logger.Error("mirror send failed",
			"email", event.Email,
			"step", event.Step,
			"error", err,
		)
		return &Result{
			Status:  "error",
			Message: "Failed to send WhatsApp message",
			Mode:    h.Mode(),
		}, nil
	}

	logger.Info("mirrored autoresponder step",
		"email", event.Email,
		"step", event.Step,
		"job_id", result.JobID,
	)
	return &Result{
		Status:  "success",
		Message: "WhatsApp message sent",
		Mode:    h.Mode(),
		JobID:   result.JobID,
	}, nil
}
