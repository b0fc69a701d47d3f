package drip

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kwetu-labs/whatsdrip/internal/beem"
	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/sendy"
)

// Sender delivers a single sequence step to a subscriber. Any returned
// error counts as a send failure and schedules a retry.
type Sender interface {
	Send(ctx context.Context, entry *Entry, step domain.Step) error
}

// TemplateSender is the WhatsApp template delivery surface of the Beem
// client.
type TemplateSender interface {
	SendTemplate(ctx context.Context, phone, templateID string, params []string) (*beem.SendResult, error)
}

// WhatsAppSender delivers whatsapp-channel steps via template broadcast.
type WhatsAppSender struct {
	client TemplateSender
}

func NewWhatsAppSender(client TemplateSender) *WhatsAppSender {
	return &WhatsAppSender{client: client}
}

func (s *WhatsAppSender) Send(ctx context.Context, entry *Entry, step domain.Step) error {
	if entry.Phone == "" {
		return fmt.Errorf("entry %s has no phone number for whatsapp step %q", entry.ID, step.Name)
	}

	params := step.Params
	if len(params) == 0 {
		// Most templates take the subscriber name as their only
		// placeholder.
		params = []string{entry.Subscriber().DisplayName()}
	}

	result, err := s.client.SendTemplate(ctx, entry.Phone, step.TemplateID, params)
	if err != nil {
		return err
	}

	slog.Info("whatsapp step delivered",
		"entry_id", entry.ID,
		"step", step.Name,
		"job_id", result.JobID,
	)
	return nil
}

// CampaignSender is the campaign-trigger surface of the Sendy client.
type CampaignSender interface {
	CreateCampaign(ctx context.Context, campaign sendy.Campaign) (*sendy.CreateCampaignResult, error)
}

// EmailSender delivers email-channel steps by creating a one-off campaign
// targeted at the entry's list, with subscriber markers substituted into
// subject and body.
type EmailSender struct {
	client CampaignSender
}

func NewEmailSender(client CampaignSender) *EmailSender {
	return &EmailSender{client: client}
}

func (s *EmailSender) Send(ctx context.Context, entry *Entry, step domain.Step) error {
	if step.Subject == "" {
		return fmt.Errorf("entry %s email step %q has no subject", entry.ID, step.Name)
	}

	name := entry.Subscriber().DisplayName()

	listID := step.ListID
	if listID == "" {
		listID = entry.ListID
	}

	campaign := sendy.Campaign{
		FromName:    step.FromName,
		FromEmail:   step.FromEmail,
		ReplyTo:     step.ReplyTo,
		Subject:     sendy.Personalize(step.Subject, name, entry.Email),
		HTMLText:    sendy.Personalize(step.HTMLText, name, entry.Email),
		PlainText:   sendy.Personalize(step.PlainText, name, entry.Email),
		QueryString: step.QueryString,
		ListID:      listID,
		TrackOpens:  step.TracksOpens(),
		TrackClicks: step.TracksClicks(),
	}

	result, err := s.client.CreateCampaign(ctx, campaign)
	if err != nil {
		return err
	}

	if !result.Sending {
		slog.Warn("email campaign created but not yet sending",
			"entry_id", entry.ID,
			"step", step.Name,
		)
	} else {
		slog.Info("email step delivered",
			"entry_id", entry.ID,
			"step", step.Name,
		)
	}
	return nil
}

// Subscriber rebuilds the domain subscriber view of the entry.
func (e *Entry) Subscriber() domain.Subscriber {
	return domain.Subscriber{
		Email:  e.Email,
		Phone:  e.Phone,
		Name:   e.Name,
		ListID: e.ListID,
	}
}
