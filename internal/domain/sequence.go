package domain

import (
	"fmt"
	"time"
)

// Step is a single entry in a drip sequence. WhatsApp steps reference a
// provider template; email steps carry the campaign content inline.
type Step struct {
	Name       string   `json:"name,omitempty"`
	Channel    Channel  `json:"channel"`
	TemplateID string   `json:"template_id,omitempty"`
	Params     []string `json:"params,omitempty"`

	Subject     string `json:"subject,omitempty"`
	FromName    string `json:"from_name,omitempty"`
	FromEmail   string `json:"from_email,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
	HTMLText    string `json:"html_text,omitempty"`
	PlainText   string `json:"plain_text,omitempty"`
	QueryString string `json:"query_string,omitempty"`
	ListID      string `json:"list_id,omitempty"`
	TrackOpens  *bool  `json:"track_opens,omitempty"`
	TrackClicks *bool  `json:"track_clicks,omitempty"`

	Delay     *int      `json:"delay,omitempty"`
	DelayUnit DelayUnit `json:"delay_unit,omitempty"`
	// DelayMinutes is the legacy single-unit encoding. When set it takes
	// precedence and DelayUnit is ignored entirely.
	DelayMinutes *int `json:"delay_minutes,omitempty"`
}

// NormalizedDelay converts the step delay to a duration. Legacy
// delay_minutes wins over delay/delay_unit. A missing unit means days.
// Sequences are validated at configuration-save time, so an unknown unit
// here falls back to days instead of failing the send path.
func (s Step) NormalizedDelay() time.Duration {
	if s.DelayMinutes != nil {
		return time.Duration(*s.DelayMinutes) * time.Minute
	}

	delay := 0
	if s.Delay != nil {
		delay = *s.Delay
	}

	unit := s.DelayUnit.Normalized()
	if unit == "" {
		unit = UnitDays
	}

	perUnit, ok := minutesPerUnit[unit]
	if !ok {
		perUnit = minutesPerUnit[UnitDays]
	}

	return time.Duration(delay*perUnit) * time.Minute
}

// TracksOpens reports whether open tracking is on for this step.
// Unset means on.
func (s Step) TracksOpens() bool {
	return s.TrackOpens == nil || *s.TrackOpens
}

// TracksClicks reports whether click tracking is on for this step.
// Unset means on.
func (s Step) TracksClicks() bool {
	return s.TrackClicks == nil || *s.TrackClicks
}

// ValidateSequence checks a raw sequence definition and returns a list of
// human-readable errors. An empty result means the sequence is valid.
// Validation runs once at configuration-save time, never at send time.
func ValidateSequence(steps []Step) []string {
	if len(steps) == 0 {
		return []string{"sequence cannot be empty"}
	}

	var errs []string
	for i, step := range steps {
		errs = append(errs, validateStep(i, step)...)
	}
	return errs
}

func validateStep(index int, step Step) []string {
	var errs []string

	switch {
	case step.Channel == "":
		errs = append(errs, fmt.Sprintf("step %d: missing channel (email or whatsapp)", index))
	case !step.Channel.IsValid():
		errs = append(errs, fmt.Sprintf("step %d: invalid channel %q, must be 'email' or 'whatsapp'", index, step.Channel))
	case step.Channel.Normalized() == ChannelWhatsApp && step.TemplateID == "":
		errs = append(errs, fmt.Sprintf("step %d: whatsapp step missing template_id", index))
	case step.Channel.Normalized() == ChannelEmail && step.Subject == "":
		errs = append(errs, fmt.Sprintf("step %d: email step missing subject", index))
	}

	// Legacy encoding bypasses delay/delay_unit entirely.
	if step.DelayMinutes != nil {
		if *step.DelayMinutes < 0 {
			errs = append(errs, fmt.Sprintf("step %d: delay_minutes must be non-negative", index))
		}
		return errs
	}

	switch {
	case step.Delay == nil:
		errs = append(errs, fmt.Sprintf("step %d: missing delay", index))
	case *step.Delay < 0:
		errs = append(errs, fmt.Sprintf("step %d: delay must be non-negative", index))
	}

	if step.DelayUnit != "" && !step.DelayUnit.IsValid() {
		errs = append(errs, fmt.Sprintf("step %d: invalid delay_unit %q", index, step.DelayUnit))
	}

	return errs
}

// HasWhatsAppStep reports whether any step in the sequence delivers over
// WhatsApp. Such sequences require a subscriber phone number.
func HasWhatsAppStep(steps []Step) bool {
	for _, step := range steps {
		if step.Channel.Normalized() == ChannelWhatsApp {
			return true
		}
	}
	return false
}
