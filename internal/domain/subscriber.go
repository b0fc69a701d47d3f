package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Subscriber is the destination identity delivered by the list manager's
// subscription webhook.
type Subscriber struct {
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Name   string `json:"name,omitempty"`
	ListID string `json:"list_id"`
}

var titleCaser = cases.Title(language.English)

// DisplayName returns the subscriber's name, falling back to a title-cased
// rendering of the email local part.
func (s Subscriber) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Email != "" {
		local, _, _ := strings.Cut(s.Email, "@")
		local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
		if local != "" {
			return titleCaser.String(local)
		}
	}
	return "Subscriber"
}

// NormalizePhone strips everything except digits and a leading plus sign,
// then prepends the plus if it is absent. Returns an empty string when no
// digits remain.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
