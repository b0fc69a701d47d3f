// Package drip implements the delayed message queue: durable entries that
// walk a subscriber through an ordered sequence of email and WhatsApp
// sends, processed in idempotent batch passes.
package drip

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	// StatusFailed marks entries that exhausted the configured retry
	// ceiling. They keep their position for inspection and are never
	// retried automatically.
	StatusFailed Status = "failed"
)

// Entry is one subscriber's progress through a sequence.
type Entry struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Phone          string        `json:"phone,omitempty"`
	Name           string        `json:"name,omitempty"`
	ListID         string        `json:"list_id"`
	SubscribedAt   time.Time     `json:"subscribed_at"`
	Sequence       []domain.Step `json:"sequence"`
	CurrentStep    int           `json:"current_step"`
	CompletedSteps []int         `json:"completed_steps"`
	Status         Status        `json:"status"`
	NextSendAt     *time.Time    `json:"next_send_at,omitempty"`
	LastProcessed  *time.Time    `json:"last_processed,omitempty"`
	Attempts       int           `json:"attempts,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}

// Queue is a whole queue document keyed by entry id.
type Queue map[string]*Entry

// NewEntry enrolls a subscriber into a sequence. The first step becomes due
// after its own delay, so a zero-delay first step is due immediately.
func NewEntry(sub domain.Subscriber, sequence []domain.Step, now time.Time) *Entry {
	entry := &Entry{
		ID:             uuid.NewString(),
		Email:          sub.Email,
		Phone:          sub.Phone,
		Name:           sub.Name,
		ListID:         sub.ListID,
		SubscribedAt:   now,
		Sequence:       sequence,
		CurrentStep:    0,
		CompletedSteps: []int{},
		Status:         StatusActive,
	}
	if len(sequence) > 0 {
		due := now.Add(sequence[0].NormalizedDelay())
		entry.NextSendAt = &due
	} else {
		entry.Status = StatusCompleted
	}
	return entry
}

// Due reports whether the entry should be attempted at the given time.
// An active entry without a scheduled time is treated as due.
func (e *Entry) Due(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if e.NextSendAt == nil {
		return true
	}
	return !now.Before(*e.NextSendAt)
}

// CheckInvariant verifies the progress bookkeeping is internally
// consistent. A violation means the document was corrupted outside the
// processor.
func (e *Entry) CheckInvariant() error {
	if e.CurrentStep != len(e.CompletedSteps) {
		return fmt.Errorf("entry %s: current_step %d does not match %d completed steps",
			e.ID, e.CurrentStep, len(e.CompletedSteps))
	}
	return nil
}

// RemainingSteps returns how many steps the entry still has to send.
func (e *Entry) RemainingSteps() int {
	if e.CurrentStep >= len(e.Sequence) {
		return 0
	}
	return len(e.Sequence) - e.CurrentStep
}
