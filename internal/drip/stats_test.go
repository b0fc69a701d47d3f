package drip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
)

func TestCollectStatsEmpty(t *testing.T) {
	stats := CollectStats(Queue{})

	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Active)
	assert.Zero(t, stats.RemainingSteps)
	assert.Empty(t, stats.RemainingByChannel)
}

func TestCollectStats(t *testing.T) {
	now := time.Now()

	queue := Queue{
		"active-1": {
			ID: "active-1", Status: StatusActive,
			SubscribedAt: now,
			Sequence: []domain.Step{
				whatsappStep("1", 0),
				emailStep("Hi", 60),
				whatsappStep("2", 60),
			},
			CurrentStep:    1,
			CompletedSteps: []int{0},
		},
		"active-2": {
			ID: "active-2", Status: StatusActive,
			SubscribedAt:   now,
			Sequence:       []domain.Step{whatsappStep("1", 0)},
			CurrentStep:    0,
			CompletedSteps: []int{},
		},
		"done": {
			ID: "done", Status: StatusCompleted,
			SubscribedAt:   now,
			Sequence:       []domain.Step{whatsappStep("1", 0)},
			CurrentStep:    1,
			CompletedSteps: []int{0},
		},
		"dead": {
			ID: "dead", Status: StatusFailed,
			SubscribedAt:   now,
			Sequence:       []domain.Step{emailStep("Bye", 0)},
			CurrentStep:    0,
			CompletedSteps: []int{},
		},
	}

	stats := CollectStats(queue)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.RemainingSteps)
	assert.Equal(t, 2, stats.RemainingByChannel[domain.ChannelWhatsApp])
	assert.Equal(t, 1, stats.RemainingByChannel[domain.ChannelEmail])
}
