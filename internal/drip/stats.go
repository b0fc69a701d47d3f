package drip

import "github.com/kwetu-labs/whatsdrip/internal/domain"

// Stats is a read-only aggregation of a queue document.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	// RemainingSteps sums not-yet-sent steps across active entries.
	RemainingSteps int `json:"remaining_steps"`

	// RemainingByChannel splits the remaining steps by delivery channel.
	RemainingByChannel map[domain.Channel]int `json:"remaining_by_channel"`
}

// CollectStats computes queue statistics. Pure function of the document.
func CollectStats(queue Queue) *Stats {
	stats := &Stats{
		Total:              len(queue),
		RemainingByChannel: map[domain.Channel]int{},
	}

	for _, entry := range queue {
		switch entry.Status {
		case StatusActive:
			stats.Active++
			stats.RemainingSteps += entry.RemainingSteps()
			for i := entry.CurrentStep; i < len(entry.Sequence); i++ {
				channel := entry.Sequence[i].Channel.Normalized()
				stats.RemainingByChannel[channel]++
			}
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}

	return stats
}
