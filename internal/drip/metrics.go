package drip

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "whatsdrip"

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "entries",
			Help:      "Queue entries by status",
		},
		[]string{"queue", "status"},
	)

	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "sends_total",
			Help:      "Step delivery attempts by outcome",
		},
		[]string{"queue", "channel", "status"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "send_duration_seconds",
			Help:      "Time spent delivering one step",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"queue", "channel"},
	)

	passDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pass_duration_seconds",
			Help:      "Time spent in one full processing pass",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"queue"},
	)

	passEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pass_entries_total",
			Help:      "Entries evaluated per pass outcome",
		},
		[]string{"queue", "outcome"},
	)
)

func recordSend(queue, channel, status string) {
	sendsTotal.WithLabelValues(queue, channel, status).Inc()
}

func recordSendDuration(queue, channel string, duration time.Duration) {
	sendDuration.WithLabelValues(queue, channel).Observe(duration.Seconds())
}

func recordPass(queue string, result *Result, duration time.Duration) {
	passDuration.WithLabelValues(queue).Observe(duration.Seconds())
	passEntries.WithLabelValues(queue, "scanned").Add(float64(result.Scanned))
	passEntries.WithLabelValues(queue, "processed").Add(float64(result.Processed))
	passEntries.WithLabelValues(queue, "removed").Add(float64(result.Removed))
}

// RecordQueueDepth updates queue depth gauges from fresh statistics.
func RecordQueueDepth(queue string, stats *Stats) {
	queueDepth.WithLabelValues(queue, string(StatusActive)).Set(float64(stats.Active))
	queueDepth.WithLabelValues(queue, string(StatusCompleted)).Set(float64(stats.Completed))
	queueDepth.WithLabelValues(queue, string(StatusFailed)).Set(float64(stats.Failed))
}
