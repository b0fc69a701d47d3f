package drip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
	"github.com/kwetu-labs/whatsdrip/internal/store"
)

const (
	// DefaultRetryBackoff is the fixed interval before a failed step is
	// attempted again.
	DefaultRetryBackoff = 5 * time.Minute

	// DefaultRetention is how long completed entries stay in the queue
	// document, measured from enrollment.
	DefaultRetention = 30 * 24 * time.Hour
)

// ProcessorConfig contains processor configuration for one queue.
type ProcessorConfig struct {
	// QueueName is the durable document the queue lives in, e.g.
	// "hybrid_queue".
	QueueName string

	// RetryBackoff delays the next attempt after a send failure.
	// Zero means DefaultRetryBackoff.
	RetryBackoff time.Duration

	// MaxAttempts is the retry ceiling for a single step. After this many
	// consecutive failures the entry is marked failed and never retried.
	// Zero means unbounded.
	MaxAttempts int

	// Retention bounds how long completed entries are kept.
	// Zero means DefaultRetention.
	Retention time.Duration
}

// ChannelCounters splits send outcomes by delivery channel.
type ChannelCounters struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Result aggregates one processing pass.
type Result struct {
	Scanned   int                                `json:"scanned"`
	Processed int                                `json:"processed"`
	Sent      int                                `json:"sent"`
	Failed    int                                `json:"failed"`
	Completed int                                `json:"completed"`
	Removed   int                                `json:"removed"`
	ByChannel map[domain.Channel]ChannelCounters `json:"by_channel"`
}

// Processor walks a queue document and advances due entries by at most one
// step each. All mutation happens in memory; the document is written back
// once at the end of the pass.
type Processor struct {
	config  ProcessorConfig
	store   store.Store
	locker  store.Locker
	senders map[domain.Channel]Sender
	now     func() time.Time
}

// NewProcessor creates a queue processor. The senders map must cover every
// channel the queue's sequences use.
func NewProcessor(config ProcessorConfig, st store.Store, locker store.Locker, senders map[domain.Channel]Sender) *Processor {
	if config.RetryBackoff == 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.Retention == 0 {
		config.Retention = DefaultRetention
	}
	return &Processor{
		config:  config,
		store:   st,
		locker:  locker,
		senders: senders,
		now:     time.Now,
	}
}

// WithClock overrides the processor's time source. Used in tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// QueueName returns the durable document name this processor owns.
func (p *Processor) QueueName() string {
	return p.config.QueueName
}

// ProcessPass runs one full pass: load, advance due entries, sweep expired
// completed entries, save. The pass holds the queue lock for its whole
// duration so overlapping invocations cannot double-send.
func (p *Processor) ProcessPass(ctx context.Context) (*Result, error) {
	start := p.now()
	logger := ctxlog.FromContext(ctx).With("queue", p.config.QueueName)

	release, err := p.locker.Acquire(ctx, p.config.QueueName)
	if err != nil {
		return nil, fmt.Errorf("acquire queue lock: %w", err)
	}
	defer release()

	result := &Result{ByChannel: map[domain.Channel]ChannelCounters{}}

	queue := Queue{}
	if err := p.store.Load(ctx, p.config.QueueName, &queue); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Nothing enrolled yet. Not an error.
			return result, nil
		}
		return nil, fmt.Errorf("load queue: %w", err)
	}

	result.Scanned = len(queue)
	now := p.now()

	for _, entry := range queue {
		if entry.Status != StatusActive {
			continue
		}
		if !entry.Due(now) {
			continue
		}

		result.Processed++
		p.processEntry(ctx, logger, entry, now, result)
	}

	result.Removed = p.sweep(queue, now)

	if err := p.store.Save(ctx, p.config.QueueName, queue); err != nil {
		logger.Error("queue save failed, pass progress lost", "error", err)
		return result, fmt.Errorf("save queue: %w", err)
	}

	recordPass(p.config.QueueName, result, p.now().Sub(start))
	RecordQueueDepth(p.config.QueueName, CollectStats(queue))

	logger.Info("queue pass complete",
		"scanned", result.Scanned,
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
		"completed", result.Completed,
		"removed", result.Removed,
	)
	return result, nil
}

func (p *Processor) processEntry(ctx context.Context, logger *slog.Logger, entry *Entry, now time.Time, result *Result) {
	if err := entry.CheckInvariant(); err != nil {
		logger.Error("entry bookkeeping corrupt, skipping", "entry_id", entry.ID, "error", err)
		result.Processed--
		return
	}

	// Entries past their sequence should already be completed.
	if entry.CurrentStep >= len(entry.Sequence) {
		entry.Status = StatusCompleted
		entry.NextSendAt = nil
		result.Completed++
		return
	}

	step := entry.Sequence[entry.CurrentStep]
	channel := step.Channel.Normalized()

	sender, ok := p.senders[channel]
	if !ok {
		// Configuration mismatch. The entry is left untouched so a fixed
		// deployment can pick it up again.
		logger.Error("no sender for channel, entry untouched",
			"entry_id", entry.ID,
			"channel", channel,
		)
		result.Processed--
		return
	}

	sendStart := p.now()
	err := sender.Send(ctx, entry, step)
	recordSendDuration(p.config.QueueName, string(channel), p.now().Sub(sendStart))

	entry.LastProcessed = &now

	if err != nil {
		p.handleSendFailure(logger, entry, step, channel, now, err, result)
		return
	}

	entry.CompletedSteps = append(entry.CompletedSteps, entry.CurrentStep)
	entry.CurrentStep++
	entry.Attempts = 0
	entry.LastError = ""

	result.Sent++
	counters := result.ByChannel[channel]
	counters.Sent++
	result.ByChannel[channel] = counters
	recordSend(p.config.QueueName, string(channel), "success")

	if entry.CurrentStep < len(entry.Sequence) {
		due := now.Add(entry.Sequence[entry.CurrentStep].NormalizedDelay())
		entry.NextSendAt = &due
		logger.Debug("entry advanced",
			"entry_id", entry.ID,
			"current_step", entry.CurrentStep,
			"next_send_at", due,
		)
		return
	}

	entry.Status = StatusCompleted
	entry.NextSendAt = nil
	result.Completed++
	logger.Info("entry completed sequence", "entry_id", entry.ID, "steps", len(entry.Sequence))
}

func (p *Processor) handleSendFailure(logger *slog.Logger, entry *Entry, step domain.Step, channel domain.Channel, now time.Time, err error, result *Result) {
	entry.Attempts++
	entry.LastError = err.Error()

	result.Failed++
	counters := result.ByChannel[channel]
	counters.Failed++
	result.ByChannel[channel] = counters

	if p.config.MaxAttempts > 0 && entry.Attempts >= p.config.MaxAttempts {
		entry.Status = StatusFailed
		entry.NextSendAt = nil
		recordSend(p.config.QueueName, string(channel), "dead_letter")
		logger.Error("entry exhausted retry ceiling",
			"entry_id", entry.ID,
			"step", step.Name,
			"attempts", entry.Attempts,
			"error", err,
		)
		return
	}

	retry := now.Add(p.config.RetryBackoff)
	entry.NextSendAt = &retry
	recordSend(p.config.QueueName, string(channel), "retry")
	logger.Warn("send failed, retry scheduled",
		"entry_id", entry.ID,
		"step", step.Name,
		"attempt", entry.Attempts,
		"retry_at", retry,
		"error", err,
	)
}

// sweep removes completed entries whose enrollment is older than the
// retention window. Active and failed entries are kept regardless of age.
func (p *Processor) sweep(queue Queue, now time.Time) int {
	removed := 0
	for id, entry := range queue {
		if entry.Status != StatusCompleted {
			continue
		}
		if now.Sub(entry.SubscribedAt) > p.config.Retention {
			delete(queue, id)
			removed++
		}
	}
	return removed
}

// Enroll appends a new entry to the queue document under the pass lock.
func (p *Processor) Enroll(ctx context.Context, sub domain.Subscriber, sequence []domain.Step) (*Entry, error) {
	release, err := p.locker.Acquire(ctx, p.config.QueueName)
	if err != nil {
		return nil, fmt.Errorf("acquire queue lock: %w", err)
	}
	defer release()

	queue := Queue{}
	if err := p.store.Load(ctx, p.config.QueueName, &queue); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	entry := NewEntry(sub, sequence, p.now())
	queue[entry.ID] = entry

	if err := p.store.Save(ctx, p.config.QueueName, queue); err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}

	ctxlog.FromContext(ctx).Info("subscriber enrolled",
		"queue", p.config.QueueName,
		"entry_id", entry.ID,
		"steps", len(sequence),
	)
	return entry, nil
}

// Stats aggregates the current queue document without mutating it.
func (p *Processor) Stats(ctx context.Context) (*Stats, error) {
	queue := Queue{}
	if err := p.store.Load(ctx, p.config.QueueName, &queue); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return CollectStats(queue), nil
}
