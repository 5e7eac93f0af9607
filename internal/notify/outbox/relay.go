package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"memberships/internal/notify"
)

// Publisher delivers one message downstream.
type Publisher interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// Source is the relay's view of an outbox store.
type Source interface {
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, entryID uuid.UUID) error
}

// Relay polls the outbox and publishes pending messages in order. A failed
// publish ends the batch so later messages never overtake it.
type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(source Source, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		interval:  2 * time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and reports how many messages went out.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	entries, err := r.source.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	r.metrics.SetBacklog(len(entries))

	var (
		published  []uuid.UUID
		publishErr error
	)
	for _, e := range entries {
		if err := r.publisher.Publish(ctx, e.Message); err != nil {
			r.metrics.ObservePublish(e.Message.Kind, err)
			if markErr := r.source.MarkFailed(ctx, e.ID); markErr != nil {
				r.logger.WarnContext(ctx, "failed to record outbox attempt", "entry_id", e.ID, "error", markErr)
			}
			publishErr = err
			break
		}
		r.metrics.ObservePublish(e.Message.Kind, nil)
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := r.source.MarkPublished(ctx, published, time.Now()); err != nil {
			return 0, err
		}
		r.logger.DebugContext(ctx, "outbox relayed", "count", len(published))
	}
	return len(published), publishErr
}
