package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/sessionbook/libs/db"
	"github.com/md-rashed-zaman/sessionbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/sessionbook/libs/otel"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	TopicPrefix string
	PollEvery   time.Duration
	BatchSize   int
}

type Publisher struct {
	db          db.Beginner
	repo        *Repository
	writer      MessageWriter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	topicPrefix string
	pollEvery   time.Duration
	batchSize   int
}

// NewPublisher relays outbox rows through writer. A nil writer disables
// publishing; rows then accumulate until a broker is configured.
func NewPublisher(pool db.Beginner, repo *Repository, writer MessageWriter, logger *slog.Logger, m *metrics.Metrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:          pool,
		repo:        repo,
		writer:      writer,
		logger:      logger,
		metrics:     m,
		topicPrefix: cfg.TopicPrefix,
		pollEvery:   cfg.PollEvery,
		batchSize:   cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			p.metrics.ObserveOutbox(n, err)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			} else if n > 0 {
				p.logger.Debug("outbox published", "count", n)
			}
		}
	}
}

// PublishBatch relays one batch and marks it published in the same
// transaction that claimed it. A failed write leaves every row of the batch
// unpublished, so consumers must tolerate redelivery by event_id.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}
		msgs = append(msgs, kafka.Message{
			Topic:   p.topicPrefix + r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
		})
		ids = append(ids, r.ID)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(records), nil
}
