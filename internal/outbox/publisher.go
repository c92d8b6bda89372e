package outbox

import (
	"context"
	"time"

	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/adapters/rabbit"
	"github.com/jumpindia/funzone-pos/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 10
	maxAttempts  = 3
)

// Publisher drains unpublished outbox records into the events exchange.
// Records are locked FOR UPDATE SKIP LOCKED so multiple publishers may
// run side by side.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
			p.observeLag(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox records", err)
		return
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.publishWithRetry(ctx, rec.EventType, msg); err != nil {
			p.logger.Error("failed to publish outbox record", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
			p.logger.Error("failed to mark outbox record published", err)
		}
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}
		if err = p.rabbitPub.Publish(ctx, key, msg); err == nil {
			return nil
		}
	}
	return err
}

func (p *Publisher) observeLag(ctx context.Context) {
	age, err := p.repo.OldestUnpublishedAge(ctx, time.Now())
	if err != nil {
		return
	}
	observability.OutboxLag.Set(age.Seconds())
}
