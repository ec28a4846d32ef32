// Package events drains the status event outbox. State transitions enqueue
// events inside the settlement transaction; the poller here publishes them
// to Kafka afterwards, so collaborators see an event exactly when the
// transition committed.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asoud/payment-core/internal/domain/outbox"
	"github.com/asoud/payment-core/internal/platform/messaging/producers"
)

// EventPublisher publishes one outbox message to the status topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// KafkaEventPublisher implements EventPublisher on the status event producer
type KafkaEventPublisher struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewKafkaEventPublisher creates a new publisher
func NewKafkaEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &KafkaEventPublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent decodes the stored status event, publishes it keyed by
// transaction id, and marks the outbox message processed. A payload that
// cannot be decoded is marked FAILED_TO_PUBLISH immediately; retrying it
// can never succeed.
func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil {
		p.logger.Error("Failed to decode status event from outbox payload",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark outbox message FAILED_TO_PUBLISH after decode error",
				"outbox_id", message.ID, "update_error", updateErr,
			)
		}
		return fmt.Errorf("decode payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.producer.Publish(ctx, event.TransactionID.String(), event); err != nil {
		return fmt.Errorf("failed to publish status event for outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusProcessed); err != nil {
		logger.Error("Status event published but failed to mark outbox message PROCESSED",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		return fmt.Errorf("publish for %s OK, but failed to mark outbox %d as PROCESSED: %w", message.TransactionID, message.ID, err)
	}

	logger.Info("Status event published",
		"outbox_id", message.ID,
		"transaction_id", message.TransactionID,
		"status", event.Status,
	)
	return nil
}
