// Package mongo stores the callback audit trail. Every settlement attempt,
// pushed or polled, leaves a document here with the raw provider payload
// and the outcome the core decided, so operators can investigate disputes
// without touching the transactional store.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/payment"
)

const (
	// CallbackCollectionName is the name of the callback archive collection
	CallbackCollectionName = "callback_records"
)

// callbackDocument is the stored shape of a callback record
type callbackDocument struct {
	TransactionID     uuid.UUID `bson:"transaction_id,omitempty"`
	Gateway           string    `bson:"gateway"`
	ExternalReference string    `bson:"external_reference,omitempty"`
	Source            string    `bson:"source"`
	Outcome           string    `bson:"outcome"`
	Detail            string    `bson:"detail,omitempty"`
	RawPayload        []byte    `bson:"raw_payload,omitempty"`
	CorrelationID     string    `bson:"correlation_id,omitempty"`
	ReceivedAt        time.Time `bson:"received_at"`
}

// CallbackArchive implements payment.CallbackArchiver backed by MongoDB
type CallbackArchive struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewCallbackArchive creates a new MongoDB callback archive
func NewCallbackArchive(logger *slog.Logger, db *mongo.Database) *CallbackArchive {
	return &CallbackArchive{
		db:     db,
		logger: logger,
	}
}

// Archive stores one callback record
func (a *CallbackArchive) Archive(ctx context.Context, rec *payment.CallbackRecord) error {
	collection := a.db.Collection(CallbackCollectionName)

	doc := callbackDocument{
		TransactionID:     rec.TransactionID,
		Gateway:           string(rec.Gateway),
		ExternalReference: rec.ExternalReference,
		Source:            string(rec.Source),
		Outcome:           rec.Outcome,
		Detail:            rec.Detail,
		RawPayload:        rec.RawPayload,
		CorrelationID:     rec.CorrelationID,
		ReceivedAt:        rec.ReceivedAt,
	}

	if _, err := collection.InsertOne(ctx, doc); err != nil {
		a.logger.Error("Failed to archive callback record",
			"transaction_id", rec.TransactionID.String(),
			"gateway", string(rec.Gateway),
			"error", err)
		return fmt.Errorf("failed to archive callback record: %w", err)
	}

	return nil
}

// ListByTransactionID retrieves the archived records for one transaction,
// newest first. Used by operators investigating a settlement.
func (a *CallbackArchive) ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*payment.CallbackRecord, error) {
	collection := a.db.Collection(CallbackCollectionName)

	filter := bson.M{"transaction_id": transactionID}
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		a.logger.Error("Failed to list callback records",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list callback records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []callbackDocument
	if err := cursor.All(ctx, &docs); err != nil {
		a.logger.Error("Failed to decode callback records",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode callback records: %w", err)
	}

	records := make([]*payment.CallbackRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFromDocument(doc))
	}
	return records, nil
}

func recordFromDocument(doc callbackDocument) *payment.CallbackRecord {
	return &payment.CallbackRecord{
		TransactionID:     doc.TransactionID,
		Gateway:           gateway.Name(doc.Gateway),
		ExternalReference: doc.ExternalReference,
		Source:            payment.CallbackSource(doc.Source),
		Outcome:           doc.Outcome,
		Detail:            doc.Detail,
		RawPayload:        doc.RawPayload,
		CorrelationID:     doc.CorrelationID,
		ReceivedAt:        doc.ReceivedAt,
	}
}
