// Package outbox implements the transactional outbox for transaction status
// events. A message is written in the same database transaction as the state
// transition it announces, then published to Kafka by a poller, so an event
// is emitted if and only if the transition committed.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/domain/transaction"
)

// Status defines message publishing states
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusProcessed       Status = "PROCESSED"
	StatusFailedToPublish Status = "FAILED_TO_PUBLISH"
)

// Message stores one status event awaiting publication
type Message struct {
	ID            int64           `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}

// NewMessage wraps a status event for deferred publication
func NewMessage(event *transaction.StatusEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		TransactionID: event.TransactionID,
		AccountID:     event.WalletAccountID,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Event extracts the status event from the payload
func (m *Message) Event() (*transaction.StatusEvent, error) {
	var event transaction.StatusEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
