// Package transaction defines the payment transaction aggregate and its
// lifecycle. A transaction tracks a single payment attempt against one
// gateway from creation to a terminal outcome.
package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/domain/gateway"
)

// Common errors
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidCurrency     = errors.New("currency must be a 3-letter code")
	ErrEmptyIdempotencyKey = errors.New("idempotency key cannot be empty")
	ErrRefundExceedsAmount = errors.New("refund amount exceeds settled amount")
)

// Status defines the lifecycle states of a payment transaction
type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusInitiating       Status = "INITIATING"
	StatusAwaitingCallback Status = "AWAITING_CALLBACK"
	StatusVerifying        Status = "VERIFYING"
	StatusSettled          Status = "SETTLED"
	StatusFailed           Status = "FAILED"
	StatusRefunded         Status = "REFUNDED"
)

// transitions enumerates every legal forward edge of the lifecycle.
// Anything not listed here is a violation.
var transitions = map[Status][]Status{
	StatusCreated:          {StatusInitiating},
	StatusInitiating:       {StatusAwaitingCallback, StatusFailed},
	StatusAwaitingCallback: {StatusVerifying, StatusFailed},
	StatusVerifying:        {StatusSettled, StatusFailed},
	StatusSettled:          {StatusRefunded},
	StatusFailed:           {},
	StatusRefunded:         {},
}

// IsTerminal reports whether the status permits no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed || s == StatusRefunded
}

// CanTransition reports whether moving from s to target is a legal edge
func (s Status) CanTransition(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// FailureReason categorizes why a transaction reached FAILED
type FailureReason string

const (
	FailureReasonGatewayUnavailable FailureReason = "GATEWAY_UNAVAILABLE"
	FailureReasonRejected           FailureReason = "REJECTED"
	FailureReasonDeclined           FailureReason = "DECLINED"
	FailureReasonVerificationFailed FailureReason = "VERIFICATION_FAILED"
)

// ErrInvalidTransition indicates an attempted lifecycle violation
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transaction transition: %s -> %s", e.From, e.To)
}

// ErrInvalidState indicates an operation attempted on a transaction that is
// not in the state the operation requires. Rejected synchronously, no side
// effect.
type ErrInvalidState struct {
	Operation string
	Status    Status
}

func (e ErrInvalidState) Error() string {
	return fmt.Sprintf("operation %s not allowed in state %s", e.Operation, e.Status)
}

// Transaction represents one payment attempt
type Transaction struct {
	ID                uuid.UUID     `json:"id"`
	IdempotencyKey    string        `json:"idempotency_key"`
	WalletAccountID   uuid.UUID     `json:"wallet_account_id"`
	Amount            int64         `json:"amount"` // Minor currency units
	Currency          string        `json:"currency"`
	Gateway           gateway.Name  `json:"gateway"`
	Status            Status        `json:"status"`
	FailureReason     FailureReason `json:"failure_reason,omitempty"`
	ExternalReference string        `json:"external_reference,omitempty"`
	Attempts          int           `json:"attempts"` // Outbound gateway calls made
	CorrelationID     string        `json:"correlation_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	LastTransitionAt  time.Time     `json:"last_transition_at"`
}

// New creates a transaction in CREATED with the given parameters
func New(idempotencyKey string, accountID uuid.UUID, amount int64, currency string, gw gateway.Name) (*Transaction, error) {
	if idempotencyKey == "" {
		return nil, ErrEmptyIdempotencyKey
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:               uuid.New(),
		IdempotencyKey:   idempotencyKey,
		WalletAccountID:  accountID,
		Amount:           amount,
		Currency:         currency,
		Gateway:          gw,
		Status:           StatusCreated,
		CreatedAt:        now,
		LastTransitionAt: now,
	}, nil
}

// Transition moves the transaction to the target status, enforcing the
// lifecycle graph. Terminal states are immutable.
func (t *Transaction) Transition(target Status) error {
	if !t.Status.CanTransition(target) {
		return ErrInvalidTransition{From: t.Status, To: target}
	}
	t.Status = target
	t.LastTransitionAt = time.Now().UTC()
	return nil
}

// Fail moves the transaction to FAILED with the given reason
func (t *Transaction) Fail(reason FailureReason) error {
	if err := t.Transition(StatusFailed); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}

// RecordAttempt increments the outbound gateway call counter
func (t *Transaction) RecordAttempt() {
	t.Attempts++
}

// StatusEvent is the outbound notification emitted when a transaction
// reaches SETTLED, FAILED, or REFUNDED. Consumed by notification
// collaborators; the core does not deliver notifications itself.
type StatusEvent struct {
	TransactionID     uuid.UUID     `json:"transaction_id"`
	WalletAccountID   uuid.UUID     `json:"wallet_account_id"`
	Status            Status        `json:"status"`
	FailureReason     FailureReason `json:"failure_reason,omitempty"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Gateway           gateway.Name  `json:"gateway"`
	ExternalReference string        `json:"external_reference,omitempty"`
	CorrelationID     string        `json:"correlation_id,omitempty"`
	OccurredAt        time.Time     `json:"occurred_at"`
}
