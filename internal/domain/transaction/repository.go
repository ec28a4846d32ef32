package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/gateway"
)

// Repository defines transaction persistence operations
type Repository interface {
	// CreateIdempotent inserts the transaction unless one with the same
	// idempotency key already exists. Returns the stored transaction and
	// whether this call created it. The check-and-insert is atomic.
	CreateIdempotent(ctx context.Context, tx *Transaction) (*Transaction, bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// GetByExternalReference correlates an inbound callback with its
	// transaction.
	GetByExternalReference(ctx context.Context, gw gateway.Name, ref string) (*Transaction, error)

	// LockForUpdate acquires a row lock on the transaction, serializing
	// concurrent transition attempts. Must be called within a transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)

	Update(ctx context.Context, tx *Transaction) error

	// ListStuckAwaitingCallback returns transactions that have waited for a
	// callback longer than the cutoff, for reconciliation polling.
	ListStuckAwaitingCallback(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)

	// ListStuckInitiating returns transactions stranded in INITIATING
	// since before the cutoff, for reconciliation polling.
	ListStuckInitiating(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates a missing transaction
type ErrTransactionNotFound struct {
	ID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.ID.String()
}

// Is matches any ErrTransactionNotFound when the target carries a nil ID
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrDuplicateIdempotencyKey indicates an idempotency key collision that
// could not be resolved to an existing transaction
type ErrDuplicateIdempotencyKey struct {
	Key string
}

func (e ErrDuplicateIdempotencyKey) Error() string {
	return "duplicate idempotency key: " + e.Key
}
