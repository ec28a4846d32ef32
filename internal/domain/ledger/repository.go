package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages ledger entry persistence. Append is the only path by
// which a balance changes and must run inside the same database transaction
// as the state transition that triggers it.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error)

	// SumByAccountID recomputes the balance from the entries themselves,
	// used to verify the wallet's maintained total never drifts.
	SumByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	ID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.ID.String()
}

// Is matches any ErrEntryNotFound when the target carries a nil ID
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
