// Package ledger defines the append-only double-entry wallet ledger. Entries
// are immutable; the sum of deltas per account is the sole source of truth
// for that account's balance.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable posting against a wallet account. Settlements post
// a positive delta; refunds post a second, negative entry referencing the
// same transaction.
type Entry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Delta         int64     `json:"delta"`         // Signed minor units
	BalanceAfter  int64     `json:"balance_after"` // Snapshot at post time
	PostedAt      time.Time `json:"posted_at"`
}

// NewEntry creates a posting for the given account and owning transaction
func NewEntry(transactionID, accountID uuid.UUID, delta, balanceAfter int64) *Entry {
	return &Entry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		AccountID:     accountID,
		Delta:         delta,
		BalanceAfter:  balanceAfter,
		PostedAt:      time.Now().UTC(),
	}
}
