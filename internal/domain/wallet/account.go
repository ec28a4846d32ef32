// Package wallet defines wallet accounts. An account's balance is derived
// from its ledger entries; the Balance field here is a maintained running
// total kept consistent with the entry sum inside every settlement
// transaction.
package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrEmptyOwner            = errors.New("owner cannot be empty")
	ErrCurrencyMismatch      = errors.New("currency does not match account currency")
)

// OwnerType distinguishes user wallets from market wallets
type OwnerType string

const (
	OwnerTypeUser   OwnerType = "USER"
	OwnerTypeMarket OwnerType = "MARKET"
)

// Account is a wallet owned by exactly one user or market entity
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	OwnerType OwnerType `json:"owner_type"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"` // Running total of ledger deltas, minor units
	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates an empty wallet for the given owner
func NewAccount(ownerID uuid.UUID, ownerType OwnerType, currency string) (*Account, error) {
	if ownerID == uuid.Nil {
		return nil, ErrEmptyOwner
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}

	now := time.Now().UTC()
	return &Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		OwnerType: ownerType,
		Currency:  currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply adjusts the running total by a signed ledger delta and returns the
// resulting balance. A negative delta may not take the balance below zero.
func (a *Account) Apply(delta int64) (int64, error) {
	if delta == 0 {
		return 0, ErrInvalidAmount
	}
	if delta < 0 && a.Balance+delta < 0 {
		return 0, ErrInsufficientBalance
	}

	a.Balance += delta
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	return a.Balance, nil
}
