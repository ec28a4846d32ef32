package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/wallet"
	"github.com/asoud/payment-core/internal/platform/persistence"
)

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewWalletRepository creates a new PostgreSQL wallet repository
func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so wallet updates commit
// atomically with the settlement that caused them
func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new wallet account
func (r *WalletRepository) Create(ctx context.Context, acct *wallet.Account) error {
	query := `
		INSERT INTO wallet_accounts (id, owner_id, owner_type, currency, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		acct.ID,
		acct.OwnerID,
		acct.OwnerType,
		acct.Currency,
		acct.Balance,
		acct.Version,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create wallet account", "id", acct.ID.String(), "error", err)
		return fmt.Errorf("failed to create wallet account: %w", err)
	}

	return nil
}

// GetByID retrieves a wallet account by its ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT id, owner_id, owner_type, currency, balance, version, created_at, updated_at
		FROM wallet_accounts
		WHERE id = $1
	`

	var acct wallet.Account
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&acct.ID,
		&acct.OwnerID,
		&acct.OwnerType,
		&acct.Currency,
		&acct.Balance,
		&acct.Version,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get wallet account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get wallet account: %w", err)
	}

	return &acct, nil
}

// LockForUpdate obtains a pessimistic lock on the wallet account row.
// Must run within a database transaction.
func (r *WalletRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT id, owner_id, owner_type, currency, balance, version, created_at, updated_at
		FROM wallet_accounts
		WHERE id = $1
		FOR UPDATE
	`

	var acct wallet.Account
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&acct.ID,
		&acct.OwnerID,
		&acct.OwnerType,
		&acct.Currency,
		&acct.Balance,
		&acct.Version,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to lock wallet account for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock wallet account for update: %w", err)
	}

	return &acct, nil
}

// Update persists the account using optimistic locking on Version. The
// version check is a second line of defense behind the row lock.
func (r *WalletRepository) Update(ctx context.Context, acct *wallet.Account) error {
	query := `
		UPDATE wallet_accounts
		SET balance = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5
	`

	result, err := r.querier.Exec(ctx, query,
		acct.Balance,
		acct.Version,
		acct.UpdatedAt,
		acct.ID,
		acct.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update wallet account", "id", acct.ID.String(), "error", err)
		return fmt.Errorf("failed to update wallet account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrConcurrentModification{AccountID: acct.ID}
	}

	return nil
}
