package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for
// PostgreSQL. Entries are insert-only; there is no update or delete path.
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so ledger appends commit
// atomically with the state transition that caused them
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Append stores a new ledger entry
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, transaction_id, account_id, delta, balance_after, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.querier.Exec(ctx, query,
		entry.ID,
		entry.TransactionID,
		entry.AccountID,
		entry.Delta,
		entry.BalanceAfter,
		entry.PostedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append ledger entry",
			"transaction_id", entry.TransactionID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// GetByID retrieves a ledger entry by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `
		SELECT id, transaction_id, account_id, delta, balance_after, posted_at
		FROM ledger_entries
		WHERE id = $1
	`

	var entry ledger.Entry
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&entry.ID,
		&entry.TransactionID,
		&entry.AccountID,
		&entry.Delta,
		&entry.BalanceAfter,
		&entry.PostedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{ID: id}
		}
		r.logger.Error("Failed to get ledger entry", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return &entry, nil
}

// ListByTransactionID retrieves the entries posted by one transaction
func (r *LedgerRepository) ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*ledger.Entry, error) {
	query := `
		SELECT id, transaction_id, account_id, delta, balance_after, posted_at
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY posted_at ASC
	`

	rows, err := r.querier.Query(ctx, query, transactionID)
	if err != nil {
		r.logger.Error("Failed to list ledger entries by transaction", "error", err)
		return nil, fmt.Errorf("failed to list ledger entries by transaction: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListByAccountID retrieves an account's entries, newest first
func (r *LedgerRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT id, transaction_id, account_id, delta, balance_after, posted_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY posted_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// CountByAccountID returns the total number of entries for an account
func (r *LedgerRepository) CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE account_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}

// SumByAccountID recomputes the account balance from its entries
func (r *LedgerRepository) SumByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(delta), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`

	var sum int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum ledger entries", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	return sum, nil
}

func (r *LedgerRepository) collect(rows pgx.Rows) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	for rows.Next() {
		var entry ledger.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.AccountID,
			&entry.Delta,
			&entry.BalanceAfter,
			&entry.PostedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger entries", "error", err)
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}

	return entries, nil
}
