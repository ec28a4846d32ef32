// Package postgres provides PostgreSQL implementations of the domain
// repositories. Repositories run against the pool by default and against a
// pgx.Tx when wrapped with WithTx, which is how settlement keeps its writes
// atomic.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/platform/persistence"
)

const transactionColumns = `id, idempotency_key, wallet_account_id, amount, currency, gateway,
		status, failure_reason, external_reference, attempts, correlation_id, created_at, last_transition_at`

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so that transaction writes
// participate in the caller's atomic unit
func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.IdempotencyKey,
		&txn.WalletAccountID,
		&txn.Amount,
		&txn.Currency,
		&txn.Gateway,
		&txn.Status,
		&txn.FailureReason,
		&txn.ExternalReference,
		&txn.Attempts,
		&txn.CorrelationID,
		&txn.CreatedAt,
		&txn.LastTransitionAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// CreateIdempotent inserts the transaction unless the idempotency key is
// already taken. The conflict check and the insert are a single statement,
// so two racing creates with the same key cannot both insert.
func (r *TransactionRepository) CreateIdempotent(ctx context.Context, txn *transaction.Transaction) (*transaction.Transaction, bool, error) {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query,
		txn.ID,
		txn.IdempotencyKey,
		txn.WalletAccountID,
		txn.Amount,
		txn.Currency,
		txn.Gateway,
		txn.Status,
		txn.FailureReason,
		txn.ExternalReference,
		txn.Attempts,
		txn.CorrelationID,
		txn.CreatedAt,
		txn.LastTransitionAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", "id", txn.ID.String(), "error", err)
		return nil, false, fmt.Errorf("failed to create transaction: %w", err)
	}

	if result.RowsAffected() > 0 {
		return txn, true, nil
	}

	existing, err := r.GetByIdempotencyKey(ctx, txn.IdempotencyKey)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			return nil, false, transaction.ErrDuplicateIdempotencyKey{Key: txn.IdempotencyKey}
		}
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1
	`

	txn, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE idempotency_key = $1
	`

	txn, err := scanTransaction(r.querier.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{}
		}
		r.logger.Error("Failed to get transaction by idempotency key", "error", err)
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}
	return txn, nil
}

// GetByExternalReference correlates a gateway callback with its transaction
func (r *TransactionRepository) GetByExternalReference(ctx context.Context, gw gateway.Name, ref string) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE gateway = $1 AND external_reference = $2 AND external_reference <> ''
	`

	txn, err := scanTransaction(r.querier.QueryRow(ctx, query, gw, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{}
		}
		r.logger.Error("Failed to get transaction by external reference",
			"gateway", string(gw),
			"external_reference", ref,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get transaction by external reference: %w", err)
	}
	return txn, nil
}

// LockForUpdate obtains a pessimistic lock on the transaction row and
// returns its current state. Must run within a database transaction;
// concurrent settlement attempts serialize here.
func (r *TransactionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`

	txn, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to lock transaction for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock transaction for update: %w", err)
	}
	return txn, nil
}

// Update persists the transaction's mutable fields
func (r *TransactionRepository) Update(ctx context.Context, txn *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1, failure_reason = $2, external_reference = $3, attempts = $4, last_transition_at = $5
		WHERE id = $6
	`

	result, err := r.querier.Exec(ctx, query,
		txn.Status,
		txn.FailureReason,
		txn.ExternalReference,
		txn.Attempts,
		txn.LastTransitionAt,
		txn.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update transaction", "id", txn.ID.String(), "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: txn.ID}
	}
	return nil
}

// ListStuckAwaitingCallback returns transactions waiting for a callback
// since before the cutoff, oldest first, for reconciliation polling
func (r *TransactionRepository) ListStuckAwaitingCallback(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	return r.listStuck(ctx, transaction.StatusAwaitingCallback, cutoff, limit)
}

// ListStuckInitiating returns transactions stranded mid-initiation since
// before the cutoff, oldest first. A worker crash between claiming a
// transaction and recording the gateway reference leaves rows here.
func (r *TransactionRepository) ListStuckInitiating(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	return r.listStuck(ctx, transaction.StatusInitiating, cutoff, limit)
}

func (r *TransactionRepository) listStuck(ctx context.Context, status transaction.Status, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND last_transition_at < $2
		ORDER BY last_transition_at ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, status, cutoff, limit)
	if err != nil {
		r.logger.Error("Failed to list stuck transactions", "error", err)
		return nil, fmt.Errorf("failed to list stuck transactions: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return txns, nil
}
