package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asoud/payment-core/internal/domain/ledger"
)

var ledgerRows = []string{
	"id", "transaction_id", "account_id", "delta", "balance_after", "posted_at",
}

func entryRow(entry *ledger.Entry) *pgxmock.Rows {
	return pgxmock.NewRows(ledgerRows).AddRow(
		entry.ID, entry.TransactionID, entry.AccountID,
		entry.Delta, entry.BalanceAfter, entry.PostedAt,
	)
}

func TestLedgerRepository_Append(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
	entry := ledger.NewEntry(uuid.New(), uuid.New(), 500000, 500000)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(entry.ID, entry.TransactionID, entry.AccountID, entry.Delta, entry.BalanceAfter, entry.PostedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Append(ctx, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
		entry := ledger.NewEntry(uuid.New(), uuid.New(), -200000, 300000)

		mock.ExpectQuery(regexp.QuoteMeta("FROM ledger_entries")).
			WithArgs(entry.ID).
			WillReturnRows(entryRow(entry))

		got, err := repo.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.Delta, got.Delta)
		assert.Equal(t, entry.BalanceAfter, got.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
		id := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("FROM ledger_entries")).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, ledger.ErrEntryNotFound{ID: id})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_ListByTransactionID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
	transactionID := uuid.New()
	accountID := uuid.New()

	// A settlement followed by its refund: two entries, one transaction.
	credit := ledger.NewEntry(transactionID, accountID, 500000, 500000)
	debit := ledger.NewEntry(transactionID, accountID, -500000, 0)

	rows := pgxmock.NewRows(ledgerRows).
		AddRow(credit.ID, credit.TransactionID, credit.AccountID, credit.Delta, credit.BalanceAfter, credit.PostedAt).
		AddRow(debit.ID, debit.TransactionID, debit.AccountID, debit.Delta, debit.BalanceAfter, debit.PostedAt)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE transaction_id = $1")).
		WithArgs(transactionID).
		WillReturnRows(rows)

	got, err := repo.ListByTransactionID(ctx, transactionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(500000), got[0].Delta)
	assert.Equal(t, int64(-500000), got[1].Delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_ListByAccountID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
	accountID := uuid.New()
	entry := ledger.NewEntry(uuid.New(), accountID, 500000, 500000)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE account_id = $1")).
		WithArgs(accountID, 10, 0).
		WillReturnRows(entryRow(entry))

	got, err := repo.ListByAccountID(ctx, accountID, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_CountByAccountID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
	accountID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := repo.CountByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_SumByAccountID(t *testing.T) {
	ctx := context.Background()

	t.Run("sums deltas", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
		accountID := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(delta), 0)")).
			WithArgs(accountID).
			WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(300000)))

		sum, err := repo.SumByAccountID(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, int64(300000), sum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty ledger sums to zero", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := &LedgerRepository{querier: mock, logger: newTestLogger()}
		accountID := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(delta), 0)")).
			WithArgs(accountID).
			WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(0)))

		sum, err := repo.SumByAccountID(ctx, accountID)
		require.NoError(t, err)
		assert.Zero(t, sum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
