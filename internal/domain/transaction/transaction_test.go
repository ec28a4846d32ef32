package transaction

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asoud/payment-core/internal/domain/gateway"
)

func newTestTransaction(t *testing.T) *Transaction {
	t.Helper()
	txn, err := New(uuid.New().String(), uuid.New(), 500000, "IRR", gateway.Zarinpal)
	require.NoError(t, err)
	return txn
}

func TestNew(t *testing.T) {
	accountID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		txn, err := New("key-1", accountID, 500000, "IRR", gateway.Zarinpal)
		require.NoError(t, err)
		assert.Equal(t, StatusCreated, txn.Status)
		assert.Equal(t, int64(500000), txn.Amount)
		assert.Equal(t, "IRR", txn.Currency)
		assert.Equal(t, accountID, txn.WalletAccountID)
		assert.NotEqual(t, uuid.Nil, txn.ID)
		assert.Zero(t, txn.Attempts)
	})

	t.Run("empty idempotency key", func(t *testing.T) {
		_, err := New("", accountID, 500000, "IRR", gateway.Zarinpal)
		assert.ErrorIs(t, err, ErrEmptyIdempotencyKey)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := New("key-2", accountID, 0, "IRR", gateway.Zarinpal)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = New("key-3", accountID, -100, "IRR", gateway.Zarinpal)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("bad currency", func(t *testing.T) {
		_, err := New("key-4", accountID, 100, "RIAL", gateway.Zarinpal)
		assert.ErrorIs(t, err, ErrInvalidCurrency)
	})
}

func TestStatus_Transitions(t *testing.T) {
	all := []Status{
		StatusCreated, StatusInitiating, StatusAwaitingCallback,
		StatusVerifying, StatusSettled, StatusFailed, StatusRefunded,
	}

	legal := map[Status][]Status{
		StatusCreated:          {StatusInitiating},
		StatusInitiating:       {StatusAwaitingCallback, StatusFailed},
		StatusAwaitingCallback: {StatusVerifying, StatusFailed},
		StatusVerifying:        {StatusSettled, StatusFailed},
		StatusSettled:          {StatusRefunded},
		StatusFailed:           {},
		StatusRefunded:         {},
	}

	// Every edge not explicitly legal must be rejected.
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusSettled.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())

	assert.False(t, StatusCreated.IsTerminal())
	assert.False(t, StatusInitiating.IsTerminal())
	assert.False(t, StatusAwaitingCallback.IsTerminal())
	assert.False(t, StatusVerifying.IsTerminal())
}

func TestTransaction_Transition(t *testing.T) {
	t.Run("legal path to settled", func(t *testing.T) {
		txn := newTestTransaction(t)

		require.NoError(t, txn.Transition(StatusInitiating))
		require.NoError(t, txn.Transition(StatusAwaitingCallback))
		require.NoError(t, txn.Transition(StatusVerifying))
		require.NoError(t, txn.Transition(StatusSettled))
		assert.Equal(t, StatusSettled, txn.Status)
	})

	t.Run("illegal jump is rejected without effect", func(t *testing.T) {
		txn := newTestTransaction(t)

		err := txn.Transition(StatusSettled)
		var invalid ErrInvalidTransition
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, StatusCreated, invalid.From)
		assert.Equal(t, StatusSettled, invalid.To)
		assert.Equal(t, StatusCreated, txn.Status)
	})

	t.Run("terminal states are immutable", func(t *testing.T) {
		txn := newTestTransaction(t)
		require.NoError(t, txn.Transition(StatusInitiating))
		require.NoError(t, txn.Fail(FailureReasonGatewayUnavailable))

		for _, target := range []Status{StatusCreated, StatusInitiating, StatusSettled, StatusRefunded} {
			assert.Error(t, txn.Transition(target))
		}
		assert.Equal(t, StatusFailed, txn.Status)
	})
}

func TestTransaction_Fail(t *testing.T) {
	txn := newTestTransaction(t)
	require.NoError(t, txn.Transition(StatusInitiating))
	require.NoError(t, txn.Transition(StatusAwaitingCallback))

	require.NoError(t, txn.Fail(FailureReasonDeclined))
	assert.Equal(t, StatusFailed, txn.Status)
	assert.Equal(t, FailureReasonDeclined, txn.FailureReason)

	// Failing an already terminal transaction is a violation.
	assert.Error(t, txn.Fail(FailureReasonDeclined))
}

func TestErrTransactionNotFound_Is(t *testing.T) {
	id := uuid.New()
	err := ErrTransactionNotFound{ID: id}

	assert.ErrorIs(t, err, ErrTransactionNotFound{})
	assert.ErrorIs(t, err, ErrTransactionNotFound{ID: id})
	assert.NotErrorIs(t, err, ErrTransactionNotFound{ID: uuid.New()})
}
