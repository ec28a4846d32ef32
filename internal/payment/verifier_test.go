package payment

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/transaction"
)

// signingAdapter wraps MockAdapter with a callback authenticator that
// accepts one fixed signature
type signingAdapter struct {
	MockAdapter
	wantSignature string
}

func (a *signingAdapter) AuthenticateCallback(cb *gateway.Callback) error {
	if cb.Signature != a.wantSignature {
		return errors.New("checksum mismatch")
	}
	return nil
}

func verifierFixtures(t *testing.T) (*transaction.Transaction, *gateway.Callback, *gateway.VerifyResult) {
	t.Helper()
	txn, err := transaction.New(uuid.New().String(), uuid.New(), 500000, "IRR", gateway.Sandbox)
	require.NoError(t, err)
	txn.ExternalReference = "SBX-1"

	cb := &gateway.Callback{
		Gateway:           gateway.Sandbox,
		ExternalReference: "SBX-1",
		Succeeded:         true,
	}
	res := &gateway.VerifyResult{
		Outcome:           gateway.OutcomeConfirmed,
		Amount:            500000,
		Currency:          "IRR",
		ExternalReference: "SBX-1",
	}
	return txn, cb, res
}

func TestCallbackVerifier_Verify(t *testing.T) {
	v := NewCallbackVerifier(newTestLogger())
	adapter := new(MockAdapter)

	t.Run("passes when everything matches", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		assert.NoError(t, v.Verify(txn, cb, res, adapter))
	})

	t.Run("reference mismatch from callback", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		cb.ExternalReference = "SBX-FORGED"

		err := v.Verify(txn, cb, res, adapter)
		var vErr *VerificationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, SubReasonReferenceMismatch, vErr.SubReason)
	})

	t.Run("reference mismatch from verify result", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		res.ExternalReference = "SBX-OTHER"

		err := v.Verify(txn, cb, res, adapter)
		var vErr *VerificationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, SubReasonReferenceMismatch, vErr.SubReason)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		res.Amount = 499999

		err := v.Verify(txn, cb, res, adapter)
		var vErr *VerificationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, SubReasonAmountMismatch, vErr.SubReason)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		res.Currency = "USD"

		err := v.Verify(txn, cb, res, adapter)
		var vErr *VerificationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, SubReasonCurrencyMismatch, vErr.SubReason)
	})

	t.Run("missing currency echo is accepted", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		res.Currency = ""

		assert.NoError(t, v.Verify(txn, cb, res, adapter))
	})

	t.Run("reference check runs before amount check", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		cb.ExternalReference = "SBX-FORGED"
		res.Amount = 1

		err := v.Verify(txn, cb, res, adapter)
		var vErr *VerificationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, SubReasonReferenceMismatch, vErr.SubReason)
	})

	t.Run("empty stored reference is tolerated", func(t *testing.T) {
		// The gateway assigned its reference after the initiate response was
		// lost; the settlement path records it afterwards.
		txn, cb, res := verifierFixtures(t)
		txn.ExternalReference = ""

		assert.NoError(t, v.Verify(txn, cb, res, adapter))
	})

	t.Run("nil callback skips signature check", func(t *testing.T) {
		txn, _, res := verifierFixtures(t)
		signed := &signingAdapter{wantSignature: "good"}

		assert.NoError(t, v.Verify(txn, nil, res, signed))
	})

	t.Run("bad signature", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		cb.Signature = "tampered"
		signed := &signingAdapter{wantSignature: "good"}

		err := v.Verify(txn, cb, res, signed)
		var vErr *VerificationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, SubReasonBadSignature, vErr.SubReason)
	})

	t.Run("valid signature", func(t *testing.T) {
		txn, cb, res := verifierFixtures(t)
		cb.Signature = "good"
		signed := &signingAdapter{wantSignature: "good"}

		assert.NoError(t, v.Verify(txn, cb, res, signed))
	})
}
