package payment

import (
	"fmt"
	"log/slog"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/transaction"
)

// VerificationSubReason identifies which check rejected a confirmation
type VerificationSubReason string

const (
	SubReasonReferenceMismatch VerificationSubReason = "REFERENCE_MISMATCH"
	SubReasonAmountMismatch    VerificationSubReason = "AMOUNT_MISMATCH"
	SubReasonCurrencyMismatch  VerificationSubReason = "CURRENCY_MISMATCH"
	SubReasonBadSignature      VerificationSubReason = "BAD_SIGNATURE"
)

// VerificationError is returned when a gateway confirmation fails one of
// the verifier's checks. The transaction must be failed, never settled.
type VerificationError struct {
	SubReason VerificationSubReason
	Detail    string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("callback verification failed (%s): %s", e.SubReason, e.Detail)
}

// CallbackVerifier runs the checks that stand between a gateway
// confirmation and a settled transaction. Checks run in a fixed order and
// all of them must pass: external reference, then amount and currency,
// then the provider signature when the adapter's provider signs its
// callbacks.
type CallbackVerifier struct {
	logger *slog.Logger
}

// NewCallbackVerifier creates a verifier
func NewCallbackVerifier(logger *slog.Logger) *CallbackVerifier {
	return &CallbackVerifier{logger: logger}
}

// Verify validates a confirmed gateway result against the transaction it
// claims to settle. cb is nil when the confirmation came from a
// reconciliation poll rather than a pushed callback.
func (v *CallbackVerifier) Verify(txn *transaction.Transaction, cb *gateway.Callback, res *gateway.VerifyResult, adapter gateway.Adapter) error {
	if err := v.checkReference(txn, cb, res); err != nil {
		return err
	}
	if err := v.checkAmount(txn, res); err != nil {
		return err
	}
	return v.checkSignature(cb, adapter)
}

func (v *CallbackVerifier) checkReference(txn *transaction.Transaction, cb *gateway.Callback, res *gateway.VerifyResult) error {
	want := txn.ExternalReference
	if want == "" {
		// The gateway assigned the reference after our initiate call was
		// cut off. The settlement path records it once verification
		// passes.
		return nil
	}

	if cb != nil && cb.ExternalReference != want {
		return &VerificationError{
			SubReason: SubReasonReferenceMismatch,
			Detail:    fmt.Sprintf("callback reference %q does not match %q", cb.ExternalReference, want),
		}
	}
	if res.ExternalReference != "" && res.ExternalReference != want {
		return &VerificationError{
			SubReason: SubReasonReferenceMismatch,
			Detail:    fmt.Sprintf("verified reference %q does not match %q", res.ExternalReference, want),
		}
	}
	return nil
}

func (v *CallbackVerifier) checkAmount(txn *transaction.Transaction, res *gateway.VerifyResult) error {
	if res.Amount != txn.Amount {
		return &VerificationError{
			SubReason: SubReasonAmountMismatch,
			Detail:    fmt.Sprintf("gateway verified %d, transaction holds %d", res.Amount, txn.Amount),
		}
	}
	// Some providers do not echo the currency back; in that case the
	// confirmation is for the amount we submitted in the transaction's
	// currency and there is nothing further to compare.
	if res.Currency != "" && res.Currency != txn.Currency {
		return &VerificationError{
			SubReason: SubReasonCurrencyMismatch,
			Detail:    fmt.Sprintf("gateway verified %s, transaction holds %s", res.Currency, txn.Currency),
		}
	}
	return nil
}

func (v *CallbackVerifier) checkSignature(cb *gateway.Callback, adapter gateway.Adapter) error {
	if cb == nil {
		// Reconciliation polls have no callback payload to authenticate;
		// authenticity comes from us having dialed the gateway ourselves.
		return nil
	}
	auth, ok := adapter.(gateway.CallbackAuthenticator)
	if !ok {
		return nil
	}
	if err := auth.AuthenticateCallback(cb); err != nil {
		return &VerificationError{
			SubReason: SubReasonBadSignature,
			Detail:    err.Error(),
		}
	}
	return nil
}
