// Package gateway defines the normalized vocabulary the payment core uses to
// talk to external payment providers. Each provider implements Adapter and
// is responsible solely for translating between these shapes and its own
// wire format; adapters hold no transaction state and perform no lifecycle
// logic.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// Name identifies a configured payment provider
type Name string

const (
	Zarinpal Name = "zarinpal"
	IDPay    Name = "idpay"
	Sandbox  Name = "sandbox"
)

// ParseName validates a provider name from external input
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case Zarinpal, IDPay, Sandbox:
		return Name(s), nil
	}
	return "", fmt.Errorf("unknown gateway: %q", s)
}

// Typed gateway failures. ErrUnavailable is the only retryable one; the
// rest are terminal verdicts from the provider.
var (
	ErrUnavailable       = errors.New("gateway unavailable")
	ErrRejected          = errors.New("gateway rejected the request")
	ErrInvalidRequest    = errors.New("gateway reported an invalid request")
	ErrRefundUnsupported = errors.New("gateway does not support programmatic refunds")
	ErrNotConfigured     = errors.New("gateway not configured")
)

// IsRetryable reports whether the error is a transient gateway failure that
// a retry may resolve
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// InitiateRequest carries the normalized inputs of an initiation call
type InitiateRequest struct {
	TransactionID uuid.UUID
	Amount        int64 // Minor currency units
	Currency      string
	Description   string
}

// InitiateResult is the normalized outcome of a successful initiation
type InitiateResult struct {
	ExternalReference string
	RedirectURL       string
}

// VerifyOutcome is the normalized verdict of a verification call
type VerifyOutcome string

const (
	// OutcomeConfirmed means the provider confirmed the payment.
	OutcomeConfirmed VerifyOutcome = "CONFIRMED"
	// OutcomeDeclined means the provider reported the payment as failed or
	// canceled. Final, not retried.
	OutcomeDeclined VerifyOutcome = "DECLINED"
	// OutcomeUnresolved means the provider could not give a final answer
	// yet. The caller should retry later rather than treat it as final.
	OutcomeUnresolved VerifyOutcome = "UNRESOLVED"
)

// VerifyResult is the normalized result of Verify
type VerifyResult struct {
	Outcome           VerifyOutcome
	Amount            int64 // Minor units, as confirmed by the provider
	Currency          string
	ExternalReference string
	ProviderTraceID   string // Provider-side settlement id, when given
}

// RefundRequest carries the normalized inputs of a refund call
type RefundRequest struct {
	ExternalReference string
	Amount            int64
	Currency          string
	Reason            string
}

// RefundResult is the normalized outcome of an accepted refund
type RefundResult struct {
	ProviderTraceID string
}

// Callback is a provider callback normalized by the adapter that received
// it. Raw preserves the original payload for auditing.
type Callback struct {
	Gateway           Name
	ExternalReference string
	Succeeded         bool // Provider-declared outcome; never trusted without Verify
	Raw               []byte
	Signature         string // Provider checksum, when the provider sends one
}

// Adapter is implemented once per external payment provider. Variants are
// stateless and safe for concurrent use.
type Adapter interface {
	Name() Name

	// Initiate registers the payment with the provider and returns the
	// external reference plus the redirect target for the payer.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// Verify asks the provider for the final outcome of a payment. Used
	// both after a pushed callback and by reconciliation polls.
	Verify(ctx context.Context, ref string, amount int64) (*VerifyResult, error)

	// Refund asks the provider to reverse a settled payment. Adapters whose
	// provider has no refund API return ErrRefundUnsupported.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)

	// DecodeCallback normalizes a provider callback from the webhook
	// request parameters and body.
	DecodeCallback(params url.Values, body []byte) (*Callback, error)

	// SupportsRefunds reports whether Refund can succeed for this provider.
	// Checked before any gateway call so unsupported refunds are rejected
	// synchronously.
	SupportsRefunds() bool
}

// CallbackAuthenticator is implemented by adapters whose provider signs its
// callbacks. Providers without a callback checksum (Zarinpal, IDPay) rely on
// the server-side Verify call for authenticity instead.
type CallbackAuthenticator interface {
	AuthenticateCallback(cb *Callback) error
}
