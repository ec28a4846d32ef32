package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/domain/gateway"
)

// SandboxAdapter is an in-process provider for development and tests. It
// issues deterministic references, settles every initiated payment, and
// authenticates its callbacks with an HMAC-SHA256 checksum over
// reference|amount|currency, exercising the signature leg of callback
// verification.
type SandboxAdapter struct {
	logger *slog.Logger
	secret []byte

	mu       sync.Mutex
	payments map[string]sandboxPayment
	seq      int
}

type sandboxPayment struct {
	amount   int64
	currency string
	refunded int64
}

// NewSandbox creates the sandbox adapter
func NewSandbox(logger *slog.Logger, cfg *config.SandboxConfig) *SandboxAdapter {
	return &SandboxAdapter{
		logger:   logger,
		secret:   []byte(cfg.Secret),
		payments: make(map[string]sandboxPayment),
	}
}

func (a *SandboxAdapter) Name() gateway.Name {
	return gateway.Sandbox
}

func (a *SandboxAdapter) SupportsRefunds() bool {
	return true
}

// Initiate registers the payment in memory and returns a deterministic
// reference
func (a *SandboxAdapter) Initiate(_ context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", gateway.ErrInvalidRequest)
	}

	a.mu.Lock()
	a.seq++
	ref := fmt.Sprintf("SBX-%06d", a.seq)
	a.payments[ref] = sandboxPayment{amount: req.Amount, currency: req.Currency}
	a.mu.Unlock()

	return &gateway.InitiateResult{
		ExternalReference: ref,
		RedirectURL:       "https://sandbox.invalid/pay/" + ref,
	}, nil
}

// Verify confirms any payment previously initiated through this adapter
func (a *SandboxAdapter) Verify(_ context.Context, ref string, _ int64) (*gateway.VerifyResult, error) {
	a.mu.Lock()
	payment, ok := a.payments[ref]
	a.mu.Unlock()

	if !ok {
		return &gateway.VerifyResult{Outcome: gateway.OutcomeDeclined, ExternalReference: ref}, nil
	}

	return &gateway.VerifyResult{
		Outcome:           gateway.OutcomeConfirmed,
		Amount:            payment.amount,
		Currency:          payment.currency,
		ExternalReference: ref,
		ProviderTraceID:   "sandbox-" + ref,
	}, nil
}

// Refund accepts any refund not exceeding the registered amount
func (a *SandboxAdapter) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	payment, ok := a.payments[req.ExternalReference]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reference %s", gateway.ErrInvalidRequest, req.ExternalReference)
	}
	if payment.refunded+req.Amount > payment.amount {
		return nil, fmt.Errorf("%w: refund exceeds payment", gateway.ErrRejected)
	}

	payment.refunded += req.Amount
	a.payments[req.ExternalReference] = payment

	return &gateway.RefundResult{ProviderTraceID: "sandbox-refund-" + req.ExternalReference}, nil
}

// DecodeCallback normalizes reference/amount/currency/signature parameters
func (a *SandboxAdapter) DecodeCallback(params url.Values, _ []byte) (*gateway.Callback, error) {
	ref := params.Get("reference")
	if ref == "" {
		return nil, fmt.Errorf("sandbox callback missing reference parameter")
	}

	return &gateway.Callback{
		Gateway:           gateway.Sandbox,
		ExternalReference: ref,
		Succeeded:         params.Get("status") == "OK",
		Raw:               []byte(params.Encode()),
		Signature:         params.Get("signature"),
	}, nil
}

// AuthenticateCallback checks the callback's HMAC checksum. The signed
// message is reference|amount|currency as sent in the callback parameters.
func (a *SandboxAdapter) AuthenticateCallback(cb *gateway.Callback) error {
	params, err := url.ParseQuery(string(cb.Raw))
	if err != nil {
		return fmt.Errorf("unparsable sandbox callback payload: %w", err)
	}

	expected := a.Sign(cb.ExternalReference, params.Get("amount"), params.Get("currency"))
	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		return fmt.Errorf("sandbox callback signature mismatch")
	}
	return nil
}

// Sign computes the callback checksum; exported so tests and the seeder can
// forge valid callbacks
func (a *SandboxAdapter) Sign(ref, amount, currency string) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s|%s|%s", ref, amount, currency)
	return hex.EncodeToString(mac.Sum(nil))
}

// CallbackParams builds signed callback parameters for a registered payment,
// used by development tooling and tests
func (a *SandboxAdapter) CallbackParams(ref string) (url.Values, error) {
	a.mu.Lock()
	payment, ok := a.payments[ref]
	a.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown sandbox reference %s", ref)
	}

	amount := strconv.FormatInt(payment.amount, 10)
	params := url.Values{}
	params.Set("reference", ref)
	params.Set("amount", amount)
	params.Set("currency", payment.currency)
	params.Set("status", "OK")
	params.Set("signature", a.Sign(ref, amount, payment.currency))
	return params, nil
}
