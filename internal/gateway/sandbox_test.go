package gateway

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/domain/gateway"
)

func newSandbox(t *testing.T) *SandboxAdapter {
	t.Helper()
	return NewSandbox(newTestLogger(), &config.SandboxConfig{
		Enabled: true,
		Secret:  "test-secret",
	})
}

func TestSandboxAdapter_InitiateAndVerify(t *testing.T) {
	ctx := context.Background()
	adapter := newSandbox(t)

	result, err := adapter.Initiate(ctx, gateway.InitiateRequest{
		TransactionID: uuid.New(),
		Amount:        500000,
		Currency:      "IRR",
	})
	require.NoError(t, err)
	assert.Equal(t, "SBX-000001", result.ExternalReference)
	assert.Contains(t, result.RedirectURL, result.ExternalReference)

	verified, err := adapter.Verify(ctx, result.ExternalReference, 500000)
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeConfirmed, verified.Outcome)
	assert.Equal(t, int64(500000), verified.Amount)
	assert.Equal(t, "IRR", verified.Currency)
}

func TestSandboxAdapter_Initiate_RejectsNonPositiveAmount(t *testing.T) {
	adapter := newSandbox(t)

	_, err := adapter.Initiate(context.Background(), gateway.InitiateRequest{Amount: 0})
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
}

func TestSandboxAdapter_Verify_UnknownReferenceDeclines(t *testing.T) {
	adapter := newSandbox(t)

	result, err := adapter.Verify(context.Background(), "SBX-999999", 500000)
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeDeclined, result.Outcome)
}

func TestSandboxAdapter_Refund(t *testing.T) {
	ctx := context.Background()
	adapter := newSandbox(t)

	initiated, err := adapter.Initiate(ctx, gateway.InitiateRequest{Amount: 500000, Currency: "IRR"})
	require.NoError(t, err)
	ref := initiated.ExternalReference

	t.Run("partial refunds accumulate", func(t *testing.T) {
		_, err := adapter.Refund(ctx, gateway.RefundRequest{ExternalReference: ref, Amount: 200000})
		require.NoError(t, err)
		_, err = adapter.Refund(ctx, gateway.RefundRequest{ExternalReference: ref, Amount: 300000})
		require.NoError(t, err)

		// The payment is now fully refunded.
		_, err = adapter.Refund(ctx, gateway.RefundRequest{ExternalReference: ref, Amount: 1})
		assert.ErrorIs(t, err, gateway.ErrRejected)
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := adapter.Refund(ctx, gateway.RefundRequest{ExternalReference: "SBX-999999", Amount: 1})
		assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
	})
}

func TestSandboxAdapter_CallbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := newSandbox(t)

	initiated, err := adapter.Initiate(ctx, gateway.InitiateRequest{Amount: 500000, Currency: "IRR"})
	require.NoError(t, err)

	params, err := adapter.CallbackParams(initiated.ExternalReference)
	require.NoError(t, err)

	cb, err := adapter.DecodeCallback(params, nil)
	require.NoError(t, err)
	assert.Equal(t, gateway.Sandbox, cb.Gateway)
	assert.Equal(t, initiated.ExternalReference, cb.ExternalReference)
	assert.True(t, cb.Succeeded)
	assert.NotEmpty(t, cb.Signature)

	assert.NoError(t, adapter.AuthenticateCallback(cb))
}

func TestSandboxAdapter_AuthenticateCallback_RejectsTampering(t *testing.T) {
	ctx := context.Background()
	adapter := newSandbox(t)

	initiated, err := adapter.Initiate(ctx, gateway.InitiateRequest{Amount: 500000, Currency: "IRR"})
	require.NoError(t, err)

	params, err := adapter.CallbackParams(initiated.ExternalReference)
	require.NoError(t, err)

	t.Run("tampered amount", func(t *testing.T) {
		forged := params
		forged.Set("amount", "1")

		cb, err := adapter.DecodeCallback(forged, nil)
		require.NoError(t, err)
		assert.Error(t, adapter.AuthenticateCallback(cb))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSandbox(newTestLogger(), &config.SandboxConfig{Secret: "other-secret"})
		params.Set("amount", "500000")
		params.Set("signature", other.Sign(initiated.ExternalReference, "500000", "IRR"))

		cb, err := adapter.DecodeCallback(params, nil)
		require.NoError(t, err)
		assert.Error(t, adapter.AuthenticateCallback(cb))
	})
}

func TestSandboxAdapter_CallbackParams_UnknownReference(t *testing.T) {
	adapter := newSandbox(t)

	_, err := adapter.CallbackParams("SBX-999999")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	t.Run("resolves enabled gateways", func(t *testing.T) {
		registry, err := NewRegistry(newTestLogger(), &config.GatewaysConfig{
			CallbackBaseURL: "https://core.example.test",
			Sandbox:         config.SandboxConfig{Enabled: true, Secret: "test-secret"},
		})
		require.NoError(t, err)

		adapter, err := registry.Adapter(gateway.Sandbox)
		require.NoError(t, err)
		assert.Equal(t, gateway.Sandbox, adapter.Name())
		assert.Equal(t, []gateway.Name{gateway.Sandbox}, registry.Names())
	})

	t.Run("unconfigured gateway", func(t *testing.T) {
		registry, err := NewRegistry(newTestLogger(), &config.GatewaysConfig{
			Sandbox: config.SandboxConfig{Enabled: true, Secret: "test-secret"},
		})
		require.NoError(t, err)

		_, err = registry.Adapter(gateway.Zarinpal)
		assert.ErrorIs(t, err, gateway.ErrNotConfigured)
	})

	t.Run("no gateways enabled", func(t *testing.T) {
		_, err := NewRegistry(newTestLogger(), &config.GatewaysConfig{})
		assert.Error(t, err)
	})
}
