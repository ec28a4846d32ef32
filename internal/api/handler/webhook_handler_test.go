package handler

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/payment"
	"github.com/asoud/payment-core/internal/platform/messaging/producers"
)

type MockCallbackService struct {
	mock.Mock
}

func (m *MockCallbackService) ApplyCallback(ctx context.Context, gw gateway.Name, cb *gateway.Callback) (*transaction.Transaction, error) {
	args := m.Called(ctx, gw, cb)
	var txn *transaction.Transaction
	if v := args.Get(0); v != nil {
		txn = v.(*transaction.Transaction)
	}
	return txn, args.Error(1)
}

// queryAdapter decodes sandbox-style reference/status query callbacks
type queryAdapter struct{}

func (queryAdapter) Name() gateway.Name { return gateway.Sandbox }

func (queryAdapter) Initiate(context.Context, gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	return nil, gateway.ErrUnavailable
}

func (queryAdapter) Verify(context.Context, string, int64) (*gateway.VerifyResult, error) {
	return nil, gateway.ErrUnavailable
}

func (queryAdapter) Refund(context.Context, gateway.RefundRequest) (*gateway.RefundResult, error) {
	return nil, gateway.ErrRefundUnsupported
}

func (queryAdapter) DecodeCallback(params url.Values, _ []byte) (*gateway.Callback, error) {
	ref := params.Get("reference")
	if ref == "" {
		return nil, assert.AnError
	}
	return &gateway.Callback{
		Gateway:           gateway.Sandbox,
		ExternalReference: ref,
		Succeeded:         params.Get("status") == "OK",
		Raw:               []byte(params.Encode()),
	}, nil
}

func (queryAdapter) SupportsRefunds() bool { return false }

// singleAdapterResolver serves one adapter for one configured gateway
type singleAdapterResolver struct {
	name    gateway.Name
	adapter gateway.Adapter
}

func (r singleAdapterResolver) Adapter(name gateway.Name) (gateway.Adapter, error) {
	if name != r.name {
		return nil, gateway.ErrNotConfigured
	}
	return r.adapter, nil
}

type dlqRecorder struct {
	keys    []string
	reasons []string
}

func (d *dlqRecorder) PublishToDLQ(_ context.Context, key string, _ []byte, reason string) error {
	d.keys = append(d.keys, key)
	d.reasons = append(d.reasons, reason)
	return nil
}

func (d *dlqRecorder) Close() error { return nil }

func webhookRouter(callbacks CallbackService, dlq *dlqRecorder) *gin.Engine {
	router := gin.New()
	resolver := singleAdapterResolver{name: gateway.Sandbox, adapter: queryAdapter{}}

	// A typed nil would dodge the handler's disabled-DLQ check.
	var publisher producers.DeadLetterPublisher
	if dlq != nil {
		publisher = dlq
	}

	h := NewWebhookHandler(newTestLogger(), callbacks, resolver, publisher)
	router.POST("/webhooks/:gateway", h.Receive)
	router.GET("/webhooks/:gateway", h.Receive)
	return router
}

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("settles and acknowledges", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		settled := newHandlerTransaction(t, transaction.StatusSettled)
		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.MatchedBy(func(cb *gateway.Callback) bool {
			return cb.ExternalReference == "SBX-000001" && cb.Succeeded
		})).Return(settled, nil)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeEnvelope[PaymentResponse](t, rec)
		assert.Equal(t, "SETTLED", resp.Data.Status)
		service.AssertExpectations(t)
	})

	t.Run("duplicate delivery is acknowledged identically", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		settled := newHandlerTransaction(t, transaction.StatusSettled)
		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).Return(settled, nil)

		first := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)
		second := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusOK, second.Code)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/paypal?reference=x", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		service.AssertNotCalled(t, "ApplyCallback", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unconfigured gateway", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/zarinpal?Authority=A-0001&Status=OK", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("undecodable callback is dead-lettered", func(t *testing.T) {
		service := new(MockCallbackService)
		dlq := &dlqRecorder{}
		router := webhookRouter(service, dlq)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.Len(t, dlq.reasons, 1)
		assert.Contains(t, dlq.reasons[0], "undecodable")
		service.AssertNotCalled(t, "ApplyCallback", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("uncorrelated callback is dead-lettered with 404", func(t *testing.T) {
		service := new(MockCallbackService)
		dlq := &dlqRecorder{}
		router := webhookRouter(service, dlq)

		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).
			Return(nil, transaction.ErrTransactionNotFound{})

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-UNKNOWN&status=OK", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.Len(t, dlq.keys, 1)
		assert.Equal(t, "SBX-UNKNOWN", dlq.keys[0])
	})

	t.Run("unresolved verdict answers 202", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		awaiting := newHandlerTransaction(t, transaction.StatusAwaitingCallback)
		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).
			Return(awaiting, payment.ErrOutcomeUnresolved)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		resp := decodeEnvelope[map[string]string](t, rec)
		assert.Equal(t, "AWAITING_CALLBACK", resp.Data["status"])
	})

	t.Run("gateway unavailable answers 202", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		awaiting := newHandlerTransaction(t, transaction.StatusAwaitingCallback)
		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).
			Return(awaiting, gateway.ErrUnavailable)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("failed verification acknowledges the terminal state", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		failed := newHandlerTransaction(t, transaction.StatusAwaitingCallback)
		require.NoError(t, failed.Fail(transaction.FailureReasonVerificationFailed))

		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).
			Return(failed, &payment.VerificationError{
				SubReason: payment.SubReasonAmountMismatch,
				Detail:    "gateway verified 1, transaction holds 500000",
			})

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeEnvelope[PaymentResponse](t, rec)
		assert.Equal(t, "FAILED", resp.Data.Status)
		assert.Equal(t, "VERIFICATION_FAILED", resp.Data.FailureReason)
	})

	t.Run("unexpected service error answers 500", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).
			Return(nil, assert.AnError)

		rec := doJSON(t, router, http.MethodPost, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("browser redirect arrives as GET", func(t *testing.T) {
		service := new(MockCallbackService)
		router := webhookRouter(service, nil)

		settled := newHandlerTransaction(t, transaction.StatusSettled)
		service.On("ApplyCallback", mock.Anything, gateway.Sandbox, mock.Anything).Return(settled, nil)

		rec := doJSON(t, router, http.MethodGet, "/webhooks/sandbox?reference=SBX-000001&status=OK", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
