package handler

import (
	"errors"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/payment"
	"github.com/asoud/payment-core/internal/platform/messaging/producers"
)

// Callback bodies are small; anything larger is not a payment provider.
const maxCallbackBodySize = 1 << 20

// WebhookHandler receives provider callbacks. It decodes the payload with
// the provider's adapter, hands off to the settlement path, and always
// answers gateways idempotently: a duplicate delivery gets the same
// acknowledgment as the first without re-executing settlement.
type WebhookHandler struct {
	callbacks CallbackService
	gateways  payment.GatewayResolver
	dlq       producers.DeadLetterPublisher
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler. dlq may be nil when the
// dead letter queue is disabled.
func NewWebhookHandler(logger *slog.Logger, callbacks CallbackService, gateways payment.GatewayResolver, dlq producers.DeadLetterPublisher) *WebhookHandler {
	return &WebhookHandler{
		callbacks: callbacks,
		gateways:  gateways,
		dlq:       dlq,
		logger:    logger,
	}
}

// Receive handles POST /webhooks/:gateway
func (h *WebhookHandler) Receive(c *gin.Context) {
	gwParam := c.Param("gateway")
	gw, err := gateway.ParseName(gwParam)
	if err != nil {
		RespondNotFound(c, "Unknown gateway")
		return
	}

	adapter, err := h.gateways.Adapter(gw)
	if err != nil {
		RespondNotFound(c, "Gateway not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBodySize))
	if err != nil {
		h.logger.Error("Failed to read callback body", "gateway", gwParam, "error", err)
		RespondBadRequest(c, "Unreadable callback body")
		return
	}

	cb, err := adapter.DecodeCallback(c.Request.URL.Query(), body)
	if err != nil {
		h.logger.Warn("Undecodable gateway callback", "gateway", gwParam, "error", err)
		h.deadLetter(c, gwParam, body, "undecodable callback: "+err.Error())
		RespondBadRequest(c, "Undecodable callback")
		return
	}

	txn, err := h.callbacks.ApplyCallback(c.Request.Context(), gw, cb)
	if err != nil {
		switch {
		case errors.Is(err, transaction.ErrTransactionNotFound{}):
			h.logger.Warn("Callback does not match any transaction",
				"gateway", gwParam,
				"external_reference", cb.ExternalReference,
			)
			h.deadLetter(c, cb.ExternalReference, cb.Raw, "no transaction matches the external reference")
			RespondNotFound(c, "No matching payment")
			return

		case errors.Is(err, payment.ErrOutcomeUnresolved), errors.Is(err, gateway.ErrUnavailable):
			// No verdict yet. The transaction stays awaiting and the
			// reconciler finishes the job; tell the provider we took it.
			RespondAccepted(c, gin.H{"status": string(transaction.StatusAwaitingCallback)})
			return
		}

		// A failed verification still moved the transaction to a terminal
		// state worth acknowledging.
		var vErr *payment.VerificationError
		if errors.As(err, &vErr) && txn != nil {
			RespondOK(c, mapTransactionToResponse(txn, ""))
			return
		}

		h.logger.Error("Failed to process gateway callback", "gateway", gwParam, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapTransactionToResponse(txn, ""))
}

func (h *WebhookHandler) deadLetter(c *gin.Context, key string, raw []byte, reason string) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(c.Request.Context(), key, raw, reason); err != nil {
		h.logger.Error("Failed to dead-letter callback", "key", key, "error", err)
	}
}
