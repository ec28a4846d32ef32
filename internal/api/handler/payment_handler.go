package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/api/middleware"
	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/domain/wallet"
	"github.com/asoud/payment-core/internal/payment"
)

// PaymentHandler handles HTTP requests for payment operations
type PaymentHandler struct {
	paymentService PaymentService
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Create creates a payment transaction and initiates it with the gateway.
// A replayed idempotency key returns the existing transaction with 200 and
// initiates nothing.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	gw, err := gateway.ParseName(req.Gateway)
	if err != nil {
		RespondBadRequest(c, "Unknown gateway: "+req.Gateway)
		return
	}

	ctx := c.Request.Context()

	txn, created, err := h.paymentService.Create(ctx, payment.CreateParams{
		IdempotencyKey:  req.IdempotencyKey,
		WalletAccountID: accountID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Gateway:         gw,
		CorrelationID:   middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	if !created {
		// A replayed key usually returns the existing transaction as-is.
		// One still in CREATED means the first attempt died before reaching
		// the gateway; drive it through initiation like the first request
		// would have, so the caller is not wedged forever.
		if txn.Status != transaction.StatusCreated {
			RespondOK(c, mapTransactionToResponse(txn, ""))
			return
		}
		existingID := txn.ID
		txn, redirectURL, err := h.paymentService.Initiate(ctx, existingID)
		if err != nil {
			var stateErr transaction.ErrInvalidState
			if errors.As(err, &stateErr) {
				// A concurrent replay claimed the transaction first; its
				// current state is the answer.
				if txn == nil {
					txn, err = h.paymentService.Get(ctx, existingID)
					if err != nil {
						h.respondServiceError(c, err)
						return
					}
				}
				RespondOK(c, mapTransactionToResponse(txn, ""))
				return
			}
			if txn != nil && txn.Status == transaction.StatusFailed {
				RespondBadGateway(c, "Payment could not be initiated with the gateway")
				return
			}
			h.respondServiceError(c, err)
			return
		}
		RespondOK(c, mapTransactionToResponse(txn, redirectURL))
		return
	}

	txn, redirectURL, err := h.paymentService.Initiate(ctx, txn.ID)
	if err != nil {
		// The transaction exists either way; surface its terminal state
		// alongside the gateway failure.
		if txn != nil && txn.Status == transaction.StatusFailed {
			RespondBadGateway(c, "Payment could not be initiated with the gateway")
			return
		}
		h.respondServiceError(c, err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(txn, redirectURL))
}

// GetByID retrieves a payment transaction by its ID
func (h *PaymentHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid payment ID")
		return
	}

	txn, err := h.paymentService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(txn, ""))
}

// Refund refunds a settled payment, fully or partially
func (h *PaymentHandler) Refund(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid payment ID")
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	txn, err := h.paymentService.Refund(c.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(txn, ""))
}

// respondServiceError translates service errors into HTTP responses
func (h *PaymentHandler) respondServiceError(c *gin.Context, err error) {
	var invalidState transaction.ErrInvalidState
	switch {
	case errors.Is(err, transaction.ErrTransactionNotFound{}):
		RespondNotFound(c, "Payment not found")
	case errors.Is(err, wallet.ErrAccountNotFound{}):
		RespondNotFound(c, "Wallet account not found")
	case errors.As(err, &invalidState):
		RespondConflict(c, "INVALID_STATE", invalidState.Error())
	case errors.Is(err, transaction.ErrRefundExceedsAmount):
		RespondUnprocessable(c, "REFUND_EXCEEDS_AMOUNT", err.Error())
	case errors.Is(err, gateway.ErrRefundUnsupported):
		RespondUnprocessable(c, "REFUND_UNSUPPORTED", err.Error())
	case errors.Is(err, wallet.ErrCurrencyMismatch),
		errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, transaction.ErrInvalidAmount),
		errors.Is(err, transaction.ErrInvalidCurrency),
		errors.Is(err, transaction.ErrEmptyIdempotencyKey):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, gateway.ErrNotConfigured):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, gateway.ErrUnavailable):
		RespondBadGateway(c, "Payment gateway is unavailable")
	case errors.Is(err, gateway.ErrRejected), errors.Is(err, gateway.ErrInvalidRequest):
		RespondUnprocessable(c, "GATEWAY_REJECTED", "The gateway rejected the request")
	default:
		h.logger.Error("Unhandled service error", "error", err)
		RespondInternalError(c)
	}
}
