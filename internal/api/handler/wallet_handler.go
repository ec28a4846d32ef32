package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/domain/wallet"
)

// WalletHandler handles HTTP requests for wallet operations
type WalletHandler struct {
	walletService WalletService
	logger        *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(logger *slog.Logger, walletService WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

// Create provisions a wallet account for an owner
func (h *WalletHandler) Create(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		RespondBadRequest(c, "Invalid owner ID")
		return
	}

	acct, err := h.walletService.CreateWallet(c.Request.Context(), ownerID, wallet.OwnerType(req.OwnerType), req.Currency)
	if err != nil {
		h.logger.Error("Failed to create wallet account", "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapWalletToResponse(acct, acct.Balance))
}

// Balance returns the wallet balance alongside the balance derived from the
// ledger entries
func (h *WalletHandler) Balance(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid wallet account ID")
		return
	}

	acct, derived, err := h.walletService.WalletBalance(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, wallet.ErrAccountNotFound{}) {
			RespondNotFound(c, "Wallet account not found")
			return
		}
		h.logger.Error("Failed to get wallet balance", "account_id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapWalletToResponse(acct, derived))
}

// Entries returns the wallet's ledger statement, newest first, paginated
func (h *WalletHandler) Entries(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid wallet account ID")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	offset := (pagination.Page - 1) * pagination.PerPage
	entries, total, err := h.walletService.WalletEntries(c.Request.Context(), id, pagination.PerPage, offset)
	if err != nil {
		if errors.Is(err, wallet.ErrAccountNotFound{}) {
			RespondNotFound(c, "Wallet account not found")
			return
		}
		h.logger.Error("Failed to list wallet entries", "account_id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]LedgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, mapEntryToResponse(entry))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}
