package handler

import (
	"time"

	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/domain/wallet"
)

// CreatePaymentRequest represents a request to create a payment
type CreatePaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	AccountID      string `json:"account_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,len=3"`
	Gateway        string `json:"gateway" binding:"required"`
}

// RefundRequest represents a request to refund a settled payment
type RefundRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason,omitempty"`
}

// CreateWalletRequest represents a request to create a wallet account
type CreateWalletRequest struct {
	OwnerID   string `json:"owner_id" binding:"required,uuid"`
	OwnerType string `json:"owner_type" binding:"required,oneof=USER MARKET"`
	Currency  string `json:"currency" binding:"required,len=3"`
}

// PaymentResponse represents a payment transaction in API responses
type PaymentResponse struct {
	ID                string `json:"id"`
	AccountID         string `json:"account_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Gateway           string `json:"gateway"`
	Status            string `json:"status"`
	FailureReason     string `json:"failure_reason,omitempty"`
	ExternalReference string `json:"external_reference,omitempty"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	CreatedAt         string `json:"created_at"`
	LastTransitionAt  string `json:"last_transition_at"`
}

// WalletResponse represents a wallet account in API responses
type WalletResponse struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	OwnerType     string `json:"owner_type"`
	Currency      string `json:"currency"`
	Balance       int64  `json:"balance"`
	LedgerBalance int64  `json:"ledger_balance"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// LedgerEntryResponse represents a ledger entry in API responses
type LedgerEntryResponse struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	Delta         int64  `json:"delta"`
	BalanceAfter  int64  `json:"balance_after"`
	PostedAt      string `json:"posted_at"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

func mapTransactionToResponse(txn *transaction.Transaction, redirectURL string) PaymentResponse {
	return PaymentResponse{
		ID:                txn.ID.String(),
		AccountID:         txn.WalletAccountID.String(),
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		Gateway:           string(txn.Gateway),
		Status:            string(txn.Status),
		FailureReason:     string(txn.FailureReason),
		ExternalReference: txn.ExternalReference,
		RedirectURL:       redirectURL,
		CreatedAt:         txn.CreatedAt.Format(time.RFC3339),
		LastTransitionAt:  txn.LastTransitionAt.Format(time.RFC3339),
	}
}

func mapWalletToResponse(acct *wallet.Account, ledgerBalance int64) WalletResponse {
	return WalletResponse{
		ID:            acct.ID.String(),
		OwnerID:       acct.OwnerID.String(),
		OwnerType:     string(acct.OwnerType),
		Currency:      acct.Currency,
		Balance:       acct.Balance,
		LedgerBalance: ledgerBalance,
		CreatedAt:     acct.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     acct.UpdatedAt.Format(time.RFC3339),
	}
}

func mapEntryToResponse(entry *ledger.Entry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:            entry.ID.String(),
		TransactionID: entry.TransactionID.String(),
		Delta:         entry.Delta,
		BalanceAfter:  entry.BalanceAfter,
		PostedAt:      entry.PostedAt.Format(time.RFC3339),
	}
}
