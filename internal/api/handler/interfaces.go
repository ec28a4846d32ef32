package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/domain/wallet"
	"github.com/asoud/payment-core/internal/payment"
)

// PaymentService is the slice of the payment service the payment handler
// uses
type PaymentService interface {
	Create(ctx context.Context, params payment.CreateParams) (*transaction.Transaction, bool, error)
	Initiate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, string, error)
	Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	Refund(ctx context.Context, id uuid.UUID, amount int64, reason string) (*transaction.Transaction, error)
}

// CallbackService processes inbound gateway callbacks
type CallbackService interface {
	ApplyCallback(ctx context.Context, gw gateway.Name, cb *gateway.Callback) (*transaction.Transaction, error)
}

// WalletService is the slice of the payment service the wallet handler uses
type WalletService interface {
	CreateWallet(ctx context.Context, ownerID uuid.UUID, ownerType wallet.OwnerType, currency string) (*wallet.Account, error)
	WalletBalance(ctx context.Context, accountID uuid.UUID) (*wallet.Account, int64, error)
	WalletEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error)
}
