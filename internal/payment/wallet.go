package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/wallet"
)

// CreateWallet provisions an empty wallet account for an owner
func (s *Service) CreateWallet(ctx context.Context, ownerID uuid.UUID, ownerType wallet.OwnerType, currency string) (*wallet.Account, error) {
	acct, err := wallet.NewAccount(ownerID, ownerType, currency)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.Create(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("Wallet account created",
		"account_id", acct.ID,
		"owner_id", ownerID,
		"owner_type", ownerType,
		"currency", currency,
	)
	return acct, nil
}

// WalletBalance returns the account with its maintained balance alongside
// the balance recomputed from the ledger entries. The two are equal unless
// the books have drifted, which callers should treat as an incident.
func (s *Service) WalletBalance(ctx context.Context, accountID uuid.UUID) (*wallet.Account, int64, error) {
	acct, err := s.wallets.GetByID(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}

	derived, err := s.ledger.SumByAccountID(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	if derived != acct.Balance {
		s.logger.Error("Wallet balance drifted from ledger sum",
			"account_id", accountID,
			"balance", acct.Balance,
			"derived", derived,
		)
	}

	return acct, derived, nil
}

// WalletEntries lists an account's ledger entries, newest first, with the
// total count for pagination
func (s *Service) WalletEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error) {
	if _, err := s.wallets.GetByID(ctx, accountID); err != nil {
		return nil, 0, err
	}

	entries, err := s.ledger.ListByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.ledger.CountByAccountID(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
