package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/transaction"
)

// Refund reverses a settled payment at the gateway and debits the wallet
// with a compensating ledger entry. Only SETTLED transactions are
// refundable; anything else, including an already refunded transaction, is
// rejected synchronously. Refunds above the settled amount never reach the
// gateway.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, amount int64, reason string) (*transaction.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		"correlation_id", txn.CorrelationID,
		"transaction_id", txn.ID,
		"gateway", txn.Gateway,
	)

	if txn.Status != transaction.StatusSettled {
		return nil, transaction.ErrInvalidState{Operation: "refund", Status: txn.Status}
	}
	if amount <= 0 {
		return nil, transaction.ErrInvalidAmount
	}
	if amount > txn.Amount {
		return nil, transaction.ErrRefundExceedsAmount
	}

	adapter, err := s.gateways.Adapter(txn.Gateway)
	if err != nil {
		return nil, err
	}
	if !adapter.SupportsRefunds() {
		return nil, gateway.ErrRefundUnsupported
	}

	var result *transaction.Transaction
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.transactions.WithTx(tx)

		locked, err := txRepo.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status != transaction.StatusSettled {
			return transaction.ErrInvalidState{Operation: "refund", Status: locked.Status}
		}

		walletRepo := s.wallets.WithTx(tx)
		acct, err := walletRepo.LockForUpdate(ctx, locked.WalletAccountID)
		if err != nil {
			return err
		}

		// The gateway call runs under the row locks. A held lock is the
		// price of never issuing the same refund to the provider twice;
		// only this transaction's row and wallet block on it.
		var refund *gateway.RefundResult
		err = s.retry.Do(ctx, "refund", func(ctx context.Context) error {
			locked.RecordAttempt()
			r, callErr := adapter.Refund(ctx, gateway.RefundRequest{
				ExternalReference: locked.ExternalReference,
				Amount:            amount,
				Currency:          locked.Currency,
				Reason:            reason,
			})
			if callErr != nil {
				return callErr
			}
			refund = r
			return nil
		})
		if err != nil {
			return err
		}

		balanceAfter, err := acct.Apply(-amount)
		if err != nil {
			// The gateway accepted the refund but the wallet cannot absorb
			// the debit. Surfacing the error aborts the transaction and
			// leaves it SETTLED for manual reconciliation.
			log.Error("Refund accepted by gateway but wallet debit failed",
				"refund_amount", amount,
				"provider_trace_id", refund.ProviderTraceID,
				"error", err,
			)
			return err
		}
		if err := walletRepo.Update(ctx, acct); err != nil {
			return err
		}

		entry := ledger.NewEntry(locked.ID, locked.WalletAccountID, -amount, balanceAfter)
		if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}

		if err := locked.Transition(transaction.StatusRefunded); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, locked); err != nil {
			return err
		}
		if err := s.emitStatusEvent(ctx, tx, locked); err != nil {
			return err
		}

		log.Info("Transaction refunded",
			"refund_amount", amount,
			"provider_trace_id", refund.ProviderTraceID,
		)

		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
