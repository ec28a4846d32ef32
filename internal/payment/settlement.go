package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/transaction"
)

// ApplyCallback processes a pushed gateway callback. The callback is
// correlated to its transaction by external reference, then settled through
// the same path reconciliation uses. Callbacks for transactions already in
// a terminal state are acknowledged without side effects.
func (s *Service) ApplyCallback(ctx context.Context, gwName gateway.Name, cb *gateway.Callback) (*transaction.Transaction, error) {
	adapter, err := s.gateways.Adapter(gwName)
	if err != nil {
		return nil, err
	}

	txn, err := s.transactions.GetByExternalReference(ctx, gwName, cb.ExternalReference)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			s.archiveCallback(ctx, &CallbackRecord{
				Gateway:           gwName,
				ExternalReference: cb.ExternalReference,
				Source:            SourceWebhook,
				Outcome:           "UNCORRELATED",
				Detail:            "no transaction matches the external reference",
				RawPayload:        cb.Raw,
				ReceivedAt:        time.Now().UTC(),
			})
		}
		return nil, err
	}

	return s.settle(ctx, txn, adapter, cb, SourceWebhook)
}

// Reconcile resolves a transaction stuck in AWAITING_CALLBACK by asking the
// gateway for its final outcome. Shares the settlement path with pushed
// callbacks, so a poll and a late callback for the same transaction cannot
// both take effect.
func (s *Service) Reconcile(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	adapter, err := s.gateways.Adapter(txn.Gateway)
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, txn, adapter, nil, SourceReconciliation)
}

// settle is the single settlement path. It verifies the outcome with the
// gateway, then applies the final transition, the ledger entry, the wallet
// update, and the status event in one database transaction. cb is nil for
// reconciliation polls.
//
// Concurrent settles of the same transaction serialize on the transaction
// row lock; whichever commits second observes a terminal state and becomes
// a no-op.
func (s *Service) settle(ctx context.Context, txn *transaction.Transaction, adapter gateway.Adapter, cb *gateway.Callback, source CallbackSource) (*transaction.Transaction, error) {
	log := s.logger.With(
		"correlation_id", txn.CorrelationID,
		"transaction_id", txn.ID,
		"gateway", txn.Gateway,
		"source", source,
	)

	if txn.Status.IsTerminal() {
		log.Info("Settlement skipped, transaction already terminal", "status", txn.Status)
		return txn, nil
	}
	if txn.Status != transaction.StatusAwaitingCallback {
		return nil, transaction.ErrInvalidState{Operation: "settle", Status: txn.Status}
	}

	ref := txn.ExternalReference
	if ref == "" && cb != nil {
		ref = cb.ExternalReference
	}
	if ref == "" {
		return nil, fmt.Errorf("transaction %s has no external reference to verify", txn.ID)
	}

	// A provider-declared failure needs no verification call; the provider
	// cannot be tricked into NOT taking money.
	if cb != nil && !cb.Succeeded {
		settled, err := s.finalize(ctx, txn.ID, func(locked *transaction.Transaction, _ pgx.Tx) error {
			return locked.Fail(transaction.FailureReasonDeclined)
		})
		if err != nil {
			return nil, err
		}
		log.Info("Transaction declined by provider callback")
		s.archiveCallback(ctx, s.record(settled, cb, source, "DECLINED", "provider reported failure"))
		return settled, nil
	}

	// Verify with the provider before touching any state. The network call
	// stays outside the database transaction so row locks are never held
	// across it.
	var res *gateway.VerifyResult
	err := s.retry.Do(ctx, "verify", func(ctx context.Context) error {
		txn.RecordAttempt()
		r, callErr := adapter.Verify(ctx, ref, txn.Amount)
		if callErr != nil {
			return callErr
		}
		res = r
		if r.Outcome == gateway.OutcomeUnresolved {
			return ErrOutcomeUnresolved
		}
		return nil
	})
	if err != nil {
		// Unavailable or still unresolved: the transaction stays in
		// AWAITING_CALLBACK and reconciliation will try again. Failing it
		// here could orphan money the provider already took.
		log.Warn("Verification did not reach a verdict", "attempts", txn.Attempts, "error", err)
		s.archiveCallback(ctx, s.record(txn, cb, source, "UNRESOLVED", err.Error()))
		return txn, err
	}

	switch res.Outcome {
	case gateway.OutcomeDeclined:
		settled, err := s.finalize(ctx, txn.ID, func(locked *transaction.Transaction, _ pgx.Tx) error {
			return locked.Fail(transaction.FailureReasonDeclined)
		})
		if err != nil {
			return nil, err
		}
		log.Info("Transaction declined by gateway verification")
		s.archiveCallback(ctx, s.record(settled, cb, source, "DECLINED", "gateway verification declined"))
		return settled, nil

	case gateway.OutcomeConfirmed:
		if vErr := s.verifier.Verify(txn, cb, res, adapter); vErr != nil {
			verr, _ := errVerification(vErr)
			settled, err := s.finalize(ctx, txn.ID, func(locked *transaction.Transaction, _ pgx.Tx) error {
				return locked.Fail(transaction.FailureReasonVerificationFailed)
			})
			if err != nil {
				return nil, err
			}
			log.Error("Confirmed callback failed verification",
				"sub_reason", verr.SubReason,
				"detail", verr.Detail,
			)
			s.archiveCallback(ctx, s.record(settled, cb, source, string(verr.SubReason), verr.Detail))
			return settled, vErr
		}

		settled, err := s.finalize(ctx, txn.ID, func(locked *transaction.Transaction, tx pgx.Tx) error {
			return s.credit(ctx, tx, locked, res)
		})
		if err != nil {
			return nil, err
		}
		log.Info("Transaction settled",
			"amount", settled.Amount,
			"currency", settled.Currency,
			"provider_trace_id", res.ProviderTraceID,
		)
		s.archiveCallback(ctx, s.record(settled, cb, source, "SETTLED", res.ProviderTraceID))
		return settled, nil

	default:
		return nil, fmt.Errorf("unexpected verify outcome %q", res.Outcome)
	}
}

// finalize applies a terminal transition atomically: it locks the
// transaction row, re-checks the state under the lock, runs apply, persists
// the transaction, and emits the status event, all in one database
// transaction. Returns the stored transaction, which is the pre-existing
// terminal one when a concurrent settle won the race.
func (s *Service) finalize(ctx context.Context, id uuid.UUID, apply func(locked *transaction.Transaction, tx pgx.Tx) error) (*transaction.Transaction, error) {
	var result *transaction.Transaction

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.transactions.WithTx(tx)

		locked, err := txRepo.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			result = locked
			return nil
		}
		if locked.Status != transaction.StatusAwaitingCallback {
			return transaction.ErrInvalidState{Operation: "settle", Status: locked.Status}
		}

		// VERIFYING is a checkpoint on the way to the terminal state, not
		// a state that survives this transaction.
		if err := locked.Transition(transaction.StatusVerifying); err != nil {
			return err
		}
		if err := apply(locked, tx); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, locked); err != nil {
			return err
		}
		if err := s.emitStatusEvent(ctx, tx, locked); err != nil {
			return err
		}

		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// credit settles a confirmed payment: records the gateway reference if it
// was never stored, appends the ledger entry, and updates the wallet
// balance. Runs inside the settlement transaction; the transition to
// SETTLED and the ledger commit succeed or fail together.
func (s *Service) credit(ctx context.Context, tx pgx.Tx, locked *transaction.Transaction, res *gateway.VerifyResult) error {
	if locked.ExternalReference == "" && res.ExternalReference != "" {
		locked.ExternalReference = res.ExternalReference
	}

	walletRepo := s.wallets.WithTx(tx)
	acct, err := walletRepo.LockForUpdate(ctx, locked.WalletAccountID)
	if err != nil {
		return err
	}

	balanceAfter, err := acct.Apply(locked.Amount)
	if err != nil {
		return err
	}
	if err := walletRepo.Update(ctx, acct); err != nil {
		return err
	}

	entry := ledger.NewEntry(locked.ID, locked.WalletAccountID, locked.Amount, balanceAfter)
	if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
		return err
	}

	return locked.Transition(transaction.StatusSettled)
}

// record builds the audit entry for one settlement attempt
func (s *Service) record(txn *transaction.Transaction, cb *gateway.Callback, source CallbackSource, outcome, detail string) *CallbackRecord {
	rec := &CallbackRecord{
		TransactionID:     txn.ID,
		Gateway:           txn.Gateway,
		ExternalReference: txn.ExternalReference,
		Source:            source,
		Outcome:           outcome,
		Detail:            detail,
		CorrelationID:     txn.CorrelationID,
		ReceivedAt:        time.Now().UTC(),
	}
	if cb != nil {
		rec.RawPayload = cb.Raw
		if rec.ExternalReference == "" {
			rec.ExternalReference = cb.ExternalReference
		}
	}
	return rec
}
