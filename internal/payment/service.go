// Package payment implements the payment orchestration core: transaction
// lifecycle, gateway dispatch with bounded retry, callback verification,
// and exactly-once settlement into the wallet ledger.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/asoud/payment-core/internal/domain/gateway"
	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/outbox"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/domain/wallet"
	"github.com/asoud/payment-core/internal/platform/persistence"
)

// Service orchestrates the payment lifecycle. All state transitions flow
// through here; handlers, the webhook receiver, and the reconciler are thin
// wrappers over these methods.
type Service struct {
	db           persistence.TxRunner
	transactions transaction.Repository
	ledger       ledger.Repository
	wallets      wallet.Repository
	outbox       outbox.Repository
	gateways     GatewayResolver
	retry        *RetryScheduler
	verifier     *CallbackVerifier
	archive      CallbackArchiver
	logger       *slog.Logger
}

// NewService creates the payment service
func NewService(
	db persistence.TxRunner,
	transactions transaction.Repository,
	ledgerRepo ledger.Repository,
	wallets wallet.Repository,
	outboxRepo outbox.Repository,
	gateways GatewayResolver,
	retry *RetryScheduler,
	verifier *CallbackVerifier,
	archive CallbackArchiver,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:           db,
		transactions: transactions,
		ledger:       ledgerRepo,
		wallets:      wallets,
		outbox:       outboxRepo,
		gateways:     gateways,
		retry:        retry,
		verifier:     verifier,
		archive:      archive,
		logger:       logger,
	}
}

// CreateParams carries the inputs for creating a payment transaction
type CreateParams struct {
	IdempotencyKey  string
	WalletAccountID uuid.UUID
	Amount          int64 // Minor currency units
	Currency        string
	Gateway         gateway.Name
	CorrelationID   string
}

// Create records a new payment transaction in CREATED, or returns the
// existing one when the idempotency key has been seen before. The boolean
// reports whether this call created the transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*transaction.Transaction, bool, error) {
	log := s.logger.With("correlation_id", params.CorrelationID)

	if _, err := s.gateways.Adapter(params.Gateway); err != nil {
		return nil, false, err
	}

	acct, err := s.wallets.GetByID(ctx, params.WalletAccountID)
	if err != nil {
		return nil, false, err
	}
	if acct.Currency != params.Currency {
		return nil, false, wallet.ErrCurrencyMismatch
	}

	txn, err := transaction.New(params.IdempotencyKey, params.WalletAccountID, params.Amount, params.Currency, params.Gateway)
	if err != nil {
		return nil, false, err
	}
	txn.CorrelationID = params.CorrelationID

	stored, created, err := s.transactions.CreateIdempotent(ctx, txn)
	if err != nil {
		log.Error("Failed to create transaction", "error", err)
		return nil, false, fmt.Errorf("failed to create transaction: %w", err)
	}

	if created {
		log.Info("Transaction created",
			"transaction_id", stored.ID,
			"gateway", stored.Gateway,
			"amount", stored.Amount,
			"currency", stored.Currency,
		)
	} else {
		log.Info("Duplicate create request, returning existing transaction",
			"transaction_id", stored.ID,
			"idempotency_key", params.IdempotencyKey,
		)
	}

	return stored, created, nil
}

// Get fetches a transaction by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

// Initiate registers the transaction with its gateway and moves it to
// AWAITING_CALLBACK, returning the redirect URL for the payer. Gateway
// calls go through the retry scheduler; a terminal gateway verdict or an
// exhausted retry budget fails the transaction.
func (s *Service) Initiate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, string, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	log := s.logger.With(
		"correlation_id", txn.CorrelationID,
		"transaction_id", txn.ID,
		"gateway", txn.Gateway,
	)

	if txn.Status != transaction.StatusCreated {
		return nil, "", transaction.ErrInvalidState{Operation: "initiate", Status: txn.Status}
	}

	adapter, err := s.gateways.Adapter(txn.Gateway)
	if err != nil {
		return nil, "", err
	}

	// Claim the transaction under its row lock. Concurrent initiations of
	// the same transaction, such as a replayed create request, serialize
	// here; the loser observes a status other than CREATED and backs off.
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.transactions.WithTx(tx)
		locked, lockErr := txRepo.LockForUpdate(ctx, id)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status != transaction.StatusCreated {
			txn = locked
			return transaction.ErrInvalidState{Operation: "initiate", Status: locked.Status}
		}
		if err := locked.Transition(transaction.StatusInitiating); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, locked); err != nil {
			return fmt.Errorf("failed to persist initiation: %w", err)
		}
		txn = locked
		return nil
	})
	if err != nil {
		return txn, "", err
	}

	var result *gateway.InitiateResult
	err = s.retry.Do(ctx, "initiate", func(ctx context.Context) error {
		txn.RecordAttempt()
		r, callErr := adapter.Initiate(ctx, gateway.InitiateRequest{
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Description:   fmt.Sprintf("payment %s", txn.ID),
		})
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})
	if err != nil {
		reason := transaction.FailureReasonRejected
		if gateway.IsRetryable(err) {
			reason = transaction.FailureReasonGatewayUnavailable
		}
		log.Warn("Gateway initiation failed", "reason", reason, "attempts", txn.Attempts, "error", err)
		if failErr := s.failTransaction(ctx, txn, reason); failErr != nil {
			return nil, "", failErr
		}
		return txn, "", err
	}

	// The row was unlocked during the gateway call. Re-acquire the lock and
	// re-check the status before recording the reference; a verdict reached
	// in the meantime stands and is never overwritten.
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.transactions.WithTx(tx)
		locked, lockErr := txRepo.LockForUpdate(ctx, id)
		if lockErr != nil {
			return lockErr
		}
		if locked.Status != transaction.StatusInitiating {
			txn = locked
			return transaction.ErrInvalidState{Operation: "initiate", Status: locked.Status}
		}
		locked.ExternalReference = result.ExternalReference
		locked.Attempts = txn.Attempts
		if err := locked.Transition(transaction.StatusAwaitingCallback); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, locked); err != nil {
			return fmt.Errorf("failed to persist gateway reference: %w", err)
		}
		txn = locked
		return nil
	})
	if err != nil {
		return txn, "", err
	}

	log.Info("Transaction initiated",
		"external_reference", txn.ExternalReference,
		"attempts", txn.Attempts,
	)

	return txn, result.RedirectURL, nil
}

// failTransaction moves the transaction to FAILED under its row lock and
// emits the status event atomically with the transition. If the stored row
// already reached a terminal state the stored verdict wins: the in-flight
// failure is dropped and txn adopts the stored state.
func (s *Service) failTransaction(ctx context.Context, txn *transaction.Transaction, reason transaction.FailureReason) error {
	return s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.transactions.WithTx(tx)
		locked, err := txRepo.LockForUpdate(ctx, txn.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			*txn = *locked
			return nil
		}
		locked.Attempts = txn.Attempts
		if err := locked.Fail(reason); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, locked); err != nil {
			return err
		}
		if err := s.emitStatusEvent(ctx, tx, locked); err != nil {
			return err
		}
		*txn = *locked
		return nil
	})
}

// ExpireInitiation fails a transaction stranded in INITIATING. A worker
// that dies between claiming the transaction and persisting the gateway
// reference leaves the row in INITIATING forever; the reconciler calls
// this once the row is old enough that no worker can still be driving it.
// Rows in INITIATING never carry an external reference, so there is no
// outcome to verify with the gateway.
func (s *Service) ExpireInitiation(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	var result *transaction.Transaction
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := s.transactions.WithTx(tx)
		locked, err := txRepo.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// Anything other than INITIATING means a worker finished with the
		// row after the listing query ran; leave it alone.
		if locked.Status != transaction.StatusInitiating {
			result = locked
			return nil
		}
		if err := locked.Fail(transaction.FailureReasonGatewayUnavailable); err != nil {
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
	if result.Status == transaction.StatusFailed {
		s.logger.Info("Expired stranded initiation",
			"correlation_id", result.CorrelationID,
			"transaction_id", result.ID,
			"gateway", result.Gateway,
		)
	}
	return result, nil
}

// emitStatusEvent writes the status event to the outbox within the given
// database transaction. The poller publishes it after commit.
func (s *Service) emitStatusEvent(ctx context.Context, tx pgx.Tx, txn *transaction.Transaction) error {
	event := &transaction.StatusEvent{
		TransactionID:     txn.ID,
		WalletAccountID:   txn.WalletAccountID,
		Status:            txn.Status,
		FailureReason:     txn.FailureReason,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		Gateway:           txn.Gateway,
		ExternalReference: txn.ExternalReference,
		CorrelationID:     txn.CorrelationID,
		OccurredAt:        txn.LastTransitionAt,
	}

	msg, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("failed to build status event: %w", err)
	}
	if err := s.outbox.WithTx(tx).Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue status event: %w", err)
	}
	return nil
}

// archiveCallback records the settlement attempt for audit. Best-effort;
// failures are logged and never affect the settlement outcome.
func (s *Service) archiveCallback(ctx context.Context, rec *CallbackRecord) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, rec); err != nil {
		s.logger.Warn("Failed to archive callback record",
			"transaction_id", rec.TransactionID,
			"gateway", rec.Gateway,
			"error", err,
		)
	}
}

// errVerification extracts a VerificationError, if any
func errVerification(err error) (*VerificationError, bool) {
	var vErr *VerificationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}
