// Package reconciler resolves transactions stuck awaiting a gateway
// callback. Callbacks get lost: payers close the browser tab, providers
// drop webhooks, networks partition. The reconciler polls for transactions
// that have waited too long and pushes each through the same settlement
// path a callback would have taken.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/domain/transaction"
	"github.com/asoud/payment-core/internal/payment"
)

// Reconciliator resolves one stuck transaction. Satisfied by the payment
// service.
type Reconciliator interface {
	Reconcile(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	ExpireInitiation(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
}

// Poller periodically lists stuck transactions and fans them out to a
// worker pool for reconciliation
type Poller struct {
	transactions transaction.Repository
	service      Reconciliator
	pool         *ants.Pool
	logger       *slog.Logger

	pollInterval      time.Duration
	callbackTimeout   time.Duration
	initiationTimeout time.Duration
	batchSize         int
}

// NewPoller creates the reconciliation poller with its worker pool
func NewPoller(
	cfg *config.ReconcilerConfig,
	poolSize int,
	transactions transaction.Repository,
	service Reconciliator,
	logger *slog.Logger,
) (*Poller, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler worker pool: %w", err)
	}

	return &Poller{
		transactions:      transactions,
		service:           service,
		pool:              pool,
		logger:            logger,
		pollInterval:      cfg.PollingInterval,
		callbackTimeout:   cfg.CallbackTimeout,
		initiationTimeout: cfg.InitiationTimeout,
		batchSize:         cfg.BatchSize,
	}, nil
}

// Start begins polling until the context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting reconciliation poller",
		"poll_interval", p.pollInterval.String(),
		"callback_timeout", p.callbackTimeout.String(),
		"initiation_timeout", p.initiationTimeout.String(),
		"batch_size", p.batchSize,
		"pool_capacity", p.pool.Cap(),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Reconciliation poller stopping due to context cancellation")
			return
		case <-ticker.C:
			if err := p.reconcileBatch(ctx); err != nil {
				p.logger.Error("Error during reconciliation batch", "error", err)
			}
		}
	}
}

// reconcileBatch lists stuck transactions and resolves them concurrently,
// waiting for the whole batch before the next tick. Transactions awaiting
// a callback are pushed through settlement; transactions stranded in
// INITIATING past the initiation timeout are expired.
func (p *Poller) reconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()

	stuck, err := p.transactions.ListStuckAwaitingCallback(ctx, now.Add(-p.callbackTimeout), p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list stuck transactions: %w", err)
	}

	stranded, err := p.transactions.ListStuckInitiating(ctx, now.Add(-p.initiationTimeout), p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list stranded initiations: %w", err)
	}

	if len(stuck) == 0 && len(stranded) == 0 {
		return nil
	}

	p.logger.Info("Reconciling stuck transactions",
		"awaiting_callback", len(stuck),
		"initiating", len(stranded),
	)

	var wg sync.WaitGroup
	submit := func(id uuid.UUID, correlationID string, resolve func(context.Context, uuid.UUID, string)) {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			resolve(ctx, id, correlationID)
		})
		if err != nil {
			wg.Done()
			p.logger.Error("Failed to submit transaction to reconciler pool",
				"transaction_id", id.String(), "error", err,
			)
		}
	}

	for _, txn := range stuck {
		submit(txn.ID, txn.CorrelationID, p.reconcileOne)
	}
	for _, txn := range stranded {
		submit(txn.ID, txn.CorrelationID, p.expireOne)
	}
	wg.Wait()

	return nil
}

func (p *Poller) reconcileOne(ctx context.Context, id uuid.UUID, correlationID string) {
	logger := p.logger
	if correlationID != "" {
		logger = p.logger.With("correlation_id", correlationID)
	}

	txn, err := p.service.Reconcile(ctx, id)
	if err != nil {
		// Unresolved outcomes are expected here; the transaction stays put
		// and the next tick picks it up again.
		if errors.Is(err, payment.ErrOutcomeUnresolved) {
			logger.Debug("Reconciliation still unresolved", "transaction_id", id.String())
			return
		}
		logger.Warn("Reconciliation attempt failed", "transaction_id", id.String(), "error", err)
		return
	}

	logger.Info("Reconciliation resolved transaction",
		"transaction_id", id.String(),
		"status", txn.Status,
	)
}

func (p *Poller) expireOne(ctx context.Context, id uuid.UUID, correlationID string) {
	logger := p.logger
	if correlationID != "" {
		logger = p.logger.With("correlation_id", correlationID)
	}

	txn, err := p.service.ExpireInitiation(ctx, id)
	if err != nil {
		logger.Warn("Failed to expire stranded initiation", "transaction_id", id.String(), "error", err)
		return
	}

	logger.Info("Stranded initiation resolved",
		"transaction_id", id.String(),
		"status", txn.Status,
	)
}

// Shutdown releases the worker pool
func (p *Poller) Shutdown() {
	p.logger.Info("Shutting down reconciler worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}
