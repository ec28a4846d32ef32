package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asoud/payment-core/internal/domain/gateway"
)

// GatewayResolver yields the adapter for a configured provider. Satisfied
// by the gateway registry.
type GatewayResolver interface {
	Adapter(name gateway.Name) (gateway.Adapter, error)
}

// CallbackRecord is the audit trail of one settlement attempt: the raw
// provider payload (when pushed), the verified result, and what the core
// decided. Written best-effort after the settlement transaction commits;
// operators use it to resolve disputes and investigate rejected callbacks.
type CallbackRecord struct {
	TransactionID     uuid.UUID
	Gateway           gateway.Name
	ExternalReference string
	Source            CallbackSource
	Outcome           string
	Detail            string
	RawPayload        []byte
	CorrelationID     string
	ReceivedAt        time.Time
}

// CallbackSource distinguishes pushed callbacks from reconciliation polls
type CallbackSource string

const (
	SourceWebhook        CallbackSource = "WEBHOOK"
	SourceReconciliation CallbackSource = "RECONCILIATION"
)

// CallbackArchiver persists callback records for audit. Implementations
// must tolerate being called outside any database transaction; archive
// failures are logged, never propagated into the settlement path.
type CallbackArchiver interface {
	Archive(ctx context.Context, rec *CallbackRecord) error
}
