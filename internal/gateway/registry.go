// Package gateway contains the provider adapters. Each adapter translates
// between the core's normalized request/response shapes and one provider's
// wire format; adapters are stateless and selected at configuration time.
package gateway

import (
	"fmt"
	"log/slog"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/domain/gateway"
)

// Registry holds the adapters for the providers enabled in configuration.
// Built once at startup and immutable afterwards.
type Registry struct {
	adapters map[gateway.Name]gateway.Adapter
}

// NewRegistry builds the adapter set from gateway configuration
func NewRegistry(logger *slog.Logger, cfg *config.GatewaysConfig) (*Registry, error) {
	adapters := make(map[gateway.Name]gateway.Adapter)

	if cfg.Zarinpal.Enabled {
		adapters[gateway.Zarinpal] = NewZarinpal(logger, &cfg.Zarinpal, cfg.CallbackBaseURL)
	}
	if cfg.IDPay.Enabled {
		adapters[gateway.IDPay] = NewIDPay(logger, &cfg.IDPay, cfg.CallbackBaseURL)
	}
	if cfg.Sandbox.Enabled {
		adapters[gateway.Sandbox] = NewSandbox(logger, &cfg.Sandbox)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no payment gateways enabled")
	}

	logger.Info("Gateway registry initialized", "gateways", len(adapters))

	return &Registry{adapters: adapters}, nil
}

// Adapter returns the adapter for the named provider
func (r *Registry) Adapter(name gateway.Name) (gateway.Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotConfigured, name)
	}
	return adapter, nil
}

// Names lists the configured providers
func (r *Registry) Names() []gateway.Name {
	names := make([]gateway.Name, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
