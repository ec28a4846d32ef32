// Package config provides configuration structures and validation for the
// payment core. It handles environment-based configuration for the HTTP
// server, databases, Kafka, gateway credentials, and the retry and
// reconciliation policies.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Loaded once at
// startup, validated, and treated as immutable afterwards; gateway
// credentials are injected from here and never hard-coded.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	Retry       RetryConfig
	Reconciler  ReconcilerConfig
	WorkerPool  WorkerPoolConfig
	Gateways    GatewaysConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the callback archive
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains Kafka configuration for status events
type KafkaConfig struct {
	Brokers           string
	StatusTopic       string // Terminal transaction status events
	DLQTopic          string // Uncorrelatable gateway callbacks
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// RetryConfig bounds outbound gateway calls
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxElapsed     time.Duration // Ceiling before declaring the gateway unavailable
}

// ReconcilerConfig drives the out-of-band verification poll for
// transactions stuck waiting for a callback
type ReconcilerConfig struct {
	PollingInterval   time.Duration
	CallbackTimeout   time.Duration // Age after which AWAITING_CALLBACK is considered stuck
	InitiationTimeout time.Duration // Age after which INITIATING is considered stranded
	BatchSize         int
}

// WorkerPoolConfig contains worker pool configuration for the reconciler
type WorkerPoolConfig struct {
	Size int
}

// GatewaysConfig holds per-provider credentials and endpoints. Provisioned
// per environment; never hard-coded.
type GatewaysConfig struct {
	CallbackBaseURL string // Public base URL gateways redirect/post back to
	Zarinpal        ZarinpalConfig
	IDPay           IDPayConfig
	Sandbox         SandboxConfig
}

// ZarinpalConfig contains Zarinpal credentials
type ZarinpalConfig struct {
	Enabled    bool
	MerchantID string
	BaseURL    string
	PayBaseURL string // StartPay redirect base
	Timeout    time.Duration
}

// IDPayConfig contains IDPay credentials
type IDPayConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Sandbox bool // Sends X-SANDBOX for test transactions
	Timeout time.Duration
}

// SandboxConfig contains the development provider's shared secret
type SandboxConfig struct {
	Enabled bool
	Secret  string // HMAC key for callback checksums
}

// validate performs comprehensive validation of all configuration values
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}

	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.StatusTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_STATUS_TOPIC is required")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}

	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	if c.Retry.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "RETRY_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Retry.InitialBackoff <= 0 {
		validationErrors = append(validationErrors, "RETRY_INITIAL_BACKOFF must be greater than 0")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		validationErrors = append(validationErrors, "RETRY_MAX_BACKOFF must be at least RETRY_INITIAL_BACKOFF")
	}
	if c.Retry.MaxElapsed <= 0 {
		validationErrors = append(validationErrors, "RETRY_MAX_ELAPSED must be greater than 0")
	}

	if c.Reconciler.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_POLLING_INTERVAL must be greater than 0")
	}
	if c.Reconciler.CallbackTimeout <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_CALLBACK_TIMEOUT must be greater than 0")
	}
	if c.Reconciler.InitiationTimeout <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_INITIATION_TIMEOUT must be greater than 0")
	}
	if c.Reconciler.BatchSize <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_BATCH_SIZE must be greater than 0")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if c.Gateways.CallbackBaseURL == "" {
		validationErrors = append(validationErrors, "GATEWAY_CALLBACK_BASE_URL is required")
	}
	if c.Gateways.Zarinpal.Enabled && c.Gateways.Zarinpal.MerchantID == "" {
		validationErrors = append(validationErrors, "ZARINPAL_MERCHANT_ID is required when Zarinpal is enabled")
	}
	if c.Gateways.IDPay.Enabled && c.Gateways.IDPay.APIKey == "" {
		validationErrors = append(validationErrors, "IDPAY_API_KEY is required when IDPay is enabled")
	}
	if c.Gateways.Sandbox.Enabled && c.Gateways.Sandbox.Secret == "" {
		validationErrors = append(validationErrors, "SANDBOX_GATEWAY_SECRET is required when the sandbox gateway is enabled")
	}
	if !c.Gateways.Zarinpal.Enabled && !c.Gateways.IDPay.Enabled && !c.Gateways.Sandbox.Enabled {
		validationErrors = append(validationErrors, "at least one gateway must be enabled")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
