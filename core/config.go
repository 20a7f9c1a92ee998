package core

import (
	"fmt"
	"strings"
	"time"
)

const DefaultSignatureHeader = "X-Webhook-Signature"

type WebhookConfig struct {
	Secret           string `koanf:"secret" mapstructure:"secret"`
	EnforceSignature *bool  `koanf:"enforce_signature" mapstructure:"enforce_signature"`
	SignatureHeader  string `koanf:"signature_header" mapstructure:"signature_header"`
}

// SignatureEnforced defaults to true when enforcement was never configured.
func (c WebhookConfig) SignatureEnforced() bool {
	return c.EnforceSignature == nil || *c.EnforceSignature
}

func (c WebhookConfig) Header() string {
	if header := strings.TrimSpace(c.SignatureHeader); header != "" {
		return header
	}
	return DefaultSignatureHeader
}

type IngestConfig struct {
	MaxAttempts    int `koanf:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoffMS int `koanf:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

func (c IngestConfig) RetryBackoff() time.Duration {
	if c.RetryBackoffMS <= 0 {
		return 0
	}
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

type OutboxConfig struct {
	BatchSize   int `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Ingest      IngestConfig   `koanf:"ingest" mapstructure:"ingest"`
	Outbox      OutboxConfig   `koanf:"outbox" mapstructure:"outbox"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "entry-credits",
		Webhook: WebhookConfig{
			EnforceSignature: BoolPtr(true),
			SignatureHeader:  DefaultSignatureHeader,
		},
		Ingest: IngestConfig{
			MaxAttempts:    3,
			RetryBackoffMS: 50,
		},
		Outbox: OutboxConfig{
			BatchSize:   DefaultOutboxDispatcherConfig().BatchSize,
			MaxAttempts: DefaultOutboxDispatcherConfig().MaxAttempts,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:entry-credits.db?cache=shared&_foreign_keys=on",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.SignatureEnforced() && strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("core: webhook.secret is required when signature enforcement is enabled")
	}
	if c.Ingest.MaxAttempts < 0 {
		return fmt.Errorf("core: ingest.max_attempts must not be negative")
	}
	if c.Ingest.RetryBackoffMS < 0 {
		return fmt.Errorf("core: ingest.retry_backoff_ms must not be negative")
	}
	if c.Outbox.BatchSize < 0 || c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("core: outbox settings must not be negative")
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: database.driver %q is not supported", c.Database.Driver)
	}
	return nil
}

func BoolPtr(value bool) *bool {
	return &value
}
