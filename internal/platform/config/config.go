// Package config loads the gateway configuration from environment variables
// so main stays lean. Env names follow the deployment's existing conventions
// (NEON_* for the relational backend, KAFKA_* for the analytic loader).
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full gateway configuration.
type Config struct {
	Addr string `env:"DOCTRINE_ADDR" envDefault:":8080"`

	// Enforcement.
	Mode               string `env:"DOCTRINE_MODE" envDefault:"advisory"`
	ViolationThreshold int    `env:"DOCTRINE_VIOLATION_THRESHOLD" envDefault:"3"`
	RecoveryCodeHash   string `env:"DOCTRINE_RECOVERY_CODE_HASH,required"`

	// Contract.
	SchemaVersions      []string `env:"DOCTRINE_SCHEMA_VERSIONS" envSeparator:"," envDefault:"1.0.0"`
	ForbiddenDataFields []string `env:"DOCTRINE_FORBIDDEN_FIELDS" envSeparator:","`

	// Relational translation targets.
	RecordsTable string   `env:"DOCTRINE_RECORDS_TABLE" envDefault:"doctrine_records"`
	ConflictKeys []string `env:"DOCTRINE_CONFLICT_KEYS" envSeparator:","`

	// Analytic translation target. Columns are name:TYPE pairs matching the
	// warehouse table the Kafka loader writes into.
	AnalyticTable   string   `env:"DOCTRINE_ANALYTIC_TABLE" envDefault:"blueprint_events"`
	AnalyticColumns []string `env:"DOCTRINE_ANALYTIC_COLUMNS" envSeparator:"," envDefault:"payload:JSON"`

	// Admin auth.
	JWTSigningKey string `env:"DOCTRINE_JWT_SIGNING_KEY,required"`

	// Sinks. Empty values leave the corresponding sink unconfigured.
	RedisURL     string   `env:"REDIS_URL"`
	NeonDSN      string   `env:"NEON_DATABASE_URL"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_ANALYTICS_TOPIC" envDefault:"doctrine.analytics"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
