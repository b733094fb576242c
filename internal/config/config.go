package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	CounterStorePostgres = "postgres"
	CounterStoreRedis    = "redis"
)

type Config struct {
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Server   ServerConfig
	Session  SessionConfig `envPrefix:"SESSION_"`
	Gate     GateConfig    `envPrefix:"GATE_"`
	Cleanup  CleanupConfig `envPrefix:"CLEANUP_"`
}

type DatabaseConfig struct {
	Host              string        `env:"HOST" envDefault:"localhost"`
	Port              int           `env:"PORT" envDefault:"5432"`
	User              string        `env:"USER" envDefault:"postgres"`
	Password          string        `env:"PASSWORD,required"`
	Name              string        `env:"NAME" envDefault:"gradegate"`
	SSLMode           string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns          int32         `env:"MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"1m"`
	HealthCheckPeriod time.Duration `env:"HEALTH_CHECK_PERIOD" envDefault:"1m"`
	AutoMigrate       bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	URL string `env:"URL" envDefault:"redis://localhost:6379/0"`
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	// Coarse per-IP throttle in front of every auth route
	HTTPRateLimit int `env:"HTTP_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

type SessionConfig struct {
	Secret          string        `env:"SECRET,required"`
	TTL             time.Duration `env:"TTL" envDefault:"12h"`
	VerificationTTL time.Duration `env:"VERIFICATION_TTL" envDefault:"24h"`
}

type GateConfig struct {
	CounterStore string `env:"COUNTER_STORE" envDefault:"postgres"`

	IPMaxAttempts int           `env:"IP_MAX_ATTEMPTS" envDefault:"20"`
	IPWindow      time.Duration `env:"IP_WINDOW" envDefault:"1h"`
	IPBlock       time.Duration `env:"IP_BLOCK" envDefault:"15m"`

	IdentifierMaxAttempts int           `env:"IDENTIFIER_MAX_ATTEMPTS" envDefault:"10"`
	IdentifierWindow      time.Duration `env:"IDENTIFIER_WINDOW" envDefault:"1h"`
	IdentifierBlock       time.Duration `env:"IDENTIFIER_BLOCK" envDefault:"15m"`

	StuffingThreshold int           `env:"STUFFING_THRESHOLD" envDefault:"10"`
	StuffingWindow    time.Duration `env:"STUFFING_WINDOW" envDefault:"5m"`

	LockThreshold int           `env:"LOCK_THRESHOLD" envDefault:"5"`
	LockDuration  time.Duration `env:"LOCK_DURATION" envDefault:"15m"`

	TimingFloor     time.Duration `env:"TIMING_FLOOR" envDefault:"150ms"`
	TimingJitter    time.Duration `env:"TIMING_JITTER" envDefault:"0s"`
	VerifierTimeout time.Duration `env:"VERIFIER_TIMEOUT" envDefault:"5s"`
	AuditTimeout    time.Duration `env:"AUDIT_TIMEOUT" envDefault:"2s"`
}

type CleanupConfig struct {
	Interval       time.Duration `env:"INTERVAL" envDefault:"1h"`
	AuditRetention time.Duration `env:"AUDIT_RETENTION" envDefault:"2160h"`
}

// IPPolicy is the per-IP rate-limit policy
func (g GateConfig) IPPolicy() models.RateLimitPolicy {
	return models.RateLimitPolicy{MaxAttempts: g.IPMaxAttempts, Window: g.IPWindow, BlockDuration: g.IPBlock}
}

// IdentifierPolicy is the per-identifier rate-limit policy
func (g GateConfig) IdentifierPolicy() models.RateLimitPolicy {
	return models.RateLimitPolicy{MaxAttempts: g.IdentifierMaxAttempts, Window: g.IdentifierWindow, BlockDuration: g.IdentifierBlock}
}

// LockPolicy is the failed-attempt lockout policy
func (g GateConfig) LockPolicy() models.LockPolicy {
	return models.LockPolicy{Threshold: g.LockThreshold, Duration: g.LockDuration}
}

// CounterRetention is how long an idle rate-limit counter must be kept
func (g GateConfig) CounterRetention() time.Duration {
	return max(g.IPPolicy().Retention(), g.IdentifierPolicy().Retention())
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration the gate cannot run safely with
func (c *Config) Validate() error {
	if err := validateSessionSecret(c.Session.Secret, c.Server.Env); err != nil {
		return err
	}

	switch c.Gate.CounterStore {
	case CounterStorePostgres, CounterStoreRedis:
	default:
		return fmt.Errorf("GATE_COUNTER_STORE must be %q or %q (got %q)",
			CounterStorePostgres, CounterStoreRedis, c.Gate.CounterStore)
	}

	positive := map[string]int{
		"GATE_IP_MAX_ATTEMPTS":         c.Gate.IPMaxAttempts,
		"GATE_IDENTIFIER_MAX_ATTEMPTS": c.Gate.IdentifierMaxAttempts,
		"GATE_STUFFING_THRESHOLD":      c.Gate.StuffingThreshold,
		"GATE_LOCK_THRESHOLD":          c.Gate.LockThreshold,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive (got %d)", name, v)
		}
	}

	durations := map[string]time.Duration{
		"GATE_IP_WINDOW":          c.Gate.IPWindow,
		"GATE_IP_BLOCK":           c.Gate.IPBlock,
		"GATE_IDENTIFIER_WINDOW":  c.Gate.IdentifierWindow,
		"GATE_IDENTIFIER_BLOCK":   c.Gate.IdentifierBlock,
		"GATE_STUFFING_WINDOW":    c.Gate.StuffingWindow,
		"GATE_LOCK_DURATION":      c.Gate.LockDuration,
		"GATE_VERIFIER_TIMEOUT":   c.Gate.VerifierTimeout,
		"GATE_AUDIT_TIMEOUT":      c.Gate.AuditTimeout,
		"SESSION_TTL":             c.Session.TTL,
		"CLEANUP_INTERVAL":        c.Cleanup.Interval,
		"CLEANUP_AUDIT_RETENTION": c.Cleanup.AuditRetention,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", name, d)
		}
	}

	if c.Gate.TimingJitter < 0 {
		return fmt.Errorf("GATE_TIMING_JITTER cannot be negative")
	}

	return nil
}

// validateSessionSecret enforces minimum security standards for the session signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
