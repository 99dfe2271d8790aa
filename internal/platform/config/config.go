// Package config loads server configuration from a YAML file overridden by
// PETREGISTRY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PETREGISTRY_"

type Config struct {
	Env         string            `koanf:"env"`
	Server      ServerConfig      `koanf:"server"`
	Log         LogConfig         `koanf:"log"`
	Auth        AuthConfig        `koanf:"auth"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Kafka       KafkaConfig       `koanf:"kafka"`
	Identity    IdentityConfig    `koanf:"identity"`
	Reservation ReservationConfig `koanf:"reservation"`
	Handover    HandoverConfig    `koanf:"handover"`
	Sources     SourcesConfig     `koanf:"sources"`
	Notify      NotifyConfig      `koanf:"notify"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	JWTSigningKey string `koanf:"jwt_signing_key"`
	Issuer        string `koanf:"issuer"`
	Audience      string `koanf:"audience"`
	AdminToken    string `koanf:"admin_token"`
}

// DatabaseConfig selects PostgreSQL when URL is set; otherwise stores run in memory.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	TxTimeout       time.Duration `koanf:"tx_timeout"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type KafkaConfig struct {
	Brokers           []string      `koanf:"brokers"`
	AuditTopic        string        `koanf:"audit_topic"`
	NotificationTopic string        `koanf:"notification_topic"`
	ConsumerGroup     string        `koanf:"consumer_group"`
	OutboxBatchSize   int           `koanf:"outbox_batch_size"`
	OutboxInterval    time.Duration `koanf:"outbox_interval"`
}

type IdentityConfig struct {
	MaxRetries int `koanf:"max_retries"`
}

type ReservationConfig struct {
	PendingTTL     time.Duration `koanf:"pending_ttl"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
	SweepBatchSize int           `koanf:"sweep_batch_size"`
}

type HandoverConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	AttemptWindow   time.Duration `koanf:"attempt_window"`
	LockoutDuration time.Duration `koanf:"lockout_duration"`
	OTPHashCost     int           `koanf:"otp_hash_cost"`
}

type SourcesConfig struct {
	BaseURL          string        `koanf:"base_url"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold int           `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
}

type NotifyConfig struct {
	QRSize          int    `koanf:"qr_size"`
	QRRecoveryLevel string `koanf:"qr_recovery_level"`
}

// Default returns the configuration used when neither file nor env set a value.
func Default() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "petregistry",
			Audience:      "petregistry-api",
			AdminToken:    "dev-admin-token",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			TxTimeout:       5 * time.Second,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic:        "petregistry.audit",
			NotificationTopic: "petregistry.notifications",
			ConsumerGroup:     "petregistry-audit",
			OutboxBatchSize:   100,
			OutboxInterval:    time.Second,
		},
		Identity:    IdentityConfig{MaxRetries: 5},
		Reservation: ReservationConfig{PendingTTL: 24 * time.Hour, SweepInterval: time.Minute, SweepBatchSize: 100},
		Handover: HandoverConfig{
			MaxAttempts:     5,
			AttemptWindow:   15 * time.Minute,
			LockoutDuration: 30 * time.Minute,
			OTPHashCost:     10,
		},
		Sources: SourcesConfig{Timeout: 3 * time.Second, FailureThreshold: 5, Cooldown: 30 * time.Second},
		Notify:  NotifyConfig{QRSize: 256, QRRecoveryLevel: "M"},
	}
}

// Load reads path (if it exists) then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	// PETREGISTRY_HANDOVER__MAX_ATTEMPTS -> handover.max_attempts
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Handover.MaxAttempts <= 0 {
		return fmt.Errorf("handover.max_attempts must be positive")
	}
	if c.Identity.MaxRetries <= 0 {
		return fmt.Errorf("identity.max_retries must be positive")
	}
	if c.Reservation.PendingTTL <= 0 {
		return fmt.Errorf("reservation.pending_ttl must be positive")
	}
	if c.Env == "prod" && c.Auth.JWTSigningKey == Default().Auth.JWTSigningKey {
		return fmt.Errorf("auth.jwt_signing_key must be set in prod")
	}
	if c.Env == "prod" && c.Auth.AdminToken == Default().Auth.AdminToken {
		return fmt.Errorf("auth.admin_token must be set in prod")
	}
	return nil
}

// UsesPostgres reports whether stores should be backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Database.URL != ""
}
