// Package config loads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Pretix   PretixConfig
	Identity IdentityConfig
	SMTP     SMTPConfig
	Draw     DrawConfig

	// EventSeedFile points at a YAML file describing events and questionnaires.
	EventSeedFile string
	LogLevel      string
}

type ServerConfig struct {
	Addr           string
	PublicHost     string
	StaticDir      string
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	CronToken      string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	ConsumerGroup     string
	RelayInterval     time.Duration
	RelayBatchSize    int
}

// Enabled reports whether a broker list is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type PretixConfig struct {
	Host          string
	Organizer     string
	Event         string
	Token         string
	WebhookSecret string
	Timeout       time.Duration
	CacheTTL      time.Duration
}

type IdentityConfig struct {
	// HMACSecret verifies HS256 tokens; PublicKeyPEM verifies RS256 tokens.
	HMACSecret   string
	PublicKeyPEM string
	Issuer       string
	Audience     string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool { return s.Host != "" }

type DrawConfig struct {
	Interval      time.Duration
	VoucherExpiry time.Duration
	LockTTL       time.Duration
}

// FromEnv builds and validates the server configuration. A missing .env
// file is not an error.
func FromEnv() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the environment without validating it. Workers that need only a
// subset of the settings check that subset themselves.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Server: ServerConfig{
			Addr:           getEnv("MEMBERSHIPS_ADDR", ":8080"),
			PublicHost:     os.Getenv("PUBLIC_HOST"),
			StaticDir:      getEnv("STATIC_DIR", "static"),
			RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDuration("WRITE_TIMEOUT", 5*time.Minute),
			CronToken:      os.Getenv("CRON_TOKEN"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       getDuration("DB_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "membership.notifications"),
			ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "memberships-mailer"),
			RelayInterval:     getDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
			RelayBatchSize:    getInt("OUTBOX_RELAY_BATCH_SIZE", 100),
		},
		Pretix: PretixConfig{
			Host:          getEnv("PRETIX_HOST", "tickets.example.org"),
			Organizer:     os.Getenv("PRETIX_ORG"),
			Event:         os.Getenv("PRETIX_EVENT"),
			Token:         os.Getenv("PRETIX_TOKEN"),
			WebhookSecret: os.Getenv("PRETIX_WEBHOOK_SECRET"),
			Timeout:       getDuration("PRETIX_TIMEOUT", 10*time.Second),
			CacheTTL:      getDuration("PRETIX_CACHE_TTL", 5*time.Minute),
		},
		Identity: IdentityConfig{
			HMACSecret:   os.Getenv("IDENTITY_HMAC_SECRET"),
			PublicKeyPEM: os.Getenv("IDENTITY_PUBLIC_KEY"),
			Issuer:       os.Getenv("IDENTITY_ISSUER"),
			Audience:     os.Getenv("IDENTITY_AUDIENCE"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "noreply@example.org"),
		},
		Draw: DrawConfig{
			Interval:      getDuration("DRAW_INTERVAL", time.Minute),
			VoucherExpiry: getDuration("VOUCHER_EXPIRY", 48*time.Hour),
			LockTTL:       getDuration("DRAW_LOCK_TTL", 5*time.Minute),
		},
		EventSeedFile: os.Getenv("EVENT_SEED_FILE"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Identity.HMACSecret == "" && c.Identity.PublicKeyPEM == "" {
		return fmt.Errorf("config: one of IDENTITY_HMAC_SECRET or IDENTITY_PUBLIC_KEY is required")
	}
	if c.Draw.VoucherExpiry <= 0 {
		return fmt.Errorf("config: VOUCHER_EXPIRY must be positive")
	}
	if c.Pretix.Timeout <= 0 {
		return fmt.Errorf("config: PRETIX_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
