// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as storage paths, the coordination store, lock and throttle tuning,
// token secrets, messaging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fotei/go-user-backend/internal/sysutil"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-user-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GuardConfig tunes the advisory lock protocol.
type GuardConfig struct {
	TTL     time.Duration // LOCK_TTL: store-level expiry of a held lock
	MaxWait time.Duration // LOCK_MAX_WAIT: busy-wait budget before timeout
}

// ThrottleConfig tunes the login throttle.
type ThrottleConfig struct {
	Threshold int           // LOGIN_FAIL_THRESHOLD
	Window    time.Duration // LOGIN_LOCK_WINDOW
	Validity  time.Duration // LOGIN_RECORD_VALIDITY: cache record lifetime
}

// TokenConfig holds the secrets for replay hashes and OTP keys.
type TokenConfig struct {
	AESKey      string        // HASH_AES_KEY (16/24/32 bytes)
	AESIV       string        // HASH_AES_IV
	Fingerprint string        // HASH_FINGERPRINT
	MinAge      time.Duration // HASH_MIN_AGE
	MaxAge      time.Duration // HASH_MAX_AGE

	JWTPublicKeyPath   string // JWT_PUBLIC_KEY_PATH (OTP key verification)
	RSAPrivateKeyPath  string // RSA_PRIVATE_KEY_PATH (password transport)
	EncryptedPasswords bool   // ENCRYPT_PASSWORD: clients RSA-encrypt passwords
}

// KafkaConfig configures the notification producer.
type KafkaConfig struct {
	Enabled bool     // KAFKA_ENABLED
	Brokers []string // KAFKA_BROKERS (comma separated)
	Topic   string   // KAFKA_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DBPath    string // SQLite path
	RedisAddr string // coordination store; empty selects the in-memory store

	// Domain tuning
	Guard    GuardConfig
	Throttle ThrottleConfig
	Token    TokenConfig

	// Messaging
	Kafka KafkaConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration, applies the global log level, and
// panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	return cfg
}

// Load reads configuration from environment variables (after merging an
// optional .env file), applies defaults, normalizes values, and validates
// the result.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Storage
		DBPath:    getenv("DB_PATH", "accounts.db"),
		RedisAddr: sysutil.FirstNonEmpty(os.Getenv("REDIS_ADDR"), os.Getenv("REDIS_URL")),

		Guard: GuardConfig{
			TTL:     getdur("LOCK_TTL", 300000*time.Millisecond),
			MaxWait: getdur("LOCK_MAX_WAIT", 10*time.Second),
		},
		Throttle: ThrottleConfig{
			Threshold: getint("LOGIN_FAIL_THRESHOLD", 5),
			Window:    getdur("LOGIN_LOCK_WINDOW", 1800000*time.Millisecond),
			Validity:  getdur("LOGIN_RECORD_VALIDITY", 86400000*time.Millisecond),
		},
		Token: TokenConfig{
			AESKey:             getenv("HASH_AES_KEY", ""),
			AESIV:              getenv("HASH_AES_IV", ""),
			Fingerprint:        getenv("HASH_FINGERPRINT", ""),
			MinAge:             getdur("HASH_MIN_AGE", 30*time.Second),
			MaxAge:             getdur("HASH_MAX_AGE", 10*time.Minute),
			JWTPublicKeyPath:   getenv("JWT_PUBLIC_KEY_PATH", "key.pub"),
			RSAPrivateKeyPath:  getenv("RSA_PRIVATE_KEY_PATH", ""),
			EncryptedPasswords: getbool("ENCRYPT_PASSWORD", false),
		},

		Kafka: KafkaConfig{
			Enabled: getbool("KAFKA_ENABLED", false),
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "core.notifications"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-user-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Guard.TTL <= 0 || cfg.Guard.MaxWait <= 0 {
		return cfg, errors.New("LOCK_TTL and LOCK_MAX_WAIT must be positive durations")
	}
	if cfg.Throttle.Threshold < 1 {
		return cfg, errors.New("LOGIN_FAIL_THRESHOLD must be >= 1")
	}
	if cfg.Throttle.Window <= 0 || cfg.Throttle.Validity <= 0 {
		return cfg, errors.New("LOGIN_LOCK_WINDOW and LOGIN_RECORD_VALIDITY must be positive durations")
	}
	switch len(cfg.Token.AESKey) {
	case 0, 16, 24, 32:
	default:
		return cfg, errors.New("HASH_AES_KEY must be 16, 24, or 32 bytes")
	}
	if cfg.Token.MinAge < 0 || cfg.Token.MaxAge < 0 {
		return cfg, errors.New("HASH_MIN_AGE and HASH_MAX_AGE must be >= 0")
	}
	if cfg.Token.MaxAge > 0 && cfg.Token.MaxAge <= cfg.Token.MinAge {
		return cfg, errors.New("HASH_MAX_AGE must exceed HASH_MIN_AGE")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return cfg, errors.New("KAFKA_BROKERS must not be empty when KAFKA_ENABLED is set")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return sysutil.IsTruthy(v)
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
