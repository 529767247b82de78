package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LedgerMode selects the ledger backend the services commit against.
type LedgerMode string

const (
	// LedgerModeSimulator runs the local ledger simulator backed by the
	// counter store. The default for development and tests.
	LedgerModeSimulator LedgerMode = "simulator"
	// LedgerModeExternal expects a real ledger endpoint to be configured.
	LedgerModeExternal LedgerMode = "external"
)

// RedisConfig carries connection settings for the counter backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig carries the projection store connection string.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig carries the optional durable event sink settings. An empty
// broker list disables the sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config is the full server configuration, built from environment variables
// so main stays lean.
type Config struct {
	Addr          string
	JWTSigningKey string
	LedgerMode    LedgerMode

	// OpTimeout bounds every storage, counter, and ledger call issued by a
	// single operation. Operations fail with a timeout error instead of
	// hanging the caller.
	OpTimeout time.Duration

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          getenv("ECOTRACE_ADDR", ":8080"),
		JWTSigningKey: getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		LedgerMode:    LedgerMode(getenv("LEDGER_MODE", string(LedgerModeSimulator))),
		OpTimeout:     getduration("OP_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getint("REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getduration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers: splitlist(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenv("KAFKA_EVENTS_TOPIC", "ecotrace.ledger.events"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitlist(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
