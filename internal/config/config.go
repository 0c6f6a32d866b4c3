package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	SeedDemoData bool

	OTLPEndpoint      string
	OTLPProtocol      string
	OTLPEnabled       bool
	OTLPSamplingRatio float64
	LogLevel          string
	LogFormat         string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Cache     CacheConfig
	Lock      LockConfig
	Order     OrderConfig
	IDGen     IDGenConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
	Tuning    TuningFileConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type CacheConfig struct {
	ShopTTL        time.Duration
	NullTTL        time.Duration
	RebuildLockTTL time.Duration
	RebuildWorkers int
}

type LockConfig struct {
	OrderLockTTL time.Duration
}

type OrderConfig struct {
	ConsumerEnabled bool
	StreamKey       string
	Group           string
	Consumer        string
	Block           time.Duration
	RecoveryBackoff time.Duration
	RecoveryMaxWait time.Duration
	ClaimMinIdle    time.Duration
}

type IDGenConfig struct {
	EpochSeconds int64
}

type RateLimitConfig struct {
	Enabled        bool
	AdmissionRate  float64
	AdmissionBurst int
}

type EventsConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type TuningFileConfig struct {
	Name  string
	Paths []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "c1"
	}

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "flashsale"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8081"),
		SeedDemoData:      getenvBool("SEED_DEMO_DATA", false),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OTLPEnabled:       getenvBool("OTEL_ENABLED", false),
		OTLPSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "flashsale"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
			PoolSize: getenvInt("REDIS_POOL_SIZE", 0),
		},
		Cache: CacheConfig{
			ShopTTL:        getenvDuration("CACHE_SHOP_TTL", 30*time.Minute),
			NullTTL:        getenvDuration("CACHE_NULL_TTL", 2*time.Minute),
			RebuildLockTTL: getenvDuration("CACHE_REBUILD_LOCK_TTL", 10*time.Second),
			RebuildWorkers: getenvInt("CACHE_REBUILD_WORKERS", 10),
		},
		Lock: LockConfig{
			OrderLockTTL: getenvDuration("LOCK_ORDER_TTL", 10*time.Second),
		},
		Order: OrderConfig{
			ConsumerEnabled: getenvBool("ORDER_CONSUMER_ENABLED", true),
			StreamKey:       getenv("ORDER_STREAM_KEY", "stream.orders"),
			Group:           getenv("ORDER_STREAM_GROUP", "g1"),
			Consumer:        getenv("ORDER_STREAM_CONSUMER", hostname),
			Block:           getenvDuration("ORDER_STREAM_BLOCK", 2*time.Second),
			RecoveryBackoff: getenvDuration("ORDER_RECOVERY_BACKOFF", 100*time.Millisecond),
			RecoveryMaxWait: getenvDuration("ORDER_RECOVERY_MAX_BACKOFF", 5*time.Second),
			ClaimMinIdle:    getenvDuration("ORDER_CLAIM_MIN_IDLE", 30*time.Second),
		},
		IDGen: IDGenConfig{
			EpochSeconds: getenvInt64("IDGEN_EPOCH_SECONDS", 1640995200),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			AdmissionRate:  getenvFloat("RATE_LIMIT_ADMISSION_RATE", 5),
			AdmissionBurst: getenvInt("RATE_LIMIT_ADMISSION_BURST", 10),
		},
		Events: EventsConfig{
			Enabled: getenvBool("EVENTS_ENABLED", false),
			Brokers: parseList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_ORDER_TOPIC", "flashsale.orders.persisted"),
		},
		Tuning: TuningFileConfig{
			Name:  getenv("TUNING_FILE_NAME", "flashsale"),
			Paths: parseList(getenv("TUNING_FILE_PATHS", "/etc/flashsale,.")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("30m") or bare seconds ("1800").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
