package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	HTTPPort    string
	GRPCPort    string
	Postgres    PostgresConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	HTTP        HTTPConfig
	Limits      LimitsConfig
}

type PostgresConfig struct {
	Host            string
	Port            string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
	AutoMigrate     bool
}

type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	Topic            string
	ProducerRetries  int
	ProducerTimeout  time.Duration
	RequiredAcks     int
	CompressionType  string
	MaxMessageBytes  int
	IdempotentWrites bool
}

type AuthConfig struct {
	RequireAuth    bool
	GoogleClientID string
	TokenCacheTTL  time.Duration
	TokenCacheSize int
}

type HTTPConfig struct {
	CORSOrigins     []string
	RateLimit       string
	RateLimitSync   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LimitsConfig bounds a single sync request.
type LimitsConfig struct {
	MaxRequestSizeMB          int
	MaxVideoSessionsPerSync   int
	MaxBrowserSessionsPerSync int
	MaxDailyStatsPerSync      int
	MaxEventsPerSync          int
	MaxProductiveURLsPerSync  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:    getEnv("HTTP_PORT", "8000"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
	}

	cfg.Postgres = PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnv("POSTGRES_PORT", "5432"),
		Database:        getEnv("POSTGRES_DB", "watchtime"),
		Username:        getEnv("POSTGRES_USER", "postgres"),
		Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
		MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
		AutoMigrate:     getEnvAsBool("POSTGRES_AUTO_MIGRATE", true),
	}

	brokers := getEnv("KAFKA_BROKERS", "localhost:9092")
	cfg.Kafka = KafkaConfig{
		Enabled:          getEnvAsBool("KAFKA_ENABLED", false),
		Brokers:          strings.Split(brokers, ","),
		Topic:            getEnv("KAFKA_TOPIC_SYNC", "sync-completed"),
		ProducerRetries:  getEnvAsInt("KAFKA_PRODUCER_RETRIES", 3),
		ProducerTimeout:  getEnvAsDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
		RequiredAcks:     getEnvAsInt("KAFKA_REQUIRED_ACKS", -1),
		CompressionType:  getEnv("KAFKA_COMPRESSION", "snappy"),
		IdempotentWrites: getEnvAsBool("KAFKA_IDEMPOTENT", true),
		MaxMessageBytes:  getEnvAsInt("KAFKA_MAX_MESSAGE_BYTES", 1000000),
	}

	cfg.Auth = AuthConfig{
		RequireAuth:    getEnvAsBool("REQUIRE_AUTH", true),
		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		TokenCacheTTL:  getEnvAsDuration("TOKEN_CACHE_TTL", 5*time.Minute),
		TokenCacheSize: getEnvAsInt("TOKEN_CACHE_SIZE", 1000),
	}

	cfg.HTTP = HTTPConfig{
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{
			"chrome-extension://*",
			"http://localhost:*",
			"http://127.0.0.1:*",
		}),
		RateLimit:       getEnv("RATE_LIMIT", "100/minute"),
		RateLimitSync:   getEnv("RATE_LIMIT_SYNC", "20/minute"),
		ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	cfg.Limits = LimitsConfig{
		MaxRequestSizeMB:          getEnvAsInt("MAX_REQUEST_SIZE_MB", 5),
		MaxVideoSessionsPerSync:   getEnvAsInt("MAX_VIDEO_SESSIONS_PER_SYNC", 200),
		MaxBrowserSessionsPerSync: getEnvAsInt("MAX_BROWSER_SESSIONS_PER_SYNC", 100),
		MaxDailyStatsPerSync:      getEnvAsInt("MAX_DAILY_STATS_PER_SYNC", 100),
		MaxEventsPerSync:          getEnvAsInt("MAX_EVENTS_PER_SYNC", 1000),
		MaxProductiveURLsPerSync:  getEnvAsInt("MAX_PRODUCTIVE_URLS_PER_SYNC", 100),
	}

	if cfg.Auth.RequireAuth && cfg.Auth.GoogleClientID == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID is required when REQUIRE_AUTH is enabled")
	}

	return cfg, nil
}

// PostgresDSN pins the session time zone to UTC so DATE columns bind and
// scan as UTC calendar dates.
func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s timezone=UTC",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// MaxRequestBytes is the request body ceiling in bytes.
func (c *LimitsConfig) MaxRequestBytes() int64 {
	return int64(c.MaxRequestSizeMB) * 1024 * 1024
}

// ParseRate parses limits like "100/minute" into a count and a window.
func ParseRate(rate string) (int, time.Duration, error) {
	countStr, unit, ok := strings.Cut(strings.TrimSpace(rate), "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate %q: expected <count>/<unit>", rate)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("invalid rate count %q", countStr)
	}

	switch strings.ToLower(unit) {
	case "second":
		return count, time.Second, nil
	case "minute":
		return count, time.Minute, nil
	case "hour":
		return count, time.Hour, nil
	case "day":
		return count, 24 * time.Hour, nil
	default:
		return 0, 0, fmt.Errorf("invalid rate unit %q", unit)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
