package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	AlertsPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Database
	PostgresHost        string
	PostgresPort        string
	PostgresUser        string
	PostgresPassword    string
	PostgresDB          string
	PostgresSSLMode     string
	SessionAuditEnabled bool
	SessionRetention    time.Duration

	// Redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	ResultCacheTTL time.Duration

	// Kafka
	KafkaBrokers      []string
	KafkaGroupID      string
	EventsEnabled     bool
	TriageEventsTopic string

	// Engine
	CatalogPath    string
	QuestionBudget int
	StopMargin     float64
	TopK           int

	// Staff auth for the alert queue
	AlertsJWTSecret string
	JWTIssuer       string
	JWTAudience     string

	// External scorer
	ExternalScorerURL          string
	ExternalScorerClientID     string
	ExternalScorerClientSecret string
	ExternalScorerTokenURL     string
	ExternalScorerTimeout      time.Duration
	ExternalScorerRetries      int
	ExternalScorerProbeTTL     time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AlertsPort:     getEnv("ALERTS_SERVER_PORT", "8082"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 15*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 256*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PostgresHost:        getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:        getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:        getEnv("POSTGRES_USER", "triage"),
		PostgresPassword:    getEnv("POSTGRES_PASSWORD", "triage123"),
		PostgresDB:          getEnv("POSTGRES_DB", "triage"),
		PostgresSSLMode:     getEnv("POSTGRES_SSLMODE", "disable"),
		SessionAuditEnabled: getBoolEnv("SESSION_AUDIT_ENABLED", true),
		SessionRetention:    getDuration("SESSION_RETENTION", 30*24*time.Hour),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		ResultCacheTTL: getDuration("RESULT_CACHE_TTL", 10*time.Minute),

		KafkaBrokers:      getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "triage-alerts"),
		EventsEnabled:     getBoolEnv("EVENTS_ENABLED", true),
		TriageEventsTopic: getEnv("TRIAGE_EVENTS_TOPIC", "triage-events"),

		CatalogPath:    getEnv("CATALOG_PATH", ""),
		QuestionBudget: getIntEnv("ENGINE_QUESTION_BUDGET", 8),
		StopMargin:     getFloatEnv("ENGINE_STOP_MARGIN", 0.20),
		TopK:           getIntEnv("ENGINE_TOP_K", 5),

		AlertsJWTSecret: getEnv("ALERTS_JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "triage"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "triage-alerts"),

		ExternalScorerURL:          getEnv("EXTERNAL_SCORER_URL", ""),
		ExternalScorerClientID:     getEnv("EXTERNAL_SCORER_CLIENT_ID", ""),
		ExternalScorerClientSecret: getEnv("EXTERNAL_SCORER_CLIENT_SECRET", ""),
		ExternalScorerTokenURL:     getEnv("EXTERNAL_SCORER_TOKEN_URL", ""),
		ExternalScorerTimeout:      getDuration("EXTERNAL_SCORER_TIMEOUT", 3*time.Second),
		ExternalScorerRetries:      getIntEnv("EXTERNAL_SCORER_RETRIES", 2),
		ExternalScorerProbeTTL:     getDuration("EXTERNAL_SCORER_PROBE_TTL", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// KAFKA_BROKERS is a comma separated list.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
