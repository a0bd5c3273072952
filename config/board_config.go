package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// Secrets
	EncryptionKey string
	JWTSecret     string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OpenAI
	OpenAIAPIKey     string
	LLMModel         string
	EmbeddingModel   string
	EmbeddingDims    int
	LLMMaxTokens     int
	LLMTemperature   float64
	LLMTimeoutSec    int

	// Sync
	SyncInterval        time.Duration // incremental sync poll per mailbox
	SyncWatchdogCutoff  time.Duration // reset mailboxes stuck in syncing
	TokenRefreshHorizon time.Duration // refresh tokens expiring within this window
	SyncPageSize        int           // provider list page size
	SyncMaxMessages     int           // full sync message cap

	// Snooze
	SnoozeTickInterval time.Duration
	SnoozeBatchSize    int

	// Enrichment
	EnrichInterval  time.Duration
	EnrichBatchSize int

	// Search
	SearchSubjectWeight  float64
	SearchSenderWeight   float64
	SearchBodyWeight     float64
	SearchFuzzyThreshold float64
	SearchSemanticFloor  float64
	RecentSearchLimit    int

	// HTTP
	AllowedOrigins   []string
	RateLimitPerMin  int
	RequestTimeout   time.Duration
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:  getEnvInt("EMBEDDING_DIMS", 768),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		SyncInterval:        getEnvDuration("SYNC_INTERVAL_SEC", 180),
		SyncWatchdogCutoff:  getEnvDuration("SYNC_WATCHDOG_CUTOFF_SEC", 300),
		TokenRefreshHorizon: getEnvDuration("TOKEN_REFRESH_HORIZON_SEC", 600),
		SyncPageSize:        getEnvInt("SYNC_PAGE_SIZE", 100),
		SyncMaxMessages:     getEnvInt("SYNC_MAX_MESSAGES", 200),

		SnoozeTickInterval: getEnvDuration("SNOOZE_TICK_SEC", 60),
		SnoozeBatchSize:    getEnvInt("SNOOZE_BATCH_SIZE", 100),

		EnrichInterval:  getEnvDuration("ENRICH_INTERVAL_SEC", 600),
		EnrichBatchSize: getEnvInt("ENRICH_BATCH_SIZE", 50),

		SearchSubjectWeight:  getEnvFloat("SEARCH_SUBJECT_WEIGHT", 0.5),
		SearchSenderWeight:   getEnvFloat("SEARCH_SENDER_WEIGHT", 0.3),
		SearchBodyWeight:     getEnvFloat("SEARCH_BODY_WEIGHT", 0.2),
		SearchFuzzyThreshold: getEnvFloat("SEARCH_FUZZY_THRESHOLD", 0.2),
		SearchSemanticFloor:  getEnvFloat("SEARCH_SEMANTIC_FLOOR", 0.5),
		RecentSearchLimit:    getEnvInt("RECENT_SEARCH_LIMIT", 10),

		AllowedOrigins:   getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MIN", 300),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT_SEC", 30),
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL must be set")
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, errors.New("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
