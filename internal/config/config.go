package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the StoreChat control plane.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Retention RetentionConfig
	Telemetry TelemetryConfig
	APIKeys   string
}

type DatabaseConfig struct {
	// URL is the Postgres DSN. Empty means in-memory chat store and
	// the static demo commerce schema.
	URL            string
	MaxConnections int
	QueryRowLimit  int
	QueryTimeout   time.Duration
}

type LLMConfig struct {
	// Drivers is the fallback order, comma separated: "ollama,openai,anthropic".
	Drivers        string
	Model          string
	OllamaURL      string
	OpenAIBaseURL  string
	OpenAIKey      string
	AnthropicKey   string
	AgentTimeout   time.Duration
	AgentMaxTurns  int
	RefineAttempts int
}

type EmbeddingConfig struct {
	Driver    string // "ollama" or "openai"
	Model     string
	OllamaURL string
	OpenAIKey string
}

type SearchConfig struct {
	WebEnabled bool
	TopK       int
	// MinScore below which document hits are considered weak and web
	// search is consulted as fallback context.
	MinScore float64
}

type RetentionConfig struct {
	// SessionTTL of zero disables the janitor.
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("STORECHAT_PORT", 8080),
		Version: envStr("STORECHAT_VERSION", "0.4.0"),
		APIKeys: envStr("STORECHAT_API_KEYS", ""),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
			QueryRowLimit:  envInt("STORECHAT_QUERY_ROW_LIMIT", 100),
			QueryTimeout:   envDur("STORECHAT_QUERY_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			Drivers:        envStr("STORECHAT_LLM_DRIVERS", "ollama"),
			Model:          envStr("STORECHAT_LLM_MODEL", "llama3.1:8b"),
			OllamaURL:      envStr("OLLAMA_URL", "http://localhost:11434"),
			OpenAIBaseURL:  envStr("OPENAI_BASE_URL", "https://api.openai.com"),
			OpenAIKey:      envStr("OPENAI_API_KEY", ""),
			AnthropicKey:   envStr("ANTHROPIC_API_KEY", ""),
			AgentTimeout:   envDur("STORECHAT_AGENT_TIMEOUT", 30*time.Second),
			AgentMaxTurns:  envInt("STORECHAT_AGENT_MAX_TURNS", 5),
			RefineAttempts: envInt("STORECHAT_REFINE_ATTEMPTS", 3),
		},
		Embedding: EmbeddingConfig{
			Driver:    envStr("STORECHAT_EMBED_DRIVER", "ollama"),
			Model:     envStr("STORECHAT_EMBED_MODEL", "nomic-embed-text"),
			OllamaURL: envStr("OLLAMA_URL", "http://localhost:11434"),
			OpenAIKey: envStr("OPENAI_API_KEY", ""),
		},
		Search: SearchConfig{
			WebEnabled: envBool("STORECHAT_WEB_SEARCH", true),
			TopK:       envInt("STORECHAT_SEARCH_TOP_K", 4),
			MinScore:   envFloat("STORECHAT_SEARCH_MIN_SCORE", 0.35),
		},
		Retention: RetentionConfig{
			SessionTTL:    envDur("STORECHAT_SESSION_TTL", 0),
			SweepInterval: envDur("STORECHAT_SESSION_SWEEP_INTERVAL", time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "storechat"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
