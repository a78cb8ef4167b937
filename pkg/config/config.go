package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    slog.Level

	GoogleApiKey   string
	ReasoningModel string
	FastModel      string
	EmbeddingModel string

	AnthropicApiKey string
	AnthropicModel  string

	// AnswerProvider selects the answer backend: "agent", "langchain" or
	// "anthropic".
	AnswerProvider string
	// AnswerEndpoint is where sessions post their queries. Empty means the
	// server's own /api/answer route.
	AnswerEndpoint string
	CitationsTable string
	ChunkSize      int
	ChunkOverlap   int

	// CitationDomains limits citations to these publishers. Empty allows all.
	CitationDomains  []string
	CitationTopK     int
	CitationMinScore float64

	// PerceivedLatency replaces every variant's own delay when set. It is
	// negative unless PERCEIVED_LATENCY_MS is given.
	PerceivedLatency time.Duration
	PersistDebounce  time.Duration
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),

		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),

		AnthropicApiKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		AnswerProvider: strings.ToLower(getEnv("ANSWER_PROVIDER", "agent")),
		AnswerEndpoint: getEnv("ANSWER_ENDPOINT", ""),
		CitationsTable: getEnv("CITATIONS_TABLE", "citations"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),

		CitationDomains:  getEnvAsList("CITATION_DOMAINS"),
		CitationTopK:     getEnvAsInt("CITATION_TOP_K", 4),
		CitationMinScore: getEnvAsFloat("CITATION_MIN_SCORE", 0),

		PerceivedLatency: getEnvAsMillis("PERCEIVED_LATENCY_MS", -1),
		PersistDebounce:  getEnvAsMillis("PERSIST_DEBOUNCE_MS", 500*time.Millisecond),
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
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	ms := getEnvAsInt(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv(key, ""))); err != nil {
		return defaultValue
	}
	return level
}
