package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

type Config struct {
	Port     int
	LogLevel string
	APIToken string

	CorpusDir     string
	PeriodsPath   string
	EmbedCacheDB  string
	Watch         bool
	StyleEnabled  bool
	DefaultYear   int
	OracleTimeout time.Duration

	// Retrieval
	TopK            int
	MaxContextChars int
	TopPeriods      int
	MinScore        float64
	PeriodBonus     float64
	ChunkBonus      float64
	PeriodMargin    time.Duration

	// Oracles
	GenProvider     string
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaURL       string
	EmbedModel      string
	GenModel        string

	// Sinks and transports, each optional
	NatsURL            string
	NatsToken          string
	DatabaseURL        string
	ElasticsearchURL   string
	ElasticsearchIndex string
	KafkaBrokers       []string
	KafkaTopic         string
	SlackBotToken      string
	SlackChannel       string
}

func Load() Config {
	return Config{
		Port:     envInt("TWIN_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),
		APIToken: envStr("TWIN_API_TOKEN", ""),

		CorpusDir:     envStr("TWIN_CORPUS_DIR", "data"),
		PeriodsPath:   envStr("TWIN_PERIODS_PATH", ".cache/periods.json"),
		EmbedCacheDB:  envStr("TWIN_EMBED_CACHE_PATH", ".cache/embeddings.db"),
		Watch:         envBool("TWIN_WATCH", false),
		StyleEnabled:  envBool("TWIN_STYLE_ENABLED", false),
		DefaultYear:   envInt("TWIN_DEFAULT_YEAR", 2025),
		OracleTimeout: envDuration("TWIN_ORACLE_TIMEOUT", 30*time.Second),

		TopK:            envInt("TWIN_TOP_K", 6),
		MaxContextChars: envInt("TWIN_MAX_CONTEXT_CHARS", 3000),
		TopPeriods:      envInt("TWIN_TOP_PERIODS", 3),
		MinScore:        envFloat("TWIN_MIN_SCORE", 0.25),
		PeriodBonus:     envFloat("TWIN_PERIOD_BONUS", 0.5),
		ChunkBonus:      envFloat("TWIN_CHUNK_BONUS", 0.3),
		PeriodMargin:    envDuration("TWIN_PERIOD_MARGIN", 7*24*time.Hour),

		GenProvider:     envStr("TWIN_GEN_PROVIDER", ProviderAnthropic),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("TWIN_MODEL", "claude-sonnet-4-20250514"),
		OllamaURL:       envStr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:      envStr("TWIN_EMBED_MODEL", "nomic-embed-text"),
		GenModel:        envStr("TWIN_GEN_MODEL", "llama3.1"),

		NatsURL:            envStr("NATS_URL", ""),
		NatsToken:          envStr("NATS_TOKEN", ""),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		ElasticsearchURL:   envStr("ELASTICSEARCH_URL", ""),
		ElasticsearchIndex: envStr("ELASTICSEARCH_INDEX", "twin-chunks"),
		KafkaBrokers:       envList("KAFKA_BROKERS"),
		KafkaTopic:         envStr("KAFKA_TOPIC", "twin.answers"),
		SlackBotToken:      envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:       envStr("SLACK_GAPS_CHANNEL", ""),
	}
}

// Validate reports every setting the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TWIN_TOP_K must be positive, got %d", c.TopK))
	}
	if c.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("TWIN_MAX_CONTEXT_CHARS must be positive, got %d", c.MaxContextChars))
	}
	if c.TopPeriods <= 0 {
		errs = append(errs, fmt.Errorf("TWIN_TOP_PERIODS must be positive, got %d", c.TopPeriods))
	}
	if c.DefaultYear < 1970 || c.DefaultYear > 9999 {
		errs = append(errs, fmt.Errorf("TWIN_DEFAULT_YEAR out of range: %d", c.DefaultYear))
	}
	if c.OracleTimeout <= 0 {
		errs = append(errs, errors.New("TWIN_ORACLE_TIMEOUT must be positive"))
	}
	switch c.GenProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown TWIN_GEN_PROVIDER %q", c.GenProvider))
	}
	if c.CorpusDir == "" {
		errs = append(errs, errors.New("TWIN_CORPUS_DIR is required"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
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
