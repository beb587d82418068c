package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"swing-trader/internal/domain"
)

// Config carries every tunable the binaries read at startup. Values come
// from the environment with working defaults for local runs.
type Config struct {
	DatabaseURL      string
	RedisURL         string
	Port             int
	TelegramBotToken string

	Tickers         []string
	DefaultPeriod   string
	DefaultInterval string

	ProviderBaseURL     string
	ProviderTimeoutSecs int
	BarsCacheTTLSecs    int
	RefreshIntervalSecs int
	WorkerCount         int
	SignalImageTTLHours int

	AnomalyEnabled      bool
	AnomalyThreshold    float64
	AnomalyForestTrees  int
	AnomalyForestSample int

	MCPTransport          string
	MCPHTTPEnabled        bool
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int
	MCPRateLimitPerMin    int

	OpenAIAPIKey      string
	OpenAIModel       string
	AdvisorMaxHistory int

	SSHBind        string
	SSHPort        int
	SSHHostKeyPath string
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		Port:             envInt("PORT", 8080),

		Tickers:         parseTickers(strings.TrimSpace(os.Getenv("TICKERS"))),
		DefaultPeriod:   envChoice("DEFAULT_PERIOD", domain.IsSupportedPeriod, domain.DefaultPeriod),
		DefaultInterval: envChoice("DEFAULT_INTERVAL", domain.IsSupportedInterval, domain.DefaultInterval),

		ProviderBaseURL:     envStr("PROVIDER_BASE_URL", "https://query1.finance.yahoo.com"),
		ProviderTimeoutSecs: envInt("PROVIDER_TIMEOUT_SECS", 10),
		BarsCacheTTLSecs:    envInt("BARS_CACHE_TTL_SECS", 300),
		RefreshIntervalSecs: envInt("REFRESH_INTERVAL_SECS", 300),
		WorkerCount:         envInt("WORKER_COUNT", 4),
		SignalImageTTLHours: envInt("SIGNAL_IMAGE_TTL_HOURS", 48),

		AnomalyEnabled:      envBool("ANOMALY_ENABLED", true),
		AnomalyThreshold:    envFraction("ANOMALY_THRESHOLD", 0.62),
		AnomalyForestTrees:  envInt("ANOMALY_FOREST_TREES", 200),
		AnomalyForestSample: envInt("ANOMALY_FOREST_SAMPLE_SIZE", 256),

		MCPHTTPEnabled:        envBool("MCP_HTTP_ENABLED", false),
		MCPHTTPBind:           envStr("MCP_HTTP_BIND", "127.0.0.1"),
		MCPHTTPPort:           envInt("MCP_HTTP_PORT", 8090),
		MCPAuthToken:          os.Getenv("MCP_AUTH_TOKEN"),
		MCPRequestTimeoutSecs: envInt("MCP_REQUEST_TIMEOUT_SECS", 5),
		MCPRateLimitPerMin:    envInt("MCP_RATE_LIMIT_PER_MIN", 60),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       envStr("OPENAI_MODEL", "gpt-4o-mini"),
		AdvisorMaxHistory: envInt("ADVISOR_MAX_HISTORY", 20),

		SSHBind:        envStr("SSH_BIND", "0.0.0.0"),
		SSHPort:        envInt("SSH_PORT", 2222),
		SSHHostKeyPath: envStr("SSH_HOST_KEY_PATH", ".ssh/swing_trader_ed25519"),
	}

	cfg.MCPTransport = strings.ToLower(envStr("MCP_TRANSPORT", "stdio"))
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, alerts disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, advisor will be disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	return cfg
}

// envStr returns the trimmed value of key, or fallback when unset.
func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envInt parses key as a positive integer, or returns fallback.
func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envBool honors explicit true/false and leaves anything else at fallback.
func envBool(key string, fallback bool) bool {
	switch v := strings.TrimSpace(os.Getenv(key)); {
	case strings.EqualFold(v, "true"):
		return true
	case strings.EqualFold(v, "false"):
		return false
	default:
		return fallback
	}
}

// envFraction parses key as a float in (0, 1), or returns fallback.
func envFraction(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 || n >= 1 {
		return fallback
	}
	return n
}

// envChoice keeps the env value only when valid accepts it; a set but
// unsupported value is logged before falling back.
func envChoice(key string, valid func(string) bool, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if valid(v) {
		return v
	}
	if v != "" {
		log.Printf("Warning: unsupported %s=%q, defaulting to %s", key, v, fallback)
	}
	return fallback
}

// parseTickers filters a comma-separated ticker list against the supported
// universe, falling back to the default universe when nothing survives.
func parseTickers(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		ticker := strings.ToUpper(strings.TrimSpace(part))
		switch {
		case ticker == "" || seen[ticker]:
		case !domain.IsSupportedTicker(ticker):
			log.Printf("Warning: unsupported ticker %q ignored", ticker)
		default:
			seen[ticker] = true
			out = append(out, ticker)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), domain.DefaultTickers...)
	}
	return out
}
