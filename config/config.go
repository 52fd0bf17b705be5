package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream feed
	PolygonAPIKey string
	WSURL         string
	AggPrefix     string

	// Subscription
	SubscribeTickers string

	// Connection policy
	KeepAliveSec         int
	ReconnectDelaySec    int
	MaxReconnectAttempts int
	AuthTimeoutSec       int

	// State store
	MaxBars int

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Notification channels, each optional
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		PolygonAPIKey: mustEnv("POLYGON_API_KEY"),
		WSURL:         getEnv("WS_URL", "wss://socket.polygon.io/stocks"),
		AggPrefix:     getEnv("AGG_PREFIX", "AM"),

		SubscribeTickers: getEnv("SUBSCRIBE_TICKERS", "SPY,QQQ"),

		KeepAliveSec:         getEnvInt("KEEPALIVE_SEC", 30),
		ReconnectDelaySec:    getEnvInt("RECONNECT_DELAY_SEC", 5),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		AuthTimeoutSec:       getEnvInt("AUTH_TIMEOUT_SEC", 10),

		MaxBars: getEnvInt("MAX_BARS", 300),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/scanner.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// ParseTickers splits the SubscribeTickers string into a cleaned ticker list.
func (c *Config) ParseTickers() []string {
	parts := strings.Split(c.SubscribeTickers, ",")
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		tickers = append(tickers, p)
	}
	return tickers
}

// KeepAlive returns the keepalive probe interval.
func (c *Config) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSec) * time.Second
}

// ReconnectDelay returns the fixed delay between reconnect attempts.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySec) * time.Second
}

// AuthTimeout returns the handshake acknowledgment timeout.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutSec) * time.Second
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
