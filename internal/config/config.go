package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL       string
	WebSocketURL string
	DataDir      string

	BridgeHost string
	BridgePort string

	// Transport
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration

	// Presence and typing
	PresenceInterval   time.Duration
	PresenceStaleAfter time.Duration
	PresenceFreshness  time.Duration
	TypingQuiet        time.Duration

	// Observability
	JaegerEndpoint string
	LogLevel       slog.Level
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:       strings.TrimRight(getEnv("MATCHME_API_URL", "http://localhost:8080"), "/"),
		WebSocketURL: getEnv("MATCHME_WS_URL", "ws://localhost:8080/ws/websocket"),
		DataDir:      getEnv("MATCHME_DATA_DIR", defaultDataDir()),

		BridgeHost: getEnv("BRIDGE_HOST", "localhost"),
		BridgePort: getEnv("BRIDGE_PORT", "7070"),

		ReconnectDelay:    getEnvDuration("RECONNECT_DELAY", 5*time.Second),
		HeartbeatIncoming: getEnvDuration("STOMP_HEARTBEAT_IN", 4*time.Second),
		HeartbeatOutgoing: getEnvDuration("STOMP_HEARTBEAT_OUT", 4*time.Second),

		PresenceInterval:   getEnvDuration("PRESENCE_INTERVAL", 5*time.Second),
		PresenceStaleAfter: getEnvDuration("PRESENCE_STALE_AFTER", 45*time.Second),
		PresenceFreshness:  getEnvDuration("PRESENCE_FRESHNESS", 5*time.Second),
		TypingQuiet:        getEnvDuration("TYPING_QUIET", 2*time.Second),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("MATCHME_API_URL is invalid: %w", err)
	}
	u, err := url.ParseRequestURI(c.WebSocketURL)
	if err != nil {
		return fmt.Errorf("MATCHME_WS_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("MATCHME_WS_URL must use ws or wss, got %q", u.Scheme)
	}
	// "online right now" must stay stricter than the background sweep
	if c.PresenceFreshness >= c.PresenceStaleAfter {
		return fmt.Errorf("PRESENCE_FRESHNESS (%s) must be shorter than PRESENCE_STALE_AFTER (%s)",
			c.PresenceFreshness, c.PresenceStaleAfter)
	}
	if c.PresenceInterval <= 0 {
		return fmt.Errorf("PRESENCE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) BridgeAddr() string {
	return net.JoinHostPort(c.BridgeHost, c.BridgePort)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matchme"
	}
	return filepath.Join(home, ".matchme")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// bare integers are milliseconds
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv(key, defaultValue.String()))); err != nil {
		return defaultValue
	}
	return level
}
