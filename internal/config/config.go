package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Operator string

	// EDM API access.
	EDMBaseURL      string
	EDMClientID     string
	EDMClientSecret string
	EDMTimeout      time.Duration
	HistoryCache    int
	HistoryCacheTTL time.Duration

	// Flow grid raster.
	GridPath string

	// Snapshot loop.
	SnapshotInterval       time.Duration
	IncludeRecent          bool
	HistoryRefreshSchedule string

	// Kafka sink. Disabled when no brokers are set.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// SQLite archive. Disabled when no path is set.
	SQLitePath string

	// Telegram alerts. Disabled when no token is set.
	TelegramToken  string
	TelegramChatID int64

	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration
	TimeSeriesWindow time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	edmTimeout, err := parseDuration("EDM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	snapshotInterval, err := parseDuration("SNAPSHOT_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	seriesWindow, err := parseDuration("TIMESERIES_WINDOW", "168h")
	if err != nil {
		return nil, err
	}

	historyCache, err := parsePositiveInt("HISTORY_CACHE_SIZE", 500)
	if err != nil {
		return nil, err
	}
	historyCacheTTL, err := parseDuration("HISTORY_CACHE_TTL", "12h")
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	var chatID int64
	if s := os.Getenv("TELEGRAM_CHAT_ID"); s != "" {
		chatID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.New("invalid TELEGRAM_CHAT_ID")
		}
	}

	cfg := &Config{
		Operator:        envOrDefault("OPERATOR", ""),
		EDMBaseURL:      os.Getenv("EDM_BASE_URL"),
		EDMClientID:     os.Getenv("EDM_CLIENT_ID"),
		EDMClientSecret: os.Getenv("EDM_CLIENT_SECRET"),
		EDMTimeout:      edmTimeout,
		HistoryCache:    historyCache,
		HistoryCacheTTL: historyCacheTTL,

		GridPath: os.Getenv("GRID_PATH"),

		SnapshotInterval:       snapshotInterval,
		IncludeRecent:          os.Getenv("INCLUDE_RECENT") == "true",
		HistoryRefreshSchedule: envOrDefault("HISTORY_REFRESH_SCHEDULE", "0 3 * * *"),

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   brokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "cso-impact-nodes"),

		SQLitePath: os.Getenv("SQLITE_PATH"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: chatID,

		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		TimeSeriesWindow: seriesWindow,
	}

	if cfg.Operator == "" {
		return nil, errors.New("OPERATOR is required")
	}
	if cfg.EDMBaseURL == "" {
		return nil, errors.New("EDM_BASE_URL is required")
	}
	if cfg.GridPath == "" {
		return nil, errors.New("GRID_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, errors.New("TELEGRAM_TOKEN is set but TELEGRAM_CHAT_ID is not")
	}

	return cfg, nil
}

// TelegramEnabled reports whether alerting is configured.
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// SQLiteEnabled reports whether archiving is configured.
func (c *Config) SQLiteEnabled() bool { return c.SQLitePath != "" }

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
