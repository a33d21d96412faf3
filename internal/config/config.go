package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wxstats/internal/modules/weather/parser"
	"wxstats/internal/modules/weather/service"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogSQL wraps the driver so every statement is logged at debug level.
	LogSQL bool

	DataDir         string
	ParsePolicy     parser.Policy
	DuplicatePolicy service.DuplicatePolicy

	MQTT MQTTConfig

	// PushgatewayURL receives the metrics of ingest and aggregate runs. Empty
	// disables pushing.
	PushgatewayURL string
}

// MQTTConfig configures run-summary notifications. An empty Broker disables
// them.
type MQTTConfig struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
}

func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFromEnv()
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	maxOpenConns, err := intEnv("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intEnv("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetimeStr := envOr("DB_CONN_MAX_LIFETIME", "0s")
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}
	logSQLStr := envOr("DB_LOG_SQL", "false")
	logSQL, err := strconv.ParseBool(logSQLStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_LOG_SQL %q: %w", logSQLStr, err)
	}

	parsePolicy, err := parser.ParsePolicy(envOr("PARSE_ERROR_POLICY", string(parser.PolicyFail)))
	if err != nil {
		return Config{}, fmt.Errorf("PARSE_ERROR_POLICY: %w", err)
	}
	dupPolicy, err := service.ParseDuplicatePolicy(envOr("DUPLICATE_POLICY", string(service.DuplicateRejectFile)))
	if err != nil {
		return Config{}, fmt.Errorf("DUPLICATE_POLICY: %w", err)
	}

	mqttPort, err := intEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (allowed: 1-65535)", mqttPort)
	}

	pushURL := strings.TrimSpace(os.Getenv("PUSHGATEWAY_URL"))
	if pushURL != "" {
		u, err := url.Parse(pushURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("invalid PUSHGATEWAY_URL %q (expected http(s)://host[:port])", pushURL)
		}
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		Driver:          envOr("DB_DRIVER", "sqlite3"),
		DSN:             strings.TrimSpace(os.Getenv("DB_DSN")),
		Path:            envOr("SQLITE_PATH", "local.db"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		LogSQL:          logSQL,
		DataDir:         envOr("WX_DATA_DIR", "wx_data"),
		ParsePolicy:     parsePolicy,
		DuplicatePolicy: dupPolicy,
		MQTT: MQTTConfig{
			Broker:   strings.TrimSpace(os.Getenv("MQTT_BROKER")),
			Port:     mqttPort,
			ClientID: envOr("MQTT_CLIENT_ID", "wxstats"),
			Topic:    strings.TrimSuffix(envOr("MQTT_TOPIC", "wxstats/runs"), "/"),
		},
		PushgatewayURL: pushURL,
	}, nil
}

// envOr returns the trimmed value of key, or def when it is unset or blank.
func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := envOr(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
