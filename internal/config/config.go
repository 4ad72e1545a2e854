package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the location of the optional YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

type Config struct {
	AppEnv       string     `koanf:"app_env" validate:"oneof=dev prod"`
	LogLevelName string     `koanf:"log_level"`
	LogLevel     slog.Level `koanf:"-"`
	HTTPAddr     string     `koanf:"http_addr" validate:"required"`

	// Document store (station, calibration and api key collections).
	Driver          string        `koanf:"db_driver" validate:"required"`
	DSN             string        `koanf:"db_dsn"`
	Path            string        `koanf:"sqlite_path"`
	MaxOpenConns    int           `koanf:"db_max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"db_max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"db_conn_max_lifetime" validate:"gte=0"`
	LogSQL          bool          `koanf:"db_log_sql"`

	// Time-series store.
	InfluxHost      string        `koanf:"influxdb_host" validate:"required"`
	InfluxPort      int           `koanf:"influxdb_port" validate:"min=1,max=65535"`
	InfluxDatabase  string        `koanf:"influxdb_database" validate:"required"`
	InfluxUser      string        `koanf:"influxdb_user"`
	InfluxPassword  string        `koanf:"influxdb_password"`
	InfluxTimeout   time.Duration `koanf:"influxdb_timeout" validate:"gt=0"`
	InfluxChunkSize int           `koanf:"influxdb_chunk_size" validate:"gte=0"`

	MQTTEnabled  bool   `koanf:"mqtt_enabled"`
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTPort     int    `koanf:"mqtt_port" validate:"min=1,max=65535"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTClientID string `koanf:"mqtt_client_id"`

	AuthRequired      bool          `koanf:"auth_required"`
	CORSOriginsRaw    string        `koanf:"cors_origins"`
	CORSOrigins       []string      `koanf:"-"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

func defaults() Config {
	return Config{
		AppEnv:       "dev",
		LogLevelName: "info",
		HTTPAddr:     ":8080",

		Driver:          "sqlite3",
		Path:            "../dev/sqlite/app.db",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 0,

		InfluxHost:      "cosmoz.influxdb",
		InfluxPort:      8086,
		InfluxDatabase:  "cosmoz",
		InfluxUser:      "root",
		InfluxPassword:  "root",
		InfluxTimeout:   30 * time.Second,
		InfluxChunkSize: 10000,

		MQTTBroker:   "localhost",
		MQTTPort:     1883,
		MQTTTopic:    "cosmoz/+/telemetry",
		MQTTClientID: "cosmoz-server",

		CORSOriginsRaw:    "*",
		RateLimitRequests: 600,
		RateLimitWindow:   time.Minute,
	}
}

// LoadFromEnv layers struct defaults, an optional YAML file and the process
// environment (highest priority). Blank environment values are ignored.
func LoadFromEnv() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		value = strings.TrimSpace(value)
		if value == "" {
			return "", nil
		}
		return strings.ToLower(key), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AppEnv = strings.TrimSpace(cfg.AppEnv)
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	level, err := ParseLogLevel(cfg.LogLevelName)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level
	cfg.CORSOrigins = splitList(cfg.CORSOriginsRaw)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// InfluxAddr is the base URL of the time-series store HTTP API.
func (c Config) InfluxAddr() string {
	return fmt.Sprintf("http://%s:%d", c.InfluxHost, c.InfluxPort)
}

func ParseLogLevel(s string) (slog.Level, error) {
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

func findConfigFile() string {
	if p := strings.TrimSpace(os.Getenv(ConfigPathEnvVar)); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
