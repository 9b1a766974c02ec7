package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/roomboard/internal/rooms"
)

// Config holds everything roomboard needs to reach the room server.
type Config struct {
	APIBase        string
	StreamURL      string
	RequestTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	LogLevel       string
	LogFile        string
}

const (
	defaultConfigPath     = "~/.config/roomboard/config.toml"
	defaultLogFile        = "~/.local/state/roomboard/roomboard.log"
	defaultAPIBase        = "http://127.0.0.1:8000"
	defaultLogLevel       = "info"
	defaultRequestTimeout = 5 * time.Second
	defaultReconnectMin   = time.Second
	defaultReconnectMax   = 30 * time.Second
)

// fileConfig mirrors config.toml. Durations stay strings until validated so
// errors can name the offending key.
type fileConfig struct {
	APIBase        string `toml:"api_base"`
	StreamURL      string `toml:"stream_url"`
	RequestTimeout string `toml:"request_timeout"`
	ReconnectMin   string `toml:"reconnect_min"`
	ReconnectMax   string `toml:"reconnect_max"`
	LogLevel       string `toml:"log_level"`
	LogFile        string `toml:"log_file"`
}

type envConfig struct {
	APIBase        string `env:"ROOMBOARD_API_BASE"`
	StreamURL      string `env:"ROOMBOARD_STREAM_URL"`
	RequestTimeout string `env:"ROOMBOARD_REQUEST_TIMEOUT"`
	ReconnectMin   string `env:"ROOMBOARD_RECONNECT_MIN"`
	ReconnectMax   string `env:"ROOMBOARD_RECONNECT_MAX"`
	LogLevel       string `env:"ROOMBOARD_LOG_LEVEL"`
	LogFile        string `env:"ROOMBOARD_LOG_FILE"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		APIBase:        defaultAPIBase,
		RequestTimeout: defaultRequestTimeout,
		ReconnectMin:   defaultReconnectMin,
		ReconnectMax:   defaultReconnectMax,
		LogLevel:       defaultLogLevel,
		LogFile:        mustExpand(defaultLogFile),
	}
}

// Load reads the config file at path (or the default location), applies
// ROOMBOARD_* environment overrides and validates the result. A missing file
// is not an error.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	raw, err := readFile(resolved)
	if err != nil {
		return Config{}, err
	}

	var overrides envConfig
	if _, err := env.UnmarshalFromEnviron(&overrides); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	raw.merge(fileConfig(overrides))

	return raw.build()
}

func readFile(path string) (fileConfig, error) {
	var raw fileConfig

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return raw, nil
		}
		return raw, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return raw, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return raw, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}

// merge overlays every non-blank field of other onto f.
func (f *fileConfig) merge(other fileConfig) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&f.APIBase, other.APIBase)
	set(&f.StreamURL, other.StreamURL)
	set(&f.RequestTimeout, other.RequestTimeout)
	set(&f.ReconnectMin, other.ReconnectMin)
	set(&f.ReconnectMax, other.ReconnectMax)
	set(&f.LogLevel, other.LogLevel)
	set(&f.LogFile, other.LogFile)
}

func (f fileConfig) build() (Config, error) {
	cfg := Default()

	if v := strings.TrimSpace(f.APIBase); v != "" {
		cfg.APIBase = v
	}
	if _, err := rooms.ParseBaseURL(cfg.APIBase); err != nil {
		return Config{}, fmt.Errorf("api_base: %w", err)
	}
	cfg.StreamURL = strings.TrimSpace(f.StreamURL)

	var err error
	if cfg.RequestTimeout, err = parseDuration("request_timeout", f.RequestTimeout, cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectMin, err = parseDuration("reconnect_min", f.ReconnectMin, cfg.ReconnectMin); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectMax, err = parseDuration("reconnect_max", f.ReconnectMax, cfg.ReconnectMax); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		return Config{}, fmt.Errorf("reconnect_max %s is below reconnect_min %s", cfg.ReconnectMax, cfg.ReconnectMin)
	}

	if v := strings.ToLower(strings.TrimSpace(f.LogLevel)); v != "" {
		switch v {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = v
		default:
			return Config{}, fmt.Errorf("log_level: unknown level %q", f.LogLevel)
		}
	}
	if v := strings.TrimSpace(f.LogFile); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return Config{}, fmt.Errorf("log_file: %w", err)
		}
		cfg.LogFile = expanded
	}

	return cfg, nil
}

func parseDuration(key, value string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, trimmed)
	}
	return d, nil
}

// StreamEndpoint returns the configured stream_url, or the websocket
// endpoint derived from APIBase when none was set.
func (c Config) StreamEndpoint() (string, error) {
	if strings.TrimSpace(c.StreamURL) != "" {
		return c.StreamURL, nil
	}
	return rooms.StreamURL(c.APIBase)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
