package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the tracker service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	AccessLog      bool

	DataFile    string
	DatabaseURL string
	SaveTimeout time.Duration
	EventBuffer int

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string
}

// fileConfig mirrors Config for the optional YAML overlay. Absent keys leave
// the defaults untouched.
type fileConfig struct {
	BindAddr         *string `yaml:"bind_addr"`
	ShutdownTimeout  *string `yaml:"shutdown_timeout"`
	MetricsNamespace *string `yaml:"metrics_namespace"`
	AllowAnyOrigin   *bool   `yaml:"allow_any_origin"`
	AccessLog        *bool   `yaml:"access_log"`
	DataFile         *string `yaml:"data_file"`
	DatabaseURL      *string `yaml:"database_url"`
	SaveTimeout      *string `yaml:"save_timeout"`
	EventBuffer      *int    `yaml:"event_buffer"`
}

func defaults() Config {
	return Config{
		BindAddr:         ":8080",
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "tracker",
		AllowAnyOrigin:   false,
		AccessLog:        true,
		SaveTimeout:      5 * time.Second,
		EventBuffer:      256,
	}
}

// Load applies defaults, then the YAML file named by TRACKER_CONFIG_FILE,
// then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := stringsTrimSpace("TRACKER_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.DataFile = envOrDefault("TRACKER_DATA_FILE", cfg.DataFile)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SaveTimeout, err = durationFromEnv("TRACKER_SAVE_TIMEOUT", cfg.SaveTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessLog, err = boolFromEnv("APP_ACCESS_LOG", cfg.AccessLog)
	if err != nil {
		return Config{}, err
	}
	cfg.EventBuffer, err = intFromEnv("TRACKER_EVENT_BUFFER", cfg.EventBuffer)
	if err != nil {
		return Config{}, err
	}

	cfg.DataFile = strings.TrimSpace(cfg.DataFile)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.SaveTimeout <= 0 {
		return Config{}, fmt.Errorf("TRACKER_SAVE_TIMEOUT must be positive")
	}
	if cfg.EventBuffer <= 0 {
		return Config{}, fmt.Errorf("TRACKER_EVENT_BUFFER must be positive")
	}
	if strings.TrimSpace(cfg.MetricsNamespace) == "" {
		return Config{}, fmt.Errorf("APP_METRICS_NAMESPACE must not be empty")
	}

	return cfg, nil
}

// StoreMode names the persistence backend the config selects.
func (c Config) StoreMode() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.DataFile != "":
		return "file"
	default:
		return "in-memory"
	}
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("TRACKER_CONFIG_FILE read error: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("TRACKER_CONFIG_FILE parse error: %w", err)
	}

	if fc.BindAddr != nil {
		cfg.BindAddr = *fc.BindAddr
	}
	if fc.MetricsNamespace != nil {
		cfg.MetricsNamespace = *fc.MetricsNamespace
	}
	if fc.AllowAnyOrigin != nil {
		cfg.AllowAnyOrigin = *fc.AllowAnyOrigin
	}
	if fc.AccessLog != nil {
		cfg.AccessLog = *fc.AccessLog
	}
	if fc.DataFile != nil {
		cfg.DataFile = *fc.DataFile
	}
	if fc.DatabaseURL != nil {
		cfg.DatabaseURL = *fc.DatabaseURL
	}
	if fc.EventBuffer != nil {
		cfg.EventBuffer = *fc.EventBuffer
	}
	for _, d := range []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"save_timeout", fc.SaveTimeout, &cfg.SaveTimeout},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(*d.src))
		if err != nil {
			return fmt.Errorf("TRACKER_CONFIG_FILE %s parse error: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
