package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// DotEnvFile is loaded before reading the environment when present. Variables
// already set in the process environment win.
var DotEnvFile = ".env"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Data source and refresh loop.
	DataSource      string
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
	AutoRefresh     bool
	MapHeatLayer    bool

	// Circuit breaker around the data source fetch.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// High risk alert publishing.
	AlertsEnabled   bool
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Auth backend; empty disables auth.
	AuthBackendURL string
	AuthTimeout    time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "15s")
	if err != nil {
		return nil, err
	}
	breakerOpenTimeout, err := parseDuration("BREAKER_OPEN_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	authTimeout, err := parseDuration("AUTH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	autoRefresh, err := parseBool("AUTO_REFRESH", false)
	if err != nil {
		return nil, err
	}
	heatLayer, err := parseBool("MAP_HEAT_LAYER", true)
	if err != nil {
		return nil, err
	}
	alertsEnabled, err := parseBool("ALERTS_ENABLED", false)
	if err != nil {
		return nil, err
	}

	maxFailures, err := parsePositiveInt("BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataSource:      sharedcfg.EnvOrDefault("DATA_SOURCE", "http://localhost:3000/outputs/glacier_data.csv"),
		FetchTimeout:    fetchTimeout,
		RefreshInterval: refreshInterval,
		AutoRefresh:     autoRefresh,
		MapHeatLayer:    heatLayer,

		BreakerMaxFailures: uint32(maxFailures),
		BreakerOpenTimeout: breakerOpenTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		AlertsEnabled:   alertsEnabled,
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "glacier-risk-alerts"),

		AuthBackendURL: os.Getenv("AUTH_BACKEND_URL"),
		AuthTimeout:    authTimeout,
	}

	if cfg.DataSource == "" {
		return nil, errors.New("DATA_SOURCE is required")
	}
	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ALERTS_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.AlertsEnabled && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required when ALERTS_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// AuthEnabled reports whether API routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.AuthBackendURL != ""
}

func parseDuration(name, def string) (time.Duration, error) {
	raw := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return d, nil
}

func parseBool(name string, def bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return b, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
