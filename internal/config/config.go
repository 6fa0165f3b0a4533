// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process configuration of the check-in desk.
type Config struct {
	Port           string
	OkapiURL       string
	Tenant         string
	Token          string
	ServicePointID string
	OperatorID     string
	CheckinPath    string
	Location       *time.Location

	DatabaseURL  string
	OTLPEndpoint string
	LogLevel     string

	ClientRatePerSecond float64
	ClientBurst         int
	ClientTimeout       time.Duration

	// SettingsRefresh is how often the check-in settings are re-read. Zero
	// reads them only at startup.
	SettingsRefresh time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; variables already set in
// the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8084"),
		OkapiURL:       getEnv("OKAPI_URL", "http://localhost:9130"),
		Tenant:         getEnv("OKAPI_TENANT", "diku"),
		Token:          os.Getenv("OKAPI_TOKEN"),
		ServicePointID: os.Getenv("SERVICE_POINT_ID"),
		OperatorID:     os.Getenv("OPERATOR_ID"),
		CheckinPath:    getEnv("CHECKIN_PATH", "/checkin"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ClientRatePerSecond, err = strconv.ParseFloat(getEnv("CLIENT_RATE_PER_SECOND", "20"), 64); err != nil {
		return nil, fmt.Errorf("parse CLIENT_RATE_PER_SECOND: %w", err)
	}
	if cfg.ClientBurst, err = strconv.Atoi(getEnv("CLIENT_BURST", "10")); err != nil {
		return nil, fmt.Errorf("parse CLIENT_BURST: %w", err)
	}
	if cfg.ClientTimeout, err = time.ParseDuration(getEnv("CLIENT_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("parse CLIENT_TIMEOUT: %w", err)
	}
	if cfg.SettingsRefresh, err = time.ParseDuration(getEnv("SETTINGS_REFRESH_INTERVAL", "1m")); err != nil {
		return nil, fmt.Errorf("parse SETTINGS_REFRESH_INTERVAL: %w", err)
	}

	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("load TIMEZONE: %w", err)
	}

	if cfg.ServicePointID == "" {
		return nil, fmt.Errorf("SERVICE_POINT_ID is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
