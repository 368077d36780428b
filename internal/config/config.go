package config

import (
	"fmt"
	"os"
	"time"

	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Reaper   ReaperConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AuthConfig holds authentication configuration. Country is the single
// country this instance serves; every login and user-management
// operation is scoped to it.
type AuthConfig struct {
	Country         repository.Country
	SessionTTL      time.Duration
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// ReaperConfig holds the session reaper schedule
type ReaperConfig struct {
	Interval time.Duration
	Enabled  bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	country, err := repository.ParseCountry(getEnv("COUNTRY", "FRANCE"))
	if err != nil {
		return nil, fmt.Errorf("invalid COUNTRY: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "pandemics_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			Country:         country,
			SessionTTL:      getDurationEnv("SESSION_TTL", 24*time.Hour),
			JWTSecret:       getEnv("JWT_SECRET", ""),
			JWTIssuer:       getEnv("JWT_ISSUER", "epiwatch-api"),
			AccessTokenTTL:  getDurationEnv("JWT_ACCESS_TTL", 15*time.Minute),
			LoginRateLimit:  getIntEnv("LOGIN_RATE_LIMIT", 20),
			LoginRateWindow: getDurationEnv("LOGIN_RATE_WINDOW", time.Minute),
		},
		Reaper: ReaperConfig{
			Interval: getDurationEnv("REAPER_INTERVAL", 5*time.Minute),
			Enabled:  getEnv("REAPER_ENABLED", "true") == "true",
		},
	}, nil
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// URL returns the PostgreSQL connection URL used by the migration tool
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration syntax ("30m", "24h").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}
