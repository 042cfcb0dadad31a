// Package config reads the engine's settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads the first .env file found in the current or a parent
// directory. Variables already set in the environment win.
func LoadEnv() error {
	for _, envPath := range []string{".env", "../.env", "../../.env"} {
		err := godotenv.Load(envPath)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	return nil
}

// GetEnv gets environment variable with default
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets integer environment variable with default
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvFloat gets float environment variable with default
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvBool gets boolean environment variable with default
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// GetEnvDuration gets a duration environment variable ("30s", "5m") with default
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the lib/pq connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Engine holds the resolution thresholds.
type Engine struct {
	DistanceLimit float64
	AreaLimit     float64
	HullBuffer    float64
	ProgressEvery int
}

// Log holds logger settings.
type Log struct {
	Level  string
	Format string
}

// Server holds lookup API settings.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Config is the complete configuration.
type Config struct {
	Database Database
	Engine   Engine
	Log      Log
	Server   Server
}

// Load reads .env and builds the configuration from the environment.
func Load() (Config, error) {
	if err := LoadEnv(); err != nil {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() Config {
	return Config{
		Database: Database{
			Host:         GetEnv("PGHOST", "localhost"),
			Port:         GetEnvInt("PGPORT", 5432),
			User:         GetEnv("PGUSER", "kohde"),
			Password:     GetEnv("PGPASSWORD", "kohde"),
			Name:         GetEnv("PGDATABASE", "kohde"),
			SSLMode:      GetEnv("PGSSLMODE", "disable"),
			MaxOpenConns: GetEnvInt("PG_MAX_OPEN_CONNS", 20),
			MaxIdleConns: GetEnvInt("PG_MAX_IDLE_CONNS", 10),
		},
		Engine: Engine{
			DistanceLimit: GetEnvFloat("KOHDE_DISTANCE_LIMIT", 300),
			AreaLimit:     GetEnvFloat("KOHDE_AREA_LIMIT", 100000),
			HullBuffer:    GetEnvFloat("KOHDE_HULL_BUFFER", 10),
			ProgressEvery: GetEnvInt("KOHDE_PROGRESS_EVERY", 500),
		},
		Log: Log{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Format: GetEnv("LOG_FORMAT", "json"),
		},
		Server: Server{
			Addr:            GetEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: GetEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}
}
