package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvProduction = "production"
)

type Config struct {
	HTTPPort    string
	Environment string
	LogLevel    string
	LogFilePath string

	DatabaseURL      string
	DatabaseDriver   string
	DBMaxConns       int
	DBIdleTimeout    time.Duration
	DBAcquireTimeout time.Duration
	DBConnectRetry   time.Duration

	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() Config {
	databaseURL := getEnv("DATABASE_URL", "chats.db")

	return Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		LogFilePath: getEnv("LOG_FILE_PATH", ""),

		DatabaseURL:      databaseURL,
		DatabaseDriver:   getEnv("DATABASE_DRIVER", inferDriver(databaseURL)),
		DBMaxConns:       getEnvAsInt("DB_MAX_CONNS", 20),
		DBIdleTimeout:    getEnvAsDuration("DB_IDLE_TIMEOUT", 30*time.Second),
		DBAcquireTimeout: getEnvAsDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
		DBConnectRetry:   getEnvAsDuration("DB_CONNECT_RETRY", 15*time.Second),

		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	// Every pooled connection would open its own empty in-memory database.
	if c.DatabaseDriver == DriverSQLite && isInMemorySQLite(c.DatabaseURL) {
		return fmt.Errorf("in-memory SQLite is not supported, point DATABASE_URL at a file")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBAcquireTimeout <= 0 {
		return fmt.Errorf("DB_ACQUIRE_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func inferDriver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

func isInMemorySQLite(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30s") or a plain number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated value, dropping blank entries.
func getEnvAsSlice(key string, defaultValue []string) []string {
	var values []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
