package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"TelemetryHubAPI/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Store    StoreConfig
	Alert    AlertConfig
	Archive  ArchiveConfig
	Report   ReportConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig identifies the logical tabular store that readings land in.
// An empty StoreID means ingestion is not configured and every ingest
// request is rejected with a structured error.
type StoreConfig struct {
	StoreID      string
	Timezone     string
	DashboardURL string
	DedupTTL     time.Duration
}

type AlertConfig struct {
	WebhookURL        string
	CheckInterval     time.Duration
	InactivityMinutes int
	CooldownMinutes   int
	TempThreshold     float64
	TempCooldownMin   int
	LockWait          time.Duration
}

type ArchiveConfig struct {
	Hour     int
	Minute   int
	LockWait time.Duration
}

type ReportConfig struct {
	Enabled bool
}

type SecurityConfig struct {
	APIKey             string
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	RateLimitPerMinute int
	EnableRateLimit    bool
}

type LoggingConfig struct {
	Level     logger.Level
	FilePath  string
	UseColors bool
}

var requiredEnvVars = []string{
	"DB_HOST",
	"DB_PORT",
	"DB_USER",
	"DB_PASSWORD",
	"DB_NAME",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	if err := validateRequired(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		Store:    loadStoreConfig(),
		Alert:    loadAlertConfig(),
		Archive:  loadArchiveConfig(),
		Report:   loadReportConfig(),
		Security: loadSecurityConfig(),
		Logging:  loadLoggingConfig(),
	}

	return cfg, nil
}

func validateRequired() error {
	var missing []string

	for _, key := range requiredEnvVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Port:            getEnvAsInt("SERVER_PORT", 8080),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "15s"),
		ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", "10s"),
		WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", "10s"),
		MaxHeaderBytes:  getEnvAsInt("MAX_HEADER_BYTES", 1048576),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "hub_admin"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "telemetry_hub"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", "5m"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		StoreID:      getEnv("STORE_ID", ""),
		Timezone:     getEnv("STORE_TIMEZONE", "UTC"),
		DashboardURL: getEnv("DASHBOARD_URL", ""),
		DedupTTL:     getEnvAsDuration("DEDUP_TTL", "60s"),
	}
}

func loadAlertConfig() AlertConfig {
	return AlertConfig{
		WebhookURL:        getEnv("ALERT_WEBHOOK_URL", ""),
		CheckInterval:     getEnvAsDuration("ALERT_CHECK_INTERVAL", "1m"),
		InactivityMinutes: getEnvAsInt("ALERT_INACTIVITY_MINUTES", 5),
		CooldownMinutes:   getEnvAsInt("ALERT_COOLDOWN_MINUTES", 30),
		TempThreshold:     getEnvAsFloat("ALERT_TEMP_THRESHOLD", 25.0),
		TempCooldownMin:   getEnvAsInt("ALERT_TEMP_COOLDOWN_MINUTES", 30),
		LockWait:          getEnvAsDuration("ALERT_LOCK_WAIT", "30s"),
	}
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Hour:     getEnvAsInt("ARCHIVE_HOUR", 0),
		Minute:   getEnvAsInt("ARCHIVE_MINUTE", 10),
		LockWait: getEnvAsDuration("ARCHIVE_LOCK_WAIT", "60s"),
	}
}

func loadReportConfig() ReportConfig {
	return ReportConfig{
		Enabled: getEnvAsBool("HOURLY_REPORTS_ENABLED", true),
	}
}

func loadSecurityConfig() SecurityConfig {
	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	methods := getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")

	return SecurityConfig{
		APIKey:             getEnv("API_KEY", ""),
		CORSAllowedOrigins: strings.Split(origins, ","),
		CORSAllowedMethods: strings.Split(methods, ","),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		EnableRateLimit:    getEnvAsBool("ENABLE_RATE_LIMIT", true),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:     logger.ParseLevel(getEnv("LOG_LEVEL", "info")),
		FilePath:  getEnv("LOG_FILE_PATH", ""),
		UseColors: getEnvAsBool("LOG_USE_COLORS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// Location resolves the configured store timezone. Falls back to UTC when the
// name does not resolve; Validate reports the bad name beforehand.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Store.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	var errors []string

	if c.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD cannot be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}

	if _, err := time.LoadLocation(c.Store.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("STORE_TIMEZONE %q is not a valid timezone", c.Store.Timezone))
	}

	if c.Archive.Hour < 0 || c.Archive.Hour > 23 {
		errors = append(errors, "ARCHIVE_HOUR must be between 0 and 23")
	}

	if c.Archive.Minute < 0 || c.Archive.Minute > 59 {
		errors = append(errors, "ARCHIVE_MINUTE must be between 0 and 59")
	}

	if c.Alert.InactivityMinutes < 1 {
		errors = append(errors, "ALERT_INACTIVITY_MINUTES must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func (c *Config) Print() {
	fmt.Println("──────────────────────────────────────────────")
	fmt.Println("  Telemetry Hub - Configuration")
	fmt.Println("──────────────────────────────────────────────")
	fmt.Printf("Environment:  %s\n", c.Server.Environment)
	fmt.Printf("Server:       %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Printf("Database:     %s:%d/%s\n", c.Database.Host, c.Database.Port, c.Database.Database)
	fmt.Printf("Redis:        %s\n", c.Redis.Addr)
	fmt.Printf("Store ID:     %s\n", maskIfEmpty(c.Store.StoreID))
	fmt.Printf("Timezone:     %s\n", c.Store.Timezone)
	fmt.Println("──────────────────────────────────────────────")
}

func maskIfEmpty(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}
