// Package config provides configuration management for the token analytics service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/token-analytics/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Chain     ChainConfig
	Analytics AnalyticsConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Tokens    []models.TrackedToken
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by pgx and golang-migrate
func (c *PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds Ethereum RPC configuration
type ChainConfig struct {
	RPCPrimary     string
	RPCSecondary   string
	LookbackBlocks uint64        // Blocks scanned for Transfer logs
	RequestTimeout time.Duration // Upper bound for a single upstream read
	RPCPerSecond   float64
}

// AnalyticsConfig holds scheduler, broadcaster and cache settings
type AnalyticsConfig struct {
	TickInterval      time.Duration
	BroadcastInterval time.Duration
	TokensTTL         time.Duration
	TradesTTL         time.Duration
	HoldersTTL        time.Duration
	HistoryTTL        time.Duration
	AISignalTTL       time.Duration
	Workers           int
	Strategy          string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "3000"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Enabled:        getEnvAsBool("POSTGRES_ENABLED", false),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "token_analytics"),
				User:           getEnv("POSTGRES_USER", "analytics"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "token_analytics"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Chain: ChainConfig{
			RPCPrimary:     getEnv("ETHEREUM_RPC_PRIMARY", ""),
			RPCSecondary:   getEnv("ETHEREUM_RPC_SECONDARY", ""),
			LookbackBlocks: uint64(getEnvAsInt("ETHEREUM_LOOKBACK_BLOCKS", 100)), // #nosec G115 - small positive config value
			RequestTimeout: getEnvAsDuration("ETHEREUM_REQUEST_TIMEOUT", 5*time.Second),
			RPCPerSecond:   getEnvAsFloat("ETHEREUM_RPC_PER_SECOND", 10),
		},
		Analytics: AnalyticsConfig{
			TickInterval:      getEnvAsDuration("ANALYTICS_TICK_INTERVAL", 15*time.Second),
			BroadcastInterval: getEnvAsDuration("BROADCAST_INTERVAL", 10*time.Second),
			TokensTTL:         getEnvAsDuration("CACHE_TOKENS_TTL", 300*time.Second),
			TradesTTL:         getEnvAsDuration("CACHE_TRADES_TTL", 60*time.Second),
			HoldersTTL:        getEnvAsDuration("CACHE_HOLDERS_TTL", 300*time.Second),
			HistoryTTL:        getEnvAsDuration("ANALYSIS_HISTORY_TTL", time.Hour),
			AISignalTTL:       getEnvAsDuration("AI_SIGNAL_TTL", 2*time.Hour),
			Workers:           getEnvAsInt("ANALYTICS_WORKERS", 4),
			Strategy:          getEnv("SIGNAL_STRATEGY", "basic"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	tokens, err := LoadTokens(getEnv("TOKENS_FILE", ""))
	if err != nil {
		return nil, err
	}
	config.Tokens = tokens

	return config, nil
}

// tokensFile is the YAML layout of TOKENS_FILE
type tokensFile struct {
	Tokens []models.TrackedToken `yaml:"tokens"`
}

// LoadTokens reads the tracked token list from a YAML file.
// An empty path yields the built-in defaults.
func LoadTokens(path string) ([]models.TrackedToken, error) {
	if path == "" {
		return models.DefaultTokens(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens file: %w", err)
	}

	var file tokensFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tokens file: %w", err)
	}

	tokens := make([]models.TrackedToken, 0, len(file.Tokens))
	for _, t := range file.Tokens {
		t.Address = strings.TrimSpace(t.Address)
		if t.Address == "" {
			return nil, fmt.Errorf("tokens file %s: entry without address", path)
		}
		if t.Decimals == 0 {
			t.Decimals = 18
		}
		tokens = append(tokens, t)
	}

	if len(tokens) == 0 {
		return models.DefaultTokens(), nil
	}
	return tokens, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
