// Package config loads pubsub-gateway configuration from environment
// variables, following the flat env-var-with-defaults style used
// across the Tesseract-Nexus service fleet.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the gateway process.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	WebSocket WebSocketConfig
	JWT       JWTConfig
	Usage     UsageConfig
	App       AppConfig
}

// ServerConfig holds HTTP listen configuration.
type ServerConfig struct {
	Host string
	Port int
	// ID is stamped into every ConnectionRecord this instance owns.
	ID string
}

// DatabaseConfig holds Postgres connection configuration for the
// durable agents/daily_usage tables.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration backing the
// connection registry and the fast counter store.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	RegistryTable string
}

// NATSConfig holds message bus connection configuration.
type NATSConfig struct {
	URL              string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	PublishTimeout   time.Duration
}

// WebSocketConfig holds per-session socket tuning.
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	OutboundQueue   int
	MaxSubsPerConn  int
}

// JWTConfig holds dashboard bearer-token validation configuration.
type JWTConfig struct {
	Issuer   string
	Audience string
	Secret   string
	Skew     time.Duration
}

// UsageConfig holds message-accounting tuning.
type UsageConfig struct {
	FlushInterval     time.Duration
	FlushMaxBatch     int
	FlushRetryWindow  time.Duration
	AggregateInterval time.Duration
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Environment string
	LogLevel    string
	LogFormat   string
}

// Load reads configuration from the environment, defaulting anything
// unset.
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("LISTEN_PORT", 8080),
			ID:   getEnv("SERVER_ID", defaultServerID()),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "pubsub_gateway"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			RegistryTable: getEnv("REGISTRY_TABLE", "connections"),
		},
		NATS: NATSConfig{
			URL:              getEnv("BUS_URL", "nats://127.0.0.1:4222"),
			ReconnectInitial: getEnvAsDuration("BUS_RECONNECT_INITIAL", 100*time.Millisecond),
			ReconnectMax:     getEnvAsDuration("BUS_RECONNECT_MAX", 30*time.Second),
			PublishTimeout:   getEnvAsDuration("BUS_PUBLISH_TIMEOUT", 5*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
			WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", 30*time.Second),
			MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 512*1024),
			OutboundQueue:   getEnvAsInt("WS_OUTBOUND_QUEUE", 256),
			MaxSubsPerConn:  getEnvAsInt("WS_MAX_SUBS_PER_CONN", 128),
		},
		JWT: JWTConfig{
			Issuer:   getEnv("JWT_ISSUER", ""),
			Audience: getEnv("JWT_AUDIENCE", ""),
			Secret:   getEnv("JWT_SECRET", ""),
			Skew:     getEnvAsDuration("JWT_CLOCK_SKEW", 30*time.Second),
		},
		Usage: UsageConfig{
			FlushInterval:     getEnvAsDuration("COUNTER_FLUSH_INTERVAL", 1*time.Second),
			FlushMaxBatch:     getEnvAsInt("COUNTER_FLUSH_MAX_BATCH", 1024),
			FlushRetryWindow:  getEnvAsDuration("COUNTER_FLUSH_RETRY_WINDOW", 10*time.Second),
			AggregateInterval: getEnvAsDuration("USAGE_AGGREGATE_INTERVAL", 5*time.Minute),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

// GetServerAddress returns the server address in host:port format.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetDatabaseDSN returns the PostgreSQL connection string.
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func defaultServerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "gateway-0"
	}
	return host
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
