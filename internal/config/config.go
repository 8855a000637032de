package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all replay service configuration
type Config struct {
	Server ServerConfig
	Buffer BufferConfig
	NATS   NATSConfig

	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// BufferConfig holds experience buffer configuration
type BufferConfig struct {
	// Capacity is the fixed maximum number of resident transitions.
	Capacity int
	// Arena names the allocator backing stored tensors.
	Arena string
	// DefaultBatchSize applies when a sample request omits batch_size.
	DefaultBatchSize int
}

// NATSConfig holds event publishing configuration. An empty URL
// disables eventing.
type NATSConfig struct {
	URL     string
	Subject string
}

// Load loads configuration from environment variables, falling back to
// defaults for anything unset or unparseable. Call Validate before use.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnvString("HOST", "0.0.0.0"),
			Port:            getEnvInt("PORT", 8080),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Buffer: BufferConfig{
			Capacity:         getEnvInt("BUFFER_CAPACITY", 100000),
			Arena:            getEnvString("BUFFER_ARENA", "cpu"),
			DefaultBatchSize: getEnvInt("DEFAULT_BATCH_SIZE", 32),
		},
		NATS: NATSConfig{
			URL:     getEnvString("NATS_URL", ""),
			Subject: getEnvString("NATS_SUBJECT", "replay-events"),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Buffer.Capacity)
	}
	if c.Buffer.DefaultBatchSize <= 0 {
		return fmt.Errorf("default batch size must be positive, got %d", c.Buffer.DefaultBatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
