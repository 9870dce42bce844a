package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// MongoDB
	MongoHost string
	MongoPort int
	MongoDB   string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// CORS
	CORSOrigins []string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		MongoHost: getEnv("MONGO_HOST", "localhost"),
		MongoPort: getEnvInt("MONGO_PORT", 27017),
		MongoDB:   getEnv("MONGO_DB", "wealthwise"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 72*time.Hour),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}

	return cfg
}

// MongoURI builds the connection string from host and port.
func (c *Config) MongoURI() string {
	return fmt.Sprintf("mongodb://%s:%d", c.MongoHost, c.MongoPort)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate MongoDB settings
	if c.MongoHost == "" {
		errors = append(errors, "MongoDB host cannot be empty")
	}
	if c.MongoPort < 1 || c.MongoPort > 65535 {
		errors = append(errors, fmt.Sprintf("invalid MongoDB port %d: must be between 1 and 65535", c.MongoPort))
	}
	if c.MongoDB == "" {
		errors = append(errors, "MongoDB database name cannot be empty")
	}

	// Validate auth settings
	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET must be provided")
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	} else if c.TokenTTL > 30*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at most 30 days", c.TokenTTL))
	}

	if len(c.CORSOrigins) == 0 {
		errors = append(errors, "CORS origins cannot be empty")
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
