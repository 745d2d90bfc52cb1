package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Database
	DataBackend  string
	SQLiteDBPath string

	// Categorization service
	CategorizerURL     string
	CategorizerTimeout time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Recurrence scheduler
	RecurrenceInterval  time.Duration
	UpcomingDaysDefault int
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/conti.db"),

		CategorizerURL:     getEnv("CATEGORIZER_URL", ""),
		CategorizerTimeout: getEnvDuration("CATEGORIZER_TIMEOUT", 3*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "conti"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		RecurrenceInterval:  getEnvDuration("RECURRENCE_INTERVAL", 24*time.Hour),
		UpcomingDaysDefault: getEnvInt("UPCOMING_DAYS_DEFAULT", 30),
	}
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite", "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be 'sqlite' or 'memory'", c.DataBackend))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.CategorizerURL != "" {
		if parsed, err := url.Parse(c.CategorizerURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid categorizer URL '%s': %v", c.CategorizerURL, err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid categorizer URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
		}
	}
	if c.CategorizerTimeout < 100*time.Millisecond || c.CategorizerTimeout > 30*time.Second {
		errors = append(errors, fmt.Sprintf("invalid categorizer timeout %v: must be between 100ms and 30s", c.CategorizerTimeout))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecurrenceInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurrence interval %v: must be at least 1 minute", c.RecurrenceInterval))
	} else if c.RecurrenceInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurrence interval %v: must be at most 7 days", c.RecurrenceInterval))
	}

	if c.UpcomingDaysDefault < 1 || c.UpcomingDaysDefault > 365 {
		errors = append(errors, fmt.Sprintf("invalid upcoming days default %d: must be between 1 and 365", c.UpcomingDaysDefault))
	}

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
