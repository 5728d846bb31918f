package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/rs/zerolog/log"
)

const devJWTSecret = "fexp-dev-secret-key"

type Config struct {
	Env      string
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Outbox   OutboxConfig
	SeedDemo bool
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level string
	Debug bool
}

type DatabaseConfig struct {
	Driver      string
	SQLitePath  string
	Postgres    PostgresConfig
	TxTimeout   time.Duration
	LockTimeout time.Duration
}

// PostgresConfig holds the libpq style connection settings
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type OutboxConfig struct {
	Brokers   []string
	Topic     string
	Interval  time.Duration
	BatchSize int
}

// Load reads configuration from a .env file when present, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	env := getEnv("ENV", "development")
	cfg := &Config{
		Env: env,
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Debug: getEnv("DEBUG", "false") == "true",
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", database.DriverSQLite),
			SQLitePath: getEnv("SQLITE_PATH", "fexp.db"),
			Postgres: PostgresConfig{
				Host:     getEnv("PGHOST", "localhost"),
				Port:     getEnv("PGPORT", "5432"),
				User:     getEnv("PGUSER", "fexp"),
				Password: getEnv("PGPASSWORD", "fexp"),
				Name:     getEnv("PGDATABASE", "fexp"),
				SSLMode:  getEnv("PGSSLMODE", "disable"),
			},
			TxTimeout:   getDurationEnv("DB_TX_TIMEOUT", 10*time.Second),
			LockTimeout: getDurationEnv("DB_LOCK_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getDurationEnv("JWT_TTL", 24*time.Hour),
		},
		Outbox: OutboxConfig{
			Brokers:   getListEnv("OUTBOX_BROKERS"),
			Topic:     getEnv("OUTBOX_TOPIC", "fexp.match-events"),
			Interval:  getDurationEnv("OUTBOX_INTERVAL", 2*time.Second),
			BatchSize: getIntEnv("OUTBOX_BATCH_SIZE", 100),
		},
		SeedDemo: getEnv("SEED_DEMO_DATA", strconv.FormatBool(env != "production")) == "true",
	}

	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		cfg.Auth.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

// IsProduction reports whether internal error detail must be hidden from responses
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PostgresDSN builds the connection string for the postgres driver
func (c DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Postgres.Host, c.Postgres.User, c.Postgres.Password, c.Postgres.Name, c.Postgres.Port, c.Postgres.SSLMode)
}

// Store returns the settings the database package opens a connection with
func (c DatabaseConfig) Store() database.Config {
	return database.Config{
		Driver:       c.Driver,
		SQLitePath:   c.SQLitePath,
		PostgresDSN:  c.PostgresDSN(),
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Int("default", defaultValue).Msg("invalid integer, using default")
		return defaultValue
	}

	return value
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Dur("default", defaultValue).Msg("invalid duration, using default")
		return defaultValue
	}

	return value
}

func getListEnv(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
