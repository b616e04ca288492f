package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds the process settings read from the environment.
type Config struct {
	Port             string
	JWTSecret        string
	TokenTTL         time.Duration
	DBDriver         string
	DSN              string
	MongoDatabase    string
	ClientOrigin     string
	RedisURL         string
	LoginMaxAttempts int
	LoginLockout     time.Duration
	LogLevel         string
	CookieSecure     bool
}

// Load reads envFile (if present) into the environment and builds a
// Config from it. A missing env file is not an error; the returned bool
// reports whether it was loaded.
func Load(envFile string) (Config, bool, error) {
	loaded := false
	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			loaded = true
		}
	}

	cfg := Config{
		Port:          envOrDefault("PORT", "3002"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		DBDriver:      strings.ToLower(envOrDefault("DB_DRIVER", DriverMySQL)),
		DSN:           os.Getenv("DSN"),
		MongoDatabase: envOrDefault("MONGO_DATABASE", "ziksir_notes"),
		ClientOrigin:  envOrDefault("CLIENT_ORIGIN", "http://localhost:5173"),
		RedisURL:      os.Getenv("REDIS_URL"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return cfg, loaded, err
	}
	if cfg.LoginLockout, err = durationEnv("LOGIN_LOCKOUT", 15*time.Minute); err != nil {
		return cfg, loaded, err
	}
	if cfg.LoginMaxAttempts, err = intEnv("LOGIN_MAX_ATTEMPTS", 5); err != nil {
		return cfg, loaded, err
	}
	if cfg.CookieSecure, err = boolEnv("COOKIE_SECURE", false); err != nil {
		return cfg, loaded, err
	}

	return cfg, loaded, cfg.Validate()
}

func (c Config) Validate() error {
	var problems []error
	if c.JWTSecret == "" {
		problems = append(problems, errors.New("JWT_SECRET is not set"))
	}
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverMongo:
		if c.DSN == "" {
			problems = append(problems, fmt.Errorf("DSN is required for DB_DRIVER=%s", c.DBDriver))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, errors.New("TOKEN_TTL must be positive"))
	}
	if c.LoginMaxAttempts <= 0 {
		problems = append(problems, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}
	return errors.Join(problems...)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
