// Package config loads authd settings from defaults, an optional .env file,
// environment variables and command-line flags, in that order of
// precedence from lowest to highest.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config holds runtime settings for authd.
type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string

	Store         string
	SQLitePath    string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	// RedisAddr moves sessions and rate limits to Redis. Empty keeps them
	// in process memory.
	RedisAddr string

	// TokenKey signs client handles. Empty makes authd generate a key at
	// start, which invalidates every handle on restart.
	TokenKey       string
	CookieSecure   bool
	AllowedOrigins []string

	// RecaptchaSecret turns on reCAPTCHA checks for signup and login.
	RecaptchaSecret   string
	RecaptchaMinScore float64

	SessionLifetime time.Duration
	ShutdownTimeout time.Duration
}

// Defaults returns development settings.
func Defaults() *Config {
	return &Config{
		Addr:              ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
		Store:             StoreMemory,
		SQLitePath:        "authkit.db",
		MongoDatabase:     "authkit",
		SessionLifetime:   30 * time.Minute,
		ShutdownTimeout:   15 * time.Second,
		RecaptchaMinScore: 0.5,
	}
}

// Load builds the configuration from envFile (skipped when missing), the
// process environment and args, which excludes the program name.
func Load(envFile string, args []string) (*Config, error) {
	fileEnv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}

	cfg := Defaults()
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("AUTHKIT_ADDR", &cfg.Addr)
	str("AUTHKIT_LOG_LEVEL", &cfg.LogLevel)
	str("AUTHKIT_LOG_FORMAT", &cfg.LogFormat)
	str("AUTHKIT_STORE", &cfg.Store)
	str("AUTHKIT_SQLITE_PATH", &cfg.SQLitePath)
	str("AUTHKIT_POSTGRES_DSN", &cfg.PostgresDSN)
	str("AUTHKIT_MONGO_URI", &cfg.MongoURI)
	str("AUTHKIT_MONGO_DATABASE", &cfg.MongoDatabase)
	str("AUTHKIT_REDIS_ADDR", &cfg.RedisAddr)
	str("AUTHKIT_TOKEN_KEY", &cfg.TokenKey)
	str("AUTHKIT_RECAPTCHA_SECRET", &cfg.RecaptchaSecret)
	if v, ok := lookup("AUTHKIT_RECAPTCHA_MIN_SCORE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("AUTHKIT_RECAPTCHA_MIN_SCORE: %w", err)
		}
		cfg.RecaptchaMinScore = f
	}

	if v, ok := lookup("AUTHKIT_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("AUTHKIT_COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("AUTHKIT_COOKIE_SECURE: %w", err)
		}
		cfg.CookieSecure = b
	}
	for key, dst := range map[string]*time.Duration{
		"AUTHKIT_SESSION_LIFETIME": &cfg.SessionLifetime,
		"AUTHKIT_SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

func parseFlags(cfg *Config, args []string) error {
	set := flag.NewFlagSet("authd", flag.ContinueOnError)

	set.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	set.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	set.StringVar(&cfg.Store, "store", cfg.Store, "record store: memory, sqlite, postgres or mongo")
	set.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database path")
	set.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL DSN")
	set.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "MongoDB URI")
	set.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for sessions and rate limits")
	set.DurationVar(&cfg.SessionLifetime, "session-lifetime", cfg.SessionLifetime, "session lifetime")

	return set.Parse(args)
}

// Validate checks that the selected store has its connection settings.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite store requires a database path")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres store requires AUTHKIT_POSTGRES_DSN")
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("mongo store requires AUTHKIT_MONGO_URI and a database name")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.TokenKey != "" && len(c.TokenKey) < 32 {
		return errors.New("AUTHKIT_TOKEN_KEY must be at least 32 bytes")
	}
	if c.SessionLifetime <= 0 {
		return errors.New("session lifetime must be > 0")
	}
	if c.RecaptchaMinScore < 0 || c.RecaptchaMinScore > 1 {
		return errors.New("AUTHKIT_RECAPTCHA_MIN_SCORE must be within [0, 1]")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
