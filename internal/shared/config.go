package shared

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	StoreDriver   string // mysql | memory
	MySQLDSN      string
	MigrationsDir string

	RedisAddr string
	RedisDB   int
	RedisPass string

	JWTSecret      string
	RequestTimeout time.Duration
	ReorderWorkers int

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
	RateLimitPrefix  string
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env file ignored")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not a number, using default")
		}
		return def
	}
	abool := func(k string, def bool) bool {
		if v := os.Getenv(k); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not a boolean, using default")
		}
		return def
	}

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		StoreDriver:   strings.ToLower(env("STORE_DRIVER", "mysql")),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/rental?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC"),
		MigrationsDir: env("MIGRATIONS_DIR", "migrations"),

		RedisAddr: env("REDIS_ADDR", ""),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),

		JWTSecret:      env("JWT_SECRET", ""),
		RequestTimeout: time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		ReorderWorkers: atoi("REORDER_WORKERS", 8),

		RateLimitEnabled: abool("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     atof("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   atoi("RATE_LIMIT_BURST", 20),
		RateLimitPrefix:  env("RATE_LIMIT_PREFIX", "rl:banners"),
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		} else {
			log.Warn().Str("value", v).Msg("REQUEST_TIMEOUT is not a duration, using default")
		}
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty")
	}
	return c
}

// Validate reports settings the API cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "mysql":
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql store"))
		}
	case "memory":
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be mysql or memory"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
