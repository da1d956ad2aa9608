package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `validate:"required"`

	DBDriver string `validate:"oneof=sqlite postgres"`
	DBDSN    string

	AuthHMACSecret  string        `validate:"required,min=16"`
	TokenTTL        time.Duration `validate:"gt=0"`
	EnableLocalAuth bool

	CORSOrigins []string

	// Grading
	FreeTextPolicy string `validate:"oneof=exact case_insensitive normalized pattern fuzzy numeric"`
	FuzzyMaxEdit   int    `validate:"gte=0,lte=5"`

	// Expiry sweep; empty disables it. Any robfig/cron schedule, e.g. "@every 1m".
	SweepSchedule string
	SweepBatch    int `validate:"gt=0"`

	// Question bank cache; empty addr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	CacheTTL      time.Duration `validate:"gte=0"`

	// Event relay; empty URL keeps events in event_log only.
	AMQPURL      string `validate:"omitempty,url"`
	AMQPExchange string `validate:"required"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	SeedFile string
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	return Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		AuthHMACSecret:  envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		TokenTTL:        envDuration("TOKEN_TTL", 8*time.Hour),
		EnableLocalAuth: envBool("ENABLE_LOCAL_AUTH", true),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		FreeTextPolicy:  envOr("FREE_TEXT_POLICY", "case_insensitive"),
		FuzzyMaxEdit:    envInt("FUZZY_MAX_EDIT", 1),
		SweepSchedule:   os.Getenv("SWEEP_SCHEDULE"),
		SweepBatch:      envInt("SWEEP_BATCH", 200),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB", 0),
		CacheTTL:        envDuration("CACHE_TTL", 5*time.Minute),
		AMQPURL:         os.Getenv("AMQP_URL"),
		AMQPExchange:    envOr("AMQP_EXCHANGE", "quiz-events"),
		LogLevel:        strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(envOr("LOG_FORMAT", "text")),
		SeedFile:        os.Getenv("SEED_FILE"),
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
