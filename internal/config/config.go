package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrNotConfigured means a selected backend is missing the settings it needs.
// The server refuses to start in that state.
var ErrNotConfigured = errors.New("backend not configured")

type Config struct {
	Env  string `mapstructure:"APP_ENV"`
	Port string `mapstructure:"PORT"`

	DatabaseDriver   string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	StorageDriver     string `mapstructure:"STORAGE_DRIVER"`
	UploadDir         string `mapstructure:"UPLOAD_DIR"`
	BaseURL           string `mapstructure:"BASE_URL"`
	S3Bucket          string `mapstructure:"S3_BUCKET"`
	S3Region          string `mapstructure:"S3_REGION"`
	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3PublicURL       string `mapstructure:"S3_PUBLIC_URL"`

	OpenAIAPIKey    string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel     string `mapstructure:"OPENAI_MODEL"`
	AIRatePerMinute int    `mapstructure:"AI_RATE_PER_MINUTE"`

	TypingIdleMS      int `mapstructure:"TYPING_IDLE_MS"`
	SuggestDebounceMS int `mapstructure:"SUGGEST_DEBOUNCE_MS"`

	AuthPolicy string `mapstructure:"AUTH_POLICY"`
}

var defaults = map[string]interface{}{
	"APP_ENV":              "development",
	"PORT":                 "3001",
	"DATABASE_DRIVER":      "postgres",
	"DATABASE_URL":         "",
	"POSTGRES_USER":        "postgres",
	"POSTGRES_PASSWORD":    "postgres",
	"POSTGRES_HOST":        "localhost",
	"POSTGRES_PORT":        "5432",
	"POSTGRES_DB":          "chatdb",
	"SQLITE_PATH":          "chatwave.db",
	"JWT_SECRET":           "",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"STORAGE_DRIVER":       "local",
	"UPLOAD_DIR":           "uploads",
	"BASE_URL":             "",
	"S3_BUCKET":            "",
	"S3_REGION":            "auto",
	"S3_ENDPOINT":          "",
	"S3_ACCESS_KEY_ID":     "",
	"S3_SECRET_ACCESS_KEY": "",
	"S3_PUBLIC_URL":        "",
	"OPENAI_API_KEY":       "",
	"OPENAI_BASE_URL":      "",
	"OPENAI_MODEL":         "gpt-4o-mini",
	"AI_RATE_PER_MINUTE":   20,
	"TYPING_IDLE_MS":       1500,
	"SUGGEST_DEBOUNCE_MS":  1000,
	"AUTH_POLICY":          "author_only",
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.AuthPolicy = strings.ToLower(cfg.AuthPolicy)
	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = "secret"
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// PostgresDSN returns DATABASE_URL or builds one from the POSTGRES_* variables.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "postgres://" + c.PostgresUser + ":" + c.PostgresPassword + "@" +
		c.PostgresHost + ":" + c.PostgresPort + "/" + c.PostgresDB + "?sslmode=disable"
}

func (c *Config) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMS) * time.Millisecond
}

func (c *Config) SuggestDebounce() time.Duration {
	return time.Duration(c.SuggestDebounceMS) * time.Millisecond
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres":
		if c.PostgresDSN() == "" {
			return fmt.Errorf("%w: postgres requires DATABASE_URL", ErrNotConfigured)
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite requires SQLITE_PATH", ErrNotConfigured)
		}
	default:
		return fmt.Errorf("%w: unknown DATABASE_DRIVER %q", ErrNotConfigured, c.DatabaseDriver)
	}

	switch c.StorageDriver {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("%w: local storage requires UPLOAD_DIR", ErrNotConfigured)
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3 storage requires S3_BUCKET", ErrNotConfigured)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrNotConfigured, c.StorageDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrNotConfigured)
	}
	return nil
}
