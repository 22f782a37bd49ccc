// Package config loads process configuration from the environment.
//
// Loading order: an optional .env file (never overriding real environment
// variables), envconfig struct tags, then validator tags and the cross-field
// checks in Validate.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dukerupert/unitask/internal/reminder"
)

type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev prod"`
	Port   string `envconfig:"PORT" default:"8080" validate:"required,numeric"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"unitask.db" validate:"required"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	Bot BotConfig

	ScanInterval       time.Duration `envconfig:"SCAN_INTERVAL" default:"15m" validate:"gt=0"`
	DeleteAfterSeconds int           `envconfig:"NOTIFICATION_DELETE_AFTER_READ_SECONDS" default:"60" validate:"gte=1"`

	WebhookURL    string `envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// Manual API requests per second per client IP.
	APIRate  float64 `envconfig:"API_RATE" default:"5" validate:"gt=0"`
	APIBurst int     `envconfig:"API_BURST" default:"10" validate:"gte=1"`
}

// BotConfig configures the outbound messenger API client.
type BotConfig struct {
	Token   string        `envconfig:"MAX_BOT_TOKEN"`
	BaseURL string        `envconfig:"MAX_API_URL" default:"https://platform-api.max.ru" validate:"required,url"`
	Timeout time.Duration `envconfig:"MAX_API_TIMEOUT" default:"10s" validate:"gt=0"`
	Rate    float64       `envconfig:"MAX_API_RATE" default:"25" validate:"gt=0"`
}

// Error reports which loading stage failed.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{Stage: "parse", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs tag validation and the checks that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &Error{Stage: "validate", Err: err}
	}
	// A gradation fires only while the remaining time sits inside its
	// window, so every window must see at least one scan.
	if narrowest := reminder.NarrowestWindow(); c.ScanInterval > narrowest {
		return &Error{Stage: "validate", Err: fmt.Errorf(
			"SCAN_INTERVAL %s exceeds the narrowest reminder window %s", c.ScanInterval, narrowest)}
	}
	if c.WebhookURL != "" && c.Bot.Token == "" {
		return &Error{Stage: "validate", Err: fmt.Errorf("WEBHOOK_URL requires MAX_BOT_TOKEN")}
	}
	return nil
}

// DeleteAfter is the tracker deletion delay.
func (c *Config) DeleteAfter() time.Duration {
	return time.Duration(c.DeleteAfterSeconds) * time.Second
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "prod"
}
