package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all bot configuration
type Config struct {
	Telegram  TelegramConfig  `env:", prefix=TELEGRAM_"`
	Remnawave RemnawaveConfig `env:", prefix=REMNAWAVE_"`
	Promo     PromoConfig
	Log       LogConfig `env:", prefix=LOG_"`

	AdminUserIDs AdminIDs `env:"ADMIN_USER_IDS, required"`

	// HTTPAddr serves health and metrics; empty disables it.
	HTTPAddr string `env:"HTTP_ADDR, default=:8080"`
}

type TelegramConfig struct {
	BotToken    string `env:"BOT_TOKEN, required"`
	PollTimeout int    `env:"POLL_TIMEOUT, default=60"` // seconds
}

type RemnawaveConfig struct {
	BaseURL           string        `env:"BASE_URL, required"`
	Token             string        `env:"TOKEN, required"`
	CaddyToken        string        `env:"CADDY_TOKEN"`
	RequestsPerSecond float64       `env:"RPS, default=5"`
	Timeout           time.Duration `env:"TIMEOUT, default=30s"`
}

type PromoConfig struct {
	InboundIDs    InboundIDs    `env:"DEFAULT_INBOUND_IDS, default=1"`
	NamePrefix    string        `env:"DEFAULT_UUID_PREFIX, default=promo-"`
	MaxPerRequest int           `env:"MAX_SUBSCRIPTIONS_PER_REQUEST, default=100"`
	ReportDir     string        `env:"REPORT_DIR, default=/app/temp_files"`
	ReportMaxAge  time.Duration `env:"REPORT_MAX_AGE, default=168h"`
}

type LogConfig struct {
	Level string `env:"LEVEL, default=info"`
	File  string `env:"FILE"`
}

// AdminIDs is a comma separated list of Telegram user IDs.
type AdminIDs []int64

func (a *AdminIDs) EnvDecode(val string) error {
	var ids AdminIDs
	for _, field := range splitList(val) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return fmt.Errorf("admin id %q is not an integer", field)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}

func (a AdminIDs) Contains(id int64) bool {
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

// InboundIDs lists panel inbounds, each either a number or a UUID.
type InboundIDs []string

func (in *InboundIDs) EnvDecode(val string) error {
	var ids InboundIDs
	for _, field := range splitList(val) {
		if parsed, err := uuid.Parse(field); err == nil {
			ids = append(ids, parsed.String())
			continue
		}
		if _, err := strconv.Atoi(field); err == nil {
			ids = append(ids, field)
			continue
		}
		return fmt.Errorf("inbound id %q is neither a number nor a uuid", field)
	}
	*in = ids
	return nil
}

func splitList(val string) []string {
	return strings.FieldsFunc(val, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
}

// Load reads .env when present, then the environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return Process(ctx, envconfig.OsLookuper())
}

// Process builds and validates a Config from l.
func Process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.AdminUserIDs) == 0 {
		errs = append(errs, errors.New("ADMIN_USER_IDS: at least one admin is required"))
	}
	if u, err := url.Parse(c.Remnawave.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("REMNAWAVE_BASE_URL: %q is not an absolute http(s) url", c.Remnawave.BaseURL))
	}
	if c.Remnawave.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("REMNAWAVE_RPS: must not be negative, got %v", c.Remnawave.RequestsPerSecond))
	}
	if c.Remnawave.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("REMNAWAVE_TIMEOUT: must be positive, got %s", c.Remnawave.Timeout))
	}
	if c.Telegram.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TELEGRAM_POLL_TIMEOUT: must be positive, got %d", c.Telegram.PollTimeout))
	}
	if c.Promo.MaxPerRequest < 1 {
		errs = append(errs, fmt.Errorf("MAX_SUBSCRIPTIONS_PER_REQUEST: must be at least 1, got %d", c.Promo.MaxPerRequest))
	}
	if strings.ContainsAny(c.Promo.NamePrefix, " \t/") {
		errs = append(errs, fmt.Errorf("DEFAULT_UUID_PREFIX: %q must not contain spaces or slashes", c.Promo.NamePrefix))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
