package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

const (
	DefaultDatabaseURL   = "./db/relay.sqlite"
	DefaultWorkersNum    = 5
	DefaultWebhookPath   = "/"
	DefaultBlockCacheTTL = 10 * time.Minute
	DefaultLogLevel      = "info"
)

// Config is read from an ini file, keys are the ini-name tags below.
type Config struct {
	Token  string `long:"token" ini-name:"token" description:"telegram bot api token"`
	ChatID int64  `long:"chat-id" ini-name:"chat_id" description:"id of the admin chat"`

	DatabaseURL string `long:"database-url" ini-name:"database_url" description:"sqlite file path or postgres:// url"`
	WorkersNum  int    `long:"workers-num" ini-name:"workers_num" description:"number of update handling workers"`

	WebhookAddress string `long:"webhook-address" ini-name:"webhook_address" description:"listen address for webhook updates, long polling if empty"`
	WebhookPath    string `long:"webhook-path" ini-name:"webhook_path" description:"http path of the webhook endpoint"`
	WebhookURL     string `long:"webhook-url" ini-name:"webhook_url" description:"public webhook url registered with telegram on start"`
	MetricsAddress string `long:"metrics-address" ini-name:"metrics_address" description:"listen address for /metrics when long polling"`

	RedisURL      string        `long:"redis-url" ini-name:"redis_url" description:"redis url for the block status cache"`
	BlockCacheTTL time.Duration `long:"block-cache-ttl" ini-name:"block_cache_ttl" description:"block status cache ttl"`

	SentryDSN   string `long:"sentry-dsn" ini-name:"sentry_dsn" description:"sentry dsn, reporting is off if empty"`
	Environment string `long:"environment" ini-name:"environment" description:"sentry environment"`
	LogLevel    string `long:"log-level" ini-name:"log_level" description:"debug, info, warn or error"`
}

// Load reads the ini file at path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.None)
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = DefaultDatabaseURL
	}
	if c.WorkersNum == 0 {
		c.WorkersNum = DefaultWorkersNum
	}
	if c.WebhookPath == "" {
		c.WebhookPath = DefaultWebhookPath
	}
	if c.BlockCacheTTL == 0 {
		c.BlockCacheTTL = DefaultBlockCacheTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.ChatID == 0 {
		errs = append(errs, errors.New("chat_id is required"))
	}
	if c.WorkersNum < 1 {
		errs = append(errs, fmt.Errorf("workers_num must be greater than 0, got %d", c.WorkersNum))
	}
	if c.BlockCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("block_cache_ttl must not be negative, got %s", c.BlockCacheTTL))
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("webhook_path must start with /, got %q", c.WebhookPath))
	}

	return errors.Join(errs...)
}

// Webhook reports whether updates are received by webhook instead of long polling.
func (c *Config) Webhook() bool {
	return c.WebhookAddress != ""
}
