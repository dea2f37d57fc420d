package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// StoreConfig selects the token store backend. The file backend keeps two
// JSON documents on local disk; the postgres backend keeps both stores in
// one table keyed by store name.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // file | postgres
	ManualPath  string `yaml:"manual_path"`
	AutoPath    string `yaml:"auto_path"`
	DatabaseURL string `yaml:"database_url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // verdict cache TTL
}

// StripeConfig carries everything the checkout integration needs. Secrets
// may also come from the environment (see secretOverlay).
type StripeConfig struct {
	SecretKey          string            `yaml:"secret_key"`
	WebhookSecret      string            `yaml:"webhook_secret"`
	Prices             map[string]string `yaml:"prices"` // plan -> price id
	UpgradeAmountCents int64             `yaml:"upgrade_amount_cents"`
	Currency           string            `yaml:"currency"`
}

type SiteConfig struct {
	PublicURL string `yaml:"public_url"` // base for success/cancel redirects
}

// AccessPassConfig controls the signed pass minted on valid verdicts.
// An empty secret disables the feature.
type AccessPassConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"` // validation attempts per client IP
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Site       SiteConfig       `yaml:"site"`
	AccessPass AccessPassConfig `yaml:"access_pass"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// secretOverlay lets deployments keep secrets out of the config file.
// A non-empty environment value always wins over the yaml value.
type secretOverlay struct {
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	AccessPassSecret    string `env:"ACCESS_PASS_SECRET"`
	DatabaseURL         string `env:"DATABASE_URL"`
	RedisURL            string `env:"REDIS_URL"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var sec secretOverlay
	if err := envconfig.Process(context.Background(), &sec); err != nil {
		return nil, fmt.Errorf("process env overlay: %w", err)
	}
	if sec.StripeSecretKey != "" {
		cfg.Stripe.SecretKey = sec.StripeSecretKey
	}
	if sec.StripeWebhookSecret != "" {
		cfg.Stripe.WebhookSecret = sec.StripeWebhookSecret
	}
	if sec.AccessPassSecret != "" {
		cfg.AccessPass.Secret = sec.AccessPassSecret
	}
	if sec.DatabaseURL != "" {
		cfg.Store.DatabaseURL = sec.DatabaseURL
	}
	if sec.RedisURL != "" {
		cfg.Redis.URL = sec.RedisURL
	}

	cfg.applyDefaults()

	// Minimal validation
	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("stripe.secret_key is required")
	}
	if cfg.Site.PublicURL == "" {
		return nil, errors.New("site.public_url is required")
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DatabaseURL == "" {
		return nil, errors.New("store.database_url is required for the postgres backend")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.ManualPath == "" {
		c.Store.ManualPath = "data/tokens.json"
	}
	if c.Store.AutoPath == "" {
		c.Store.AutoPath = "data/auto-tokens.json"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 10 * time.Minute
	}
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "usd"
	}
	if c.Stripe.UpgradeAmountCents <= 0 {
		c.Stripe.UpgradeAmountCents = 500
	}
	if c.AccessPass.TTL <= 0 {
		c.AccessPass.TTL = time.Hour
	}
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = 30
	}
}
