package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"orderbot-client/internal/integrations/paramstore"
	"orderbot-client/internal/orderbot"
	"orderbot-client/internal/retry"
)

type Config struct {
	BaseURL          string        `env:"ORDERBOT_BASE_URL"`           // ordering service root, without /order/
	Token            string        `env:"ORDERBOT_TOKEN"`              // optional bearer token
	MaxRetries       int           `env:"ORDERBOT_MAX_RETRIES"`        // retries after the first attempt
	BaseDelay        time.Duration `env:"ORDERBOT_BASE_DELAY"`         // wait before the first retry
	MaxDelay         time.Duration `env:"ORDERBOT_MAX_DELAY"`          // cap on any single wait
	RetryRateLimited bool          `env:"ORDERBOT_RETRY_RATE_LIMITED"` // also retry HTTP 429
	ParamPrefix      string        `env:"ORDERBOT_PARAM_PREFIX"`       // SSM prefix holding <prefix>/order-bot
	MetricsAddr      string        `env:"ORDERBOT_METRICS_ADDR"`       // serve /metrics here when set
	Debug            bool          `env:"ORDERBOT_DEBUG"`
}

// EndpointSource resolves endpoint settings kept outside the process.
type EndpointSource interface {
	Endpoint(ctx context.Context, prefix string) (paramstore.Endpoint, error)
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	p := retry.DefaultPolicy()
	return &Config{
		BaseURL:    orderbot.DefaultBaseURL,
		MaxRetries: p.MaxRetries,
		BaseDelay:  p.BaseDelay,
		MaxDelay:   p.MaxDelay,
	}
}

// Load starts from Defaults, then applies .env, the environment and finally
// command-line args, in that order. For -h the returned error wraps flag.ErrHelp.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	fs := flag.NewFlagSet("orderbot", flag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "ordering service base URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "bearer token sent with every request")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "retries after the first attempt")
	fs.DurationVar(&cfg.BaseDelay, "base-delay", cfg.BaseDelay, "wait before the first retry, doubled each time")
	fs.DurationVar(&cfg.MaxDelay, "max-delay", cfg.MaxDelay, "upper bound for a single retry wait")
	fs.BoolVar(&cfg.RetryRateLimited, "retry-rate-limited", cfg.RetryRateLimited, "treat HTTP 429 as retryable")
	fs.StringVar(&cfg.ParamPrefix, "param-prefix", cfg.ParamPrefix, "SSM parameter prefix for endpoint settings")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for Prometheus metrics, e.g. :9090")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.ParamPrefix = strings.TrimSpace(cfg.ParamPrefix)
	cfg.MetricsAddr = strings.TrimSpace(cfg.MetricsAddr)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("config: max retries must not be negative")
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return errors.New("config: retry delays must not be negative")
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		return errors.New("config: base delay must not exceed max delay")
	}
	if c.BaseURL == "" && c.ParamPrefix == "" {
		return errors.New("config: base URL is required when no parameter prefix is set")
	}
	return nil
}

// ApplyEndpoint overrides BaseURL and Token with any values stored under
// ParamPrefix. It is a no-op when ParamPrefix is empty.
func (c *Config) ApplyEndpoint(ctx context.Context, src EndpointSource) error {
	if c.ParamPrefix == "" {
		return nil
	}
	if src == nil {
		return errors.New("config: endpoint source must not be nil")
	}
	ep, err := src.Endpoint(ctx, c.ParamPrefix)
	if err != nil {
		return fmt.Errorf("config: load endpoint: %w", err)
	}
	if ep.BaseURL != "" {
		c.BaseURL = ep.BaseURL
	}
	if ep.Token != "" {
		c.Token = ep.Token
	}
	if c.BaseURL == "" {
		return errors.New("config: no base URL configured")
	}
	return nil
}

// Policy builds the retry policy described by the configuration.
func (c *Config) Policy() retry.Policy {
	p := retry.Policy{
		MaxRetries:  c.MaxRetries,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		IsRetryable: retry.IsRetryable,
	}
	if c.RetryRateLimited {
		p.IsRetryable = retry.RetryRateLimited(retry.IsRetryable)
	}
	return p
}
