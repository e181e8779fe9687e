// Package config loads the settings of a process hosting a JWKS fetcher
// from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opstrace/go-jwks-fetcher/internal/oidc"
	"github.com/opstrace/go-jwks-fetcher/jwks"
)

// Log formats accepted in JWKS_LOG_FORMAT.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config holds the process settings. Defaults match jwks.DefaultTimeoutBudget
// and jwks.DefaultRetryPolicy.
type Config struct {
	// URL is the JWKS endpoint. When empty it is discovered from IssuerURL.
	URL       string `env:"JWKS_URL"`
	IssuerURL string `env:"JWKS_ISSUER_URL"`

	ConnectTimeout        time.Duration `env:"JWKS_CONNECT_TIMEOUT"         envDefault:"3400ms"`
	TLSHandshakeTimeout   time.Duration `env:"JWKS_TLS_HANDSHAKE_TIMEOUT"   envDefault:"2s"`
	RequestWriteTimeout   time.Duration `env:"JWKS_REQUEST_WRITE_TIMEOUT"   envDefault:"1s"`
	ResponseHeaderTimeout time.Duration `env:"JWKS_RESPONSE_HEADER_TIMEOUT" envDefault:"2500ms"`
	AttemptTimeout        time.Duration `env:"JWKS_ATTEMPT_TIMEOUT"         envDefault:"8500ms"`

	MaxAttempts      int           `env:"JWKS_MAX_ATTEMPTS"       envDefault:"3"`
	RetryStatusCodes []int         `env:"JWKS_RETRY_STATUS_CODES" envDefault:"408,413,429,500,502,503,504,521,522,524" envSeparator:","`
	MaxRetryAfter    time.Duration `env:"JWKS_MAX_RETRY_AFTER"    envDefault:"45s"`
	RetryWaitMin     time.Duration `env:"JWKS_RETRY_WAIT_MIN"     envDefault:"250ms"`
	RetryWaitMax     time.Duration `env:"JWKS_RETRY_WAIT_MAX"     envDefault:"2s"`

	MaxResponseBytes int64 `env:"JWKS_MAX_RESPONSE_BYTES" envDefault:"1048576"`
	Prepopulate      bool  `env:"JWKS_PREPOPULATE"        envDefault:"true"`

	LogLevel   string `env:"JWKS_LOG_LEVEL"   envDefault:"info"`
	LogFormat  string `env:"JWKS_LOG_FORMAT"  envDefault:"json"`
	ListenAddr string `env:"JWKS_LISTEN_ADDR" envDefault:":8080"`
}

// FromEnv parses the process environment and validates the result.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("could not parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// FromMap is FromEnv with the variables taken from environ instead of
// the process environment.
func FromMap(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return Config{}, fmt.Errorf("could not parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.URL == "" && c.IssuerURL == "":
		errs = append(errs, errors.New("one of JWKS_URL or JWKS_ISSUER_URL is required"))
	case c.URL != "":
		errs = append(errs, validateURL("JWKS_URL", c.URL))
	default:
		errs = append(errs, validateURL("JWKS_ISSUER_URL", c.IssuerURL))
	}

	if c.ConnectTimeout < 0 || c.TLSHandshakeTimeout < 0 || c.RequestWriteTimeout < 0 ||
		c.ResponseHeaderTimeout < 0 || c.AttemptTimeout < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, code := range c.RetryStatusCodes {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Errorf("JWKS_RETRY_STATUS_CODES: %d is not an HTTP status", code))
		}
	}
	if c.MaxResponseBytes <= 0 {
		errs = append(errs, errors.New("JWKS_MAX_RESPONSE_BYTES must be positive"))
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("JWKS_LOG_LEVEL: %w", err))
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		errs = append(errs, fmt.Errorf("JWKS_LOG_FORMAT must be %q or %q, got %q", LogFormatJSON, LogFormatConsole, c.LogFormat))
	}

	return errors.Join(errs...)
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}

// TimeoutBudget returns the per-attempt timeouts.
func (c Config) TimeoutBudget() jwks.TimeoutBudget {
	return jwks.TimeoutBudget{
		Connect:        c.ConnectTimeout,
		TLSHandshake:   c.TLSHandshakeTimeout,
		RequestWrite:   c.RequestWriteTimeout,
		ResponseHeader: c.ResponseHeaderTimeout,
		Attempt:        c.AttemptTimeout,
	}
}

// RetryPolicy returns the retry policy.
func (c Config) RetryPolicy() jwks.RetryPolicy {
	return jwks.RetryPolicy{
		MaxAttempts:   c.MaxAttempts,
		StatusCodes:   c.RetryStatusCodes,
		MaxRetryAfter: c.MaxRetryAfter,
		WaitMin:       c.RetryWaitMin,
		WaitMax:       c.RetryWaitMax,
	}
}

// FetcherOptions returns the jwks options that carry this configuration.
func (c Config) FetcherOptions() []jwks.Option {
	return []jwks.Option{
		jwks.WithTimeoutBudget(c.TimeoutBudget()),
		jwks.WithRetryPolicy(c.RetryPolicy()),
		jwks.WithMaxResponseBytes(c.MaxResponseBytes),
	}
}

// NewLogger builds a zap logger for the configured level and format.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("JWKS_LOG_LEVEL: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if c.LogFormat == LogFormatConsole {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// ResolveURL returns the JWKS URL, discovering it from the issuer's OIDC
// configuration when no URL is set. client is used for discovery only.
func (c Config) ResolveURL(ctx context.Context, client *http.Client) (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}

	issuerURL, err := url.Parse(c.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("could not parse JWKS_ISSUER_URL: %w", err)
	}

	endpoints, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, client, *issuerURL, c.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("could not discover JWKS URL: %w", err)
	}
	return endpoints.JWKSURI, nil
}
