package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "https://api.usepylon.com"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 30 * time.Second
	DefaultPageSize       = 100
	DefaultPageDelay      = 500 * time.Millisecond
	DefaultUserAgent      = "go-pylon"

	DefaultWebhookTolerance = 5 * time.Minute
)

type WebhookConfig struct {
	Secret           string        `koanf:"secret" mapstructure:"secret"`
	Tolerance        time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
	SkipVerification bool          `koanf:"skip_verification" mapstructure:"skip_verification"`
}

type Config struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	APIKey         string        `koanf:"api_key" mapstructure:"api_key"`
	UserAgent      string        `koanf:"user_agent" mapstructure:"user_agent"`
	Timeout        time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxRetries     int           `koanf:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay" mapstructure:"retry_max_delay"`
	PageSize       int           `koanf:"page_size" mapstructure:"page_size"`
	PageDelay      time.Duration `koanf:"page_delay" mapstructure:"page_delay"`
	Webhooks       WebhookConfig `koanf:"webhooks" mapstructure:"webhooks"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      DefaultUserAgent,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
		RetryMaxDelay:  DefaultRetryMaxDelay,
		PageSize:       DefaultPageSize,
		PageDelay:      DefaultPageDelay,
		Webhooks: WebhookConfig{
			Tolerance: DefaultWebhookTolerance,
		},
	}
}

func (c Config) Validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return fmt.Errorf("core: base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: base_url %q is not an absolute url", base)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("core: max_retries must not be negative")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("core: page_size must not be negative")
	}
	if c.Timeout < 0 || c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 || c.PageDelay < 0 {
		return fmt.Errorf("core: durations must not be negative")
	}
	if c.Webhooks.Tolerance < 0 {
		return fmt.Errorf("core: webhooks.tolerance must not be negative")
	}
	return nil
}
