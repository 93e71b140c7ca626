package config

import (
	"errors"
	"net/url"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type AggregatorConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAccounts int

	// QuoteTTL bounds how long a quote is served from the cache.
	QuoteTTL time.Duration
	// CacheMaxEntries caps the quote cache; the oldest entry is evicted first.
	CacheMaxEntries int
	// AmountSigDigits rounds cache keys to this many significant digits.
	// 0 keys on the exact amount.
	AmountSigDigits int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryJitter      float64
}

func (c *AggregatorConfig) Key() string {
	return AGGREGATOR_CONFIG_KEY
}

func (c *AggregatorConfig) Load() error {
	c.BaseURL = common.GetEnvOrDefault("AGGREGATOR_BASE_URL", "https://lite-api.jup.ag/swap/v1")
	c.APIKey = common.GetEnvOrDefault("AGGREGATOR_API_KEY", "")
	c.Timeout = getEnvMillis("AGGREGATOR_TIMEOUT_MS", 2000)
	c.MaxAccounts = common.GetEnvOrDefaultInt("AGGREGATOR_MAX_ACCOUNTS", 48)
	c.QuoteTTL = getEnvMillis("QUOTE_TTL_MS", 10000)
	c.CacheMaxEntries = common.GetEnvOrDefaultInt("QUOTE_CACHE_MAX_ENTRIES", 10000)
	c.AmountSigDigits = common.GetEnvOrDefaultInt("QUOTE_AMOUNT_SIG_DIGITS", 0)
	c.RetryMaxAttempts = common.GetEnvOrDefaultInt("RETRY_MAX_ATTEMPTS", 3)
	c.RetryBaseDelay = getEnvMillis("RETRY_BASE_DELAY_MS", 200)

	jitter, err := getEnvFloat("RETRY_JITTER", 0.2)
	if err != nil {
		return err
	}
	c.RetryJitter = jitter
	return c.Validate()
}

func (c *AggregatorConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("invalid aggregator config: AGGREGATOR_BASE_URL must be an absolute URL")
	}
	if c.Timeout <= 0 || c.QuoteTTL <= 0 {
		return errors.New("invalid aggregator config: timeouts must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return errors.New("invalid aggregator config: RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("invalid aggregator config: RETRY_JITTER must be within [0, 1]")
	}
	if c.AmountSigDigits < 0 || c.CacheMaxEntries < 0 || c.MaxAccounts < 0 {
		return errors.New("invalid aggregator config: negative limit")
	}
	return nil
}
