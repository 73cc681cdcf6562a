/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/acronis/go-throttlekit/config"
	"github.com/acronis/go-throttlekit/retry"
)

const cfgDefaultKeyPrefix = "httpClient"

const (
	cfgKeyTimeout                 = "timeout"
	cfgKeyRetriesEnabled          = "retries.enabled"
	cfgKeyRetriesMaxAttempts      = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy   = "retries.policy.strategy"
	cfgKeyRetriesPolicyInterval   = "retries.policy.interval"
	cfgKeyRetriesPolicyMultiplier = "retries.policy.multiplier"
	cfgKeyRateLimitsEnabled       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit         = "rateLimits.limit"
	cfgKeyRateLimitsBurst         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout   = "rateLimits.waitTimeout"
	cfgKeyLogEnabled              = "log.enabled"
	cfgKeyLogMode                 = "log.mode"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled          = "metrics.enabled"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultRetriesMaxAttempts   = 3
	defaultSlowRequestThreshold = time.Second
)

// Config represents a set of configuration parameters for the HTTP client used to call the throttling daemon.
type Config struct {
	// Timeout limits the whole call including retries and waiting for the client-side rate limiter.
	Timeout    config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Retries    RetriesConfig       `mapstructure:"retries" yaml:"retries" json:"retries"`
	RateLimits RateLimitsConfig    `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Log        LogConfig           `mapstructure:"log" yaml:"log" json:"log"`
	Metrics    MetricsConfig       `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RetriesConfig configures retrying of requests that failed transiently.
type RetriesConfig struct {
	Enabled     bool               `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts int                `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	Policy      RetryPolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// RetryPolicyConfig configures the backoff between retries.
// Interval is the initial interval for the exponential strategy and the only one for the constant strategy.
type RetryPolicyConfig struct {
	Strategy   string              `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	Interval   config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Multiplier float64             `mapstructure:"multiplier" yaml:"multiplier" json:"multiplier"`
}

// RateLimitsConfig configures client-side rate limiting of outgoing requests.
type RateLimitsConfig struct {
	Enabled     bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Limit       int                 `mapstructure:"limit" yaml:"limit" json:"limit"` // requests per second
	Burst       int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// LogConfig configures logging of outgoing requests.
type LogConfig struct {
	Enabled              bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Mode                 LoggingMode         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// MetricsConfig configures collecting of Prometheus metrics for outgoing requests.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// NewConfig creates a new instance of the Config.
// Key prefix is "httpClient" if keyPrefix is empty.
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Timeout: config.TimeDuration(defaultTimeout),
		Retries: RetriesConfig{
			Enabled:     true,
			MaxAttempts: defaultRetriesMaxAttempts,
			Policy: RetryPolicyConfig{
				Strategy:   retry.StrategyExponential,
				Interval:   config.TimeDuration(retry.DefaultExponentialInitialInterval),
				Multiplier: retry.DefaultExponentialMultiplier,
			},
		},
		RateLimits: RateLimitsConfig{
			Burst:       DefaultRateLimitingBurst,
			WaitTimeout: config.TimeDuration(DefaultRateLimitingWaitTimeout),
		},
		Log: LogConfig{
			Enabled:              true,
			Mode:                 LoggingModeFailed,
			SlowRequestThreshold: config.TimeDuration(defaultSlowRequestThreshold),
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the HTTP client in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, defaultTimeout)
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, defaultRetriesMaxAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, retry.StrategyExponential)
	dp.SetDefault(cfgKeyRetriesPolicyInterval, retry.DefaultExponentialInitialInterval)
	dp.SetDefault(cfgKeyRetriesPolicyMultiplier, retry.DefaultExponentialMultiplier)
	dp.SetDefault(cfgKeyRateLimitsEnabled, false)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyLogEnabled, true)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, defaultSlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, false)
}

// Set sets the HTTP client configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must be non-negative"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// Set sets retries configuration values from config.DataProvider.
func (r *RetriesConfig) Set(dp config.DataProvider) error {
	var err error
	if r.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if r.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if r.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("must be non-negative"))
	}
	if r.Policy.Strategy, err = dp.GetStringFromSet(cfgKeyRetriesPolicyStrategy,
		[]string{retry.StrategyExponential, retry.StrategyConstant}, false); err != nil {
		return err
	}
	interval, err := dp.GetDuration(cfgKeyRetriesPolicyInterval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyInterval, fmt.Errorf("must be positive"))
	}
	r.Policy.Interval = config.TimeDuration(interval)
	if r.Policy.Multiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyMultiplier); err != nil {
		return err
	}
	if r.Policy.Strategy == retry.StrategyExponential && r.Policy.Multiplier <= 1 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyMultiplier, fmt.Errorf("must be greater than 1"))
	}
	return nil
}

// BackoffPolicy returns the retry policy described by the configuration.
func (r *RetriesConfig) BackoffPolicy() (retry.Policy, error) {
	return retry.NewPolicy(r.Policy.Strategy, time.Duration(r.Policy.Interval), r.Policy.Multiplier, r.MaxAttempts)
}

// Set sets rate limits configuration values from config.DataProvider.
func (r *RateLimitsConfig) Set(dp config.DataProvider) error {
	var err error
	if r.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !r.Enabled {
		return nil
	}
	if r.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if r.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	if r.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if r.Burst <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("must be positive"))
	}
	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("must be non-negative"))
	}
	r.WaitTimeout = config.TimeDuration(waitTimeout)
	return nil
}

// Set sets log configuration values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if l.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	mode, err := dp.GetStringFromSet(cfgKeyLogMode,
		[]string{string(LoggingModeAll), string(LoggingModeFailed)}, false)
	if err != nil {
		return err
	}
	l.Mode = LoggingMode(mode)
	threshold, err := dp.GetDuration(cfgKeyLogSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, fmt.Errorf("must be non-negative"))
	}
	l.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}
