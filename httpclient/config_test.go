/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/config"
	"github.com/acronis/go-throttlekit/retry"
)

func loadConfig(t *testing.T, cfgData string) (*Config, error) {
	t.Helper()
	cfg := NewConfig("")
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(t, "")
		require.NoError(t, err)
		wantCfg := NewDefaultConfig()
		wantCfg.keyPrefix = ""
		wantCfg.RateLimits = RateLimitsConfig{}
		require.Equal(t, wantCfg, cfg)
	})

	t.Run("all values", func(t *testing.T) {
		cfg, err := loadConfig(t, `
httpClient:
  timeout: 3s
  retries:
    enabled: true
    maxAttempts: 5
    policy:
      strategy: constant
      interval: 250ms
  rateLimits:
    enabled: true
    limit: 100
    burst: 10
    waitTimeout: 1s
  log:
    enabled: true
    mode: all
    slowRequestThreshold: 500ms
  metrics:
    enabled: true
`)
		require.NoError(t, err)
		require.Equal(t, config.TimeDuration(3*time.Second), cfg.Timeout)
		require.Equal(t, RetriesConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Policy: RetryPolicyConfig{
				Strategy:   retry.StrategyConstant,
				Interval:   config.TimeDuration(250 * time.Millisecond),
				Multiplier: retry.DefaultExponentialMultiplier,
			},
		}, cfg.Retries)
		require.Equal(t, RateLimitsConfig{
			Enabled: true, Limit: 100, Burst: 10, WaitTimeout: config.TimeDuration(time.Second),
		}, cfg.RateLimits)
		require.Equal(t, LogConfig{
			Enabled: true, Mode: LoggingModeAll, SlowRequestThreshold: config.TimeDuration(500 * time.Millisecond),
		}, cfg.Log)
		require.True(t, cfg.Metrics.Enabled)

		policy, err := cfg.Retries.BackoffPolicy()
		require.NoError(t, err)
		require.Equal(t, retry.ConstantBackoffPolicy{Interval: 250 * time.Millisecond, MaxAttempts: 5}, policy)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			cfgData string
			wantErr string
		}{
			{
				name:    "negative timeout",
				cfgData: "httpClient:\n  timeout: -1s\n",
				wantErr: "httpClient.timeout: must be non-negative",
			},
			{
				name:    "unknown retry strategy",
				cfgData: "httpClient:\n  retries:\n    policy:\n      strategy: linear\n",
				wantErr: `httpClient.retries.policy.strategy: unknown value "linear", should be one of [exponential constant]`,
			},
			{
				name:    "small multiplier",
				cfgData: "httpClient:\n  retries:\n    policy:\n      multiplier: 1\n",
				wantErr: "httpClient.retries.policy.multiplier: must be greater than 1",
			},
			{
				name:    "rate limit without limit",
				cfgData: "httpClient:\n  rateLimits:\n    enabled: true\n",
				wantErr: "httpClient.rateLimits.limit: must be positive",
			},
			{
				name:    "unknown log mode",
				cfgData: "httpClient:\n  log:\n    mode: none\n",
				wantErr: `httpClient.log.mode: unknown value "none", should be one of [all failed]`,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := loadConfig(t, tt.cfgData)
				require.EqualError(t, err, tt.wantErr)
			})
		}
	})
}
