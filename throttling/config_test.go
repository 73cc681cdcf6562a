/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/config"
)

const testRulesProperties = `
# rules of the CRM integration
throttling.defaultInterval = 30
throttling.defaultLimit = 100
throttling.crm.setActivityExt = 10/15
throttling.*.setActivityExt = 50
other.property = ignored
`

func loadTestConfig(t *testing.T, yamlData string) (*Config, error) {
	t.Helper()
	cfg := NewConfig("")
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(yamlData), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig_Set(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadTestConfig(t, `{}`)
		require.NoError(t, err)
		require.Equal(t, CounterConfig{Alg: CounterAlgSlidingLog, MaxScopes: DefaultMaxScopes}, cfg.Counter)
		require.False(t, cfg.Disabled)
		require.False(t, cfg.DryRun)
		require.Empty(t, cfg.Rules)
		require.Zero(t, cfg.Reload.Interval)
	})

	t.Run("all values", func(t *testing.T) {
		cfg, err := loadTestConfig(t, `
throttling:
  disabled: true
  dryRun: true
  rulesFile: /etc/throttled/rules.properties
  defaultLimit: 120
  rules:
    - sourceSystem: CRM
      serviceName: setActivityExt
      limit: 5
      interval: 10
    - sourceSystem: "*"
      serviceName: getUser
      limit: 7
  counter:
    alg: sliding_window
    maxScopes: 500
  reload:
    interval: 30s
`)
		require.NoError(t, err)
		require.True(t, cfg.Disabled)
		require.True(t, cfg.DryRun)
		require.Equal(t, "/etc/throttled/rules.properties", cfg.RulesFile)
		require.Equal(t, 120, cfg.DefaultLimit)
		require.Zero(t, cfg.DefaultInterval)
		require.Equal(t, []RuleConfig{
			{SourceSystem: "CRM", ServiceName: "setActivityExt", Limit: 5, Interval: 10},
			{SourceSystem: "*", ServiceName: "getUser", Limit: 7},
		}, cfg.Rules)
		require.Equal(t, CounterConfig{Alg: CounterAlgSlidingWindow, MaxScopes: 500}, cfg.Counter)
		require.Equal(t, config.TimeDuration(30*time.Second), cfg.Reload.Interval)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			yaml    string
			wantErr string
		}{
			{
				yaml:    "throttling:\n  counter:\n    alg: fixed\n",
				wantErr: `throttling.counter.alg: unknown value "fixed", should be one of [sliding_log sliding_window]`,
			},
			{
				yaml:    "throttling:\n  counter:\n    maxScopes: 0\n",
				wantErr: "throttling.counter.maxScopes: must be positive",
			},
			{
				yaml:    "throttling:\n  reload:\n    interval: 10ms\n",
				wantErr: "throttling.reload.interval: must be 0 (disabled) or >= 1s",
			},
			{
				yaml:    "throttling:\n  defaultLimit: -1\n",
				wantErr: "throttling.defaultLimit: must be non-negative",
			},
			{
				yaml:    "throttling:\n  rules:\n    - serviceName: getUser\n      limit: 1\n",
				wantErr: `throttling.rules: rule #0: sourceSystem and serviceName must be set (use "*" for any)`,
			},
			{
				yaml:    "throttling:\n  rules:\n    - sourceSystem: crm\n      serviceName: getUser\n",
				wantErr: "throttling.rules: rule #0: limit must be positive and interval must be non-negative",
			},
		}
		for _, tt := range tests {
			_, err := loadTestConfig(t, tt.yaml)
			require.EqualError(t, err, tt.wantErr)
		}
	})
}

func TestLoadConfiguration(t *testing.T) {
	rulesFile := filepath.Join(t.TempDir(), "rules.properties")
	require.NoError(t, os.WriteFile(rulesFile, []byte(testRulesProperties), 0o600))

	cfg := NewDefaultConfig()
	cfg.RulesFile = rulesFile
	cfg.DefaultLimit = 200
	cfg.Rules = []RuleConfig{
		{SourceSystem: "crm", ServiceName: "setActivityExt", Limit: 3},
		{SourceSystem: "erp", ServiceName: "*", Limit: 1000, Interval: 3600},
	}

	throttlingCfg, err := LoadConfiguration(cfg)
	require.NoError(t, err)
	require.False(t, throttlingCfg.Disabled())
	require.Equal(t, []Rule{
		{Scope: ConcreteScope("crm", "setActivityExt"), Props: Props{Limit: 3, Interval: 30}},
		{Scope: NewScope("erp", "*"), Props: Props{Limit: 1000, Interval: 3600}},
		{Scope: NewScope("*", "setActivityExt"), Props: Props{Limit: 50, Interval: 30}},
		{Scope: AnyScope(), Props: Props{Limit: 200, Interval: 30}},
	}, throttlingCfg.Rules())

	t.Run("missing rules file", func(t *testing.T) {
		_, err := LoadConfiguration(&Config{RulesFile: filepath.Join(t.TempDir(), "missing.properties")})
		require.Error(t, err)
	})

	t.Run("malformed inline rule", func(t *testing.T) {
		_, err := LoadConfiguration(&Config{Rules: []RuleConfig{{SourceSystem: "crm.v2", ServiceName: "x", Limit: 1}}})
		require.ErrorIs(t, err, ErrConfig)
	})

	t.Run("disabled", func(t *testing.T) {
		throttlingCfg, err := LoadConfiguration(&Config{Disabled: true})
		require.NoError(t, err)
		require.True(t, throttlingCfg.Disabled())
	})
}

func TestParseProperties(t *testing.T) {
	props, err := ParseProperties(testRulesProperties)
	require.NoError(t, err)
	require.Equal(t, "10/15", props["throttling.crm.setActivityExt"])
	require.Equal(t, "50", props["throttling.*.setActivityExt"])
	require.Len(t, props, 5)
}
