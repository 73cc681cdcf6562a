/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testServerConfigYAML = `
server:
  address: ":9090"
  timeout: 5s
throttling:
  counter:
    alg: sliding_window
`

type testServerConfig struct {
	Address string
	Timeout time.Duration
}

func (c *testServerConfig) KeyPrefix() string {
	return "server"
}

func (c *testServerConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("address", ":8080")
	dp.SetDefault("timeout", "30s")
}

func (c *testServerConfig) Set(dp DataProvider) error {
	var err error
	if c.Address, err = dp.GetString("address"); err != nil {
		return err
	}
	c.Timeout, err = dp.GetDuration("timeout")
	return err
}

type testCounterConfig struct {
	Alg string
}

func (c *testCounterConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("throttling.counter.alg", "sliding_log")
}

func (c *testCounterConfig) Set(dp DataProvider) error {
	var err error
	c.Alg, err = dp.GetStringFromSet("throttling.counter.alg", []string{"sliding_log", "sliding_window"}, true)
	return err
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		srvCfg := &testServerConfig{}
		cntCfg := &testCounterConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, srvCfg, cntCfg)
		require.NoError(t, err)
		require.Equal(t, ":8080", srvCfg.Address)
		require.Equal(t, 30*time.Second, srvCfg.Timeout)
		require.Equal(t, "sliding_log", cntCfg.Alg)
	})

	t.Run("values from yaml", func(t *testing.T) {
		srvCfg := &testServerConfig{}
		cntCfg := &testCounterConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(testServerConfigYAML), DataTypeYAML, srvCfg, cntCfg)
		require.NoError(t, err)
		require.Equal(t, ":9090", srvCfg.Address)
		require.Equal(t, 5*time.Second, srvCfg.Timeout)
		require.Equal(t, "sliding_window", cntCfg.Alg)
	})

	t.Run("value out of set", func(t *testing.T) {
		cntCfg := &testCounterConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"throttling":{"counter":{"alg":"token_bucket"}}}`), DataTypeJSON, cntCfg)
		require.EqualError(t, err,
			`throttling.counter.alg: unknown value "token_bucket", should be one of [sliding_log sliding_window]`)
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testServerConfigYAML), 0o600))

	srvCfg := &testServerConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(cfgPath, DataTypeYAML, srvCfg))
	require.Equal(t, ":9090", srvCfg.Address)

	err := NewLoader(NewViperAdapter()).LoadFromFile(filepath.Join(t.TempDir(), "missing.yml"), DataTypeYAML, srvCfg)
	require.Error(t, err)
}

func TestLoader_LoadWithEnvVars(t *testing.T) {
	t.Setenv("THROTTLED_SERVER_ADDRESS", ":7070")

	srvCfg := &testServerConfig{}
	require.NoError(t, NewDefaultLoader("throttled").Load(srvCfg))
	require.Equal(t, ":7070", srvCfg.Address)
	require.Equal(t, 30*time.Second, srvCfg.Timeout)
}
