/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/go-throttlekit/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress                 = "address"
	cfgKeyUnixSocketPath          = "unixSocketPath"
	cfgKeyTLSEnabled              = "tls.enabled"
	cfgKeyTLSCert                 = "tls.cert"
	cfgKeyTLSKey                  = "tls.key"
	cfgKeyTimeoutsWrite           = "timeouts.write"
	cfgKeyTimeoutsRead            = "timeouts.read"
	cfgKeyTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyTimeoutsIdle            = "timeouts.idle"
	cfgKeyTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogRequestHeaders       = "log.requestHeaders"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogAddRequestInfo       = "log.addRequestInfo"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
)

// Defaults. Throttle requests carry two short strings, so the body limit is small.
const (
	DefaultAddress              = ":8080"
	DefaultMaxBodySize          = 1024
	DefaultWriteTimeout         = time.Minute
	DefaultReadTimeout          = 15 * time.Second
	DefaultReadHeaderTimeout    = 10 * time.Second
	DefaultIdleTimeout          = time.Minute
	DefaultShutdownTimeout      = 5 * time.Second
	DefaultSlowRequestThreshold = time.Second
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	// Address is a TCP address to listen on. UnixSocketPath takes precedence if both are set.
	Address        string         `mapstructure:"address" yaml:"address" json:"address"`
	UnixSocketPath string         `mapstructure:"unixSocketPath" yaml:"unixSocketPath" json:"unixSocketPath"`
	Timeouts       TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits         LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log            LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS            TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`

	keyPrefix string
}

// TimeoutsConfig contains timeouts of http.Server and the graceful shutdown timeout.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// LimitsConfig contains limits of incoming requests.
type LimitsConfig struct {
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// LogConfig contains parameters of request logging.
type LogConfig struct {
	RequestStart bool `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	// RequestHeaders are logged as req_header_<name> fields (e.g. req_header_x_source_system).
	RequestHeaders         []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	AddRequestInfoToLogger bool                `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
	SlowRequestThreshold   config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// TLSConfig contains the certificate and key files for serving HTTPS.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// Key prefix is "server" if keyPrefix is empty.
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Address: DefaultAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(DefaultWriteTimeout),
			Read:       config.TimeDuration(DefaultReadTimeout),
			ReadHeader: config.TimeDuration(DefaultReadHeaderTimeout),
			Idle:       config.TimeDuration(DefaultIdleTimeout),
			Shutdown:   config.TimeDuration(DefaultShutdownTimeout),
		},
		Limits: LimitsConfig{MaxBodySize: DefaultMaxBodySize},
		Log:    LogConfig{SlowRequestThreshold: config.TimeDuration(DefaultSlowRequestThreshold)},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	def := NewDefaultConfig()
	dp.SetDefault(cfgKeyAddress, def.Address)
	dp.SetDefault(cfgKeyTimeoutsWrite, time.Duration(def.Timeouts.Write))
	dp.SetDefault(cfgKeyTimeoutsRead, time.Duration(def.Timeouts.Read))
	dp.SetDefault(cfgKeyTimeoutsReadHeader, time.Duration(def.Timeouts.ReadHeader))
	dp.SetDefault(cfgKeyTimeoutsIdle, time.Duration(def.Timeouts.Idle))
	dp.SetDefault(cfgKeyTimeoutsShutdown, time.Duration(def.Timeouts.Shutdown))
	dp.SetDefault(cfgKeyLimitsMaxBodySize, def.Limits.MaxBodySize.String())
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, time.Duration(def.Log.SlowRequestThreshold))
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.UnixSocketPath, err = dp.GetString(cfgKeyUnixSocketPath); err != nil {
		return err
	}
	if c.Address == "" && c.UnixSocketPath == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("either address or unixSocketPath should be set"))
	}
	if err = c.setTLS(dp); err != nil {
		return err
	}
	if err = c.setTimeouts(dp); err != nil {
		return err
	}

	maxBodySize, err := dp.GetSizeInBytes(cfgKeyLimitsMaxBodySize)
	if err != nil {
		return err
	}
	if maxBodySize == 0 {
		return dp.WrapKeyErr(cfgKeyLimitsMaxBodySize, fmt.Errorf("must be positive"))
	}
	c.Limits.MaxBodySize = config.ByteSize(maxBodySize)

	return c.setLog(dp)
}

func (c *Config) setTLS(dp config.DataProvider) error {
	var err error
	if c.TLS.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if c.TLS.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if c.TLS.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if c.TLS.Enabled && (c.TLS.Certificate == "" || c.TLS.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, fmt.Errorf("both cert and key should be set"))
	}
	return nil
}

func (c *Config) setTimeouts(dp config.DataProvider) error {
	timeouts := map[string]*config.TimeDuration{
		cfgKeyTimeoutsWrite:      &c.Timeouts.Write,
		cfgKeyTimeoutsRead:       &c.Timeouts.Read,
		cfgKeyTimeoutsReadHeader: &c.Timeouts.ReadHeader,
		cfgKeyTimeoutsIdle:       &c.Timeouts.Idle,
		cfgKeyTimeoutsShutdown:   &c.Timeouts.Shutdown,
	}
	for key, dst := range timeouts {
		dur, err := getNonNegativeDuration(dp, key)
		if err != nil {
			return err
		}
		*dst = config.TimeDuration(dur)
	}
	return nil
}

func (c *Config) setLog(dp config.DataProvider) error {
	var err error
	if c.Log.RequestStart, err = dp.GetBool(cfgKeyLogRequestStart); err != nil {
		return err
	}
	if c.Log.RequestHeaders, err = dp.GetStringSlice(cfgKeyLogRequestHeaders); err != nil {
		return err
	}
	if c.Log.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcludedEndpoints); err != nil {
		return err
	}
	if c.Log.AddRequestInfoToLogger, err = dp.GetBool(cfgKeyLogAddRequestInfo); err != nil {
		return err
	}
	threshold, err := getNonNegativeDuration(dp, cfgKeyLogSlowRequestThreshold)
	if err != nil {
		return err
	}
	c.Log.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

func getNonNegativeDuration(dp config.DataProvider, key string) (time.Duration, error) {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("must be non-negative"))
	}
	return dur, nil
}
