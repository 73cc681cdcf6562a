/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"
	"strconv"
	"time"

	"github.com/acronis/go-throttlekit/config"
)

const cfgDefaultKeyPrefix = "throttling"

const (
	cfgKeyDisabled         = "disabled"
	cfgKeyDryRun           = "dryRun"
	cfgKeyRulesFile        = "rulesFile"
	cfgKeyDefaultInterval  = "defaultInterval"
	cfgKeyDefaultLimit     = "defaultLimit"
	cfgKeyRules            = "rules"
	cfgKeyCounterAlg       = "counter.alg"
	cfgKeyCounterMaxScopes = "counter.maxScopes"
	cfgKeyReloadInterval   = "reload.interval"
)

const (
	defaultCounterAlg = CounterAlgSlidingLog
	minReloadInterval = time.Second
)

// Config represents the throttling section of the application configuration.
type Config struct {
	// Disabled switches throttling off globally.
	Disabled bool `mapstructure:"disabled" yaml:"disabled" json:"disabled"`

	// DryRun makes the HTTP layer serve requests exceeding the limit anyway, exceeding is only logged.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	// RulesFile is a path to the .properties file with throttling.* rules.
	RulesFile string `mapstructure:"rulesFile" yaml:"rulesFile" json:"rulesFile"`

	// DefaultInterval and DefaultLimit override the default rule. Zero means not set.
	DefaultInterval int `mapstructure:"defaultInterval" yaml:"defaultInterval" json:"defaultInterval"`
	DefaultLimit    int `mapstructure:"defaultLimit" yaml:"defaultLimit" json:"defaultLimit"`

	// Rules are inline rules. They are applied after the rules file and override its rules for the same scope.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

	Counter CounterConfig `mapstructure:"counter" yaml:"counter" json:"counter"`
	Reload  ReloadConfig  `mapstructure:"reload" yaml:"reload" json:"reload"`

	keyPrefix string
}

// RuleConfig is an inline throttling rule. Interval may be omitted, then the default interval is used.
type RuleConfig struct {
	SourceSystem string `mapstructure:"sourceSystem" yaml:"sourceSystem" json:"sourceSystem"`
	ServiceName  string `mapstructure:"serviceName" yaml:"serviceName" json:"serviceName"`
	Limit        int    `mapstructure:"limit" yaml:"limit" json:"limit"`
	Interval     int    `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// CounterConfig configures the counting algorithm.
type CounterConfig struct {
	Alg       CounterAlg `mapstructure:"alg" yaml:"alg" json:"alg"`
	MaxScopes int        `mapstructure:"maxScopes" yaml:"maxScopes" json:"maxScopes"`
}

// ReloadConfig configures periodic re-reading of the rules file. Zero interval disables reloading.
type ReloadConfig struct {
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// Key prefix is "throttling" if keyPrefix is empty.
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Counter: CounterConfig{Alg: defaultCounterAlg, MaxScopes: DefaultMaxScopes},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyDisabled, false)
	dp.SetDefault(cfgKeyDryRun, false)
	dp.SetDefault(cfgKeyCounterAlg, string(defaultCounterAlg))
	dp.SetDefault(cfgKeyCounterMaxScopes, DefaultMaxScopes)
	dp.SetDefault(cfgKeyReloadInterval, "0s")
}

// Set sets throttling configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Disabled, err = dp.GetBool(cfgKeyDisabled); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}
	if c.RulesFile, err = dp.GetString(cfgKeyRulesFile); err != nil {
		return err
	}
	if c.DefaultInterval, err = getNonNegativeInt(dp, cfgKeyDefaultInterval); err != nil {
		return err
	}
	if c.DefaultLimit, err = getNonNegativeInt(dp, cfgKeyDefaultLimit); err != nil {
		return err
	}

	c.Rules = nil
	if err = dp.UnmarshalKey(cfgKeyRules, &c.Rules); err != nil {
		return err
	}
	for i, rule := range c.Rules {
		if rule.SourceSystem == "" || rule.ServiceName == "" {
			return dp.WrapKeyErr(cfgKeyRules, fmt.Errorf(
				"rule #%d: sourceSystem and serviceName must be set (use %q for any)", i, Wildcard))
		}
		if rule.Limit <= 0 || rule.Interval < 0 {
			return dp.WrapKeyErr(cfgKeyRules, fmt.Errorf(
				"rule #%d: limit must be positive and interval must be non-negative", i))
		}
	}

	var alg string
	if alg, err = dp.GetStringFromSet(cfgKeyCounterAlg,
		[]string{string(CounterAlgSlidingLog), string(CounterAlgSlidingWindow)}, false); err != nil {
		return err
	}
	c.Counter.Alg = CounterAlg(alg)
	if c.Counter.MaxScopes, err = dp.GetInt(cfgKeyCounterMaxScopes); err != nil {
		return err
	}
	if c.Counter.MaxScopes <= 0 {
		return dp.WrapKeyErr(cfgKeyCounterMaxScopes, fmt.Errorf("must be positive"))
	}

	var reloadInterval time.Duration
	if reloadInterval, err = dp.GetDuration(cfgKeyReloadInterval); err != nil {
		return err
	}
	if reloadInterval != 0 && reloadInterval < minReloadInterval {
		return dp.WrapKeyErr(cfgKeyReloadInterval, fmt.Errorf("must be 0 (disabled) or >= %s", minReloadInterval))
	}
	c.Reload.Interval = config.TimeDuration(reloadInterval)
	return nil
}

// LoadConfiguration builds the throttling configuration: rules from the rules file (if any)
// are merged with the inline rules and default overrides, then validated as a whole.
func LoadConfiguration(cfg *Config) (*Configuration, error) {
	props := map[string]string{}
	if cfg.RulesFile != "" {
		var err error
		if props, err = LoadPropertiesFile(cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultInterval > 0 {
		props[PropertyKeyDefaultInterval] = strconv.Itoa(cfg.DefaultInterval)
	}
	if cfg.DefaultLimit > 0 {
		props[PropertyKeyDefaultLimit] = strconv.Itoa(cfg.DefaultLimit)
	}
	for _, rule := range cfg.Rules {
		value := strconv.Itoa(rule.Limit)
		if rule.Interval > 0 {
			value += propsValueSeparator + strconv.Itoa(rule.Interval)
		}
		props[PropertyPrefix+rule.SourceSystem+propertyKeySeparator+rule.ServiceName] = value
	}
	return NewConfigurationFromProperties(props, WithDisabled(cfg.Disabled))
}

func getNonNegativeInt(dp config.DataProvider, key string) (int, error) {
	n, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("must be non-negative"))
	}
	return n, nil
}
