/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttleclient

import (
	"fmt"
	"net/url"

	"github.com/acronis/go-throttlekit/config"
	"github.com/acronis/go-throttlekit/httpclient"
)

const cfgDefaultKeyPrefix = "throttleClient"

const (
	cfgKeyURL        = "url"
	cfgKeyHTTPPrefix = "http"
)

const defaultURL = "http://127.0.0.1:8080"

// Config represents a set of configuration parameters for the throttling daemon client.
// HTTP transport parameters are nested under the "http" key (e.g. throttleClient.http.timeout).
type Config struct {
	// URL is the base URL of the throttling daemon.
	URL  string             `mapstructure:"url" yaml:"url" json:"url"`
	HTTP *httpclient.Config `mapstructure:"http" yaml:"http" json:"http"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
// Key prefix is "throttleClient" if keyPrefix is empty.
func NewConfig(keyPrefix string) *Config {
	return &Config{HTTP: httpclient.NewConfig(""), keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{URL: defaultURL, HTTP: httpclient.NewDefaultConfig()}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the client in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyURL, defaultURL)
	if c.HTTP == nil {
		c.HTTP = httpclient.NewConfig("")
	}
	c.HTTP.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyHTTPPrefix))
}

// Set sets the client configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	rawURL, err := dp.GetString(cfgKeyURL)
	if err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyURL, fmt.Errorf("must be an absolute http(s) URL"))
	}
	c.URL = rawURL
	if c.HTTP == nil {
		c.HTTP = httpclient.NewConfig("")
	}
	return c.HTTP.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyHTTPPrefix))
}
