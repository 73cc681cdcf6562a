/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads application settings (YAML/JSON files, environment variables)
// into configuration objects through a DataProvider abstraction backed by viper.
//
// A configuration object sets its defaults and then reads its values:
//
//	func (c *Config) SetProviderDefaults(dp config.DataProvider) {
//		dp.SetDefault("address", ":8080")
//	}
//
//	func (c *Config) Set(dp config.DataProvider) (err error) {
//		c.Address, err = dp.GetString("address")
//		return err
//	}
package config

// Config is a configuration object that Loader can fill.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects whose keys live under a common prefix
// (e.g. "server" for server.address). Such objects get a KeyPrefixedDataProvider.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
