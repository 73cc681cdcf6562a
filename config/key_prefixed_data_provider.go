/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"time"
)

// KeyPrefixedDataProvider is a DataProvider that reads keys under the prefix of another DataProvider.
// Prefixed providers may be nested: "http" inside "throttleClient" reads "throttleClient.http.*".
type KeyPrefixedDataProvider struct {
	DataProvider
	keyPrefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{DataProvider: delegate, keyPrefix: keyPrefix}
}

func (kp *KeyPrefixedDataProvider) fullKey(key string) string {
	switch {
	case kp.keyPrefix == "":
		return key
	case key == "":
		return kp.keyPrefix
	}
	return kp.keyPrefix + "." + key
}

// Set overrides the value of the prefixed key.
func (kp *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	kp.DataProvider.Set(kp.fullKey(key), value)
}

// SetDefault sets the default value of the prefixed key.
func (kp *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	kp.DataProvider.SetDefault(kp.fullKey(key), value)
}

// Get returns the raw value of the prefixed key.
func (kp *KeyPrefixedDataProvider) Get(key string) interface{} {
	return kp.DataProvider.Get(kp.fullKey(key))
}

// GetBool returns the value of the prefixed key as a bool.
func (kp *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return kp.DataProvider.GetBool(kp.fullKey(key))
}

// GetInt returns the value of the prefixed key as an int.
func (kp *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return kp.DataProvider.GetInt(kp.fullKey(key))
}

// GetFloat64 returns the value of the prefixed key as a float64.
func (kp *KeyPrefixedDataProvider) GetFloat64(key string) (float64, error) {
	return kp.DataProvider.GetFloat64(kp.fullKey(key))
}

// GetString returns the value of the prefixed key as a string.
func (kp *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return kp.DataProvider.GetString(kp.fullKey(key))
}

// GetStringFromSet returns the value of the prefixed key if it's one of the set.
func (kp *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return kp.DataProvider.GetStringFromSet(kp.fullKey(key), set, ignoreCase)
}

// GetStringSlice returns the value of the prefixed key as a slice of strings.
func (kp *KeyPrefixedDataProvider) GetStringSlice(key string) ([]string, error) {
	return kp.DataProvider.GetStringSlice(kp.fullKey(key))
}

// GetDuration returns the value of the prefixed key as a duration.
func (kp *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return kp.DataProvider.GetDuration(kp.fullKey(key))
}

// GetSizeInBytes returns the value of the prefixed key as a number of bytes.
func (kp *KeyPrefixedDataProvider) GetSizeInBytes(key string) (uint64, error) {
	return kp.DataProvider.GetSizeInBytes(kp.fullKey(key))
}

// UnmarshalKey decodes the subtree of the prefixed key into rawVal.
func (kp *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return kp.DataProvider.UnmarshalKey(kp.fullKey(key), rawVal, opts...)
}

// WrapKeyErr binds err to the full key, including prefixes of all nested providers.
func (kp *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return kp.DataProvider.WrapKeyErr(kp.fullKey(key), err)
}
