/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by viper.
// Viper folds keys to lower case, so values whose keys must keep their case
// (e.g. throttling rules) are read from a separate source.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper: viper.New()}
}

// UseEnvVars makes environment variables override the configuration.
// The variable name is the upper-cased prefix and key joined by "_" (THROTTLED_SERVER_ADDRESS for server.address).
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

// SetFromFile reads the configuration file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigFile(path)
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadInConfig()
}

// SetFromReader reads the configuration from reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// Set overrides the value of the key.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the value used when neither the configuration nor environment has the key.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// Get returns the raw value of the key.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

// GetBool returns the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return castValue(va, key, cast.ToBoolE)
}

// GetInt returns the value of the key as an int.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return castValue(va, key, cast.ToIntE)
}

// GetFloat64 returns the value of the key as a float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return castValue(va, key, cast.ToFloat64E)
}

// GetString returns the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return castValue(va, key, cast.ToStringE)
}

// GetStringFromSet returns the value of the key if it's one of the set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetStringSlice returns the value of the key as a slice of strings. A missing key gives nil.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castOptionalValue(va, key, cast.ToStringSliceE)
}

// GetDuration returns the value of the key as a duration ("1m30s", or nanoseconds). A missing key gives 0.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castOptionalValue(va, key, cast.ToDurationE)
}

// GetSizeInBytes returns the value of the key as a number of bytes ("64K", "1Mi", or a plain number).
// A missing key gives 0.
func (va *ViperAdapter) GetSizeInBytes(key string) (uint64, error) {
	str, err := va.GetString(key)
	if err != nil || str == "" {
		return 0, err
	}
	size, err := ParseByteSize(str)
	if err != nil {
		return 0, WrapKeyErr(key, err)
	}
	return uint64(size), nil
}

// UnmarshalKey decodes the subtree of the key into rawVal with mapstructure.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	viperOpts := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		viperOpts = append(viperOpts, viper.DecoderConfigOption(opt))
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, viperOpts...))
}

// WrapKeyErr binds err to the key.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

func castValue[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	val, err := castFn(va.viper.Get(key))
	if err != nil {
		var zero T
		return zero, WrapKeyErr(key, err)
	}
	return val, nil
}

// castOptionalValue is castValue for types that cast can't produce from nil.
func castOptionalValue[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	if va.viper.Get(key) == nil {
		var zero T
		return zero, nil
	}
	return castValue(va, key, castFn)
}
