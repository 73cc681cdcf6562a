/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a number of bytes. In configuration files it may be written as a plain number
// or as a human-readable string: "250M", "1G", or with Kubernetes suffixes ("512Mi").
type ByteSize uint64

// ParseByteSize parses a plain number or a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if num, err := strconv.ParseInt(v, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative byte size %d", num)
		}
		return ByteSize(num), nil
	}
	if strings.HasSuffix(v, "i") { // Kubernetes power-of-two suffixes (Ki, Mi, Gi...) mean the same for bytefmt.
		v = strings.TrimSuffix(v, "i")
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(num), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (mapstructure.TextUnmarshallerHookFunc uses it).
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText(unquoteJSON(data))
}

// UnmarshalYAML accepts any scalar.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	text, err := yamlScalar(value)
	if err != nil {
		return err
	}
	return b.UnmarshalText(text)
}

// String returns the human-readable size.
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON encodes the human-readable size.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML encodes the human-readable size.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// TimeDuration is a time.Duration that may be written as "1h30m" or as a number of nanoseconds
// in configuration files.
type TimeDuration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler (mapstructure.TextUnmarshallerHookFunc uses it).
func (d *TimeDuration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative duration %d", num)
		}
		*d = TimeDuration(num)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.UnmarshalText(unquoteJSON(data))
}

// UnmarshalYAML accepts any scalar.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	text, err := yamlScalar(value)
	if err != nil {
		return err
	}
	return d.UnmarshalText(text)
}

// String returns the duration in the time.Duration format.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a string.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML encodes the duration as a string.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func unquoteJSON(data []byte) []byte {
	return []byte(strings.Trim(string(data), `"`))
}

func yamlScalar(value *yaml.Node) ([]byte, error) {
	if value.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: scalar value is expected", value.Line)
	}
	return []byte(value.Value), nil
}
