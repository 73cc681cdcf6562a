/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Keys of the flat configuration namespace.
const (
	PropertyPrefix             = "throttling."
	PropertyKeyDefaultInterval = PropertyPrefix + "defaultInterval"
	PropertyKeyDefaultLimit    = PropertyPrefix + "defaultLimit"
)

const propertyKeySeparator = "."

var errMalformedRuleKey = errors.New(
	"throttling property name must have exactly 3 non-empty parts, e.g. 'throttling.crm.setActivityExt'")

// Rule is a configured (scope, limit, interval) triple.
type Rule struct {
	Scope Scope
	Props Props
}

// Configuration is an immutable snapshot of throttling rules.
// It is safe for concurrent use.
type Configuration struct {
	rules    map[Scope]Props
	disabled bool
}

// NewDisabledConfiguration returns a configuration with throttling disabled.
func NewDisabledConfiguration() *Configuration {
	return NewConfigurationBuilder().SetDisabled(true).Build()
}

// Disabled reports whether throttling is switched off globally.
func (c *Configuration) Disabled() bool {
	return c.disabled
}

// Resolve returns the props of the most specific rule matching the scope.
// It returns false if throttling is disabled or no rule matches.
func (c *Configuration) Resolve(scope Scope) (Props, bool) {
	rule, ok := c.ResolveRule(scope)
	return rule.Props, ok
}

// ResolveRule returns the most specific rule matching the scope. Priority is:
// exact (src, svc), then (src, *), then (*, svc), then the default (*, *).
func (c *Configuration) ResolveRule(scope Scope) (Rule, bool) {
	if c.disabled {
		return Rule{}, false
	}
	for _, candidate := range scope.candidates() {
		if props, ok := c.rules[candidate]; ok {
			return Rule{Scope: candidate, Props: props}, true
		}
	}
	return Rule{}, false
}

// DefaultProps returns the props of the (*, *) rule.
func (c *Configuration) DefaultProps() Props {
	return c.rules[AnyScope()]
}

// Rules returns all rules ordered from the most to the least specific, then by scope text.
func (c *Configuration) Rules() []Rule {
	rules := make([]Rule, 0, len(c.rules))
	for scope, props := range c.rules {
		rules = append(rules, Rule{Scope: scope, Props: props})
	}
	sort.Slice(rules, func(i, j int) bool {
		si, sj := rules[i].Scope.specificity(), rules[j].Scope.specificity()
		if si != sj {
			return si < sj
		}
		return rules[i].Scope.String() < rules[j].Scope.String()
	})
	return rules
}

// ConfigurationBuilder collects rules and produces an immutable Configuration.
// The default (*, *) rule is always present and starts with DefaultLimit and DefaultInterval.
type ConfigurationBuilder struct {
	rules    map[Scope]Props
	disabled bool
}

// NewConfigurationBuilder creates a new ConfigurationBuilder.
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{
		rules: map[Scope]Props{AnyScope(): {Limit: DefaultLimit, Interval: DefaultInterval}},
	}
}

// AddRule registers a rule for the exact (sourceSystem, serviceName) pair. "*" means a wildcard.
// Registering the same pair again overwrites the previous rule.
func (b *ConfigurationBuilder) AddRule(sourceSystem, serviceName string, interval, limit int) error {
	props, err := NewProps(limit, interval)
	if err != nil {
		return err
	}
	b.rules[NewScope(sourceSystem, serviceName)] = props
	return nil
}

// SetDisabled switches throttling off (or on) globally.
func (b *ConfigurationBuilder) SetDisabled(disabled bool) *ConfigurationBuilder {
	b.disabled = disabled
	return b
}

// Build returns the configuration snapshot. The builder may be reused afterwards.
func (b *ConfigurationBuilder) Build() *Configuration {
	rules := make(map[Scope]Props, len(b.rules))
	for scope, props := range b.rules {
		rules[scope] = props
	}
	return &Configuration{rules: rules, disabled: b.disabled}
}

// ConfigurationOption is a functional option for NewConfigurationFromProperties.
type ConfigurationOption func(b *ConfigurationBuilder)

// WithDisabled sets the global switch of the built configuration.
func WithDisabled(disabled bool) ConfigurationOption {
	return func(b *ConfigurationBuilder) {
		b.SetDisabled(disabled)
	}
}

// NewConfigurationFromProperties builds a configuration from a flat key/value namespace.
// Keys without the "throttling." prefix are ignored.
// The reserved keys throttling.defaultInterval and throttling.defaultLimit override the default rule,
// every other key must look like throttling.<sourceSystem|*>.<serviceName|*> with the "limit[/interval]" value.
// The first malformed key or value aborts building with a *ConfigError.
func NewConfigurationFromProperties(props map[string]string, opts ...ConfigurationOption) (*Configuration, error) {
	defaultInterval, err := parseReservedProperty(props, PropertyKeyDefaultInterval, DefaultInterval)
	if err != nil {
		return nil, err
	}
	defaultLimit, err := parseReservedProperty(props, PropertyKeyDefaultLimit, DefaultLimit)
	if err != nil {
		return nil, err
	}

	b := NewConfigurationBuilder()
	for _, opt := range opts {
		opt(b)
	}
	if err = b.AddRule(Wildcard, Wildcard, defaultInterval, defaultLimit); err != nil {
		return nil, err // unreachable, reserved values are validated above
	}

	keys := make([]string, 0, len(props))
	for key := range props {
		if strings.HasPrefix(key, PropertyPrefix) && key != PropertyKeyDefaultInterval && key != PropertyKeyDefaultLimit {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := props[key]
		parts := strings.Split(strings.TrimPrefix(key, PropertyPrefix), propertyKeySeparator)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &ConfigError{Key: key, Value: value, Err: errMalformedRuleKey}
		}
		ruleProps, parseErr := ParseProps(value, defaultInterval)
		if parseErr != nil {
			return nil, &ConfigError{Key: key, Value: value, Err: parseErr}
		}
		if err = b.AddRule(parts[0], parts[1], ruleProps.Interval, ruleProps.Limit); err != nil {
			return nil, &ConfigError{Key: key, Value: value, Err: err}
		}
	}
	return b.Build(), nil
}

func parseReservedProperty(props map[string]string, key string, defaultVal int) (int, error) {
	value, ok := props[key]
	if !ok {
		return defaultVal, nil
	}
	n, err := parsePositiveInt(value)
	if err != nil {
		return 0, &ConfigError{Key: key, Value: value, Err: fmt.Errorf("must be a positive integer: %w", err)}
	}
	return n, nil
}
