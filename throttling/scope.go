/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

// Wildcard is the textual marker of a wildcarded scope field in configuration keys and text input.
const Wildcard = "*"

// ScopeField is either a concrete value or a wildcard that matches any value.
// The zero value is a wildcard.
type ScopeField struct {
	value    string
	concrete bool
}

// ConcreteField returns a field holding the given value.
// Note that ConcreteField("*") is a concrete field that matches only the literal "*" value.
func ConcreteField(value string) ScopeField {
	return ScopeField{value: value, concrete: true}
}

// WildcardField returns a field matching any value.
func WildcardField() ScopeField {
	return ScopeField{}
}

// ParseScopeField converts the text form into a field. Both "*" and "" mean a wildcard.
func ParseScopeField(s string) ScopeField {
	if s == "" || s == Wildcard {
		return WildcardField()
	}
	return ConcreteField(s)
}

// IsWildcard reports whether the field matches any value.
func (f ScopeField) IsWildcard() bool {
	return !f.concrete
}

// Value returns the concrete value of the field and false for a wildcard.
func (f ScopeField) Value() (string, bool) {
	return f.value, f.concrete
}

// String returns the value of a concrete field or "*" for a wildcard.
func (f ScopeField) String() string {
	if !f.concrete {
		return Wildcard
	}
	return f.value
}

// Scope identifies a (source system, service name) pair.
// Scopes are comparable and may be used as map keys.
type Scope struct {
	SourceSystem ScopeField
	ServiceName  ScopeField
}

// NewScope creates a scope from the text form of both fields ("*" or "" mean a wildcard).
func NewScope(sourceSystem, serviceName string) Scope {
	return Scope{SourceSystem: ParseScopeField(sourceSystem), ServiceName: ParseScopeField(serviceName)}
}

// ConcreteScope creates a scope where both fields are concrete.
func ConcreteScope(sourceSystem, serviceName string) Scope {
	return Scope{SourceSystem: ConcreteField(sourceSystem), ServiceName: ConcreteField(serviceName)}
}

// AnyScope returns the fully wildcarded scope of the default rule.
func AnyScope() Scope {
	return Scope{}
}

// String renders the scope as "<sourceSystem>.<serviceName>".
func (s Scope) String() string {
	return s.SourceSystem.String() + "." + s.ServiceName.String()
}

// IsValidQuery reports whether the scope identifies a caller,
// i.e. at least one of its fields is concrete.
func (s Scope) IsValidQuery() bool {
	return !s.SourceSystem.IsWildcard() || !s.ServiceName.IsWildcard()
}

// specificity returns the priority level of a rule scope: 0 for an exact pair,
// 1 for a source-specific rule, 2 for a service-specific rule and 3 for the default one.
func (s Scope) specificity() int {
	switch {
	case !s.SourceSystem.IsWildcard() && !s.ServiceName.IsWildcard():
		return 0
	case !s.SourceSystem.IsWildcard():
		return 1
	case !s.ServiceName.IsWildcard():
		return 2
	default:
		return 3
	}
}

// candidates returns the rule scopes that may match the query, most specific first.
func (s Scope) candidates() [4]Scope {
	return [4]Scope{
		{SourceSystem: s.SourceSystem, ServiceName: s.ServiceName},
		{SourceSystem: s.SourceSystem, ServiceName: WildcardField()},
		{SourceSystem: WildcardField(), ServiceName: s.ServiceName},
		AnyScope(),
	}
}
