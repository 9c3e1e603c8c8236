package depc

import (
	"fmt"
	"sort"
	"strings"
)

// ParamSpec declares one configuration parameter of a node: its name, default
// value, an optional set of allowed values, an optional validator, and whether
// the parameter is omitted from the config key when left at its default.
type ParamSpec struct {
	Name          string
	Default       any
	Valid         []any
	HideIfDefault bool
	Validate      func(v any) error
}

// ConfigSchema is the ordered list of parameters a node declares. Parameter
// order is significant: it fixes the order of entries in the config key.
type ConfigSchema []ParamSpec

// Config is a fully resolved configuration: every declared parameter is
// present, either with the supplied value or the declared default.
type Config map[string]any

// Int reads an integer parameter, accepting the numeric types a TOML or JSON
// decoder may hand us.
func (c Config) Int(name string) int {
	switch v := c[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float reads a float parameter.
func (c Config) Float(name string) float64 {
	switch v := c[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// String reads a string parameter.
func (c Config) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Resolve validates the supplied values against the schema and returns a fully
// populated Config. Parameters absent from supplied take their defaults; keys
// in supplied that the schema does not declare are ignored, because a caller
// hands the same pipeline-wide config map to every node in the chain and each
// node reads only the parameters it declares.
func (s ConfigSchema) Resolve(supplied map[string]any) (Config, error) {
	resolved := make(Config, len(s))
	for _, p := range s {
		v, ok := supplied[p.Name]
		if !ok {
			resolved[p.Name] = p.Default
			continue
		}
		if len(p.Valid) > 0 && !containsValue(p.Valid, v) {
			return nil, InvalidConfigError{Param: p.Name, Value: v, Msg: fmt.Sprintf("allowed values are %v", p.Valid)}
		}
		if p.Validate != nil {
			if err := p.Validate(v); err != nil {
				return nil, InvalidConfigError{Param: p.Name, Value: v, Msg: err.Error()}
			}
		}
		resolved[p.Name] = v
	}
	return resolved, nil
}

// Params returns the declared parameter names in schema order.
func (s ConfigSchema) Params() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// ConfigKey canonicalizes a node name and resolved config into the cache
// partition key. Parameters appear in schema order as name=value; a parameter
// marked HideIfDefault whose resolved value equals its default is omitted.
// Two configs that resolve to the same included values always produce the
// same key, regardless of how they were supplied.
func ConfigKey(node string, cfg Config, schema ConfigSchema) string {
	parts := make([]string, 0, len(schema))
	for _, p := range schema {
		v := cfg[p.Name]
		if p.HideIfDefault && valuesEqual(v, p.Default) {
			continue
		}
		parts = append(parts, p.Name+"="+formatValue(v))
	}
	return node + "(" + strings.Join(parts, ",") + ")"
}

func containsValue(valid []any, v any) bool {
	for _, a := range valid {
		if valuesEqual(a, v) {
			return true
		}
	}
	return false
}

// valuesEqual compares two parameter values, treating numerically equal ints
// and floats as the same so defaults survive a round trip through JSON.
func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return formatValue(a) == formatValue(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case []byte:
		return fmt.Sprintf("%q", t)
	case float64:
		// Trim trailing zeros so 0.1 and 0.10 canonicalize identically.
		s := fmt.Sprintf("%g", t)
		return s
	case map[string]any:
		// Stable rendering for the odd structured value.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + formatValue(t[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", t)
	}
}
