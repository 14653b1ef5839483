package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the declared type of a worker parameter.
type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindBoolean    Kind = "boolean"
	KindStringList Kind = "string_list"
)

// ParamSpec declares one parameter of a worker's schema.
type ParamSpec struct {
	Name        string
	Kind        Kind
	Required    bool
	Default     any
	Description string
}

// Params holds the bound parameters of one worker invocation. Bound once at
// construction and treated as immutable afterwards; continuations copy via
// Clone and override what they need.
type Params map[string]any

// BindParams binds raw values against the declared schema. Every declared
// parameter ends up present in the result: supplied values are coerced to
// their declared kind, absent optional values take their default, and an
// absent required value fails with a ConfigurationError.
func BindParams(specs []ParamSpec, raw map[string]any) (Params, error) {
	bound := make(Params, len(specs))
	for _, spec := range specs {
		value, ok := raw[spec.Name]
		if !ok || value == nil {
			if spec.Required {
				return nil, NewConfigurationError(spec.Name, "required parameter is missing")
			}
			value = spec.Default
		}
		coerced, err := coerce(spec.Kind, value)
		if err != nil {
			return nil, NewConfigurationError(spec.Name, err.Error())
		}
		bound[spec.Name] = coerced
	}
	return bound, nil
}

func coerce(kind Kind, value any) (any, error) {
	if value == nil {
		return zeroValue(kind), nil
	}
	switch kind {
	case KindString:
		return coerceString(value)
	case KindNumber:
		return coerceNumber(value)
	case KindBoolean:
		return coerceBoolean(value)
	case KindStringList:
		return coerceStringList(value)
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func zeroValue(kind Kind) any {
	switch kind {
	case KindNumber:
		return float64(0)
	case KindBoolean:
		return false
	case KindStringList:
		return []string(nil)
	default:
		return ""
	}
}

func coerceString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot treat %T as string", value)
	}
}

func coerceNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot treat %T as number", value)
	}
}

func coerceBoolean(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot parse %q as boolean", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot treat %T as boolean", value)
	}
}

func coerceStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := coerceString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		if v == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("cannot treat %T as string list", value)
	}
}

func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

func (p Params) Number(name string) float64 {
	v, _ := p[name].(float64)
	return v
}

func (p Params) Int(name string) int {
	return int(p.Number(name))
}

func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

func (p Params) StringList(name string) []string {
	v, _ := p[name].([]string)
	return v
}

// Clone returns a shallow copy suitable for building a continuation's
// parameters with overrides.
func (p Params) Clone() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if list, ok := v.([]string); ok {
			copied := make([]string, len(list))
			copy(copied, list)
			out[k] = copied
			continue
		}
		out[k] = v
	}
	return out
}
