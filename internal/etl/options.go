package etl

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Options is the immutable configuration of one stage for one run.
type Options struct {
	values map[string]any
}

// NewOptions copies values into a read-only bag.
func NewOptions(values map[string]any) Options {
	return Options{values: maps.Clone(values)}
}

func (o Options) Lookup(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Get returns the value for key, or nil.
func (o Options) Get(key string) any {
	return o.values[key]
}

// Required returns the value for key or a configuration error.
func (o Options) Required(key string) (any, error) {
	v, ok := o.values[key]
	if !ok {
		return nil, ConfigurationError("options", "requested option key [%s] not set", key)
	}
	return v, nil
}

// RequiredString is Required for string-valued options.
func (o Options) RequiredString(key string) (string, error) {
	v, err := o.Required(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", ConfigurationError("options", "option [%s] must be a non-empty string, got %T", key, v)
	}
	return s, nil
}

func (o Options) String(key, def string) string {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o.values[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, ConfigurationError("options", "option [%s] is not an integer: %q", key, n)
		}
		return i, nil
	default:
		return 0, ConfigurationError("options", "option [%s] is not an integer: %T", key, v)
	}
}

func (o Options) Bool(key string, def bool) bool {
	v, ok := o.values[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// Keys returns the option keys in sorted order.
func (o Options) Keys() []string {
	return slices.Sorted(maps.Keys(o.values))
}

func (o Options) Len() int {
	return len(o.values)
}
