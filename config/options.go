package config

import (
	"time"

	"github.com/spf13/cast"
)

// AsMap converts a decoded options value into a map, or nil.
// viper yields map[string]interface{}; BurntSushi/toml may yield the same.
func AsMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// OptionString reads a string option, falling back to def
func OptionString(opts map[string]any, key, def string) string {
	v, ok := opts[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return def
	}
	return s
}

// OptionInt reads an integer option, falling back to def
func OptionInt(opts map[string]any, key string, def int) int {
	v, ok := opts[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// OptionFloat reads a float option, falling back to def
func OptionFloat(opts map[string]any, key string, def float64) float64 {
	v, ok := opts[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// OptionStrings reads a string-or-list option
func OptionStrings(opts map[string]any, key string) []string {
	v, ok := opts[key]
	if !ok {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	ss, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	return ss
}

// Lookup returns the first non-nil option for key across layered option maps
func Lookup(key string, layers ...map[string]any) (any, bool) {
	for _, l := range layers {
		if v, ok := l[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// OptionDuration reads a duration option. Strings use time.ParseDuration
// syntax; bare numbers are seconds.
func OptionDuration(opts map[string]any, key string, def time.Duration) time.Duration {
	v, ok := opts[key]
	if !ok || v == nil {
		return def
	}
	switch v.(type) {
	case string, time.Duration:
		d, err := cast.ToDurationE(v)
		if err != nil {
			return def
		}
		return d
	}
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// Merge returns a new map holding base overlaid with override
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
