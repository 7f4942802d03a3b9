package check

import (
	"fmt"
	"strconv"
	"time"
)

// StringOption reads an optional string from a factory config map.
// The bool reports whether the key was present.
func StringOption(config map[string]any, key string) (string, bool, error) {
	v, ok := config[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("'%s' must be a string, got %T", key, v)
	}
	return s, true, nil
}

// RequiredString reads a required, non-empty string from a factory config map.
func RequiredString(config map[string]any, key string) (string, error) {
	s, ok, err := StringOption(config, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("config missing required key '%s'", key)
	}
	if s == "" {
		return "", fmt.Errorf("'%s' must not be empty", key)
	}
	return s, nil
}

// IntOption reads an optional integer. JSON numbers arrive as float64,
// viper and Go callers pass int, and environment values may be strings.
func IntOption(config map[string]any, key string) (int, bool, error) {
	v, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, true, fmt.Errorf("'%s' must be a whole number, got %v", key, n)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, true, fmt.Errorf("invalid '%s' %q: %w", key, n, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("'%s' must be a number, got %T", key, v)
	}
}

// DurationOption reads an optional duration given either as a
// time.ParseDuration string or as a time.Duration.
func DurationOption(config map[string]any, key string) (time.Duration, bool, error) {
	v, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, true, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, true, fmt.Errorf("invalid '%s' %q: %w", key, d, err)
		}
		return parsed, true, nil
	default:
		return 0, true, fmt.Errorf("'%s' must be a duration string, got %T", key, v)
	}
}
