package commandstructure

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// IntParam reads an integer parameter. YAML and JSON decoders hand numbers over
// as int, int64, float64 or string depending on the source. A value that is
// present but not a whole number is an error, not a silent default.
func IntParam(params map[string]any, key string, defaultValue int) (int, error) {
	val, ok := params[key]
	if !ok || val == nil {
		return defaultValue, nil
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("parameter %s must be a whole number, got %v", key, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("parameter %s must be a number, got %q", key, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("parameter %s has unsupported type %T", key, val)
}

// IntParamInRange is IntParam limited to [lo, hi]
func IntParamInRange(params map[string]any, key string, defaultValue, lo, hi int) (int, error) {
	n, err := IntParam(params, key, defaultValue)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("parameter %s must be between %d and %d, got %d", key, lo, hi, n)
	}
	return n, nil
}

// OptionalPositiveIntParam returns nil when key is absent
func OptionalPositiveIntParam(params map[string]any, key string) (*int, error) {
	if _, ok := params[key]; !ok {
		return nil, nil
	}
	n, err := IntParam(params, key, 0)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("parameter %s must be positive, got %d", key, n)
	}
	return &n, nil
}

// RejectUnknownParams fails on keys outside allowed, which catches typos in
// configuration files before they silently fall back to defaults.
func RejectUnknownParams(params map[string]any, allowed ...string) error {
	var unknown []string
	for key := range params {
		known := false
		for _, name := range allowed {
			if key == name {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown parameters %s (allowed: %s)", strings.Join(unknown, ", "), strings.Join(allowed, ", "))
}
