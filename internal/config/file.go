package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FromFile reads a flat YAML mapping of setting names to values, e.g.
//
//	LOGIN_USERNAME: e1234567
//	SIGNUP_TRY_GROUPS: "Gruppe 3, Gruppe 1"
//	SIGNUP_RETRY_MAX: 20
//
// Use it behind Env in a Chain so the environment wins.
func FromFile(path string) (Lookup, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case map[string]any, []any:
			return nil, &Error{Key: k, Reason: "must be a scalar in " + path}
		default:
			values[k] = fmt.Sprint(v)
		}
	}
	return func(key string) string { return values[key] }, nil
}
