package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "server.port").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. String values are
// coerced to bool, number or comma-separated list when they parse as one.
// Unknown paths are rejected.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key]
		if !ok {
			newMap := make(map[string]any)
			parent[key] = newMap
			parent = newMap
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot traverse into %T at %s", child, key)
		}
		parent = childMap
	}

	last := parts[len(parts)-1]
	parsed := parseValue(value)
	candidates := []any{parsed}
	if raw, ok := value.(string); ok && parsed != any(raw) {
		candidates = append(candidates, raw)
	}
	if _, isList := parsed.([]any); !isList {
		candidates = append(candidates, []any{parsed})
	}

	var firstErr error
	for _, v := range candidates {
		parent[last] = v
		next, err := decodeStrict(m)
		if err == nil {
			*cfg = *next
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return fmt.Errorf("set %s: %w", path, firstErr)
}

func decodeStrict(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// parseValue tries to convert string values to appropriate Go types.
func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, parseValue(strings.TrimSpace(p)))
		}
		return out
	}
	return s
}

// Sanitize returns a copy of the config with tokens, secrets and DSN passwords masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return cfg
	}

	for _, ch := range []*ChannelConfig{&c.Channels.WhatsApp.ChannelConfig, &c.Channels.Instagram, &c.Channels.Email, &c.Channels.Review} {
		ch.VerifyToken = maskString(ch.VerifyToken)
		ch.AppSecret = maskString(ch.AppSecret)
	}
	c.Channels.WhatsApp.AccessToken = maskString(c.Channels.WhatsApp.AccessToken)
	c.Escalation.Token = maskString(c.Escalation.Token)
	c.Publish.SecretKey = maskString(c.Publish.SecretKey)
	c.Dedupe.Redis.Password = maskString(c.Dedupe.Redis.Password)
	c.Storage.DSN = maskDSN(c.Storage.DSN)

	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest. Empty stays empty.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// maskDSN hides the password of a MySQL DSN or URL-style DSN.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if mc, err := mysql.ParseDSN(dsn); err == nil && mc.Passwd != "" {
		mc.Passwd = "***"
		return mc.FormatDSN()
	}
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			return u.String()
		}
	}
	return dsn
}

// ListPaths returns all settable config paths with their current values.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flattenMap("", m, result)
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenMap(path, val, result)
		default:
			result[path] = val
		}
	}
}
