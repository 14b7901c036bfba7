package probe

import (
	"fmt"
	"strings"
)

// Configuration object and key names read by the probe
const (
	SettingsConfig  = "probe.settings"
	SiteConfig      = "system.site"
	ExtensionConfig = "core.extension"

	KeyProbeKey           = "probe_key"
	KeyAllowedIPs         = "probe_xmlrpc_ips"
	KeyVariablesWhitelist = "probe_variables_whitelist"

	// LastProbedKey is the state entry recording the last authorized probe
	LastProbedKey = "probe.probe_last"
)

// ConfigObject is a decoded configuration object. Keys may address nested
// values with dots, e.g. "system.cron_last".
type ConfigObject map[string]any

// Get returns the value stored under key. A key that matches literally wins
// over a dotted path.
func (c ConfigObject) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c[key]; ok {
		return v, v != nil
	}

	var current any = map[string]any(c)
	for _, part := range strings.Split(key, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// String returns the value under key formatted as a string, or ""
func (c ConfigObject) String(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns the list under key. A non-empty string is treated as a
// one-element list.
func (c ConfigObject) Strings(key string) []string {
	v, ok := c.Get(key)
	if !ok {
		return nil
	}

	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case ConfigObject:
		return m, true
	}
	return nil, false
}
