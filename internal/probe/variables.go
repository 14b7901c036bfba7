package probe

import (
	"context"
	"fmt"
	"slices"
)

// DefaultVariablesWhitelist applies when probe.settings lists no variables
var DefaultVariablesWhitelist = []string{"cron_last", "system.cron_last"}

// legacyVariables renames variables collectors still ask for by their old
// name. The report is keyed by the new name.
var legacyVariables = map[string]string{
	"cron_last": "system.cron_last",
}

// RequestedVariables resolves the whitelisted subset of the requested
// variables. Each value comes from the probe settings, then from state, and
// is false when neither has it.
func RequestedVariables(ctx context.Context, requested, whitelist []string, settings ConfigObject, state StateStore) (map[string]any, error) {
	if len(whitelist) == 0 {
		whitelist = DefaultVariablesWhitelist
	}

	vars := make(map[string]any)
	for _, name := range requested {
		if !slices.Contains(whitelist, name) {
			continue
		}
		if modern, ok := legacyVariables[name]; ok {
			name = modern
		}
		if _, done := vars[name]; done {
			continue
		}

		if value, ok := settings.Get(name); ok {
			vars[name] = value
			continue
		}

		value, ok, err := state.State(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read state %s: %w", name, err)
		}
		if !ok || value == nil {
			value = false
		}
		vars[name] = value
	}
	return vars, nil
}
