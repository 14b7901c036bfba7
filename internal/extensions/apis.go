package extensions

import (
	"github.com/siteprobe/siteprobe/internal/probe"
)

// ProbeAPIInfo returns the probe_api_info declared by installed modules.
// Modules are visited in weight order and the first declaration of an
// identifier wins.
func (r *Registry) ProbeAPIInfo() map[string]probe.APIContribution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apis := make(map[string]probe.APIContribution)
	for _, m := range r.modules {
		ext, ok := r.discovered[m.Name]
		if !ok {
			continue
		}
		for id, api := range ext.Info.ProbeAPIInfo {
			if _, exists := apis[id]; exists {
				continue
			}
			apis[id] = api
		}
	}
	return apis
}
