package probe

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"
)

// APIContribution is what an extension declares about an API it implements
type APIContribution struct {
	DisplayName           string         `json:"name" yaml:"name" validate:"required"`
	Version               string         `json:"version" yaml:"version"`
	ExtraInfo             map[string]any `json:"extra_info,omitempty" yaml:"extra_info"`
	ImplementingExtension string         `json:"implementing_module" yaml:"implementing_module" validate:"required"`
}

// ContributesAPIInfo is implemented by anything that wants its APIs listed in
// the snapshot. The map is keyed by a short API identifier.
type ContributesAPIInfo interface {
	ProbeAPIInfo() map[string]APIContribution
}

// ContributorFunc adapts a plain function to ContributesAPIInfo
type ContributorFunc func() map[string]APIContribution

func (f ContributorFunc) ProbeAPIInfo() map[string]APIContribution {
	return f()
}

// ExtensionPath is where an implementing extension lives. When the extension
// is not installed Found is false and Missing carries a readable message.
type ExtensionPath struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Missing string `json:"missing,omitempty"`
}

func (p ExtensionPath) String() string {
	if p.Found {
		return p.Path
	}
	return p.Missing
}

type APIDetail struct {
	Info APIContribution `json:"info"`
	Path ExtensionPath   `json:"path"`
}

var validate = validator.New()

// DiscoverAPIContributions collects every contributor's APIs and resolves the
// implementing extension of each. Invalid declarations are skipped; when two
// contributors use the same identifier the first one wins.
func DiscoverAPIContributions(contributors []ContributesAPIInfo, extensions ExtensionList, logger *slog.Logger) map[string]APIDetail {
	apis := make(map[string]APIDetail)

	for _, contributor := range contributors {
		declared := contributor.ProbeAPIInfo()

		// Iterate in key order so duplicate handling is reproducible
		names := make([]string, 0, len(declared))
		for name := range declared {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			api := declared[name]
			if err := validate.Struct(api); err != nil {
				logger.Warn("Skipping invalid API contribution", "api", name, "error", err)
				continue
			}
			if _, exists := apis[name]; exists {
				logger.Warn("Duplicate API contribution ignored", "api", name, "implementing_module", api.ImplementingExtension)
				continue
			}

			apis[name] = APIDetail{
				Info: api,
				Path: resolveExtensionPath(extensions, api.ImplementingExtension),
			}
		}
	}
	return apis
}

func resolveExtensionPath(extensions ExtensionList, name string) ExtensionPath {
	if path, ok := extensions.ModulePath(name); ok && path != "" {
		return ExtensionPath{Found: true, Path: path}
	}
	return ExtensionPath{Missing: fmt.Sprintf("Implementing module %s not found.", name)}
}
