package extensions

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// LibraryInfo collects the library definitions of every installed extension,
// keyed by extension then library name
func (r *Registry) LibraryInfo(ctx context.Context) (map[string]any, error) {
	libraries := make(map[string]any)
	var errs []error

	for _, ext := range r.installedDirs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		defs := map[string]any{}
		ok, err := readYAML(filepath.Join(ext.dir, ext.name+".libraries.yml"), &defs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok || len(defs) == 0 {
			continue
		}
		libraries[ext.name] = defs
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid library definitions: %w", errors.Join(errs...))
	}
	return libraries, nil
}

// HasRequirementErrors reports extensions that are installed but missing
// from disk, and installed modules whose dependencies are not installed
func (r *Registry) HasRequirementErrors(ctx context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.missing) > 0 {
		return true, nil
	}

	for _, m := range r.modules {
		ext, ok := r.discovered[m.Name]
		if !ok {
			return true, nil
		}
		for _, dep := range ext.Info.Dependencies {
			if !r.isInstalledLocked(dependencyName(dep)) {
				r.logger.Debug("Unmet dependency", "extension", m.Name, "dependency", dep)
				return true, nil
			}
		}
	}
	return false, nil
}

// dependencyName reduces "project:module (>=1.2)" to "module"
func dependencyName(dep string) string {
	dep = strings.TrimSpace(dep)
	if i := strings.IndexAny(dep, " ("); i >= 0 {
		dep = dep[:i]
	}
	if i := strings.LastIndexByte(dep, ':'); i >= 0 {
		dep = dep[i+1:]
	}
	return dep
}
