package extensions

import (
	"fmt"
	"path/filepath"
	"slices"
)

// ResetSchemaCache drops the loaded schema versions
func (r *Registry) ResetSchemaCache() {
	r.schemaMu.Lock()
	r.schema = nil
	r.schemaMu.Unlock()
}

// LoadUpdates reads <name>.install.yml of every installed module. The
// returned map is a fresh snapshot; it also becomes the cache SchemaVersions
// answers from.
func (r *Registry) LoadUpdates() (map[string][]int, error) {
	schema := make(map[string][]int)
	for _, m := range r.Modules() {
		dir := filepath.Join(r.root, filepath.FromSlash(m.Path))

		var install InstallFile
		ok, err := readYAML(filepath.Join(dir, m.Name+".install.yml"), &install)
		if err != nil {
			return nil, fmt.Errorf("failed to load updates of %s: %w", m.Name, err)
		}
		if !ok || len(install.SchemaVersions) == 0 {
			continue
		}
		versions := slices.Clone(install.SchemaVersions)
		slices.Sort(versions)
		schema[m.Name] = versions
	}

	r.schemaMu.Lock()
	r.schema = schema
	r.schemaMu.Unlock()
	return schema, nil
}

// SchemaVersions returns the sorted schema versions module declared at the
// last LoadUpdates. It is empty until LoadUpdates has run.
func (r *Registry) SchemaVersions(module string) ([]int, bool) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	versions, ok := r.schema[module]
	return versions, ok
}
