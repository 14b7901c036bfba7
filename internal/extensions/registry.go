// Package extensions reads the platform's installed modules and themes from
// disk. Extensions are discovered from <name>.info.yml files under the
// configured extension directories; which of them are installed comes from
// the core.extension configuration object.
package extensions

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/siteprobe/siteprobe/internal/probe"
)

const infoSuffix = ".info.yml"

// Directories never searched for extensions
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"tests":        true,
}

// Registry is the filesystem extension registry. It is safe for concurrent
// use; Scan replaces its contents atomically.
type Registry struct {
	root   string
	dirs   []string
	config probe.ConfigReader
	logger *slog.Logger

	mu         sync.RWMutex
	discovered map[string]*ExtensionInfo
	modules    []probe.Extension
	themes     []probe.Extension
	profile    string
	missing    []string

	schemaMu sync.Mutex
	schema   map[string][]int
}

// NewRegistry creates a registry rooted at the platform root. dirs are
// searched relative to root.
func NewRegistry(root string, dirs []string, config probe.ConfigReader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		root:       root,
		dirs:       dirs,
		config:     config,
		logger:     logger.With("component", "extensions"),
		discovered: make(map[string]*ExtensionInfo),
	}
}

// Scan walks the extension directories and reloads the installed set
func (r *Registry) Scan(ctx context.Context) error {
	found := make(map[string]*ExtensionInfo)

	for _, dir := range r.dirs {
		base := filepath.Join(r.root, dir)
		if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("Extension directory does not exist", "dir", base)
			continue
		}

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != base && (strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()]) {
					return filepath.SkipDir
				}
				return nil
			}

			name, ok := strings.CutSuffix(d.Name(), infoSuffix)
			if !ok {
				return nil
			}

			ext, err := r.loadInfo(path, name)
			if err != nil {
				r.logger.Warn("Failed to parse extension info", "extension", name, "path", path, "error", err)
				return nil
			}
			if prev, dup := found[name]; dup {
				r.logger.Warn("Duplicate extension ignored", "extension", name, "kept", prev.Dir, "ignored", ext.Dir)
				return nil
			}
			found[name] = ext
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", base, err)
		}
	}

	core, err := r.config.Config(ctx, probe.ExtensionConfig)
	if err != nil {
		return fmt.Errorf("failed to load installed extensions: %w", err)
	}

	modules, missingModules := installed(found, core, TypeModule)
	themes, missingThemes := installed(found, core, TypeTheme)

	r.mu.Lock()
	r.discovered = found
	r.modules = modules
	r.themes = themes
	r.profile = core.String("profile")
	r.missing = append(missingModules, missingThemes...)
	r.mu.Unlock()

	r.ResetSchemaCache()

	r.logger.Info("Scanned extensions",
		"discovered", len(found),
		"modules", len(modules),
		"themes", len(themes),
		"missing", len(missingModules)+len(missingThemes),
	)
	return nil
}

func (r *Registry) loadInfo(path, name string) (*ExtensionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var info InfoFile
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	delete(raw, "probe_api_info")

	dir, err := filepath.Rel(r.root, filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	return &ExtensionInfo{
		MachineName: name,
		Info:        info,
		Raw:         raw,
		Dir:         filepath.ToSlash(dir),
	}, nil
}

// installed resolves core.extension[kind] against what was found on disk.
// Names listed as installed but absent from disk are returned as missing.
func installed(found map[string]*ExtensionInfo, core probe.ConfigObject, kind string) ([]probe.Extension, []string) {
	listed, _ := core.Get(kind)
	weights, _ := listed.(map[string]any)

	var exts []probe.Extension
	var missing []string
	for name, w := range weights {
		ext, ok := found[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		typ := ext.Info.Type
		if typ == "" {
			typ = kind
		}
		exts = append(exts, probe.Extension{
			Name:   name,
			Type:   typ,
			Path:   ext.Dir,
			Weight: weight(w),
			Info:   ext.Raw,
		})
	}

	slices.SortFunc(exts, func(a, b probe.Extension) int {
		return cmp.Or(cmp.Compare(a.Weight, b.Weight), cmp.Compare(a.Name, b.Name))
	})
	slices.Sort(missing)
	return exts, missing
}

func weight(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// Modules returns the installed modules ordered by weight, then name
func (r *Registry) Modules() []probe.Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// Themes returns the installed themes ordered by weight, then name
func (r *Registry) Themes() []probe.Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.themes)
}

// ModulePath returns the directory of an installed module relative to the
// platform root
func (r *Registry) ModulePath(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.Name == name {
			return m.Path, true
		}
	}
	return "", false
}

// IsInstalled reports whether name is an installed module or theme
func (r *Registry) IsInstalled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isInstalledLocked(name)
}

func (r *Registry) isInstalledLocked(name string) bool {
	for _, list := range [][]probe.Extension{r.modules, r.themes} {
		for _, e := range list {
			if e.Name == name {
				return true
			}
		}
	}
	return false
}

// Profile is the installation profile
func (r *Registry) Profile() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profile
}

// Discovered returns a discovered extension, installed or not
func (r *Registry) Discovered(name string) (*ExtensionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.discovered[name]
	return ext, ok
}

// installedDirs returns machine name and absolute directory of every installed
// extension, modules first
func (r *Registry) installedDirs() []namedDir {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dirs := make([]namedDir, 0, len(r.modules)+len(r.themes))
	for _, list := range [][]probe.Extension{r.modules, r.themes} {
		for _, e := range list {
			dirs = append(dirs, namedDir{name: e.Name, dir: filepath.Join(r.root, filepath.FromSlash(e.Path))})
		}
	}
	return dirs
}

type namedDir struct {
	name string
	dir  string
}

// readYAML decodes path into out. A missing file reports false.
func readYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}
