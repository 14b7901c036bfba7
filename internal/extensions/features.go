package extensions

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/siteprobe/siteprobe/internal/probe"
)

// Keys the platform adds to active configuration on import. They never count
// as drift.
var volatileConfigKeys = []string{"uuid", "_core"}

// Packager treats every extension shipping a <name>.features.yml as a
// configuration package whose config/install/*.yml files are its baseline.
type Packager struct {
	registry *Registry
	config   probe.ConfigReader
	bundle   string

	mu       sync.Mutex
	packages []probe.FeaturePackage
}

// NewPackager creates a packager. An empty bundle assigns every package.
func NewPackager(registry *Registry, config probe.ConfigReader, bundle string) *Packager {
	return &Packager{registry: registry, config: config, bundle: bundle}
}

// ApplyBundle reassigns packages from the extensions currently on disk
func (p *Packager) ApplyBundle(ctx context.Context) error {
	p.registry.mu.RLock()
	names := make([]string, 0, len(p.registry.discovered))
	for name := range p.registry.discovered {
		names = append(names, name)
	}
	p.registry.mu.RUnlock()
	slices.Sort(names)

	var packages []probe.FeaturePackage
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		ext, ok := p.registry.Discovered(name)
		if !ok {
			continue
		}

		var features FeaturesFile
		found, err := readYAML(p.path(ext, name+".features.yml"), &features)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if p.bundle != "" && features.Bundle != p.bundle {
			continue
		}

		status := probe.FeatureUninstalled
		switch {
		case features.NoExport:
			status = probe.FeatureNoExport
		case p.registry.IsInstalled(name):
			status = probe.FeatureInstalled
		}
		packages = append(packages, probe.FeaturePackage{MachineName: name, Status: status})
	}

	p.mu.Lock()
	p.packages = packages
	p.mu.Unlock()
	return nil
}

// Packages returns the packages assigned by the last ApplyBundle
func (p *Packager) Packages(context.Context) ([]probe.FeaturePackage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.packages), nil
}

// DetectOverrides lists the configuration objects of pkg whose active value
// differs from the packaged baseline. Objects not present in active
// configuration are not reported.
func (p *Packager) DetectOverrides(ctx context.Context, pkg probe.FeaturePackage) ([]string, error) {
	ext, ok := p.registry.Discovered(pkg.MachineName)
	if !ok {
		return nil, fmt.Errorf("package %s is not on disk", pkg.MachineName)
	}

	files, err := filepath.Glob(p.path(ext, "config", "install", "*.yml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)

	overrides := []string{}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		baseline := map[string]any{}
		if _, err := readYAML(file, &baseline); err != nil {
			return nil, err
		}

		active, err := p.config.Config(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load active config %s: %w", name, err)
		}
		if len(active) == 0 {
			continue
		}

		same, err := sameConfig(baseline, active)
		if err != nil {
			return nil, fmt.Errorf("failed to compare %s: %w", name, err)
		}
		if !same {
			overrides = append(overrides, name)
		}
	}
	return overrides, nil
}

func (p *Packager) path(ext *ExtensionInfo, elem ...string) string {
	parts := append([]string{p.registry.root, filepath.FromSlash(ext.Dir)}, elem...)
	return filepath.Join(parts...)
}

// sameConfig compares two configuration objects after normalising both
// through JSON, so YAML ints and stored float64s compare equal
func sameConfig(a, b map[string]any) (bool, error) {
	na, err := normalise(a)
	if err != nil {
		return false, err
	}
	nb, err := normalise(b)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(na, nb), nil
}

func normalise(obj map[string]any) (map[string]any, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for _, key := range volatileConfigKeys {
		delete(out, key)
	}
	return out, nil
}
