package extensions

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/siteprobe/siteprobe/internal/probe"
)

// staticConfig serves fixed configuration objects
type staticConfig map[string]probe.ConfigObject

func (c staticConfig) Config(_ context.Context, name string) (probe.ConfigObject, error) {
	if obj, ok := c[name]; ok {
		return obj, nil
	}
	return probe.ConfigObject{}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newSite lays out a small platform tree and returns its root
func newSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "core/modules/node/node.info.yml"), `
name: Node
type: module
package: Core
`)
	writeFile(t, filepath.Join(root, "core/modules/node/node.install.yml"), `
schema_versions: [8003, 8001, 8002]
`)
	writeFile(t, filepath.Join(root, "core/modules/node/tests/fixture/fixture.info.yml"), `
name: Fixture
type: module
`)
	writeFile(t, filepath.Join(root, "modules/contrib/search_api/search_api.info.yml"), `
name: Search API
type: module
dependencies:
  - drupal:node (>=8)
probe_api_info:
  search:
    name: Search
    version: "1.0"
    implementing_module: search_api
`)
	writeFile(t, filepath.Join(root, "modules/contrib/search_api/search_api.libraries.yml"), `
admin:
  css:
    theme:
      css/admin.css: {}
`)
	writeFile(t, filepath.Join(root, "modules/custom/blog/blog.info.yml"), `
name: Blog
type: module
dependencies:
  - drupal:comment
`)
	writeFile(t, filepath.Join(root, "themes/olivero/olivero.info.yml"), `
name: Olivero
type: theme
`)
	return root
}

func newTestRegistry(t *testing.T, root string, core probe.ConfigObject) *Registry {
	t.Helper()
	r := NewRegistry(root, []string{"core/modules", "modules", "themes", "profiles"},
		staticConfig{probe.ExtensionConfig: core}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestScan(t *testing.T) {
	root := newSite(t)
	r := newTestRegistry(t, root, probe.ConfigObject{
		"module":  map[string]any{"search_api": 0, "node": 0},
		"theme":   map[string]any{"olivero": 0},
		"profile": "standard",
	})

	var names []string
	for _, m := range r.Modules() {
		names = append(names, m.Name)
	}
	if want := []string{"node", "search_api"}; !slices.Equal(names, want) {
		t.Errorf("modules = %v, want %v", names, want)
	}

	path, ok := r.ModulePath("search_api")
	if !ok || path != "modules/contrib/search_api" {
		t.Errorf("search_api path = %q %v", path, ok)
	}
	if _, ok := r.ModulePath("blog"); ok {
		t.Error("blog is discovered but not installed")
	}
	if _, ok := r.Discovered("blog"); !ok {
		t.Error("blog should be discovered")
	}
	if _, ok := r.Discovered("fixture"); ok {
		t.Error("extensions under tests/ should be skipped")
	}

	themes := r.Themes()
	if len(themes) != 1 || themes[0].Name != "olivero" || themes[0].Info["name"] != "Olivero" {
		t.Errorf("themes = %+v", themes)
	}
	if r.Profile() != "standard" {
		t.Errorf("profile = %q", r.Profile())
	}
}

func TestModulesOrderedByWeight(t *testing.T) {
	r := newTestRegistry(t, newSite(t), probe.ConfigObject{
		"module": map[string]any{"node": float64(10), "search_api": float64(-5), "blog": float64(10)},
	})

	var names []string
	for _, m := range r.Modules() {
		names = append(names, m.Name)
	}
	if want := []string{"search_api", "blog", "node"}; !slices.Equal(names, want) {
		t.Errorf("modules = %v, want %v", names, want)
	}
}

func TestSchemaVersions(t *testing.T) {
	r := newTestRegistry(t, newSite(t), probe.ConfigObject{
		"module": map[string]any{"node": 0},
	})

	if _, ok := r.SchemaVersions("node"); ok {
		t.Error("versions should not be known before LoadUpdates")
	}
	loaded, err := r.LoadUpdates()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(loaded["node"], []int{8001, 8002, 8003}) {
		t.Errorf("loaded = %v", loaded)
	}
	versions, ok := r.SchemaVersions("node")
	if !ok || !slices.Equal(versions, []int{8001, 8002, 8003}) {
		t.Errorf("versions = %v %v", versions, ok)
	}

	r.ResetSchemaCache()
	if _, ok := r.SchemaVersions("node"); ok {
		t.Error("reset should drop cached versions")
	}
	if len(loaded["node"]) != 3 {
		t.Error("reset must not touch a snapshot already handed out")
	}
}

func TestLibraryInfo(t *testing.T) {
	root := newSite(t)
	r := newTestRegistry(t, root, probe.ConfigObject{
		"module": map[string]any{"node": 0, "search_api": 0},
	})

	libs, err := r.LibraryInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := libs["search_api"]; !ok || len(libs) != 1 {
		t.Errorf("libraries = %v", libs)
	}

	writeFile(t, filepath.Join(root, "core/modules/node/node.libraries.yml"), "admin: [unterminated")
	if _, err := r.LibraryInfo(context.Background()); err == nil {
		t.Error("expected a parse error")
	}
}

func TestHasRequirementErrors(t *testing.T) {
	root := newSite(t)
	ctx := context.Background()

	healthy := newTestRegistry(t, root, probe.ConfigObject{
		"module": map[string]any{"node": 0, "search_api": 0},
	})
	if issues, err := healthy.HasRequirementErrors(ctx); err != nil || issues {
		t.Errorf("healthy site reported issues=%v err=%v", issues, err)
	}

	unmet := newTestRegistry(t, root, probe.ConfigObject{
		"module": map[string]any{"node": 0, "blog": 0},
	})
	if issues, _ := unmet.HasRequirementErrors(ctx); !issues {
		t.Error("blog depends on comment which is not installed")
	}

	missing := newTestRegistry(t, root, probe.ConfigObject{
		"module": map[string]any{"node": 0, "deleted_module": 0},
	})
	if issues, _ := missing.HasRequirementErrors(ctx); !issues {
		t.Error("installed module missing from disk should be reported")
	}
}

func TestProbeAPIInfo(t *testing.T) {
	r := newTestRegistry(t, newSite(t), probe.ConfigObject{
		"module": map[string]any{"node": 0, "search_api": 0},
	})

	apis := r.ProbeAPIInfo()
	search, ok := apis["search"]
	if !ok {
		t.Fatalf("apis = %v", apis)
	}
	if search.DisplayName != "Search" || search.Version != "1.0" || search.ImplementingExtension != "search_api" {
		t.Errorf("search = %+v", search)
	}

	modules := r.Modules()
	for _, m := range modules {
		if _, leaked := m.Info["probe_api_info"]; leaked {
			t.Errorf("%s info still carries probe_api_info", m.Name)
		}
	}
}

func TestDependencyName(t *testing.T) {
	tests := map[string]string{
		"node":              "node",
		"drupal:node":       "node",
		"drupal:node (>=8)": "node",
		" views:views_ui ":  "views_ui",
		"search_api (1.x)":  "search_api",
	}
	for in, want := range tests {
		if got := dependencyName(in); got != want {
			t.Errorf("dependencyName(%q) = %q, want %q", in, got, want)
		}
	}
}

// unrecordedSchema reports every module as never updated
type unrecordedSchema struct{}

func (unrecordedSchema) InstalledSchemaVersion(context.Context, string) (int, error) {
	return -1, nil
}

func TestPendingUpdatesUnderConcurrentLoads(t *testing.T) {
	r := newTestRegistry(t, newSite(t), probe.ConfigObject{
		"module": map[string]any{"node": 0},
	})

	const workers, rounds = 16, 200
	var wg sync.WaitGroup
	var missed atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				pending, err := probe.PendingSchemaUpdates(context.Background(), r.Modules(), r, unrecordedSchema{})
				if err != nil {
					t.Error(err)
					return
				}
				if !slices.Equal(pending, []string{"node"}) {
					missed.Add(1)
				}
				if j%10 == 0 {
					r.ResetSchemaCache()
				}
			}
		}()
	}
	wg.Wait()

	if n := missed.Load(); n != 0 {
		t.Errorf("%d of %d runs lost the pending update of node", n, workers*rounds)
	}
}
