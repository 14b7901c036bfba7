package probe

import (
	"context"
	"sync"
	"time"
)

// fakeDatabase is a Database with optional hooks
type fakeDatabase struct {
	UsersPerStatusFunc     func(ctx context.Context) (map[int]int64, error)
	UsersPerRoleStatusFunc func(ctx context.Context) ([]RoleStatusCount, error)
	RolesFunc              func(ctx context.Context) ([]Role, error)
	NodesPerTypeStatusFunc func(ctx context.Context) ([]TypeStatusCount, error)
	LogStatsFunc           func(ctx context.Context) (LogStats, error)
	AccountFunc            func(ctx context.Context, uid int64) (Account, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeDatabase) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeDatabase) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDatabase) UsersPerStatus(ctx context.Context) (map[int]int64, error) {
	f.hit()
	if f.UsersPerStatusFunc != nil {
		return f.UsersPerStatusFunc(ctx)
	}
	return map[int]int64{}, nil
}

func (f *fakeDatabase) UsersPerRoleStatus(ctx context.Context) ([]RoleStatusCount, error) {
	f.hit()
	if f.UsersPerRoleStatusFunc != nil {
		return f.UsersPerRoleStatusFunc(ctx)
	}
	return nil, nil
}

func (f *fakeDatabase) Roles(ctx context.Context) ([]Role, error) {
	f.hit()
	if f.RolesFunc != nil {
		return f.RolesFunc(ctx)
	}
	return nil, nil
}

func (f *fakeDatabase) NodesPerTypeStatus(ctx context.Context) ([]TypeStatusCount, error) {
	f.hit()
	if f.NodesPerTypeStatusFunc != nil {
		return f.NodesPerTypeStatusFunc(ctx)
	}
	return nil, nil
}

func (f *fakeDatabase) LogStats(ctx context.Context) (LogStats, error) {
	f.hit()
	if f.LogStatsFunc != nil {
		return f.LogStatsFunc(ctx)
	}
	return LogStats{}, nil
}

func (f *fakeDatabase) Account(ctx context.Context, uid int64) (Account, error) {
	f.hit()
	if f.AccountFunc != nil {
		return f.AccountFunc(ctx, uid)
	}
	return Account{}, nil
}

// fakeConfig serves configuration objects from a map
type fakeConfig struct {
	objects map[string]ConfigObject
	err     map[string]error
}

func (f *fakeConfig) Config(_ context.Context, name string) (ConfigObject, error) {
	if err := f.err[name]; err != nil {
		return nil, err
	}
	if obj, ok := f.objects[name]; ok {
		return obj, nil
	}
	return ConfigObject{}, nil
}

// fakeState is an in-memory StateStore
type fakeState struct {
	mu      sync.Mutex
	values  map[string]any
	readErr error
	setErr  error
}

func newFakeState() *fakeState {
	return &fakeState{values: map[string]any{}}
}

func (f *fakeState) State(_ context.Context, key string) (any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeState) SetState(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

// fakeExtensions is a fixed ExtensionList
type fakeExtensions struct {
	modules []Extension
	themes  []Extension
}

func (f *fakeExtensions) Modules() []Extension { return f.modules }
func (f *fakeExtensions) Themes() []Extension  { return f.themes }

func (f *fakeExtensions) ModulePath(name string) (string, bool) {
	for _, m := range f.modules {
		if m.Name == name {
			return m.Path, true
		}
	}
	return "", false
}

// fakeUpdates declares schema versions per module
type fakeUpdates struct {
	versions map[string][]int
	loadErr  error
	loads    int
}

func (f *fakeUpdates) LoadUpdates() (map[string][]int, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.versions, nil
}

// fakeSchema knows installed schema versions
type fakeSchema struct {
	installed map[string]int
	err       error
}

func (f *fakeSchema) InstalledSchemaVersion(_ context.Context, module string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if v, ok := f.installed[module]; ok {
		return v, nil
	}
	return SchemaUninstalled, nil
}

type fakePackager struct {
	packages  []FeaturePackage
	overrides map[string][]string
	applied   bool
	applyErr  error
}

func (f *fakePackager) ApplyBundle(context.Context) error {
	f.applied = true
	return f.applyErr
}

func (f *fakePackager) Packages(context.Context) ([]FeaturePackage, error) {
	return f.packages, nil
}

func (f *fakePackager) DetectOverrides(_ context.Context, pkg FeaturePackage) ([]string, error) {
	return f.overrides[pkg.MachineName], nil
}

type fakeDomains struct {
	domains []Domain
	err     error
}

func (f *fakeDomains) Domains(context.Context) ([]Domain, error) {
	return f.domains, f.err
}

type fakeAliases struct {
	aliases []Alias
}

func (f *fakeAliases) DomainAliases(context.Context) ([]Alias, error) {
	return f.aliases, nil
}

type fakeLibraries struct {
	info map[string]any
	err  error
}

func (f *fakeLibraries) LibraryInfo(context.Context) (map[string]any, error) {
	return f.info, f.err
}

type fakeRequirements struct {
	errors bool
}

func (f *fakeRequirements) HasRequirementErrors(context.Context) (bool, error) {
	return f.errors, nil
}

// panickingLibraries simulates a misbehaving optional subsystem
type panickingLibraries struct{}

func (panickingLibraries) LibraryInfo(context.Context) (map[string]any, error) {
	panic("library registry exploded")
}

// recordingObserver counts observer callbacks
type recordingObserver struct {
	allowed []Reason
	denied  []Reason
	failed  int
	broken  []string
	probed  int
}

func (r *recordingObserver) ProbeAllowed(reason Reason)     { r.allowed = append(r.allowed, reason) }
func (r *recordingObserver) ProbeDenied(reason Reason)      { r.denied = append(r.denied, reason) }
func (r *recordingObserver) ProbeFailed()                   { r.failed++ }
func (r *recordingObserver) CollectorFailed(section string) { r.broken = append(r.broken, section) }
func (r *recordingObserver) LastProbed(time.Time)           { r.probed++ }
