// Package probe implements the authenticated site probe: the access check
// and the aggregation of a site snapshot from independent platform sources.
package probe

import (
	"context"
)

// Request is one inbound probe call
type Request struct {
	ProbeKey  string
	ClientIP  string
	Variables []string
}

// Snapshot is the report returned to the monitoring collector. Its top-level
// keys are fixed; collectors only ever fill the fields below.
type Snapshot struct {
	Users     Users                      `json:"users"`
	Variables map[string]any             `json:"variables"`
	Platform  string                     `json:"platform"`
	SiteName  string                     `json:"site_name"`
	SiteMail  string                     `json:"site_mail"`
	Metadata  Metadata                   `json:"metadata"`
	Modules   map[string]ExtensionDetail `json:"modules"`
	Libraries map[string]any             `json:"libraries"`
	Themes    map[string]ExtensionDetail `json:"themes"`
	APIs      map[string]APIDetail       `json:"apis"`
}

type Users struct {
	Root Account `json:"root"`
}

// Account is the public part of a user account
type Account struct {
	Name string `json:"name"`
	Mail string `json:"mail"`
}

type Metadata struct {
	PlatformVersion    string                   `json:"platform_version"`
	PlatformRoot       string                   `json:"platform_root"`
	BaseURL            string                   `json:"base_url"`
	NumUsers           map[int]int64            `json:"num_users"`
	NumUsersRoles      map[string]map[int]int64 `json:"num_users_roles"`
	NumNodesType       map[string]map[int]int64 `json:"num_nodes_type"`
	DatabaseUpdates    []string                 `json:"database_updates"`
	OverriddenFeatures map[string][]string      `json:"overridden_features"`
	InstallProfile     string                   `json:"install_profile"`
	Domains            map[string]DomainRecord  `json:"domains"`
	Logs               float64                  `json:"logs"`
	Environment        string                   `json:"ema_env"`
	RequirementIssues  bool                     `json:"requirement_issues"`
}

// ExtensionDetail pairs an extension's declared info with its location
type ExtensionDetail struct {
	Info map[string]any `json:"info"`
	Path string         `json:"path"`
}

type DomainRecord struct {
	DomainID    int                    `json:"domain_id"`
	Subdomain   string                 `json:"subdomain"`
	Sitename    string                 `json:"sitename"`
	Scheme      string                 `json:"scheme"`
	Valid       int                    `json:"valid"`
	Weight      int                    `json:"weight"`
	IsDefault   int                    `json:"is_default"`
	MachineName string                 `json:"machine_name"`
	Path        string                 `json:"path"`
	SiteGrant   bool                   `json:"site_grant"`
	Aliases     map[string]DomainAlias `json:"aliases"`
}

type DomainAlias struct {
	DomainID string `json:"domain_id"`
	AliasID  string `json:"alias_id"`
	Pattern  string `json:"pattern"`
	Redirect int    `json:"redirect"`
}

// Domain is a domain record as stored by the multi-domain subsystem
type Domain struct {
	ID        string
	DomainID  int
	Hostname  string
	Label     string
	Scheme    string
	Weight    int
	IsDefault bool
	Path      string
}

// Alias is a domain alias as stored by the alias subsystem
type Alias struct {
	ID       string
	DomainID string
	Pattern  string
	Redirect int
}

// Extension is an installed module or theme known to the extension registry
type Extension struct {
	Name   string
	Type   string
	Path   string
	Weight int
	Info   map[string]any
}

// Role is an entry in the role registry
type Role struct {
	ID    string
	Label string
}

// RoleStatusCount is one row of the accounts-per-role-per-status aggregate
type RoleStatusCount struct {
	RoleID string
	Status int
	Count  int64
}

// TypeStatusCount is one row of the content-per-type-per-status aggregate
type TypeStatusCount struct {
	Type   string
	Status int
	Count  int64
}

// LogStats is the result of a single aggregate query over the log table
type LogStats struct {
	Rows         int64
	MinTimestamp int64
	MaxTimestamp int64
}

// FeaturePackage is a configuration package known to the feature packager
type FeaturePackage struct {
	MachineName string
	Status      FeatureStatus
}

type FeatureStatus int

const (
	FeatureNoExport FeatureStatus = iota
	FeatureUninstalled
	FeatureInstalled
)

// Database is the read-only view of the site database the counters need
type Database interface {
	UsersPerStatus(ctx context.Context) (map[int]int64, error)
	UsersPerRoleStatus(ctx context.Context) ([]RoleStatusCount, error)
	Roles(ctx context.Context) ([]Role, error)
	NodesPerTypeStatus(ctx context.Context) ([]TypeStatusCount, error)
	LogStats(ctx context.Context) (LogStats, error)
	Account(ctx context.Context, uid int64) (Account, error)
}

// ConfigReader reads named configuration objects. A missing object is
// returned as an empty ConfigObject, not an error.
type ConfigReader interface {
	Config(ctx context.Context, name string) (ConfigObject, error)
}

// StateStore is the platform key/value state storage
type StateStore interface {
	State(ctx context.Context, key string) (any, bool, error)
	SetState(ctx context.Context, key string, value any) error
}

// ExtensionList lists installed extensions
type ExtensionList interface {
	Modules() []Extension
	Themes() []Extension
	ModulePath(name string) (string, bool)
}

// UpdateDefinitions exposes the schema versions extensions declare.
// LoadUpdates rereads the definitions and returns sorted versions per module;
// the returned map belongs to the caller's probe and is never changed.
type UpdateDefinitions interface {
	LoadUpdates() (map[string][]int, error)
}

// SchemaStore knows the schema version each module was last updated to
type SchemaStore interface {
	InstalledSchemaVersion(ctx context.Context, module string) (int, error)
}

// FeaturePackager is the optional configuration packaging subsystem
type FeaturePackager interface {
	ApplyBundle(ctx context.Context) error
	Packages(ctx context.Context) ([]FeaturePackage, error)
	DetectOverrides(ctx context.Context, pkg FeaturePackage) ([]string, error)
}

// DomainDirectory is the optional multi-domain subsystem
type DomainDirectory interface {
	Domains(ctx context.Context) ([]Domain, error)
}

// AliasDirectory is the optional domain alias subsystem
type AliasDirectory interface {
	DomainAliases(ctx context.Context) ([]Alias, error)
}

// LibraryCatalog is the optional external library registry
type LibraryCatalog interface {
	LibraryInfo(ctx context.Context) (map[string]any, error)
}

// RequirementsChecker reports whether the platform has requirement errors
type RequirementsChecker interface {
	HasRequirementErrors(ctx context.Context) (bool, error)
}
