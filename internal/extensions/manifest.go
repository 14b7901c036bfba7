package extensions

import "github.com/siteprobe/siteprobe/internal/probe"

// Extension types as written in .info.yml
const (
	TypeModule  = "module"
	TypeTheme   = "theme"
	TypeProfile = "profile"
)

// InfoFile is the part of <name>.info.yml the registry interprets. The whole
// file is also kept verbatim as the extension's info.
type InfoFile struct {
	Name         string                           `yaml:"name"`
	Type         string                           `yaml:"type"`
	Description  string                           `yaml:"description"`
	Version      string                           `yaml:"version"`
	Package      string                           `yaml:"package"`
	Dependencies []string                         `yaml:"dependencies"`
	Hidden       bool                             `yaml:"hidden"`
	ProbeAPIInfo map[string]probe.APIContribution `yaml:"probe_api_info"`
}

// InstallFile is <name>.install.yml, listing the schema updates a module ships
type InstallFile struct {
	SchemaVersions []int `yaml:"schema_versions"`
}

// FeaturesFile is <name>.features.yml. A module carrying one is a
// configuration package.
type FeaturesFile struct {
	Bundle   string `yaml:"bundle"`
	NoExport bool   `yaml:"no_export"`
}

// ExtensionInfo combines a parsed info file with where it was found
type ExtensionInfo struct {
	MachineName string
	Info        InfoFile
	Raw         map[string]any
	// Dir is relative to the platform root
	Dir string
}

var (
	_ probe.ExtensionList       = (*Registry)(nil)
	_ probe.UpdateDefinitions   = (*Registry)(nil)
	_ probe.LibraryCatalog      = (*Registry)(nil)
	_ probe.RequirementsChecker = (*Registry)(nil)
	_ probe.ContributesAPIInfo  = (*Registry)(nil)
	_ probe.FeaturePackager     = (*Packager)(nil)
)
