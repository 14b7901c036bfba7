package probe

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/siteprobe/siteprobe/internal/capability"
)

const secondsPerDay = 86400

// SchemaUninstalled is the installed schema version of a module that never
// recorded one
const SchemaUninstalled = -1

// UsersPerStatus counts non-anonymous accounts by status
func UsersPerStatus(ctx context.Context, db Database) (map[int]int64, error) {
	counts, err := db.UsersPerStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users per status: %w", err)
	}
	if counts == nil {
		counts = map[int]int64{}
	}
	return counts, nil
}

// UsersPerRolePerStatus counts accounts per role label and status. Every role
// in the registry is reported, and every status seen for any role is filled
// in with 0 where a role has no such accounts.
func UsersPerRolePerStatus(ctx context.Context, db Database) (map[string]map[int]int64, error) {
	rows, err := db.UsersPerRoleStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users per role: %w", err)
	}

	roles, err := db.Roles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	byRole := make(map[string]map[int]int64)
	var statuses []int
	for _, row := range rows {
		if byRole[row.RoleID] == nil {
			byRole[row.RoleID] = make(map[int]int64)
		}
		byRole[row.RoleID][row.Status] += row.Count
		if !slices.Contains(statuses, row.Status) {
			statuses = append(statuses, row.Status)
		}
	}

	result := make(map[string]map[int]int64, len(roles))
	for _, role := range roles {
		counts := make(map[int]int64, len(statuses))
		for _, status := range statuses {
			counts[status] = byRole[role.ID][status]
		}
		result[role.Label] = counts
	}
	return result, nil
}

// NodesPerTypePerStatus counts content items per type and status
func NodesPerTypePerStatus(ctx context.Context, db Database) (map[string]map[int]int64, error) {
	rows, err := db.NodesPerTypeStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count nodes per type: %w", err)
	}

	result := make(map[string]map[int]int64)
	for _, row := range rows {
		if result[row.Type] == nil {
			result[row.Type] = make(map[int]int64)
		}
		result[row.Type][row.Status] += row.Count
	}
	return result, nil
}

// PendingSchemaUpdates lists the modules whose newest declared schema version
// is ahead of the installed one. Update definitions are reloaded on every
// call, so freshly deployed code is always seen.
func PendingSchemaUpdates(ctx context.Context, modules []Extension, defs UpdateDefinitions, schema SchemaStore) ([]string, error) {
	declared, err := defs.LoadUpdates()
	if err != nil {
		return nil, fmt.Errorf("load update definitions: %w", err)
	}

	pending := []string{}
	for _, module := range modules {
		versions := declared[module.Name]
		if len(versions) == 0 {
			continue
		}

		installed, err := schema.InstalledSchemaVersion(ctx, module.Name)
		if err != nil {
			return nil, fmt.Errorf("installed schema version of %s: %w", module.Name, err)
		}

		if slices.Max(versions) > installed {
			pending = append(pending, module.Name)
		}
	}
	return pending, nil
}

// DailyLogAverage is the mean number of log entries per day over the span the
// log table covers. Spans shorter than a day count as one day; an empty table
// or a zero-length span yields 0.
func DailyLogAverage(stats LogStats) float64 {
	var days float64
	if stats.MaxTimestamp > stats.MinTimestamp {
		days = max(1, float64(stats.MaxTimestamp-stats.MinTimestamp)/secondsPerDay)
	}
	if stats.Rows == 0 || days == 0 {
		return 0
	}
	return float64(stats.Rows) / days
}

// ExtensionDetails merges each extension's info with its absolute path
func ExtensionDetails(root string, extensions []Extension) map[string]ExtensionDetail {
	details := make(map[string]ExtensionDetail, len(extensions))
	for _, ext := range extensions {
		info := ext.Info
		if info == nil {
			info = map[string]any{}
		}
		details[ext.Name] = ExtensionDetail{
			Info: info,
			Path: filepath.Join(root, ext.Path),
		}
	}
	return details
}

// FeatureOverrides reports configuration drift per exportable package. It is
// empty when no feature packager is available.
func FeatureOverrides(ctx context.Context, caps *capability.Registry) (map[string][]string, error) {
	overrides := map[string][]string{}

	packager, ok := capability.Get[FeaturePackager](caps, capability.Features)
	if !ok {
		return overrides, nil
	}

	// Overrides are only detectable once packages have been assigned
	if err := packager.ApplyBundle(ctx); err != nil {
		return overrides, fmt.Errorf("apply feature bundle: %w", err)
	}

	packages, err := packager.Packages(ctx)
	if err != nil {
		return overrides, fmt.Errorf("list feature packages: %w", err)
	}

	for _, pkg := range packages {
		if pkg.Status == FeatureNoExport {
			continue
		}
		drift, err := packager.DetectOverrides(ctx, pkg)
		if err != nil {
			return overrides, fmt.Errorf("detect overrides for %s: %w", pkg.MachineName, err)
		}
		if drift == nil {
			drift = []string{}
		}
		overrides[pkg.MachineName] = drift
	}
	return overrides, nil
}

// DomainDetails describes every domain of a multi-domain site, keyed by
// numeric domain id. Aliases are attached when the alias subsystem exists.
func DomainDetails(ctx context.Context, caps *capability.Registry) (map[string]DomainRecord, error) {
	records := map[string]DomainRecord{}

	directory, ok := capability.Get[DomainDirectory](caps, capability.Domain)
	if !ok {
		return records, nil
	}

	domains, err := directory.Domains(ctx)
	if err != nil {
		return records, fmt.Errorf("load domains: %w", err)
	}

	keyByMachineName := make(map[string]string, len(domains))
	for _, d := range domains {
		key := strconv.Itoa(d.DomainID)
		keyByMachineName[d.ID] = key

		isDefault := 0
		if d.IsDefault {
			isDefault = 1
		}
		records[key] = DomainRecord{
			DomainID:    d.DomainID,
			Subdomain:   d.Hostname,
			Sitename:    d.Label,
			Scheme:      d.Scheme,
			Valid:       1,
			Weight:      d.Weight,
			IsDefault:   isDefault,
			MachineName: d.ID,
			Path:        d.Path,
			SiteGrant:   true,
			Aliases:     map[string]DomainAlias{},
		}
	}

	aliases, ok := capability.Get[AliasDirectory](caps, capability.DomainAlias)
	if !ok {
		return records, nil
	}

	list, err := aliases.DomainAliases(ctx)
	if err != nil {
		return records, fmt.Errorf("load domain aliases: %w", err)
	}

	for _, alias := range list {
		key, ok := keyByMachineName[alias.DomainID]
		if !ok {
			continue
		}
		records[key].Aliases[alias.ID] = DomainAlias{
			DomainID: alias.DomainID,
			AliasID:  alias.ID,
			Pattern:  alias.Pattern,
			Redirect: alias.Redirect,
		}
	}
	return records, nil
}

// LibraryDetails collects external library declarations. It is empty when no
// library registry is available.
func LibraryDetails(ctx context.Context, caps *capability.Registry) (map[string]any, error) {
	catalog, ok := capability.Get[LibraryCatalog](caps, capability.Libraries)
	if !ok {
		return map[string]any{}, nil
	}

	libraries, err := catalog.LibraryInfo(ctx)
	if err != nil {
		return map[string]any{}, fmt.Errorf("couldn't load library info due to a misconfiguration or missing dependencies: %w", err)
	}
	if libraries == nil {
		libraries = map[string]any{}
	}
	return libraries, nil
}

// RequirementIssues reports whether the platform's requirement checks found
// errors. Without a checker there is nothing to report.
func RequirementIssues(ctx context.Context, caps *capability.Registry) (bool, error) {
	checker, ok := capability.Get[RequirementsChecker](caps, capability.Requirements)
	if !ok {
		return false, nil
	}
	return checker.HasRequirementErrors(ctx)
}
