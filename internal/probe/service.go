package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siteprobe/siteprobe/internal/capability"
)

// rootUID is the account whose name and mail are reported as the site owner
const rootUID = 1

// Sources are the platform services a probe reads from
type Sources struct {
	Database     Database
	Config       ConfigReader
	State        StateStore
	Extensions   ExtensionList
	Updates      UpdateDefinitions
	Schema       SchemaStore
	Capabilities *capability.Registry
	Contributors []ContributesAPIInfo
}

// Site holds the static facts about the platform installation
type Site struct {
	Version     string
	Root        string
	BaseURL     string
	Environment string
}

// Observer is told about probe outcomes, typically to export metrics
type Observer interface {
	ProbeAllowed(reason Reason)
	ProbeDenied(reason Reason)
	ProbeFailed()
	CollectorFailed(section string)
	LastProbed(at time.Time)
}

type nopObserver struct{}

func (nopObserver) ProbeAllowed(Reason)    {}
func (nopObserver) ProbeDenied(Reason)     {}
func (nopObserver) ProbeFailed()           {}
func (nopObserver) CollectorFailed(string) {}
func (nopObserver) LastProbed(time.Time)   {}

// Service authorizes probe requests and assembles snapshots
type Service struct {
	sources  Sources
	site     Site
	clock    func() time.Time
	observer Observer
	logger   *slog.Logger
	sections []section
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithObserver registers an observer for probe outcomes
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// NewService creates a probe service over the given sources
func NewService(sources Sources, site Site, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		sources:  sources,
		site:     site,
		clock:    time.Now,
		observer: nopObserver{},
		logger:   logger.With("component", "probe"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sections = s.declareSections()
	return s
}

// input is what sections share within one probe
type input struct {
	request  Request
	settings ConfigObject
}

// section fills one part of the snapshot. Critical sections read the site's
// own storage and abort the probe on error; the rest degrade to their empty
// value.
type section struct {
	name     string
	critical bool
	collect  func(ctx context.Context, in *input, snap *Snapshot) error
}

// Probe authorizes the request and, when allowed, records the probe time and
// assembles a snapshot. A denied request has no side effects.
func (s *Service) Probe(ctx context.Context, req Request) (*Snapshot, error) {
	settings, err := s.sources.Config.Config(ctx, SettingsConfig)
	if err != nil {
		s.observer.ProbeFailed()
		return nil, &DataSourceError{Section: "settings", Err: err}
	}

	decision := Authorize(req.ProbeKey, req.ClientIP, settings.String(KeyProbeKey), settings.String(KeyAllowedIPs))
	if !decision.Allowed {
		s.logger.Warn("Probe denied",
			"ip", decision.IP,
			"probe_key", decision.Key,
			"reason", decision.Reason,
		)
		s.observer.ProbeDenied(decision.Reason)
		return nil, decision.Err()
	}

	s.recordProbe(ctx)
	s.logger.Info("Probe served", "ip", req.ClientIP, "reason", decision.Reason)

	snap := s.newSnapshot()
	in := &input{request: req, settings: settings}
	for _, sec := range s.sections {
		if err := ctx.Err(); err != nil {
			s.observer.ProbeFailed()
			return nil, fmt.Errorf("probe cancelled before %s: %w", sec.name, err)
		}
		if err := s.run(ctx, sec, in, snap); err != nil {
			s.observer.ProbeFailed()
			return nil, err
		}
	}

	snap.Platform = snap.Metadata.InstallProfile
	s.observer.ProbeAllowed(decision.Reason)
	return snap, nil
}

// recordProbe stores the probe time. It runs before collection so an
// attempt is recorded even when assembly later fails.
func (s *Service) recordProbe(ctx context.Context) {
	now := s.clock()
	if err := s.sources.State.SetState(ctx, LastProbedKey, now.Unix()); err != nil {
		s.logger.Warn("Failed to record probe time", "error", err)
		return
	}
	s.observer.LastProbed(now)
}

func (s *Service) run(ctx context.Context, sec section, in *input, snap *Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err == nil {
			return
		}
		if sec.critical {
			err = &DataSourceError{Section: sec.name, Err: err}
			return
		}
		s.logger.Error("Collector failed", "section", sec.name, "error", err)
		s.observer.CollectorFailed(sec.name)
		err = nil
	}()

	return sec.collect(ctx, in, snap)
}

func (s *Service) newSnapshot() *Snapshot {
	return &Snapshot{
		Variables: map[string]any{},
		Metadata: Metadata{
			PlatformVersion:    s.site.Version,
			PlatformRoot:       s.site.Root,
			BaseURL:            s.site.BaseURL,
			Environment:        s.site.Environment,
			NumUsers:           map[int]int64{},
			NumUsersRoles:      map[string]map[int]int64{},
			NumNodesType:       map[string]map[int]int64{},
			DatabaseUpdates:    []string{},
			OverriddenFeatures: map[string][]string{},
			Domains:            map[string]DomainRecord{},
		},
		Modules:   map[string]ExtensionDetail{},
		Libraries: map[string]any{},
		Themes:    map[string]ExtensionDetail{},
		APIs:      map[string]APIDetail{},
	}
}

// declareSections fixes the order sections run in
func (s *Service) declareSections() []section {
	src := s.sources

	return []section{
		{name: "users", critical: true, collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			root, err := src.Database.Account(ctx, rootUID)
			if err != nil {
				return err
			}
			snap.Users.Root = root
			return nil
		}},
		{name: "variables", critical: true, collect: func(ctx context.Context, in *input, snap *Snapshot) error {
			whitelist := in.settings.Strings(KeyVariablesWhitelist)
			vars, err := RequestedVariables(ctx, in.request.Variables, whitelist, in.settings, src.State)
			if err != nil {
				return err
			}
			snap.Variables = vars
			return nil
		}},
		{name: "site", critical: true, collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			site, err := src.Config.Config(ctx, SiteConfig)
			if err != nil {
				return err
			}
			extension, err := src.Config.Config(ctx, ExtensionConfig)
			if err != nil {
				return err
			}
			snap.SiteName = site.String("name")
			snap.SiteMail = site.String("mail")
			snap.Metadata.InstallProfile = extension.String("profile")
			return nil
		}},
		{name: "num_users", critical: true, collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			counts, err := UsersPerStatus(ctx, src.Database)
			if err != nil {
				return err
			}
			snap.Metadata.NumUsers = counts
			return nil
		}},
		{name: "num_users_roles", critical: true, collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			counts, err := UsersPerRolePerStatus(ctx, src.Database)
			if err != nil {
				return err
			}
			snap.Metadata.NumUsersRoles = counts
			return nil
		}},
		{name: "num_nodes_type", critical: true, collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			counts, err := NodesPerTypePerStatus(ctx, src.Database)
			if err != nil {
				return err
			}
			snap.Metadata.NumNodesType = counts
			return nil
		}},
		{name: "logs", critical: true, collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			stats, err := src.Database.LogStats(ctx)
			if err != nil {
				return err
			}
			snap.Metadata.Logs = DailyLogAverage(stats)
			return nil
		}},
		{name: "database_updates", collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			pending, err := PendingSchemaUpdates(ctx, src.Extensions.Modules(), src.Updates, src.Schema)
			if err != nil {
				return err
			}
			snap.Metadata.DatabaseUpdates = pending
			return nil
		}},
		{name: "overridden_features", collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			overrides, err := FeatureOverrides(ctx, src.Capabilities)
			if err != nil {
				return err
			}
			snap.Metadata.OverriddenFeatures = overrides
			return nil
		}},
		{name: "domains", collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			domains, err := DomainDetails(ctx, src.Capabilities)
			if err != nil {
				return err
			}
			snap.Metadata.Domains = domains
			return nil
		}},
		{name: "requirement_issues", collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			issues, err := RequirementIssues(ctx, src.Capabilities)
			if err != nil {
				return err
			}
			snap.Metadata.RequirementIssues = issues
			return nil
		}},
		{name: "modules", collect: func(_ context.Context, _ *input, snap *Snapshot) error {
			snap.Modules = ExtensionDetails(s.site.Root, src.Extensions.Modules())
			return nil
		}},
		{name: "libraries", collect: func(ctx context.Context, _ *input, snap *Snapshot) error {
			libraries, err := LibraryDetails(ctx, src.Capabilities)
			if err != nil {
				return err
			}
			snap.Libraries = libraries
			return nil
		}},
		{name: "themes", collect: func(_ context.Context, _ *input, snap *Snapshot) error {
			snap.Themes = ExtensionDetails(s.site.Root, src.Extensions.Themes())
			return nil
		}},
		{name: "apis", collect: func(_ context.Context, _ *input, snap *Snapshot) error {
			snap.APIs = DiscoverAPIContributions(src.Contributors, src.Extensions, s.logger)
			return nil
		}},
	}
}
