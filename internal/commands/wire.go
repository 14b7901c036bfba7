package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siteprobe/siteprobe/internal/api"
	"github.com/siteprobe/siteprobe/internal/capability"
	"github.com/siteprobe/siteprobe/internal/config"
	"github.com/siteprobe/siteprobe/internal/database"
	"github.com/siteprobe/siteprobe/internal/extensions"
	"github.com/siteprobe/siteprobe/internal/probe"
	"github.com/siteprobe/siteprobe/internal/rpc"
	"github.com/siteprobe/siteprobe/internal/store"
)

// platform is the assembled set of services a command works against
type platform struct {
	cfg          *config.Config
	logger       *slog.Logger
	pool         *pgxpool.Pool
	queries      *store.Queries
	registry     *extensions.Registry
	capabilities *capability.Registry
}

func openPlatform(ctx context.Context, load loader) (*platform, error) {
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := config.InitLogger(cfg.Logging, os.Stderr)

	pool, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("DB init failed: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	queries := store.New(pool)
	return &platform{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		queries:      queries,
		registry:     extensions.NewRegistry(cfg.Platform.Root, cfg.Platform.ExtensionDirs, queries, logger),
		capabilities: capability.NewRegistry(),
	}, nil
}

func (p *platform) Close() {
	p.pool.Close()
}

// scan reloads installed extensions and re-registers the optional
// capabilities that depend on them
func (p *platform) scan(ctx context.Context) error {
	if err := p.registry.Scan(ctx); err != nil {
		return err
	}

	p.capabilities.Register(capability.Requirements, p.registry)
	if p.registry.IsInstalled(capability.Libraries) {
		p.capabilities.Register(capability.Libraries, p.registry)
	} else {
		p.capabilities.Register(capability.Libraries, nil)
	}

	if p.registry.IsInstalled(capability.Features) {
		packager := extensions.NewPackager(p.registry, p.queries, p.cfg.Platform.FeaturesBundle)
		p.capabilities.Register(capability.Features, packager)
	} else {
		p.capabilities.Register(capability.Features, nil)
	}

	for _, name := range []string{capability.Domain, capability.DomainAlias} {
		if p.registry.IsInstalled(name) {
			p.capabilities.Register(name, p.queries)
		} else {
			p.capabilities.Register(name, nil)
		}
	}

	p.logger.Info("Capabilities registered", "capabilities", p.capabilities.Names())
	return nil
}

func (p *platform) probeService(opts ...probe.Option) *probe.Service {
	return probe.NewService(probe.Sources{
		Database:     p.queries,
		Config:       p.queries,
		State:        p.queries,
		Extensions:   p.registry,
		Updates:      p.registry,
		Schema:       p.queries,
		Capabilities: p.capabilities,
		Contributors: []probe.ContributesAPIInfo{p.registry},
	}, probe.Site{
		Version:     p.cfg.Platform.Version,
		Root:        p.cfg.Platform.Root,
		BaseURL:     p.cfg.Platform.BaseURL,
		Environment: p.cfg.Platform.Environment,
	}, p.logger, opts...)
}

func newSelfTest(cfg *config.Config, reader probe.ConfigReader) *api.SelfTest {
	client := rpc.NewClient(cfg.Platform.BaseURL, cfg.Probe.SelfTestPath, cfg.Probe.SelfTestTimeout())
	return api.NewSelfTest(reader, client, cfg.Probe.SelfTestVariables)
}
