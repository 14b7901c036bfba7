package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okzk/sdnotify"
	"github.com/spf13/cobra"

	"github.com/siteprobe/siteprobe/internal/api"
	"github.com/siteprobe/siteprobe/internal/auth"
	"github.com/siteprobe/siteprobe/internal/metrics"
	"github.com/siteprobe/siteprobe/internal/middleware"
	"github.com/siteprobe/siteprobe/internal/probe"
)

// NewServeCmd creates the serve command
func NewServeCmd(load loader, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the probe endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), load, version)
		},
	}
}

func serve(ctx context.Context, load loader, version string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := openPlatform(ctx, load)
	if err != nil {
		return err
	}
	defer p.Close()

	cfg, logger := p.cfg, p.logger
	logger.Info("Starting siteprobe",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"platform_root", cfg.Platform.Root,
	)

	if err := p.scan(ctx); err != nil {
		return fmt.Errorf("failed to scan extensions: %w", err)
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	var authService *auth.Service
	if cfg.Auth.Enabled() {
		authService, err = auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, cfg.Auth.JWTExpiry())
		if err != nil {
			return fmt.Errorf("failed to initialize auth service: %w", err)
		}
	} else {
		logger.Info("Admin API disabled")
	}

	var opts []probe.Option
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, probe.WithObserver(m))
	}

	router := api.NewRouter(api.Dependencies{
		Config:   cfg,
		Prober:   p.probeService(opts...),
		State:    p.queries,
		DB:       p.pool,
		Auth:     authService,
		SelfTest: newSelfTest(cfg, p.queries),
		Metrics:  m,
		Trusted:  trusted,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr, "tls", cfg.TLS.Enabled)
		var err error
		if cfg.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	notify(sdnotify.Ready)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

loop:
	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("server failed: %w", err)
			}
			break loop
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				logger.Info("Rescanning extensions")
				notify(sdnotify.Reloading)
				if err := p.scan(ctx); err != nil {
					logger.Error("Failed to rescan extensions", "error", err)
				}
				notify(sdnotify.Ready)
				continue
			}
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	logger.Info("Shutting down server...")
	notify(sdnotify.Stopping)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// notify sends a systemd notification; it is a no-op outside systemd
func notify(send func() error) {
	if runtime.GOOS == "linux" {
		_ = send()
	}
}
