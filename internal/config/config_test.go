package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalConfig = `
database:
  host: db.internal
  dbname: site
platform:
  root: /var/www/site
  base_url: https://www.example.com
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected default database port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Platform.Environment != "no_ema" {
		t.Errorf("expected default environment no_ema, got %q", cfg.Platform.Environment)
	}
	if len(cfg.Probe.SelfTestVariables) != 1 || cfg.Probe.SelfTestVariables[0] != "cron_last" {
		t.Errorf("unexpected self-test variables: %v", cfg.Probe.SelfTestVariables)
	}
	if cfg.Auth.Enabled() {
		t.Error("admin API should be disabled without credentials")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SITEPROBE_DATABASE_HOST", "override.internal")
	t.Setenv("SITEPROBE_DATABASE_PORT", "6543")
	t.Setenv("SITEPROBE_PLATFORM_BASE_URL", "https://staging.example.com")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Host != "override.internal" {
		t.Errorf("expected host override, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("expected port override, got %d", cfg.Database.Port)
	}
	if cfg.Platform.BaseURL != "https://staging.example.com" {
		t.Errorf("expected base url override, got %s", cfg.Platform.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		extra     string
		shouldErr bool
	}{
		{"Minimal", "", false},
		{"Bad trusted proxy", "server:\n  trusted_proxies: [\"not-an-ip\"]\n", true},
		{"Short JWT secret", "auth:\n  admin_username: admin\n  jwt_secret: short\n  admin_password_hash: $2a$10$abc\n", true},
		{"Plain password", "auth:\n  admin_username: admin\n  jwt_secret: \"12345678901234567890123456789012\"\n  admin_password_hash: secret\n", true},
		{"Valid auth", "auth:\n  admin_username: admin\n  jwt_secret: \"12345678901234567890123456789012\"\n  admin_password_hash: $2a$10$abc\n", false},
		{"Bad log level", "logging:\n  level: loud\n", true},
		{"TLS without files", "tls:\n  enabled: true\n", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, minimalConfig+tc.extra))
			if tc.shouldErr && err == nil {
				t.Error("expected validation error, got none")
			}
			if !tc.shouldErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDumpExampleConfigIsLoadable(t *testing.T) {
	var buf bytes.Buffer
	if err := DumpExampleConfig(&buf); err != nil {
		t.Fatalf("DumpExampleConfig: %v", err)
	}
	if !strings.Contains(buf.String(), "SITEPROBE_DATABASE_HOST") {
		t.Error("expected header with env override hint")
	}

	cfg, err := Load(writeConfig(t, buf.String()))
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if cfg.Platform.BaseURL != "https://www.example.com" {
		t.Errorf("unexpected base url %s", cfg.Platform.BaseURL)
	}
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "site", SSLMode: "disable"}
	got := d.ConnString()
	want := "postgres://u:p%40ss@db:5432/site?sslmode=disable"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
