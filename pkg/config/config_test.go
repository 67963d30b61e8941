// Copyright 2024-2026 Aiku AI

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

func TestExampleConfigNotEmpty(t *testing.T) {
	t.Parallel()
	if ExampleConfig == "" {
		t.Error("ExampleConfig should not be empty (embedded from example-config.yaml)")
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Type != "sqlite3" || cfg.Database.URI != "threadtag.db" {
		t.Errorf("database: got %+v", cfg.Database)
	}
	if cfg.Directory.Source != "static" || len(cfg.Directory.Identities) != 0 {
		t.Errorf("directory: got %+v", cfg.Directory)
	}
	if cfg.Notifier.Type != "log" || cfg.Notifier.Concurrency != 8 {
		t.Errorf("notifier: got %+v", cfg.Notifier)
	}
	if cfg.Notification.SubjectPrefix != "[ATS] : " {
		t.Errorf("subject_prefix: got %q", cfg.Notification.SubjectPrefix)
	}
	if cfg.SMTP.Timeout != 30*time.Second {
		t.Errorf("smtp.timeout: got %v, want 30s", cfg.SMTP.Timeout)
	}
	if cfg.API.ListenAddr != ":29320" {
		t.Errorf("api.listen_addr: got %q", cfg.API.ListenAddr)
	}
	if err = cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestUpgradeConfig(t *testing.T) {
	t.Parallel()
	var baseNode yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &baseNode); err != nil {
		t.Fatalf("failed to parse base config: %v", err)
	}

	userCfg := `
database:
    type: pebble
    uri: /var/lib/threadtag
notifier:
    rate_limit: 2
`
	var cfgNode yaml.Node
	if err := yaml.Unmarshal([]byte(userCfg), &cfgNode); err != nil {
		t.Fatalf("failed to parse user config: %v", err)
	}

	upgradeConfig(up.NewHelper(&baseNode, &cfgNode))

	var cfg Config
	if err := baseNode.Decode(&cfg); err != nil {
		t.Fatalf("failed to decode merged config: %v", err)
	}
	if cfg.Database.Type != "pebble" || cfg.Database.URI != "/var/lib/threadtag" {
		t.Errorf("database after upgrade: got %+v", cfg.Database)
	}
	if cfg.Notifier.RateLimit != 2 {
		t.Errorf("notifier.rate_limit after upgrade: got %v, want 2", cfg.Notifier.RateLimit)
	}
	// Keys missing from the user config keep the example value.
	if cfg.Notifier.Type != "log" {
		t.Errorf("notifier.type after upgrade: got %q, want log", cfg.Notifier.Type)
	}
	if cfg.Notifier.Burst != 10 || cfg.SMTP.Port != 587 {
		t.Errorf("defaults after upgrade: burst %d, smtp port %d", cfg.Notifier.Burst, cfg.SMTP.Port)
	}
}

func TestParse_MergesOverDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
directory:
    source: static
    identities:
        - id: u1
          display_name: Jane Doe
          address: jane@example.com
        - id: u2
          display_name: Bob
          address: bob@example.com
notifier:
    type: smtp
    rate_limit: 2.5
smtp:
    host: mail.example.com
    port: 2525
    timeout: 5s
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Directory.Identities) != 2 || cfg.Directory.Identities[1].DisplayName != "Bob" {
		t.Errorf("identities: got %+v", cfg.Directory.Identities)
	}
	if cfg.Notifier.Type != "smtp" || cfg.Notifier.RateLimit != 2.5 {
		t.Errorf("notifier: got %+v", cfg.Notifier)
	}
	if cfg.Notifier.Burst != 10 {
		t.Errorf("notifier.burst should keep default: got %d", cfg.Notifier.Burst)
	}
	if cfg.SMTP.Host != "mail.example.com" || cfg.SMTP.Port != 2525 || cfg.SMTP.Timeout != 5*time.Second {
		t.Errorf("smtp: got %+v", cfg.SMTP)
	}
	if cfg.SMTP.From != "threadtag@example.com" {
		t.Errorf("smtp.from should keep default: got %q", cfg.SMTP.From)
	}
	if cfg.Database.Type != "sqlite3" {
		t.Errorf("database.type should keep default: got %q", cfg.Database.Type)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte("database: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.SMTP.Password = "from-file"
	env := map[string]string{
		EnvMattermostToken:   "mm-token",
		EnvMatrixAccessToken: "mx-token",
		EnvTelegramToken:     "tg-token",
	}
	cfg.ApplyEnv(func(key string) string { return env[key] })

	if cfg.Mattermost.Token != "mm-token" {
		t.Errorf("mattermost token: got %q", cfg.Mattermost.Token)
	}
	if cfg.Matrix.AccessToken != "mx-token" {
		t.Errorf("matrix token: got %q", cfg.Matrix.AccessToken)
	}
	if cfg.Telegram.Token != "tg-token" {
		t.Errorf("telegram token: got %q", cfg.Telegram.Token)
	}
	if cfg.SMTP.Password != "from-file" {
		t.Errorf("unset env var should not override: got %q", cfg.SMTP.Password)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown database", func(c *Config) { c.Database.Type = "mysql" }, "database.type"},
		{"missing uri", func(c *Config) { c.Database.URI = "" }, "database.uri"},
		{"unknown source", func(c *Config) { c.Directory.Source = "ldap" }, "directory.source"},
		{"file source without file", func(c *Config) { c.Directory.Source = "file" }, "directory.file"},
		{"bad cron", func(c *Config) { c.Directory.RefreshCron = "every minute" }, "refresh_cron"},
		{"empty cron", func(c *Config) { c.Directory.RefreshCron = "" }, ""},
		{"mattermost source without token", func(c *Config) { c.Directory.Source = "mattermost" }, "mattermost.token"},
		{"mattermost notifier with token", func(c *Config) {
			c.Notifier.Type = "mattermost"
			c.Mattermost.Token = "tok"
		}, ""},
		{"bad displayname template", func(c *Config) {
			c.Notifier.Type = "mattermost"
			c.Mattermost.Token = "tok"
			c.Mattermost.DisplaynameTemplate = "{{.Nope"
		}, "displayname_template"},
		{"smtp without host", func(c *Config) {
			c.Notifier.Type = "smtp"
			c.SMTP.Host = ""
		}, "smtp.host"},
		{"matrix without token", func(c *Config) { c.Notifier.Type = "matrix" }, "matrix.access_token"},
		{"telegram without token", func(c *Config) { c.Notifier.Type = "telegram" }, "telegram.token"},
		{"telegram with token", func(c *Config) {
			c.Notifier.Type = "telegram"
			c.Telegram.Token = "123:abc"
		}, ""},
		{"unknown notifier", func(c *Config) { c.Notifier.Type = "pigeon" }, "notifier.type"},
		{"negative rate", func(c *Config) { c.Notifier.RateLimit = -1 }, "rate limits"},
		{"bad body template", func(c *Config) { c.Notification.BodyTemplate = "{{if}}" }, "notification"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Parse(nil)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %v should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.Database.Type = "mysql"
	cfg.Notifier.Type = "pigeon"
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"database.type", "notifier.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "notifier:\n    type: matrix\nmatrix:\n    access_token: \"\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error without a matrix token")
	}

	t.Setenv(EnvMatrixAccessToken, "secret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matrix.AccessToken != "secret" {
		t.Errorf("matrix token: got %q, want %q", cfg.Matrix.AccessToken, "secret")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestDomainConfigs(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cfg.MattermostConfig(); got.ServerURL != cfg.Mattermost.ServerURL || got.PerPage != 200 {
		t.Errorf("MattermostConfig: got %+v", got)
	}
	if got := cfg.EmailConfig(); got.Host != "localhost" || got.Port != 587 || got.TLS != "opportunistic" {
		t.Errorf("EmailConfig: got %+v", got)
	}
	if got := cfg.MatrixConfig(); got.UserID != "@threadtag:example.com" {
		t.Errorf("MatrixConfig: got %+v", got)
	}
	if got := cfg.TelegramConfig(); got.APIEndpoint != "" || got.Timeout != 30*time.Second {
		t.Errorf("TelegramConfig: got %+v", got)
	}
	if got := cfg.RenderConfig(); got.SubjectPrefix != "[ATS] : " || got.Body == "" {
		t.Errorf("RenderConfig: got %+v", got)
	}
}

func TestLoggerLevel(t *testing.T) {
	t.Parallel()
	if got := (LoggingConfig{Level: "debug"}).Logger().GetLevel().String(); got != "debug" {
		t.Errorf("level: got %q, want debug", got)
	}
	if got := (LoggingConfig{Level: "bogus"}).Logger().GetLevel().String(); got != "info" {
		t.Errorf("invalid level should fall back to info: got %q", got)
	}
}
