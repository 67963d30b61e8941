// Copyright 2024-2026 Aiku AI

// Package config loads the threadtag YAML configuration. User files are
// merged over the embedded example config, so any key left out keeps its
// default.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"

	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/email"
	"github.com/aiku/threadtag/pkg/matrix"
	"github.com/aiku/threadtag/pkg/mattermost"
	"github.com/aiku/threadtag/pkg/telegram"
)

//go:embed example-config.yaml
var ExampleConfig string

// Environment variables that override secrets from the config file.
const (
	EnvSMTPPassword      = "THREADTAG_SMTP_PASSWORD"
	EnvMattermostToken   = "THREADTAG_MATTERMOST_TOKEN"
	EnvMatrixAccessToken = "THREADTAG_MATRIX_ACCESS_TOKEN"
	EnvTelegramToken     = "THREADTAG_TELEGRAM_TOKEN"
)

type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Directory    DirectoryConfig    `yaml:"directory"`
	Mattermost   MattermostConfig   `yaml:"mattermost"`
	Notifier     NotifierConfig     `yaml:"notifier"`
	Notification NotificationConfig `yaml:"notification"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Matrix       MatrixConfig       `yaml:"matrix"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"`
	URI  string `yaml:"uri"`
}

type DirectoryConfig struct {
	Source      string                  `yaml:"source"`
	File        string                  `yaml:"file"`
	Identities  []conversation.Identity `yaml:"identities"`
	RefreshCron string                  `yaml:"refresh_cron"`
}

type MattermostConfig struct {
	ServerURL           string        `yaml:"server_url"`
	Token               string        `yaml:"token"`
	DisplaynameTemplate string        `yaml:"displayname_template"`
	PerPage             int           `yaml:"per_page"`
	Timeout             time.Duration `yaml:"timeout"`
}

type NotifierConfig struct {
	Type                string  `yaml:"type"`
	RateLimit           float64 `yaml:"rate_limit"`
	Burst               int     `yaml:"burst"`
	PerAddressRateLimit float64 `yaml:"per_address_rate_limit"`
	Concurrency         int     `yaml:"concurrency"`
}

type NotificationConfig struct {
	SubjectPrefix     string `yaml:"subject_prefix"`
	Subject           string `yaml:"subject"`
	RecordURLTemplate string `yaml:"record_url_template"`
	BodyTemplate      string `yaml:"body_template"`
}

type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	TLS      string        `yaml:"tls"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MatrixConfig struct {
	HomeserverURL string        `yaml:"homeserver_url"`
	UserID        string        `yaml:"user_id"`
	AccessToken   string        `yaml:"access_token"`
	Timeout       time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	Token       string        `yaml:"token"`
	APIEndpoint string        `yaml:"api_endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "database", "type")
	helper.Copy(up.Str, "database", "uri")

	helper.Copy(up.Str, "directory", "source")
	helper.Copy(up.Str, "directory", "file")
	helper.Copy(up.List, "directory", "identities")
	helper.Copy(up.Str, "directory", "refresh_cron")

	helper.Copy(up.Str, "mattermost", "server_url")
	helper.Copy(up.Str, "mattermost", "token")
	helper.Copy(up.Str, "mattermost", "displayname_template")
	helper.Copy(up.Int, "mattermost", "per_page")
	helper.Copy(up.Str, "mattermost", "timeout")

	helper.Copy(up.Str, "notifier", "type")
	helper.Copy(up.Float|up.Int, "notifier", "rate_limit")
	helper.Copy(up.Int, "notifier", "burst")
	helper.Copy(up.Float|up.Int, "notifier", "per_address_rate_limit")
	helper.Copy(up.Int, "notifier", "concurrency")

	helper.Copy(up.Str, "notification", "subject_prefix")
	helper.Copy(up.Str, "notification", "subject")
	helper.Copy(up.Str, "notification", "record_url_template")
	helper.Copy(up.Str, "notification", "body_template")

	helper.Copy(up.Str, "smtp", "host")
	helper.Copy(up.Int, "smtp", "port")
	helper.Copy(up.Str, "smtp", "username")
	helper.Copy(up.Str, "smtp", "password")
	helper.Copy(up.Str, "smtp", "from")
	helper.Copy(up.Str, "smtp", "tls")
	helper.Copy(up.Str, "smtp", "timeout")

	helper.Copy(up.Str, "matrix", "homeserver_url")
	helper.Copy(up.Str, "matrix", "user_id")
	helper.Copy(up.Str, "matrix", "access_token")
	helper.Copy(up.Str, "matrix", "timeout")

	helper.Copy(up.Str, "telegram", "token")
	helper.Copy(up.Str, "telegram", "api_endpoint")
	helper.Copy(up.Str, "telegram", "timeout")

	helper.Copy(up.Str, "api", "listen_addr")

	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Bool, "logging", "pretty")
}

// Upgrader merges a user config over ExampleConfig.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Base:           ExampleConfig,
}

// Parse merges data over the example config and decodes the result. Empty
// data yields the defaults.
func Parse(data []byte) (*Config, error) {
	var baseNode yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &baseNode); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		var cfgNode yaml.Node
		if err := yaml.Unmarshal(data, &cfgNode); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		Upgrader.DoUpgrade(up.NewHelper(&baseNode, &cfgNode))
	}
	var cfg Config
	if err := baseNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path, applies environment overrides and
// validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets with the non-empty values returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvSMTPPassword); v != "" {
		c.SMTP.Password = v
	}
	if v := getenv(EnvMattermostToken); v != "" {
		c.Mattermost.Token = v
	}
	if v := getenv(EnvMatrixAccessToken); v != "" {
		c.Matrix.AccessToken = v
	}
	if v := getenv(EnvTelegramToken); v != "" {
		c.Telegram.Token = v
	}
}

// Validate checks backend selections and the fields they require. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Type {
	case "sqlite3", "sqlite", "postgres", "pgx", "pebble":
		if c.Database.URI == "" {
			errs = append(errs, errors.New("database.uri is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not one of sqlite3, postgres, pebble", c.Database.Type))
	}

	needMattermost := c.Notifier.Type == "mattermost"
	switch c.Directory.Source {
	case "static":
	case "file":
		if c.Directory.File == "" {
			errs = append(errs, errors.New("directory.file is required for the file source"))
		}
	case "mattermost":
		needMattermost = true
	default:
		errs = append(errs, fmt.Errorf("directory.source %q is not one of static, file, mattermost", c.Directory.Source))
	}
	if c.Directory.RefreshCron != "" && !gronx.IsValid(c.Directory.RefreshCron) {
		errs = append(errs, fmt.Errorf("directory.refresh_cron %q is not a valid cron expression", c.Directory.RefreshCron))
	}

	if needMattermost {
		if c.Mattermost.ServerURL == "" {
			errs = append(errs, errors.New("mattermost.server_url is required"))
		}
		if c.Mattermost.Token == "" {
			errs = append(errs, fmt.Errorf("mattermost.token is required (or set %s)", EnvMattermostToken))
		}
		if _, err := mattermost.NewDisplaynamer(c.Mattermost.DisplaynameTemplate); err != nil {
			errs = append(errs, fmt.Errorf("mattermost.displayname_template: %w", err))
		}
	}

	switch c.Notifier.Type {
	case "log", "mattermost":
	case "smtp":
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp.host is required"))
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("smtp.from is required"))
		}
	case "matrix":
		if c.Matrix.HomeserverURL == "" || c.Matrix.UserID == "" {
			errs = append(errs, errors.New("matrix.homeserver_url and matrix.user_id are required"))
		}
		if c.Matrix.AccessToken == "" {
			errs = append(errs, fmt.Errorf("matrix.access_token is required (or set %s)", EnvMatrixAccessToken))
		}
	case "telegram":
		if c.Telegram.Token == "" {
			errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.type %q is not one of smtp, mattermost, matrix, telegram, log", c.Notifier.Type))
	}
	if c.Notifier.RateLimit < 0 || c.Notifier.PerAddressRateLimit < 0 {
		errs = append(errs, errors.New("notifier rate limits must not be negative"))
	}

	if _, err := conversation.NewRenderer(c.RenderConfig()); err != nil {
		errs = append(errs, fmt.Errorf("notification: %w", err))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// RenderConfig returns the notification templates.
func (c *Config) RenderConfig() conversation.RenderConfig {
	return conversation.RenderConfig{
		SubjectPrefix: c.Notification.SubjectPrefix,
		Subject:       c.Notification.Subject,
		Body:          c.Notification.BodyTemplate,
		RecordURL:     c.Notification.RecordURLTemplate,
	}
}

func (c *Config) MattermostConfig() mattermost.Config {
	return mattermost.Config{
		ServerURL:           c.Mattermost.ServerURL,
		Token:               c.Mattermost.Token,
		DisplaynameTemplate: c.Mattermost.DisplaynameTemplate,
		PerPage:             c.Mattermost.PerPage,
		Timeout:             c.Mattermost.Timeout,
	}
}

func (c *Config) EmailConfig() email.Config {
	return email.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		TLS:      c.SMTP.TLS,
		Timeout:  c.SMTP.Timeout,
	}
}

func (c *Config) MatrixConfig() matrix.Config {
	return matrix.Config{
		HomeserverURL: c.Matrix.HomeserverURL,
		UserID:        c.Matrix.UserID,
		AccessToken:   c.Matrix.AccessToken,
		Timeout:       c.Matrix.Timeout,
	}
}

func (c *Config) TelegramConfig() telegram.Config {
	return telegram.Config{
		Token:       c.Telegram.Token,
		APIEndpoint: c.Telegram.APIEndpoint,
		Timeout:     c.Telegram.Timeout,
	}
}

// Logger builds the root logger. Pretty output goes to a console writer on
// stderr, JSON otherwise.
func (l LoggingConfig) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if l.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
