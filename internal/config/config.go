// Package config loads the searchwatch service configuration and the rules file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mr-karan/searchwatch/internal/backends"
	"github.com/mr-karan/searchwatch/pkg/cron"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "SEARCHWATCH_"

// Config is the service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	Search       SearchConfig       `koanf:"search"`
	Rules        RulesConfig        `koanf:"rules"`
	Alerts       AlertsConfig       `koanf:"alerts"`
	History      HistoryConfig      `koanf:"history"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	SMTP         SMTPConfig         `koanf:"smtp"`
	Slack        SlackConfig        `koanf:"slack"`
	SMS          SMSConfig          `koanf:"sms"`
	Alertmanager AlertmanagerConfig `koanf:"alertmanager"`
}

// ServerConfig holds the admin API listener settings.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

type LoggingConfig struct {
	Debug bool `koanf:"debug"`
}

// SearchConfig selects and configures the search backend.
type SearchConfig struct {
	Type          string            `koanf:"type"` // elasticsearch, victorialogs, clickhouse
	URL           string            `koanf:"url"`
	Username      string            `koanf:"username"`
	Password      string            `koanf:"password"`
	APIKey        string            `koanf:"api_key"`
	Database      string            `koanf:"database"`
	Timeout       time.Duration     `koanf:"timeout"`
	MaxHits       int               `koanf:"max_hits"`
	Headers       map[string]string `koanf:"headers"`
	TLSSkipVerify bool              `koanf:"tls_skip_verify"`
	AccountID     string            `koanf:"account_id"`
	ProjectID     string            `koanf:"project_id"`
}

// RulesConfig points at the rules file.
type RulesConfig struct {
	Path     string        `koanf:"path"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce"`
}

// AlertsConfig tunes rule execution.
type AlertsConfig struct {
	NotificationTimeout time.Duration `koanf:"notification_timeout"`
	MatchSampleSize     int           `koanf:"match_sample_size"`
	DayMatch            string        `koanf:"day_match"` // union, intersect
}

// HistoryConfig controls the sqlite execution history.
type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	Limit   int    `koanf:"limit"`
}

type MetricsConfig struct {
	ProcessMetrics bool `koanf:"process_metrics"`
}

// SMTPConfig configures the email sender. Email is disabled when Host is empty.
type SMTPConfig struct {
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	ReplyTo       string        `koanf:"reply_to"`
	Security      string        `koanf:"security"` // none, starttls, tls
	Timeout       time.Duration `koanf:"timeout"`
	SkipTLSVerify bool          `koanf:"skip_tls_verify"`
}

// SlackConfig configures the webhook sender.
type SlackConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Timeout       time.Duration `koanf:"timeout"`
	SkipTLSVerify bool          `koanf:"skip_tls_verify"`
}

// SMSConfig configures the HTTP SMS gateways. SMS is disabled without providers.
type SMSConfig struct {
	Timeout   time.Duration                `koanf:"timeout"`
	Providers map[string]SMSProviderConfig `koanf:"providers"`
}

type SMSProviderConfig struct {
	URL             string            `koanf:"url"`
	Token           string            `koanf:"token"`
	Headers         map[string]string `koanf:"headers"`
	DefaultSenderID string            `koanf:"default_sender_id"`
}

// AlertmanagerConfig configures the Alertmanager client. Disabled when URL is empty.
type AlertmanagerConfig struct {
	URL           string            `koanf:"url"`
	Timeout       time.Duration     `koanf:"timeout"`
	SkipTLSVerify bool              `koanf:"skip_tls_verify"`
	Headers       map[string]string `koanf:"headers"`
	MaxRetries    int               `koanf:"max_retries"`
	RetryDelay    time.Duration     `koanf:"retry_delay"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: true,
			Address: "127.0.0.1:9280",
		},
		Search: SearchConfig{
			Type:    "elasticsearch",
			URL:     "http://localhost:9200",
			Timeout: 30 * time.Second,
			MaxHits: 100,
		},
		Rules: RulesConfig{
			Path:     "rules.toml",
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Alerts: AlertsConfig{
			NotificationTimeout: 30 * time.Second,
			MatchSampleSize:     5,
			DayMatch:            "union",
		},
		History: HistoryConfig{
			Path:  "searchwatch.db",
			Limit: 100,
		},
		SMTP: SMTPConfig{
			Port:     587,
			Security: "starttls",
			Timeout:  10 * time.Second,
		},
		Slack: SlackConfig{
			Enabled: true,
			Timeout: 10 * time.Second,
		},
		SMS: SMSConfig{
			Timeout: 10 * time.Second,
		},
		Alertmanager: AlertmanagerConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			RetryDelay: 500 * time.Millisecond,
		},
	}
}

// Load reads path (optional when it does not exist) and applies SEARCHWATCH_*
// environment overrides on top of Default.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up by defaults.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Search.Type) == "" {
		errs = append(errs, errors.New("search.type is required"))
	}
	if strings.TrimSpace(c.Search.URL) == "" {
		errs = append(errs, errors.New("search.url is required"))
	}
	if _, err := cron.ParseDayMatch(c.Alerts.DayMatch); err != nil {
		errs = append(errs, fmt.Errorf("alerts.day_match: %w", err))
	}
	if c.Alerts.MatchSampleSize < 0 {
		errs = append(errs, errors.New("alerts.match_sample_size must not be negative"))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Address) == "" {
		errs = append(errs, errors.New("server.address is required when the server is enabled"))
	}
	switch strings.ToLower(c.SMTP.Security) {
	case "", "none", "starttls", "tls":
	default:
		errs = append(errs, fmt.Errorf("smtp.security: unknown mode %q", c.SMTP.Security))
	}
	return errors.Join(errs...)
}

// DayMatch returns the parsed day matching mode. Call after Validate.
func (c *Config) DayMatch() cron.DayMatch {
	d, _ := cron.ParseDayMatch(c.Alerts.DayMatch)
	return d
}

// Backend converts the search section into backend connection settings.
func (c *Config) Backend() backends.Config {
	return backends.Config{
		Type:          backends.BackendType(c.Search.Type),
		URL:           c.Search.URL,
		Username:      c.Search.Username,
		Password:      c.Search.Password,
		APIKey:        c.Search.APIKey,
		Database:      c.Search.Database,
		Timeout:       c.Search.Timeout,
		MaxHits:       c.Search.MaxHits,
		Headers:       c.Search.Headers,
		TLSSkipVerify: c.Search.TLSSkipVerify,
		AccountID:     c.Search.AccountID,
		ProjectID:     c.Search.ProjectID,
	}
}

// envToKey maps SEARCHWATCH_SEARCH_URL to search.url. Only the first underscore
// after the prefix separates the section, so SEARCHWATCH_ALERTS_DAY_MATCH is
// alerts.day_match.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + key
}
