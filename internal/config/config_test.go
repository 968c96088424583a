package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mr-karan/searchwatch/pkg/cron"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	def := Default()
	if cfg.Search.URL != def.Search.URL || cfg.Rules.Path != def.Rules.Path {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if cfg.DayMatch() != cron.DayMatchUnion {
		t.Errorf("DayMatch() = %v", cfg.DayMatch())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "searchwatch.toml", `
[search]
type = "victorialogs"
url = "http://vl:9428"
timeout = "5s"
account_id = "3"

[alerts]
day_match = "intersect"
notification_timeout = "3s"

[sms.providers.gateway]
url = "https://sms.example.com/send"
token = "t"
`)
	t.Setenv("SEARCHWATCH_SEARCH_URL", "http://override:9428")
	t.Setenv("SEARCHWATCH_ALERTS_MATCH_SAMPLE_SIZE", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Search.Type != "victorialogs" || cfg.Search.URL != "http://override:9428" {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Search.Timeout != 5*time.Second || cfg.Alerts.NotificationTimeout != 3*time.Second {
		t.Errorf("durations not decoded: %v %v", cfg.Search.Timeout, cfg.Alerts.NotificationTimeout)
	}
	if cfg.Alerts.MatchSampleSize != 7 {
		t.Errorf("MatchSampleSize = %d", cfg.Alerts.MatchSampleSize)
	}
	if cfg.DayMatch() != cron.DayMatchIntersect {
		t.Errorf("DayMatch() = %v", cfg.DayMatch())
	}
	if p := cfg.SMS.Providers["gateway"]; p.URL != "https://sms.example.com/send" {
		t.Errorf("SMS providers = %+v", cfg.SMS.Providers)
	}
	if b := cfg.Backend(); b.AccountID != "3" || b.Type != "victorialogs" {
		t.Errorf("Backend() = %+v", b)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "bad.toml", `
[search]
url = ""
[alerts]
day_match = "sometimes"
[smtp]
security = "ssl3"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() accepted an invalid config")
	}
	for _, want := range []string{"search.url", "alerts.day_match", "smtp.security"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnvToKey(t *testing.T) {
	tests := map[string]string{
		"SEARCHWATCH_SEARCH_URL":           "search.url",
		"SEARCHWATCH_ALERTS_DAY_MATCH":     "alerts.day_match",
		"SEARCHWATCH_HISTORY_ENABLED":      "history.enabled",
		"SEARCHWATCH_LOGGING":              "logging",
		"SEARCHWATCH_SMTP_SKIP_TLS_VERIFY": "smtp.skip_tls_verify",
	}
	for in, want := range tests {
		if got := envToKey(in); got != want {
			t.Errorf("envToKey(%q) = %q, want %q", in, got, want)
		}
	}
}
