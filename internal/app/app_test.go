package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mr-karan/searchwatch/internal/config"
	"github.com/mr-karan/searchwatch/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestNewDispatcherEnablesConfiguredChannels(t *testing.T) {
	cfg := config.Default()
	cfg.Slack.Enabled = false
	d, err := NewDispatcher(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}
	if !d.Supports(models.ChannelConsole) || d.Supports(models.ChannelSlack) || d.Supports(models.ChannelEmail) {
		t.Errorf("channels = %v, want console only", d.Channels())
	}

	cfg.Slack.Enabled = true
	cfg.SMTP.Host = "smtp.example.com"
	cfg.SMS.Providers = map[string]config.SMSProviderConfig{"gw": {URL: "https://sms.example.com"}}
	cfg.Alertmanager.URL = "http://alertmanager:9093"
	d, err = NewDispatcher(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}
	if got := len(d.Channels()); got != 5 {
		t.Errorf("channels = %v, want all five", d.Channels())
	}
}

func TestNewBackendRegistry(t *testing.T) {
	got := NewBackendRegistry(discardLogger()).Types()
	want := []string{"clickhouse", "elasticsearch", "opensearch", "victorialogs"}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("Types()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunEvaluatesRules(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, `{"version":{"number":"8.12.0"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"hits":{"hits":[{"_id":"1","_index":"logs","_source":{"level":"error"}}]}}`)
	}))
	defer search.Close()

	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.toml", `
[[notifications]]
id = "log"
type = "console"
[notifications.console]
message = "{{ruleName}} matched {{matchCount}}"

[[rules]]
id = "errors"
name = "errors"
cron = "0 0 1 1 *"
target = "logs"
query = '{"query":{"match_all":{}}}'
start_immediately = true
[[rules.notifications]]
id = "log"
`)
	configPath := writeFile(t, dir, "searchwatch.toml", fmt.Sprintf(`
[server]
enabled = false
[search]
type = "elasticsearch"
url = %q
[rules]
path = %q
watch = false
[history]
enabled = true
path = %q
`, search.URL, rulesPath, filepath.Join(dir, "history.db")))

	a, err := New(Options{ConfigPath: configPath, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	history := a.History

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var execs []models.ExecutionRecord
	deadline := time.Now().Add(3 * time.Second)
	for {
		execs, err = history.ListExecutions(ctx, "errors", 10)
		if err != nil {
			t.Fatalf("ListExecutions() error: %v", err)
		}
		rule, _ := a.Alerts.Rule("errors")
		if len(execs) > 0 && rule.LastRun != nil && a.Metrics.ExecutionCount("errors", models.ExecutionSuccess) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rule was never executed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(execs) != 1 || execs[0].MatchCount != 1 || execs[0].Status != models.ExecutionSuccess {
		t.Errorf("executions = %+v", execs)
	}
	if rule, _ := a.Alerts.Rule("errors"); rule.LastMatchCount != 1 {
		t.Errorf("rule = %+v", rule)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunRejectsInvalidRules(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.toml", "[[rules]]\nname = \"broken\"\n")
	configPath := writeFile(t, dir, "searchwatch.toml", fmt.Sprintf(`
[server]
enabled = false
[search]
url = "http://127.0.0.1:1"
[rules]
path = %q
`, rulesPath))

	a, err := New(Options{ConfigPath: configPath, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run() accepted an invalid rules file")
	}
}
