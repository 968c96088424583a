package victorialogs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mr-karan/searchwatch/internal/backends"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		target, query, want string
	}{
		{target: "", query: "error", want: "error"},
		{target: "*", query: "error", want: "error"},
		{target: `{app="checkout"}`, query: "level:error", want: `{app="checkout"} level:error`},
		{target: `{app="checkout"}`, query: "  ", want: `{app="checkout"} *`},
	}
	for _, tt := range tests {
		if got := BuildQuery(tt.target, tt.query); got != tt.want {
			t.Errorf("BuildQuery(%q, %q) = %q, want %q", tt.target, tt.query, got, tt.want)
		}
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != queryPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
			return
		}
		if got := r.PostForm.Get("query"); got != `{app="api"} status:500` {
			t.Errorf("query = %q", got)
		}
		if got := r.PostForm.Get("limit"); got != "10" {
			t.Errorf("limit = %q", got)
		}
		if r.Header.Get("AccountID") != "7" || r.Header.Get("ProjectID") != "3" {
			t.Errorf("tenant headers = %q/%q", r.Header.Get("AccountID"), r.Header.Get("ProjectID"))
		}
		w.Header().Set("X-Stats-Rows-Read", "42")
		_, _ = w.Write([]byte("{\"_msg\":\"boom\",\"status\":\"500\"}\n\nnot json\n{\"_msg\":\"again\"}\n"))
	}))
	defer server.Close()

	backend, err := Open(backends.Config{URL: server.URL + "/", AccountID: "7", ProjectID: "3", MaxHits: 10}, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	docs, err := backend.Search(context.Background(), `{app="api"}`, "status:500")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Search() returned %d docs, want 2", len(docs))
	}
	if docs[0]["_msg"] != "boom" || docs[1]["_msg"] != "again" {
		t.Errorf("docs = %v", docs)
	}
}

func TestSearchQueryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cannot parse query", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{URL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	_, err = client.Search(context.Background(), "", "|||")
	var qe *backends.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("Search() error = %v, want *QueryError", err)
	}
	if qe.StatusCode != http.StatusBadRequest || !strings.Contains(qe.Message, "cannot parse") {
		t.Errorf("QueryError = %+v", qe)
	}
	if qe.Temporary() {
		t.Error("400 reported as temporary")
	}
}

func TestParseStatsFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Stats-Rows-Read", "12")
	h.Set("X-Stats-Bytes-Read", "2048")
	h.Set("X-Stats-Execution-Time-Seconds", "0.25")
	stats := parseStatsFromHeaders(h)
	if stats.RowsRead != 12 || stats.BytesRead != 2048 || stats.ExecutionTimeMs != 250 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(ClientOptions{}, nil); err == nil {
		t.Error("NewClient() accepted an empty URL")
	}
}
