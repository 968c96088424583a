// Package victorialogs runs alert queries against VictoriaLogs over its LogsQL HTTP API.
package victorialogs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr-karan/searchwatch/internal/backends"
	"github.com/mr-karan/searchwatch/pkg/models"
)

const (
	DefaultQueryTimeout = 60 * time.Second
	queryPath           = "/select/logsql/query"
)

var (
	_ backends.SearchBackend = (*Client)(nil)
	_ backends.Pinger        = (*Client)(nil)
	_ backends.Closer        = (*Client)(nil)
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	accountID  string
	projectID  string
	headers    map[string]string
	timeout    time.Duration
	limit      int
	logger     *slog.Logger
}

type ClientOptions struct {
	URL       string
	AccountID string
	ProjectID string
	Headers   map[string]string
	Timeout   time.Duration
	// Limit caps the rows returned per query.
	Limit int
}

func NewClient(opts ClientOptions, logger *slog.Logger) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("VictoriaLogs URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultQueryTimeout
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = backends.DefaultMaxHits
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(opts.URL, "/"),
		accountID:  opts.AccountID,
		projectID:  opts.ProjectID,
		headers:    opts.Headers,
		timeout:    timeout,
		limit:      limit,
		logger:     logger,
	}, nil
}

// Open satisfies backends.Factory.
func Open(cfg backends.Config, logger *slog.Logger) (backends.SearchBackend, error) {
	return NewClient(ClientOptions{
		URL:       cfg.URL,
		AccountID: cfg.AccountID,
		ProjectID: cfg.ProjectID,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout,
		Limit:     cfg.MaxHits,
	}, logger)
}

// Search runs query scoped to target. target is a LogsQL filter such as
// `{app="checkout"}`; an empty target or "*" searches every stream.
func (c *Client) Search(ctx context.Context, target, query string) ([]models.Document, error) {
	params := url.Values{}
	params.Set("query", BuildQuery(target, query))
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("timeout", fmt.Sprintf("%ds", int(c.timeout.Seconds())))

	resp, err := c.doRequest(ctx, http.MethodPost, queryPath, params)
	if err != nil {
		return nil, fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &backends.QueryError{
			Backend:    backends.BackendTypeVictoriaLogs,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	result, err := parseJSONLResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing query response: %w", err)
	}
	stats := parseStatsFromHeaders(resp.Header)
	c.logger.Debug("victorialogs query finished",
		"rows", len(result.Rows),
		"skipped_lines", result.Skipped,
		"rows_read", stats.RowsRead,
		"execution_ms", stats.ExecutionTimeMs,
	)
	return result.Rows, nil
}

// BuildQuery prefixes query with the target stream filter.
func BuildQuery(target, query string) string {
	target = strings.TrimSpace(target)
	query = strings.TrimSpace(query)
	if query == "" {
		query = "*"
	}
	if target == "" || target == "*" {
		return query
	}
	return target + " " + query
}

func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("query", "* | limit 1")
	params.Set("start", "1m")

	resp, err := c.doRequest(ctx, http.MethodGet, queryPath, params)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("ping failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	fullURL := c.baseURL + path

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewBufferString(params.Encode())
	} else {
		fullURL = fullURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.accountID != "" {
		req.Header.Set("AccountID", c.accountID)
	}
	if c.projectID != "" {
		req.Header.Set("ProjectID", c.projectID)
	}

	c.logger.Debug("executing VictoriaLogs request",
		"method", method,
		"path", path,
		"query", params.Get("query"),
	)

	return c.httpClient.Do(req)
}
