// Package elasticsearch runs alert queries against the Elasticsearch and
// OpenSearch _search API.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
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

const DefaultTimeout = 30 * time.Second

var (
	_ backends.SearchBackend = (*Client)(nil)
	_ backends.Pinger        = (*Client)(nil)
	_ backends.Closer        = (*Client)(nil)
)

type ClientOptions struct {
	URL           string
	Username      string
	Password      string
	APIKey        string
	Headers       map[string]string
	Timeout       time.Duration
	TLSSkipVerify bool
	// MaxHits is sent as the size parameter when the query body sets none.
	MaxHits int
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	opts       ClientOptions
	logger     *slog.Logger
}

func NewClient(opts ClientOptions, logger *slog.Logger) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("elasticsearch URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid elasticsearch URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxHits <= 0 {
		opts.MaxHits = backends.DefaultMaxHits
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: transport},
		baseURL:    base,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Open satisfies backends.Factory.
func Open(cfg backends.Config, logger *slog.Logger) (backends.SearchBackend, error) {
	return NewClient(ClientOptions{
		URL:           cfg.URL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		APIKey:        cfg.APIKey,
		Headers:       cfg.Headers,
		Timeout:       cfg.Timeout,
		TLSSkipVerify: cfg.TLSSkipVerify,
		MaxHits:       cfg.MaxHits,
	}, logger)
}

type searchResponse struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
	TimedOut bool `json:"timed_out"`
}

type hit struct {
	ID     string         `json:"_id"`
	Index  string         `json:"_index"`
	Source map[string]any `json:"_source"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Search posts query as the request body to {url}/{target}/_search. target may be
// an index, alias, pattern or comma separated list.
func (c *Client) Search(ctx context.Context, target, query string) ([]models.Document, error) {
	target = strings.Trim(strings.TrimSpace(target), "/")
	if target == "" {
		return nil, &backends.QueryError{Backend: backends.BackendTypeElasticsearch, Message: "empty index target"}
	}

	params := url.Values{}
	if !bodySetsSize(query) {
		params.Set("size", strconv.Itoa(c.opts.MaxHits))
	}
	endpoint := c.baseURL + "/" + url.PathEscape(target) + "/_search"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(query))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	c.logger.Debug("executing elasticsearch search", "target", target)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &backends.QueryError{
			Backend:    backends.BackendTypeElasticsearch,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if parsed.TimedOut {
		c.logger.Warn("elasticsearch search timed out, results may be partial", "target", target)
	}

	docs := make([]models.Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		doc := make(models.Document, len(h.Source)+2)
		for k, v := range h.Source {
			doc[k] = v
		}
		doc["_id"] = h.ID
		doc["_index"] = h.Index
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) authorize(req *http.Request) {
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}
	switch {
	case c.opts.APIKey != "":
		req.Header.Set("Authorization", "ApiKey "+c.opts.APIKey)
	case c.opts.Username != "":
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	}
}

// bodySetsSize reports whether the JSON body carries its own size.
func bodySetsSize(query string) bool {
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(query), &body); err != nil {
		return false
	}
	_, ok := body["size"]
	return ok
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Reason != "" {
		return er.Error.Type + ": " + er.Error.Reason
	}
	return strings.TrimSpace(string(body))
}
