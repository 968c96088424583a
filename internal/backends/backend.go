// Package backends defines the search capability alert rules run against and
// the registry that builds a concrete backend from configuration.
package backends

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mr-karan/searchwatch/pkg/models"
)

// BackendType names a search backend implementation.
type BackendType string

const (
	BackendTypeElasticsearch BackendType = "elasticsearch"
	BackendTypeVictoriaLogs  BackendType = "victorialogs"
	BackendTypeClickHouse    BackendType = "clickhouse"
)

func (b BackendType) String() string {
	return string(b)
}

// SearchBackend runs a raw query against a target and returns the matched documents.
// Implementations must be safe for concurrent use.
type SearchBackend interface {
	Search(ctx context.Context, target, query string) ([]models.Document, error)
}

// Pinger is implemented by backends that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

// SearchFunc adapts a function to SearchBackend.
type SearchFunc func(ctx context.Context, target, query string) ([]models.Document, error)

func (f SearchFunc) Search(ctx context.Context, target, query string) ([]models.Document, error) {
	return f(ctx, target, query)
}

// Config holds the connection settings shared by all backends.
type Config struct {
	Type          BackendType
	URL           string
	Username      string
	Password      string
	APIKey        string
	Database      string
	Timeout       time.Duration
	MaxHits       int
	Headers       map[string]string
	TLSSkipVerify bool
	// AccountID and ProjectID select a VictoriaLogs tenant.
	AccountID string
	ProjectID string
}

// DefaultMaxHits caps the documents a single search may return when Config.MaxHits is unset.
const DefaultMaxHits = 100

// QueryError reports a backend rejecting or failing a query.
type QueryError struct {
	Backend    BackendType
	StatusCode int
	Message    string
}

func (e *QueryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s query failed (%d %s): %s", e.Backend, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%s query failed: %s", e.Backend, e.Message)
}

// ErrorType labels failure notifications.
func (e *QueryError) ErrorType() string {
	return "QueryError"
}

// Temporary reports whether retrying later may succeed.
func (e *QueryError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
