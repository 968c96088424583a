package app

import (
	"log/slog"

	"github.com/mr-karan/searchwatch/internal/backends"
	"github.com/mr-karan/searchwatch/internal/backends/clickhouse"
	"github.com/mr-karan/searchwatch/internal/backends/elasticsearch"
	"github.com/mr-karan/searchwatch/internal/backends/victorialogs"
)

// NewBackendRegistry returns a registry with every built-in search backend.
// "opensearch" is accepted as an alias of elasticsearch.
func NewBackendRegistry(logger *slog.Logger) *backends.Registry {
	r := backends.NewRegistry(logger)
	r.Register(backends.BackendTypeElasticsearch, elasticsearch.Open)
	r.Register("opensearch", elasticsearch.Open)
	r.Register(backends.BackendTypeVictoriaLogs, victorialogs.Open)
	r.Register(backends.BackendTypeClickHouse, clickhouse.Open)
	return r
}
