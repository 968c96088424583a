// Package clickhouse runs alert queries against ClickHouse over the native protocol.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mr-karan/searchwatch/internal/backends"
	"github.com/mr-karan/searchwatch/pkg/models"
)

const (
	// DefaultQueryTimeout is the max_execution_time applied when none is configured.
	DefaultQueryTimeout = 60 * time.Second
	closeTimeout        = 3 * time.Second
)

var (
	_ backends.SearchBackend = (*Client)(nil)
	_ backends.Pinger        = (*Client)(nil)
	_ backends.Closer        = (*Client)(nil)
)

// conn is the part of driver.Conn the client uses.
type conn interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// Client represents a connection to a ClickHouse database using the native protocol.
type Client struct {
	conn       conn
	logger     *slog.Logger
	queryHooks []QueryHook
	timeout    time.Duration
	limit      int
}

// ClientOptions holds configuration for establishing a new ClickHouse client connection.
type ClientOptions struct {
	Host     string
	Database string
	Username string
	Password string
	// Settings are extra ClickHouse settings applied to every query.
	Settings map[string]any
	Timeout  time.Duration
	Limit    int
}

// NewClient opens a native connection. It does not ping; callers should do that if needed.
func NewClient(opts ClientOptions, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	host := strings.TrimPrefix(strings.TrimPrefix(opts.Host, "clickhouse://"), "tcp://")
	if host == "" {
		return nil, errors.New("clickhouse host is required")
	}
	if !strings.Contains(host, ":") {
		host += ":9000"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	options := &clickhouse.Options{
		Addr: []string{host},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(timeout.Seconds()),
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Protocol: clickhouse.Native,
	}
	for k, v := range opts.Settings {
		options.Settings[k] = v
	}

	logger.Debug("creating clickhouse connection",
		"host", host,
		"database", opts.Database,
		"protocol", "native",
	)

	c, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("creating clickhouse connection: %w", err)
	}
	return newClient(c, logger, timeout, opts.Limit), nil
}

func newClient(c conn, logger *slog.Logger, timeout time.Duration, limit int) *Client {
	if limit <= 0 {
		limit = backends.DefaultMaxHits
	}
	client := &Client{
		conn:    c,
		logger:  logger,
		timeout: timeout,
		limit:   limit,
	}
	client.AddQueryHook(NewLogQueryHook(logger, false))
	return client
}

// Open satisfies backends.Factory. cfg.URL is the native host:port.
func Open(cfg backends.Config, logger *slog.Logger) (backends.SearchBackend, error) {
	return NewClient(ClientOptions{
		Host:     cfg.URL,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
		Limit:    cfg.MaxHits,
	}, logger)
}

// AddQueryHook registers a hook run before and after every query.
func (c *Client) AddQueryHook(hook QueryHook) {
	c.queryHooks = append(c.queryHooks, hook)
}

func (c *Client) executeQueryWithHooks(ctx context.Context, query string, fn func(context.Context) error) error {
	var err error
	start := time.Now()

	for _, hook := range c.queryHooks {
		ctx, err = hook.BeforeQuery(ctx, query)
		if err != nil {
			c.logger.Error("query hook BeforeQuery failed", "hook", fmt.Sprintf("%T", hook), "error", err)
			return fmt.Errorf("BeforeQuery hook failed: %w", err)
		}
	}

	err = fn(ctx)
	duration := time.Since(start)

	for _, hook := range c.queryHooks {
		hook.AfterQuery(ctx, query, err, duration)
	}
	return err
}

// Search runs query against the target table and returns each row as a document.
func (c *Client) Search(ctx context.Context, target, query string) ([]models.Document, error) {
	sql, err := BuildSearchQuery(target, query, c.limit)
	if err != nil {
		return nil, &backends.QueryError{Backend: backends.BackendTypeClickHouse, Message: err.Error()}
	}

	var docs []models.Document
	err = c.executeQueryWithHooks(ctx, sql, func(hookCtx context.Context) error {
		hookCtx = clickhouse.Context(hookCtx, clickhouse.WithSettings(clickhouse.Settings{
			"max_execution_time": int(c.timeout.Seconds()),
		}))
		rows, err := c.conn.Query(hookCtx, sql)
		if err != nil {
			return err
		}
		defer rows.Close()
		docs, err = scanDocuments(rows)
		return err
	})
	if err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			return nil, &backends.QueryError{
				Backend: backends.BackendTypeClickHouse,
				Message: fmt.Sprintf("code %d: %s", exception.Code, exception.Message),
			}
		}
		return nil, fmt.Errorf("executing query or processing results: %w", err)
	}
	return docs, nil
}

// scanDocuments reads every row into a document keyed by column name.
func scanDocuments(rows driver.Rows) ([]models.Document, error) {
	columnTypes := rows.ColumnTypes()
	scanDest := make([]any, len(columnTypes))
	for i, ct := range columnTypes {
		scanDest[i] = reflect.New(ct.ScanType()).Interface()
	}

	docs := make([]models.Document, 0)
	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		doc := make(models.Document, len(columnTypes))
		for i, ct := range columnTypes {
			doc[ct.Name()] = reflect.ValueOf(scanDest[i]).Elem().Interface()
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.conn.Ping(pingCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("ping timed out: %w", err)
		}
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close terminates the connection, giving up after a few seconds.
func (c *Client) Close() error {
	c.logger.Debug("closing clickhouse connection")
	done := make(chan error, 1)
	go func() {
		done <- c.conn.Close()
	}()

	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		c.logger.Warn("timeout while closing clickhouse connection, abandoning")
		return errors.New("timeout while closing connection")
	}
}
