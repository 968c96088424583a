package victorialogs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mr-karan/searchwatch/pkg/models"
)

// queryResponse is a parsed /select/logsql/query body.
type queryResponse struct {
	Rows []models.Document
	// Skipped counts malformed lines.
	Skipped int
}

// QueryStats are the execution statistics VictoriaLogs reports in response headers.
type QueryStats struct {
	RowsRead        int
	BytesRead       int64
	ExecutionTimeMs float64
}

// parseJSONLResponse reads newline-delimited JSON, one log entry per line.
func parseJSONLResponse(reader io.Reader) (*queryResponse, error) {
	result := &queryResponse{Rows: make([]models.Document, 0)}

	scanner := bufio.NewScanner(reader)
	const maxScanTokenSize = 10 * 1024 * 1024
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var entry models.Document
		if err := json.Unmarshal(line, &entry); err != nil {
			result.Skipped++
			continue
		}
		result.Rows = append(result.Rows, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning response: %w", err)
	}
	return result, nil
}

func parseStatsFromHeaders(headers http.Header) QueryStats {
	stats := QueryStats{}

	if v := headers.Get("X-Stats-Rows-Read"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			stats.RowsRead = n
		}
	}
	if v := headers.Get("X-Stats-Bytes-Read"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats.BytesRead = n
		}
	}
	if v := headers.Get("X-Stats-Execution-Time-Seconds"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			stats.ExecutionTimeMs = f * 1000
		}
	}
	return stats
}
