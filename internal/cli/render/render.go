// Package render formats CLI reports about rules and schedules.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RuleRow is one line of the rules report.
type RuleRow struct {
	ID            string     `json:"id,omitempty"`
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	Cron          string     `json:"cron"`
	Target        string     `json:"target"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	Notifications []string   `json:"notifications,omitempty"`
	// Unresolved lists placeholders rendered literally, as "notification:name".
	Unresolved []string `json:"unresolved,omitempty"`
}

// Options configures the renderer
type Options struct {
	Format string // table, json
	Color  bool
	// Location is used to display times. Defaults to time.Local.
	Location *time.Location
}

// Renderer renders reports
type Renderer struct {
	opts Options
}

// New creates a new renderer
func New(opts Options) (*Renderer, error) {
	switch opts.Format {
	case "":
		opts.Format = "table"
	case "table", "json":
	default:
		return nil, fmt.Errorf("unknown output format %q (expected table or json)", opts.Format)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Renderer{opts: opts}, nil
}

var (
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.opts.Color {
		return text
	}
	return s.Render(text)
}

// Rules renders the rules report.
func (r *Renderer) Rules(w io.Writer, rows []RuleRow) error {
	if r.opts.Format == "json" {
		return r.renderJSON(w, map[string]any{"rules": rows, "count": len(rows)})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No rules defined.")
		return nil
	}

	headers := []string{"NAME", "ENABLED", "CRON", "TARGET", "NEXT RUN", "NOTIFICATIONS", "UNRESOLVED"}
	data := make([][]string, len(rows))
	for i, row := range rows {
		enabled := r.style(okStyle, "yes")
		if !row.Enabled {
			enabled = r.style(dimStyle, "no")
		}
		next := "-"
		if row.NextRun != nil {
			next = row.NextRun.In(r.opts.Location).Format("2006-01-02 15:04 MST")
		}
		unresolved := ""
		if len(row.Unresolved) > 0 {
			unresolved = r.style(warnStyle, strings.Join(row.Unresolved, ", "))
		}
		data[i] = []string{row.Name, enabled, row.Cron, row.Target, next, strings.Join(row.Notifications, ", "), unresolved}
	}

	fmt.Fprintln(w, r.table(headers, data))
	return nil
}

// NextRuns renders the upcoming fire times of a cron expression.
func (r *Renderer) NextRuns(w io.Writer, expr string, times []time.Time) error {
	if r.opts.Format == "json" {
		return r.renderJSON(w, map[string]any{"expression": expr, "next": times})
	}
	data := make([][]string, len(times))
	for i, t := range times {
		data[i] = []string{fmt.Sprintf("%d", i+1), t.In(r.opts.Location).Format("Mon 2006-01-02 15:04 MST")}
	}
	fmt.Fprintln(w, r.style(dimStyle, expr))
	fmt.Fprintln(w, r.table([]string{"#", "FIRES AT"}, data))
	return nil
}

// Problems renders configuration errors, one per line.
func (r *Renderer) Problems(w io.Writer, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", r.style(errorStyle, "✗"), line)
	}
}

// OK prints a success line.
func (r *Renderer) OK(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", r.style(okStyle, "✓"), msg)
}

func (r *Renderer) renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if !r.opts.Color {
		return t.Render()
	}

	t.BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238")))
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252"))
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		// Alternate row colors
		if row%2 == 0 {
			return lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	})
	return t.Render()
}
