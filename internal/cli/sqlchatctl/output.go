package sqlchatctl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sqlchat/sqlchat/internal/format"
)

type queryResponse struct {
	Success      bool             `json:"success"`
	Response     string           `json:"response"`
	Format       string           `json:"format"`
	Mode         string           `json:"mode"`
	Query        string           `json:"query"`
	Columns      []string         `json:"columns"`
	Results      []map[string]any `json:"results"`
	RowsAffected *int64           `json:"rows_affected"`
	Truncated    bool             `json:"truncated"`
	TraceID      string           `json:"trace_id"`
}

type historyEntry struct {
	TraceID   string        `json:"trace_id"`
	Mode      string        `json:"mode"`
	Input     string        `json:"input"`
	Success   bool          `json:"success"`
	RowCount  int           `json:"row_count"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// printQuery renders a chat response for a terminal. HTML answers are
// redrawn from the structured columns and results.
func printQuery(w io.Writer, resp queryResponse) {
	switch {
	case len(resp.Columns) > 0:
		format.Text(w, resp.Columns, resp.Results)
		if resp.Truncated {
			_, _ = fmt.Fprintln(w, "(truncated)")
		}
	case resp.Response != "":
		_, _ = fmt.Fprintln(w, resp.Response)
	}
	if resp.Mode == "natural_language" && resp.Query != "" {
		_, _ = fmt.Fprintf(w, "\nSQL: %s\n", strings.TrimSpace(resp.Query))
	}
}

func printHistory(w io.Writer, entries []historyEntry, now time.Time) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "no history entries")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"when", "mode", "ok", "rows", "duration", "input", "trace"})
	for _, entry := range entries {
		t.AppendRow(table.Row{
			humanize.RelTime(entry.CreatedAt, now, "ago", "from now"),
			entry.Mode,
			entry.Success,
			humanize.Comma(int64(entry.RowCount)),
			entry.Duration.Round(time.Millisecond).String(),
			truncate(entry.Input, 60),
			entry.TraceID,
		})
	}
	t.Render()
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
