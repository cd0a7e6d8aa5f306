package format

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NoResultsMessage replaces the table when there is nothing to show.
const NoResultsMessage = "No se encontraron resultados."

// HTML renders rows as an escaped Bootstrap table. Cells follow the column
// order; a key missing from a row renders as an empty cell.
func HTML(columns []string, rows []map[string]any) string {
	if len(columns) == 0 || len(rows) == 0 {
		return NoResultsMessage
	}

	style := table.StyleDefault
	style.Format.Header = text.FormatDefault
	style.HTML = table.HTMLOptions{
		CSSClass:    "table table-striped",
		EmptyColumn: "",
		EscapeText:  true,
		Newline:     "<br/>",
	}

	t := table.NewWriter()
	t.SetStyle(style)
	t.AppendHeader(headerRow(columns))
	for _, row := range rows {
		t.AppendRow(dataRow(columns, row))
	}
	return "<div class='table-responsive'>\n" + t.RenderHTML() + "\n</div>"
}

// Text renders rows as a boxed table followed by a row count.
func Text(w io.Writer, columns []string, rows []map[string]any) {
	if len(columns) == 0 || len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(style)
	t.AppendHeader(headerRow(columns))
	for _, row := range rows {
		t.AppendRow(dataRow(columns, row))
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

func headerRow(columns []string) table.Row {
	header := make(table.Row, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	return header
}

func dataRow(columns []string, row map[string]any) table.Row {
	cells := make(table.Row, len(columns))
	for i, column := range columns {
		value, ok := row[column]
		if !ok {
			cells[i] = ""
			continue
		}
		cells[i] = Value(value)
	}
	return cells
}

// Value formats a single database value for display.
func Value(v any) string {
	switch typed := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(typed)
	case string:
		return typed
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format(time.DateOnly)
		}
		return typed.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
