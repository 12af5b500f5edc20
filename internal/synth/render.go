package synth

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/askdb/askdb/internal/query"
)

// RenderTable renders a result as a plain text table.
func RenderTable(result query.Result) string {
	if len(result.Columns) == 0 {
		return "(0 rows)"
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column
	}
	t.AppendHeader(header)
	for _, row := range result.Rows {
		rendered := make(table.Row, len(row))
		for i, value := range row {
			rendered[i] = formatValue(value)
		}
		t.AppendRow(rendered)
	}

	var b strings.Builder
	b.WriteString(t.Render())
	fmt.Fprintf(&b, "\n(%d rows)", len(result.Rows))
	return b.String()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
