package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"training-portal/reporting-engine/internal/report"
)

// renderCSV writes the result set as delimited text. The delimiter comes
// from the validated export options and defaults to a comma.
func renderCSV(w io.Writer, opts report.ExportOptions, rs *report.ResultSet) error {
	writer := csv.NewWriter(w)
	if opts.Delimiter != "" {
		writer.Comma = []rune(opts.Delimiter)[0]
	}

	if err := writer.Write(rs.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i, col := range rs.Columns {
			record[i] = formatCell(row[col])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// formatCell renders one cell value as text.
func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
