// Package export turns a validated report configuration into a delivered
// export: it talks to the export endpoint, renders structured payloads
// locally when the server returns rows instead of a binary stream, and
// keeps a bounded per-session history of export jobs.
package export

import (
	"bytes"
	"fmt"

	"training-portal/reporting-engine/internal/report"
)

// RenderResultSet renders tabular rows into the requested format. Formats
// the client cannot produce locally (pptx, docx, png) are only ever
// received as server-rendered binary streams and return an error here.
func RenderResultSet(format report.ExportFormat, opts report.ExportOptions, rs *report.ResultSet) ([]byte, error) {
	if rs == nil {
		return nil, fmt.Errorf("no result set to render")
	}

	var buf bytes.Buffer
	switch format {
	case report.ExportFormatCSV:
		if err := renderCSV(&buf, opts, rs); err != nil {
			return nil, err
		}
	case report.ExportFormatExcel:
		if err := renderExcel(&buf, opts, rs); err != nil {
			return nil, err
		}
	case report.ExportFormatPDF:
		if err := renderPDF(&buf, opts, rs); err != nil {
			return nil, err
		}
	case report.ExportFormatJSON:
		if err := renderJSON(&buf, opts, rs); err != nil {
			return nil, err
		}
	case report.ExportFormatXML:
		if err := renderXML(&buf, opts, rs); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("format %s cannot be rendered client-side", format)
	}
	return buf.Bytes(), nil
}
