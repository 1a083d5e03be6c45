package export

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"training-portal/reporting-engine/internal/report"
)

// renderJSON writes the result set as structured JSON.
func renderJSON(w io.Writer, opts report.ExportOptions, rs *report.ResultSet) error {
	enc := json.NewEncoder(w)
	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}
	enc.SetIndent("", indent)
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// xmlRow flattens one row into <row><cell column="..">..</cell>...</row>.
type xmlRow struct {
	XMLName xml.Name  `xml:"row"`
	Cells   []xmlCell `xml:"cell"`
}

type xmlCell struct {
	Column string `xml:"column,attr"`
	Value  string `xml:",chardata"`
}

type xmlReport struct {
	XMLName xml.Name `xml:"report"`
	Rows    []xmlRow `xml:"row"`
}

// renderXML writes the result set as structured XML.
func renderXML(w io.Writer, opts report.ExportOptions, rs *report.ResultSet) error {
	doc := xmlReport{Rows: make([]xmlRow, 0, len(rs.Rows))}
	for _, row := range rs.Rows {
		xr := xmlRow{Cells: make([]xmlCell, 0, len(rs.Columns))}
		for _, col := range rs.Columns {
			xr.Cells = append(xr.Cells, xmlCell{Column: col, Value: formatCell(row[col])})
		}
		doc.Rows = append(doc.Rows, xr)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}
	enc.Indent("", indent)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode xml: %w", err)
	}
	return enc.Close()
}
