package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"training-portal/reporting-engine/internal/report"
)

// renderPDF writes the result set as a simple tabular document with a
// title, generation date and alternating row shading.
func renderPDF(w io.Writer, opts report.ExportOptions, rs *report.ResultSet) error {
	// The result set comes off the wire; a column-less payload would yield
	// infinite cell widths below.
	if len(rs.Columns) == 0 {
		return fmt.Errorf("result set has no columns")
	}

	orientation := "P"
	if opts.Orientation == "landscape" {
		orientation = "L"
	}
	pageSize := opts.PageSize
	if pageSize == "" {
		pageSize = "A4"
	}

	pdf := gofpdf.New(orientation, "mm", pageSize, "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	title := opts.FileName
	if title == "" {
		title = "Report"
	}
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated "+time.Now().Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right
	colW := usable / float64(len(rs.Columns))

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range rs.Columns {
		pdf.CellFormat(colW, 8, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	for i, row := range rs.Rows {
		fill := i%2 == 1
		pdf.SetFillColor(242, 242, 242)
		for _, col := range rs.Columns {
			pdf.CellFormat(colW, 7, formatCell(row[col]), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}
