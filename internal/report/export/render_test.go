package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-portal/reporting-engine/internal/report"
)

func sampleResultSet() *report.ResultSet {
	return &report.ResultSet{
		Columns: []string{"course", "score", "completed"},
		Rows: []map[string]any{
			{"course": "Go Basics", "score": 92.5, "completed": true},
			{"course": "Networking", "score": 78, "completed": false},
			{"course": "Security", "score": nil, "completed": true},
		},
		Total: 3,
	}
}

func TestRenderCSV(t *testing.T) {
	data, err := RenderResultSet(report.ExportFormatCSV, report.ExportOptions{}, sampleResultSet())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "course,score,completed", lines[0])
	assert.Equal(t, "Go Basics,92.5,true", lines[1])
	assert.Equal(t, "Networking,78,false", lines[2])
	assert.Equal(t, "Security,,true", lines[3])
}

func TestRenderCSVCustomDelimiter(t *testing.T) {
	data, err := RenderResultSet(report.ExportFormatCSV, report.ExportOptions{Delimiter: ";"}, sampleResultSet())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "course;score;completed", lines[0])
}

func TestRenderJSONRoundTrips(t *testing.T) {
	data, err := RenderResultSet(report.ExportFormatJSON, report.ExportOptions{}, sampleResultSet())
	require.NoError(t, err)

	var decoded report.ResultSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"course", "score", "completed"}, decoded.Columns)
	assert.Len(t, decoded.Rows, 3)
	assert.Equal(t, 3, decoded.Total)
}

func TestRenderXML(t *testing.T) {
	data, err := RenderResultSet(report.ExportFormatXML, report.ExportOptions{Indent: "\t"}, sampleResultSet())
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `<cell column="course">Go Basics</cell>`)
	assert.Contains(t, out, `<cell column="score">92.5</cell>`)
}

func TestRenderExcelProducesWorkbook(t *testing.T) {
	data, err := RenderResultSet(report.ExportFormatExcel, report.ExportOptions{SheetName: "Scores"}, sampleResultSet())
	require.NoError(t, err)
	// xlsx files are zip archives.
	assert.Equal(t, "PK", string(data[:2]))
}

func TestRenderPDFProducesDocument(t *testing.T) {
	data, err := RenderResultSet(report.ExportFormatPDF, report.ExportOptions{Orientation: "landscape"}, sampleResultSet())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestRenderPDFRequiresColumns(t *testing.T) {
	_, err := RenderResultSet(report.ExportFormatPDF, report.ExportOptions{}, &report.ResultSet{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}

func TestRenderRejectsServerOnlyFormats(t *testing.T) {
	for _, format := range []report.ExportFormat{
		report.ExportFormatPPTX, report.ExportFormatDocx, report.ExportFormatPNG,
	} {
		_, err := RenderResultSet(format, report.ExportOptions{}, sampleResultSet())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be rendered client-side")
	}
}

func TestRenderNilResultSet(t *testing.T) {
	_, err := RenderResultSet(report.ExportFormatCSV, report.ExportOptions{}, nil)
	assert.Error(t, err)
}

func TestFormatCell(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "hello", formatCell("hello"))
	assert.Equal(t, "42", formatCell(42))
	assert.Equal(t, "42", formatCell(int64(42)))
	assert.Equal(t, "3.25", formatCell(3.25))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "2026-03-01T12:00:00Z", formatCell(stamp))
}
