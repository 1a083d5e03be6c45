package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
)

func TestExportReportDecodesStructuredRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reports/export", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Format report.ExportFormat `json:"format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, report.ExportFormatJSON, body.Format)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report.ResultSet{
			Columns: []string{"course"},
			Rows:    []map[string]any{{"course": "Go Basics"}},
			Total:   1,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, zap.NewNop())
	resp, err := c.ExportReport(context.Background(), report.ReportConfig{}, report.ExportFormatJSON, report.ExportOptions{})
	require.NoError(t, err)
	require.NotNil(t, resp.Rows)
	assert.Nil(t, resp.Binary)
	assert.Equal(t, []string{"course"}, resp.Rows.Columns)
	assert.Equal(t, 1, resp.Rows.Total)
}

func TestExportReportReturnsBinaryStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer server.Close()

	c := NewClient(server.URL, zap.NewNop())
	resp, err := c.ExportReport(context.Background(), report.ReportConfig{}, report.ExportFormatPDF, report.ExportOptions{})
	require.NoError(t, err)
	assert.Nil(t, resp.Rows)
	assert.Equal(t, []byte("%PDF-1.7 fake"), resp.Binary)
}

func TestResponseErrorParsesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid report configuration"})
	}))
	defer server.Close()

	c := NewClient(server.URL, zap.NewNop())
	_, err := c.ExecuteReport(context.Background(), report.ReportConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned 422")
	assert.Contains(t, err.Error(), "invalid report configuration")
}

func TestResponseErrorWithoutEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	defer server.Close()

	c := NewClient(server.URL, zap.NewNop())
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned 504")
}

func TestReportCRUDRoundTrip(t *testing.T) {
	var stored SavedReport
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/reports", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name   string              `json:"name"`
			Config report.ReportConfig `json:"config"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		stored = SavedReport{ID: "rep-1", Name: body.Name, Config: body.Config}
		json.NewEncoder(w).Encode(map[string]string{"id": "rep-1"})
	})
	mux.HandleFunc("GET /api/reports/rep-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stored)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, zap.NewNop())

	cfg := report.ReportConfig{
		Fields: []report.Field{{ID: "f1", Source: "enrollments", Field: "course", Type: report.FieldTypeText}},
	}
	id, err := c.CreateReport(context.Background(), "My Report", cfg)
	require.NoError(t, err)
	assert.Equal(t, "rep-1", id)

	saved, err := c.GetReport(context.Background(), "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "My Report", saved.Name)
	require.Len(t, saved.Config.Fields, 1)
	assert.Equal(t, "course", saved.Config.Fields[0].Field)
}

func TestCreateSchedule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reports/schedules", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "sched-1"})
	}))
	defer server.Close()

	c := NewClient(server.URL, zap.NewNop())
	id, err := c.CreateSchedule(context.Background(), report.ReportConfig{}, report.ScheduleConfig{
		Type: report.ScheduleDaily, Format: report.ExportFormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, "sched-1", id)
}
