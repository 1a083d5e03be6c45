// Package client consumes the reporting service's REST endpoints: the
// field catalogue, report CRUD, preview/execute/validate, exports,
// scheduled reports and system health.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
	"training-portal/reporting-engine/internal/report/export"
)

// Client talks to the reporting REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// DataSource is one entry of the field catalogue.
type DataSource struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Fields      []CatalogField `json:"fields"`
}

// CatalogField describes a selectable field offered by a data source.
type CatalogField struct {
	Name     string           `json:"name"`
	Label    string           `json:"label,omitempty"`
	Type     report.FieldType `json:"type"`
	Category string           `json:"category,omitempty"`
}

// SavedReport is a persisted report definition.
type SavedReport struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Config    report.ReportConfig `json:"config"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ServerValidation is the server's own validation verdict, kept as a
// defense-in-depth cross-check of the local validation engine.
type ServerValidation struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// apiError is the error envelope the service returns on non-2xx responses.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) responseError(resp *http.Response) error {
	var apiErr apiError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

// =====================================================
// Field catalogue
// =====================================================

// DataSources retrieves the field catalogue.
func (c *Client) DataSources(ctx context.Context) ([]DataSource, error) {
	var out []DataSource
	if err := c.doJSON(ctx, http.MethodGet, "/api/reports/data-sources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fields retrieves the fields of one data source.
func (c *Client) Fields(ctx context.Context, source string) ([]CatalogField, error) {
	var out []CatalogField
	if err := c.doJSON(ctx, http.MethodGet, "/api/reports/data-sources/"+source+"/fields", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =====================================================
// Report CRUD and execution
// =====================================================

// CreateReport persists a report definition and returns its id.
func (c *Client) CreateReport(ctx context.Context, name string, cfg report.ReportConfig) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]any{"name": name, "config": cfg}
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// GetReport loads a saved report definition.
func (c *Client) GetReport(ctx context.Context, id string) (*SavedReport, error) {
	var out SavedReport
	if err := c.doJSON(ctx, http.MethodGet, "/api/reports/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReport replaces the configuration of a saved report.
func (c *Client) UpdateReport(ctx context.Context, id string, name string, cfg report.ReportConfig) error {
	body := map[string]any{"name": name, "config": cfg}
	return c.doJSON(ctx, http.MethodPut, "/api/reports/"+id, body, nil)
}

// DeleteReport removes a saved report definition.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/reports/"+id, nil, nil)
}

// ListReports lists saved report definitions.
func (c *Client) ListReports(ctx context.Context) ([]SavedReport, error) {
	var out []SavedReport
	if err := c.doJSON(ctx, http.MethodGet, "/api/reports", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewReport executes a configuration with a row limit for the builder.
func (c *Client) PreviewReport(ctx context.Context, cfg report.ReportConfig, limit int) (*report.ResultSet, error) {
	var out report.ResultSet
	body := map[string]any{"config": cfg, "limit": limit}
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports/preview", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteReport runs a configuration in full.
func (c *Client) ExecuteReport(ctx context.Context, cfg report.ReportConfig) (*report.ResultSet, error) {
	var out report.ResultSet
	body := map[string]any{"config": cfg}
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports/execute", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateReport asks the server to validate a configuration.
func (c *Client) ValidateReport(ctx context.Context, cfg report.ReportConfig) (*ServerValidation, error) {
	var out ServerValidation
	body := map[string]any{"config": cfg}
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports/validate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WidgetData retrieves the computed data for one dashboard widget.
func (c *Client) WidgetData(ctx context.Context, widget report.Widget) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/api/dashboards/widget-data", widget, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =====================================================
// Export
// =====================================================

// ExportReport requests an export. The response is a binary stream for
// server-rendered formats or a structured result set for json/xml (and for
// formats the client renders locally).
func (c *Client) ExportReport(ctx context.Context, cfg report.ReportConfig, format report.ExportFormat, opts report.ExportOptions) (*export.ServerResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"report_config": cfg,
		"format":        format,
		"options":       opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/reports/export", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.responseError(resp)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var rows report.ResultSet
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to decode export rows: %w", err)
		}
		return &export.ServerResponse{Rows: &rows}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export stream: %w", err)
	}
	return &export.ServerResponse{Binary: data}, nil
}

// =====================================================
// Schedules
// =====================================================

// CreateSchedule registers a scheduled report and returns its id.
func (c *Client) CreateSchedule(ctx context.Context, cfg report.ReportConfig, schedule report.ScheduleConfig) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]any{"config": cfg, "schedule": schedule}
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports/schedules", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ListSchedules lists registered schedules.
func (c *Client) ListSchedules(ctx context.Context) ([]report.ScheduleConfig, error) {
	var out []report.ScheduleConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/reports/schedules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/reports/schedules/"+id, nil, nil)
}

// TriggerSchedule runs a schedule immediately.
func (c *Client) TriggerSchedule(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/reports/schedules/"+id+"/trigger", nil, nil)
}

// =====================================================
// System
// =====================================================

// Health checks service health.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil)
}

// SystemStats retrieves service statistics.
func (c *Client) SystemStats(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
