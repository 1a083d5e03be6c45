package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ExportReport(ctx context.Context, cfg report.ReportConfig, format report.ExportFormat, opts report.ExportOptions) (*ServerResponse, error) {
	args := m.Called(ctx, cfg, format, opts)
	if resp := args.Get(0); resp != nil {
		return resp.(*ServerResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAPI) CreateSchedule(ctx context.Context, cfg report.ReportConfig, schedule report.ScheduleConfig) (string, error) {
	args := m.Called(ctx, cfg, schedule)
	return args.String(0), args.Error(1)
}

type mockEmailSender struct {
	mock.Mock
}

func (m *mockEmailSender) SendEmail(ctx context.Context, recipients []string, subject, body, attachmentName string, attachment []byte) error {
	args := m.Called(ctx, recipients, subject, body, attachmentName, attachment)
	return args.Error(0)
}

func exportableConfig() report.ReportConfig {
	return report.ReportConfig{
		Fields: []report.Field{
			{ID: "f1", Source: "enrollments", Field: "course", Type: report.FieldTypeText, Alias: "Course"},
		},
	}
}

func TestDefaultFileName(t *testing.T) {
	assert.Equal(t, "Quarterly Enrollments.xlsx", DefaultFileName("Quarterly Enrollments", report.ExportFormatExcel))
	assert.Equal(t, "report.csv", DefaultFileName("", report.ExportFormatCSV))
}

func TestExportRejectsBadOptionsBeforeNetwork(t *testing.T) {
	api := &mockAPI{}
	o := NewOrchestrator(api, nil, t.TempDir(), zap.NewNop())

	job, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatCSV,
		Options:    report.ExportOptions{Delimiter: ";;"},
		Delivery:   report.DeliveryDownload,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV delimiter must be a single character")
	require.NotNil(t, job)
	assert.Equal(t, report.ExportStatusFailed, job.Status)

	api.AssertNotCalled(t, "ExportReport")

	history := o.History()
	require.Len(t, history, 1)
	assert.Equal(t, report.ExportStatusFailed, history[0].Status)
}

func TestExportRejectsInvalidConfigBeforeNetwork(t *testing.T) {
	api := &mockAPI{}
	o := NewOrchestrator(api, nil, t.TempDir(), zap.NewNop())

	_, err := o.Export(context.Background(), Request{
		ReportName: "empty",
		Format:     report.ExportFormatCSV,
		Delivery:   report.DeliveryDownload,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "At least one field must be selected")
	api.AssertNotCalled(t, "ExportReport")
}

func TestExportDownloadWritesFile(t *testing.T) {
	dir := t.TempDir()
	api := &mockAPI{}
	api.On("ExportReport", mock.Anything, mock.Anything, report.ExportFormatCSV, mock.Anything).
		Return(&ServerResponse{Binary: []byte("a,b\n1,2\n")}, nil)

	o := NewOrchestrator(api, nil, dir, zap.NewNop())
	job, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatCSV,
		Delivery:   report.DeliveryDownload,
	})
	require.NoError(t, err)
	assert.Equal(t, report.ExportStatusCompleted, job.Status)
	assert.Equal(t, "scores.csv", job.FileName)
	assert.Equal(t, int64(8), job.SizeBytes)
	assert.Equal(t, progressComplete, o.Progress(job.ID))

	content, err := os.ReadFile(filepath.Join(dir, "scores.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content))

	api.AssertExpectations(t)
}

func TestExportRendersRowsLocally(t *testing.T) {
	dir := t.TempDir()
	api := &mockAPI{}
	api.On("ExportReport", mock.Anything, mock.Anything, report.ExportFormatJSON, mock.Anything).
		Return(&ServerResponse{Rows: sampleResultSet()}, nil)

	o := NewOrchestrator(api, nil, dir, zap.NewNop())
	job, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatJSON,
		Delivery:   report.DeliveryDownload,
	})
	require.NoError(t, err)
	assert.Equal(t, "scores.json", job.FileName)

	content, err := os.ReadFile(filepath.Join(dir, "scores.json"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Go Basics")
}

func TestExportEmailDelivery(t *testing.T) {
	api := &mockAPI{}
	api.On("ExportReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&ServerResponse{Binary: []byte("pdf-bytes")}, nil)

	sender := &mockEmailSender{}
	sender.On("SendEmail", mock.Anything, []string{"ops@example.com"},
		mock.Anything, mock.Anything, "scores.pdf", []byte("pdf-bytes")).Return(nil)

	o := NewOrchestrator(api, sender, t.TempDir(), zap.NewNop())
	job, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatPDF,
		Delivery:   report.DeliveryEmail,
		Recipients: []string{"ops@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, report.ExportStatusCompleted, job.Status)
	sender.AssertExpectations(t)
}

func TestExportEmailWithoutSenderFails(t *testing.T) {
	api := &mockAPI{}
	api.On("ExportReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&ServerResponse{Binary: []byte("x")}, nil)

	o := NewOrchestrator(api, nil, t.TempDir(), zap.NewNop())
	_, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatPDF,
		Delivery:   report.DeliveryEmail,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email delivery is not configured")
}

func TestExportScheduleDelivery(t *testing.T) {
	schedule := report.ScheduleConfig{
		Type:   report.ScheduleDaily,
		Format: report.ExportFormatCSV,
		Delivery: report.DeliveryConfig{
			Method: report.ScheduleDeliveryFilesystem, Path: "/srv/reports",
		},
	}

	api := &mockAPI{}
	api.On("CreateSchedule", mock.Anything, mock.Anything, schedule).Return("sched-7", nil)

	o := NewOrchestrator(api, nil, t.TempDir(), zap.NewNop())
	job, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatCSV,
		Delivery:   report.DeliverySchedule,
		Schedule:   &schedule,
	})
	require.NoError(t, err)
	assert.Equal(t, report.ExportStatusCompleted, job.Status)
	api.AssertNotCalled(t, "ExportReport")
	api.AssertExpectations(t)
}

func TestExportScheduleDeliveryRequiresSchedule(t *testing.T) {
	api := &mockAPI{}
	o := NewOrchestrator(api, nil, t.TempDir(), zap.NewNop())

	_, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatCSV,
		Delivery:   report.DeliverySchedule,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule delivery requires a schedule configuration")
	api.AssertNotCalled(t, "CreateSchedule")
}

func TestHistoryIsBoundedMostRecentFirst(t *testing.T) {
	o := NewOrchestrator(&mockAPI{}, nil, t.TempDir(), zap.NewNop())

	for i := 0; i < historyLimit+3; i++ {
		// Empty configs fail validation, producing a history entry with no
		// network traffic.
		o.Export(context.Background(), Request{
			ReportName: fmt.Sprintf("run-%02d", i),
			Format:     report.ExportFormatCSV,
			Delivery:   report.DeliveryDownload,
		})
	}

	history := o.History()
	require.Len(t, history, historyLimit)
	assert.Equal(t, "run-12.csv", history[0].FileName)
	assert.Equal(t, "run-03.csv", history[historyLimit-1].FileName)
	for _, job := range history {
		assert.Equal(t, report.ExportStatusFailed, job.Status)
	}
}

func TestProgressEvictedWithHistory(t *testing.T) {
	o := NewOrchestrator(&mockAPI{}, nil, t.TempDir(), zap.NewNop())

	var firstID string
	for i := 0; i < historyLimit+1; i++ {
		job, _ := o.Export(context.Background(), Request{
			ReportName: fmt.Sprintf("run-%d", i),
			Format:     report.ExportFormatCSV,
			Delivery:   report.DeliveryDownload,
		})
		if i == 0 {
			firstID = job.ID
		}
	}

	assert.Zero(t, o.Progress(firstID), "evicted jobs no longer report progress")
	assert.Len(t, o.History(), historyLimit)
}

func TestExportServerFailureLandsInHistory(t *testing.T) {
	api := &mockAPI{}
	api.On("ExportReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("upstream down"))

	o := NewOrchestrator(api, nil, t.TempDir(), zap.NewNop())
	job, err := o.Export(context.Background(), Request{
		ReportName: "scores",
		Config:     exportableConfig(),
		Format:     report.ExportFormatCSV,
		Delivery:   report.DeliveryDownload,
	})
	require.Error(t, err)
	assert.Equal(t, report.ExportStatusFailed, job.Status)
	assert.Contains(t, job.Error, "upstream down")

	history := o.History()
	require.Len(t, history, 1)
	assert.Equal(t, job.ID, history[0].ID)
}
