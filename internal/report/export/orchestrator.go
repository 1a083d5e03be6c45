package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
	"training-portal/reporting-engine/internal/report/validation"
)

// historyLimit caps the session-local export history, most-recent-first.
const historyLimit = 10

// Progress pacing. The indicator climbs 0->90 in fixed increments while the
// server call is in flight, then jumps to 100 on success. It is a UX
// affordance only: the server reports no real progress, so these numbers
// must never be read as an actual completion percentage.
const (
	progressStep     = 10
	progressCeiling  = 90
	progressComplete = 100
	progressInterval = 150 * time.Millisecond
)

// ServerResponse is what the export endpoint returned: a binary stream for
// server-rendered formats, or rows for structured formats.
type ServerResponse struct {
	Binary []byte
	Rows   *report.ResultSet
}

// API is the slice of the REST client the orchestrator needs.
type API interface {
	ExportReport(ctx context.Context, cfg report.ReportConfig, format report.ExportFormat, opts report.ExportOptions) (*ServerResponse, error)
	CreateSchedule(ctx context.Context, cfg report.ReportConfig, schedule report.ScheduleConfig) (string, error)
}

// EmailSender delivers a finished export as an attachment.
type EmailSender interface {
	SendEmail(ctx context.Context, recipients []string, subject, body, attachmentName string, attachment []byte) error
}

// Request describes one export invocation.
type Request struct {
	ReportName string
	Config     report.ReportConfig
	Format     report.ExportFormat
	Options    report.ExportOptions
	Delivery   report.DeliveryMethod
	Recipients []string               // for email delivery
	Schedule   *report.ScheduleConfig // for schedule delivery
}

// Orchestrator drives exports end to end. Concurrent invocations are
// allowed; each tracks its own progress and produces its own history entry.
type Orchestrator struct {
	api       API
	email     EmailSender
	outputDir string
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	history  []report.ExportJob
	progress map[string]int
}

// NewOrchestrator creates an orchestrator writing downloads under outputDir.
func NewOrchestrator(api API, email EmailSender, outputDir string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		api:       api,
		email:     email,
		outputDir: outputDir,
		logger:    logger,
		now:       time.Now,
		progress:  make(map[string]int),
	}
}

// DefaultFileName builds the deterministic default file name for a report
// and format: `<reportName|"report">.<extension>`.
func DefaultFileName(reportName string, format report.ExportFormat) string {
	name := reportName
	if name == "" {
		name = "report"
	}
	return name + "." + format.FileExtension()
}

// Export validates, executes and delivers one export. Validation failures
// reject before any network call is issued. Every terminal outcome, success
// or failure, lands in the history.
func (o *Orchestrator) Export(ctx context.Context, req Request) (*report.ExportJob, error) {
	jobID := uuid.NewString()
	fileName := req.Options.FileName
	if fileName == "" {
		fileName = DefaultFileName(req.ReportName, req.Format)
	}

	if result := validation.ValidateReportConfig(&req.Config); !result.IsValid {
		return o.fail(jobID, req.Format, fileName, fmt.Errorf("invalid report configuration: %s", result.Errors[0]))
	}
	if result := validation.ValidateExportOptions(req.Format, req.Options); !result.IsValid {
		return o.fail(jobID, req.Format, fileName, fmt.Errorf("%s", result.Errors[0]))
	}
	if req.Delivery == report.DeliverySchedule {
		if req.Schedule == nil {
			return o.fail(jobID, req.Format, fileName, fmt.Errorf("schedule delivery requires a schedule configuration"))
		}
		if result := validation.ValidateSchedule(req.Schedule); !result.IsValid {
			return o.fail(jobID, req.Format, fileName, fmt.Errorf("invalid schedule: %s", result.Errors[0]))
		}
	}

	stopProgress := o.startProgress(jobID)
	defer stopProgress()

	switch req.Delivery {
	case report.DeliverySchedule:
		scheduleID, err := o.api.CreateSchedule(ctx, req.Config, *req.Schedule)
		if err != nil {
			return o.fail(jobID, req.Format, fileName, fmt.Errorf("failed to create schedule: %w", err))
		}
		o.logger.Info("export scheduled",
			zap.String("schedule_id", scheduleID),
			zap.String("format", string(req.Format)))
		return o.complete(jobID, req.Format, fileName, 0)

	case report.DeliveryDownload, report.DeliveryEmail, "":
		resp, err := o.api.ExportReport(ctx, req.Config, req.Format, req.Options)
		if err != nil {
			return o.fail(jobID, req.Format, fileName, fmt.Errorf("export request failed: %w", err))
		}

		data := resp.Binary
		if data == nil {
			data, err = RenderResultSet(req.Format, req.Options, resp.Rows)
			if err != nil {
				return o.fail(jobID, req.Format, fileName, err)
			}
		}

		if req.Delivery == report.DeliveryEmail {
			if o.email == nil {
				return o.fail(jobID, req.Format, fileName, fmt.Errorf("email delivery is not configured"))
			}
			subject := "Report export: " + fileName
			body := fmt.Sprintf("The report %q is attached.", fileName)
			if err := o.email.SendEmail(ctx, req.Recipients, subject, body, fileName, data); err != nil {
				return o.fail(jobID, req.Format, fileName, fmt.Errorf("email delivery failed: %w", err))
			}
		} else {
			if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
				return o.fail(jobID, req.Format, fileName, fmt.Errorf("failed to create output dir: %w", err))
			}
			path := filepath.Join(o.outputDir, fileName)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return o.fail(jobID, req.Format, fileName, fmt.Errorf("failed to save file: %w", err))
			}
		}
		return o.complete(jobID, req.Format, fileName, int64(len(data)))

	default:
		return o.fail(jobID, req.Format, fileName, fmt.Errorf("invalid delivery method '%s'", req.Delivery))
	}
}

// History returns the bounded export history, most recent first.
func (o *Orchestrator) History() []report.ExportJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]report.ExportJob(nil), o.history...)
}

// Progress returns the synthetic progress for a job id (0-100).
func (o *Orchestrator) Progress(jobID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress[jobID]
}

func (o *Orchestrator) startProgress(jobID string) func() {
	o.mu.Lock()
	o.progress[jobID] = 0
	o.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.mu.Lock()
				if o.progress[jobID] < progressCeiling {
					o.progress[jobID] += progressStep
				}
				o.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func (o *Orchestrator) complete(jobID string, format report.ExportFormat, fileName string, size int64) (*report.ExportJob, error) {
	job := report.ExportJob{
		ID:        jobID,
		Format:    format,
		FileName:  fileName,
		Timestamp: o.now(),
		SizeBytes: size,
		Status:    report.ExportStatusCompleted,
	}
	o.record(job, progressComplete)
	o.logger.Info("export completed",
		zap.String("job_id", jobID),
		zap.String("file", fileName),
		zap.Int64("size_bytes", size))
	return &job, nil
}

func (o *Orchestrator) fail(jobID string, format report.ExportFormat, fileName string, err error) (*report.ExportJob, error) {
	job := report.ExportJob{
		ID:        jobID,
		Format:    format,
		FileName:  fileName,
		Timestamp: o.now(),
		Status:    report.ExportStatusFailed,
		Error:     err.Error(),
	}
	o.record(job, 0)
	o.logger.Warn("export failed",
		zap.String("job_id", jobID),
		zap.String("file", fileName),
		zap.Error(err))
	return &job, err
}

func (o *Orchestrator) record(job report.ExportJob, progress int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.progress[job.ID] = progress
	o.history = append([]report.ExportJob{job}, o.history...)
	if len(o.history) > historyLimit {
		for _, evicted := range o.history[historyLimit:] {
			delete(o.progress, evicted.ID)
		}
		o.history = o.history[:historyLimit]
	}
}
