// Package schedule runs recurring report exports locally with a cron
// scheduler and hands the results to the delivery channels.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
	"training-portal/reporting-engine/internal/report/export"
	"training-portal/reporting-engine/internal/report/validation"
)

// Entry is one registered schedule.
type Entry struct {
	ID       string
	Name     string
	Config   report.ReportConfig
	Schedule report.ScheduleConfig
}

// Runner executes schedule entries on their cron cadence. Manual and
// one-shot schedules are not registered with cron; they run via RunNow.
type Runner struct {
	cron     *cron.Cron
	api      export.API
	delivery *DeliveryManager
	logger   *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]cron.EntryID
	entries map[string]*Entry
	running bool
}

// NewRunner creates a runner. The parser accepts both 5-field and
// seconds-prefixed 6-field cron expressions.
func NewRunner(api export.API, delivery *DeliveryManager, logger *zap.Logger) *Runner {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Runner{
		cron:     cron.New(cron.WithParser(parser)),
		api:      api,
		delivery: delivery,
		logger:   logger,
		jobs:     make(map[string]cron.EntryID),
		entries:  make(map[string]*Entry),
	}
}

// Start begins executing registered schedules.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("schedule runner already running")
	}
	r.running = true
	r.cron.Start()
	r.logger.Info("schedule runner started")
	return nil
}

// Stop halts the cron scheduler and waits for running jobs to finish. The
// wait happens outside the lock: an in-flight job needs the lock to load its
// entry, so holding it here would keep that job from ever completing.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCtx := r.cron.Stop()
	r.mu.Unlock()

	<-stopCtx.Done()
	r.logger.Info("schedule runner stopped")
}

// cronSpec maps a schedule type to its cron expression. Midnight defaults
// mirror the common reporting cadence.
func cronSpec(s report.ScheduleConfig) (string, bool) {
	switch s.Type {
	case report.ScheduleDaily:
		return "0 0 * * *", true
	case report.ScheduleWeekly:
		return "0 0 * * 0", true
	case report.ScheduleMonthly:
		return "0 0 1 * *", true
	case report.ScheduleCron:
		return s.CronExpression, true
	default:
		return "", false
	}
}

// Add registers a schedule entry, replacing any existing entry with the
// same id. The entry is validated before registration.
func (r *Runner) Add(entry Entry) error {
	if result := validation.ValidateSchedule(&entry.Schedule); !result.IsValid {
		return fmt.Errorf("invalid schedule: %s", result.Errors[0])
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, ok := r.jobs[entry.ID]; ok {
		r.cron.Remove(entryID)
		delete(r.jobs, entry.ID)
	}
	stored := entry
	r.entries[entry.ID] = &stored

	spec, recurring := cronSpec(entry.Schedule)
	if !recurring {
		return nil
	}

	id := entry.ID
	entryID, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		r.execute(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	r.jobs[entry.ID] = entryID

	r.logger.Info("schedule registered",
		zap.String("schedule_id", entry.ID),
		zap.String("spec", spec))
	return nil
}

// Remove unregisters a schedule. Removing an absent id is a no-op.
func (r *Runner) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entryID, ok := r.jobs[id]; ok {
		r.cron.Remove(entryID)
		delete(r.jobs, id)
	}
	delete(r.entries, id)
}

// RunNow executes a schedule entry immediately, regardless of its cadence.
func (r *Runner) RunNow(ctx context.Context, id string) error {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	return r.execute(ctx, id)
}

// NextRun returns the next scheduled execution time for a recurring entry.
func (r *Runner) NextRun(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entryID, ok := r.jobs[id]
	if !ok {
		return time.Time{}, false
	}
	return r.cron.Entry(entryID).Next, true
}

// ActiveJobs returns the number of cron-registered entries.
func (r *Runner) ActiveJobs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Runner) execute(ctx context.Context, id string) error {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}

	r.logger.Info("executing scheduled report",
		zap.String("schedule_id", entry.ID),
		zap.String("name", entry.Name))

	opts := report.ExportOptions{}
	resp, err := r.api.ExportReport(ctx, entry.Config, entry.Schedule.Format, opts)
	if err != nil {
		r.logger.Error("scheduled export failed",
			zap.String("schedule_id", entry.ID),
			zap.Error(err))
		return err
	}

	data := resp.Binary
	if data == nil {
		data, err = export.RenderResultSet(entry.Schedule.Format, opts, resp.Rows)
		if err != nil {
			return err
		}
	}

	fileName := export.DefaultFileName(entry.Name, entry.Schedule.Format)
	if err := r.delivery.Deliver(ctx, entry.Schedule.Delivery, fileName, data); err != nil {
		r.logger.Error("scheduled delivery failed",
			zap.String("schedule_id", entry.ID),
			zap.Error(err))
		return err
	}

	r.logger.Info("scheduled report delivered",
		zap.String("schedule_id", entry.ID),
		zap.String("file", fileName))
	return nil
}
