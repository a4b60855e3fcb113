package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SlotExtender is the job the cron service runs nightly
type SlotExtender interface {
	ExtendFromTemplates(ctx context.Context) (*ExtensionResult, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	spec     string
	extender SlotExtender
	logger   *logrus.Logger

	mu      sync.Mutex
	lastRun *jobRun
}

type jobRun struct {
	At       time.Time        `json:"at"`
	Duration string           `json:"duration"`
	Result   *ExtensionResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// NewCronService creates a new CronService.
// spec uses the seconds-first format, e.g. "0 0 2 * * *" for 2:00 AM daily.
func NewCronService(spec string, extender SlotExtender, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		spec:     spec,
		extender: extender,
		logger:   logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.spec, s.extendSlotsJob); err != nil {
		return fmt.Errorf("failed to schedule slot extension job: %w", err)
	}
	s.logger.WithField("spec", s.spec).Info("Scheduled: extend slots from templates")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// extendSlotsJob tops up slot inventory for every active template
func (s *CronService) extendSlotsJob() {
	s.logger.Info("[CRON] Starting slot extension job")
	_, _ = s.runExtend(context.Background())
}

func (s *CronService) runExtend(ctx context.Context) (*ExtensionResult, error) {
	startTime := time.Now()
	result, err := s.extender.ExtendFromTemplates(ctx)
	duration := time.Since(startTime)

	run := &jobRun{At: startTime, Duration: duration.String(), Result: result}
	if err != nil {
		run.Error = err.Error()
		s.logger.WithError(err).Error("[CRON] Slot extension job failed")
	} else {
		s.logger.WithFields(logrus.Fields{
			"templates":       result.Templates,
			"failed":          result.Failed,
			"created":         result.Created,
			"skipped":         result.Skipped,
			"holiday_skipped": result.HolidaySkipped,
			"duration":        duration,
		}).Info("[CRON] Slot extension job finished")
	}

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()
	return result, err
}

// RunExtendNow runs the slot extension job immediately
func (s *CronService) RunExtendNow(ctx context.Context) (*ExtensionResult, error) {
	s.logger.Info("[MANUAL] Running slot extension now")
	return s.runExtend(ctx)
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	s.mu.Lock()
	lastRun := s.lastRun
	s.mu.Unlock()

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"spec":      s.spec,
		"jobs":      jobs,
		"last_run":  lastRun,
	}
}
