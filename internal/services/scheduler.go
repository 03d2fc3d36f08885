package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	jobOrderAudit = "order_audit"
	jobCleanup    = "cleanup"

	defaultLeaseTTL = 10 * time.Minute
)

// JobLocker hands out leases on (job, slot) pairs so that a scheduled run is
// executed by a single instance.
type JobLocker struct {
	db     *gorm.DB
	holder string
	now    func() time.Time
}

func NewJobLocker(db *gorm.DB) *JobLocker {
	return &JobLocker{db: db, holder: uuid.NewString(), now: func() time.Time { return time.Now().UTC() }}
}

// TryAcquire claims (job, slot) for ttl. It returns false while another
// holder's lease is still live.
func (l *JobLocker) TryAcquire(ctx context.Context, job, slot string, ttl time.Duration) (bool, error) {
	now := l.now()
	db := l.db.WithContext(ctx)

	lock := models.SchedulerLock{Job: job, Slot: slot, Holder: l.holder, LockedAt: now, ExpiresAt: now.Add(ttl)}
	err := db.Create(&lock).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, err
	}

	res := db.Model(&models.SchedulerLock{}).
		Where("job = ? AND slot = ? AND expires_at <= ?", job, slot, now).
		Updates(map[string]interface{}{
			"holder":     l.holder,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// PurgeBefore deletes leases that expired before cutoff.
func (l *JobLocker) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.SchedulerLock{})
	return res.RowsAffected, res.Error
}

// MaintenanceScheduler runs the order audit and the cleanup job on cron.
type MaintenanceScheduler struct {
	db        *gorm.DB
	cfg       config.MaintenanceConfig
	auditor   *OrderAuditor
	logs      *SystemLogService
	configSvc *SystemConfigService
	locker    *JobLocker

	now func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewMaintenanceScheduler(db *gorm.DB, cfg config.MaintenanceConfig) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		db:        db,
		cfg:       cfg,
		auditor:   NewOrderAuditor(db),
		logs:      NewSystemLogService(db),
		configSvc: NewSystemConfigService(db),
		locker:    NewJobLocker(db),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start registers both jobs. An empty cron expression disables its job.
func (s *MaintenanceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if s.cfg.OrderAuditCron != "" {
		if _, err := c.AddFunc(s.cfg.OrderAuditCron, func() { s.runJob(jobOrderAudit, s.cfg.OrderAuditCron, s.RunOrderAudit) }); err != nil {
			return err
		}
	}
	if s.cfg.CleanupCron != "" {
		if _, err := c.AddFunc(s.cfg.CleanupCron, func() { s.runJob(jobCleanup, s.cfg.CleanupCron, s.RunCleanup) }); err != nil {
			return err
		}
	}

	c.Start()
	s.cron = c
	logger.Infof("[Maintenance] Scheduler started (audit: %q, cleanup: %q)", s.cfg.OrderAuditCron, s.cfg.CleanupCron)
	return nil
}

// Stop waits for running jobs to finish.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	logger.Infof("[Maintenance] Scheduler stopped")
}

// jobSlot names the run of spec that is due at now, and how long its lease
// lives. "@every" specs fire relative to each instance's start, so their runs
// are grouped by period; wall-clock specs fire on the same minute everywhere.
func jobSlot(spec string, now time.Time) (string, time.Duration) {
	ttl := defaultLeaseTTL
	period := time.Minute
	if sched, err := cron.ParseStandard(spec); err == nil {
		if every, ok := sched.(cron.ConstantDelaySchedule); ok {
			period = every.Delay
			if period > ttl {
				ttl = period
			}
		}
	}
	return now.Truncate(period).Format(time.RFC3339), ttl
}

func (s *MaintenanceScheduler) runJob(name, spec string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultLeaseTTL)
	defer cancel()

	slot, ttl := jobSlot(spec, s.now())
	ok, err := s.locker.TryAcquire(ctx, name, slot, ttl)
	if err != nil {
		logger.Errorf("[Maintenance] %s: failed to acquire lease: %v", name, err)
		return
	}
	if !ok {
		logger.Debugf("[Maintenance] %s: slot %s taken by another instance", name, slot)
		return
	}

	if err := job(ctx); err != nil {
		logger.Errorf("[Maintenance] %s failed: %v", name, err)
	}
}

// RunOrderAudit verifies every column and repairs them when configured to.
func (s *MaintenanceScheduler) RunOrderAudit(ctx context.Context) error {
	report, err := s.auditor.Audit(ctx, "", s.cfg.OrderAuditRepair)
	if err != nil {
		return err
	}
	for _, c := range report.Columns {
		logger.Warn().
			Str("project_id", c.ProjectID).
			Str("column", string(c.Violation.Status)).
			Ints("missing", c.Violation.Missing).
			Ints("extra", c.Violation.Extra).
			Bool("repaired", c.Repaired).
			Msg("[Maintenance] column order violation")
	}
	logger.Infof("[Maintenance] order audit: %d projects, %d broken columns, %d rows renumbered",
		report.ProjectsChecked, len(report.Columns), report.Changes)
	return nil
}

// RunCleanup deletes stale refresh tokens, old activity and expired leases.
func (s *MaintenanceScheduler) RunCleanup(ctx context.Context) error {
	retention := s.configSvc.GetInt("activity_retention_days", s.cfg.ActivityRetentionDays)
	now := time.Now().UTC()

	tokens, err := DeleteStaleRefreshTokens(ctx, s.db, now.AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	logs, err := s.logs.CleanupOldLogs(ctx, retention)
	if err != nil {
		return err
	}
	leases, err := s.locker.PurgeBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	logger.Infof("[Maintenance] cleanup: %d refresh tokens, %d activity rows older than %d days, %d leases",
		tokens, logs, retention, leases)
	return nil
}
