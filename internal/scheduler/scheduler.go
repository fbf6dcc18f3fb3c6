package scheduler

import (
	"context"
	"sync"
	"time"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/service"
)

// Scheduler fires the recurring passes: the alert check on a fast cadence,
// hourly reports at the top of each hour, and the archive pass once a day at
// the configured local time. Every pass is a short run-to-completion unit;
// overlap between ticks is excluded by the passes' own bounded-wait locks,
// not by the scheduler.
type Scheduler struct {
	monitor *service.MonitorService
	archive *service.ArchiveService
	reports *service.ReportService
	cfg     *config.Config
	loc     *time.Location
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(
	monitor *service.MonitorService,
	archive *service.ArchiveService,
	reports *service.ReportService,
	cfg *config.Config,
	log *logger.Logger,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		monitor: monitor,
		archive: archive,
		reports: reports,
		cfg:     cfg,
		loc:     cfg.Location(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() {
	s.log.Info("Starting scheduler: alert check every %s, archive daily at %02d:%02d %s",
		s.cfg.Alert.CheckInterval, s.cfg.Archive.Hour, s.cfg.Archive.Minute, s.cfg.Store.Timezone)

	s.wg.Add(1)
	go s.monitorLoop()

	s.wg.Add(1)
	go s.archiveLoop()

	if s.cfg.Report.Enabled {
		s.wg.Add(1)
		go s.reportLoop()
	}
}

func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler...")
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) monitorLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Alert.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if _, err := s.monitor.RunCheck(ctx); err != nil {
				s.log.Error("Alert check failed: %v", err)
			}
			cancel()
		}
	}
}

func (s *Scheduler) archiveLoop() {
	defer s.wg.Done()

	// First fire at the configured local time, then every 24h. The per-date
	// guard in the archive pass makes duplicate fires harmless.
	timer := time.NewTimer(s.untilNextArchive())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := s.archive.RunArchive(ctx); err != nil {
				s.log.Error("Archive pass failed: %v", err)
			}
			cancel()
			timer.Reset(s.untilNextArchive())
		}
	}
}

func (s *Scheduler) reportLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(untilNextHour(time.Now().In(s.loc)))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.reports.RunHourly(ctx); err != nil {
				s.log.Error("Hourly report pass failed: %v", err)
			}
			cancel()
			timer.Reset(untilNextHour(time.Now().In(s.loc)))
		}
	}
}

func (s *Scheduler) untilNextArchive() time.Duration {
	now := time.Now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(),
		s.cfg.Archive.Hour, s.cfg.Archive.Minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func untilNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}
