package service

import (
	"context"
	"fmt"
	"time"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/lock"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"
	"TelemetryHubAPI/internal/notify"
	"TelemetryHubAPI/internal/repository"
)

const (
	archiveLockName = "archive"
	dateLayout      = "2006-01-02"
)

// ArchiveService rolls yesterday's rows into per-date archive streams and
// compacts each live stream down to the current day. At most one successful
// pass happens per calendar date, however often the trigger fires.
type ArchiveService struct {
	streams  repository.StreamStore
	state    repository.StateStore
	locks    lock.Manager
	notifier notify.Notifier
	log      *logger.Logger
	loc      *time.Location
	lockWait time.Duration
	now      func() time.Time
}

func NewArchiveService(
	streams repository.StreamStore,
	state repository.StateStore,
	locks lock.Manager,
	notifier notify.Notifier,
	cfg *config.Config,
	log *logger.Logger,
) *ArchiveService {
	return &ArchiveService{
		streams:  streams,
		state:    state,
		locks:    locks,
		notifier: notifier,
		log:      log,
		loc:      cfg.Location(),
		lockWait: cfg.Archive.LockWait,
		now:      time.Now,
	}
}

// ArchiveStreamName derives the deterministic archive target for a source
// stream and a calendar date.
func ArchiveStreamName(date, source string) string {
	return date + "_" + source
}

// RunArchive performs one daily archive pass.
func (s *ArchiveService) RunArchive(ctx context.Context) (*models.ArchiveResult, error) {
	lease, err := s.locks.Acquire(ctx, archiveLockName, s.lockWait)
	if err == lock.ErrNotAcquired {
		s.log.Warn("Archive pass skipped: lock busy")
		return &models.ArchiveResult{Skipped: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire archive lock: %w", err)
	}
	defer lease.Release(ctx)

	var state models.ArchiveState
	if _, err := s.state.Get(ctx, models.ArchiveStateKey, &state); err != nil {
		return nil, fmt.Errorf("failed to load archive state: %w", err)
	}

	now := s.now().In(s.loc)
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	if state.LastArchiveDate == today {
		s.log.Info("Archive already completed for %s, skipping", today)
		return &models.ArchiveResult{Skipped: true, Date: today}, nil
	}

	result := &models.ArchiveResult{Date: today}

	for _, stream := range models.MonitoredStreams {
		if err := s.archiveStream(ctx, stream, today, yesterday, result); err != nil {
			// One stream failing never aborts the others.
			s.log.Error("Archive of %s failed: %v", stream, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", stream, err))
		}
	}

	state.LastArchiveDate = today
	state.LastRunAt = now
	state.ArchivedRows += int64(result.ArchivedRows)
	if err := s.state.Put(ctx, models.ArchiveStateKey, state); err != nil {
		return result, fmt.Errorf("failed to persist archive state: %w", err)
	}

	if len(result.Errors) > 0 {
		if err := s.notifier.ArchiveErrors(ctx, today, result.Errors); err != nil {
			s.log.Error("Failed to deliver archive error report: %v", err)
		}
	}

	s.log.Info("Archive pass for %s done: archived=%d retained=%d dropped=%d errors=%d",
		today, result.ArchivedRows, result.RetainedRows, result.DroppedRows, len(result.Errors))

	return result, nil
}

func (s *ArchiveService) archiveStream(ctx context.Context, stream, today, yesterday string, result *models.ArchiveResult) error {
	rows, err := s.streams.AllRows(ctx, stream)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var yesterdayRows, todayRows [][]string
	dropped := 0
	for _, row := range rows {
		key := ""
		if len(row) > 0 {
			key = dateKey(row[0])
		}
		switch key {
		case yesterday:
			yesterdayRows = append(yesterdayRows, row)
		case today:
			todayRows = append(todayRows, row)
		default:
			// Older than yesterday, or unparseable: dropped from the live
			// stream and archived nowhere.
			dropped++
		}
	}

	if len(yesterdayRows) > 0 {
		header, err := s.streams.Header(ctx, stream)
		if err != nil || len(header) == 0 {
			header = models.HeaderForStream(stream)
		}

		archive := ArchiveStreamName(yesterday, stream)
		if err := s.streams.EnsureStream(ctx, archive, header); err != nil {
			return err
		}
		if err := s.streams.AppendRows(ctx, archive, yesterdayRows); err != nil {
			return err
		}
		s.log.Info("Archived %d rows of %s to %s", len(yesterdayRows), stream, archive)
	}

	if err := s.streams.ReplaceRows(ctx, stream, todayRows); err != nil {
		return err
	}

	result.ArchivedRows += len(yesterdayRows)
	result.RetainedRows += len(todayRows)
	result.DroppedRows += dropped
	return nil
}

// dateKey extracts the calendar-date partition key from a timestamp cell.
// Canonical timestamps take the fast path of a plain prefix slice; anything
// else goes through generic parsing. An empty key means the row belongs to
// neither partition.
func dateKey(cell string) string {
	if len(cell) >= 10 && cell[4] == '-' && cell[7] == '-' && allDigits(cell[:4]) &&
		allDigits(cell[5:7]) && allDigits(cell[8:10]) {
		return cell[:10]
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "01/02/2006 15:04:05"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.Format(dateLayout)
		}
	}

	return ""
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
