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
	"TelemetryHubAPI/internal/websocket"
)

const alertLockName = "alert-check"

// Environmental column positions used by the threshold check.
const (
	colTimestamp   = 0
	colTemperature = 2
)

// MonitorService runs the stall detector and the temperature threshold check
// in one locked pass over one shared state blob.
type MonitorService struct {
	streams  repository.StreamStore
	state    repository.StateStore
	locks    lock.Manager
	notifier notify.Notifier
	hub      *websocket.Hub
	log      *logger.Logger
	cfg      config.AlertConfig
	now      func() time.Time
}

func NewMonitorService(
	streams repository.StreamStore,
	state repository.StateStore,
	locks lock.Manager,
	notifier notify.Notifier,
	hub *websocket.Hub,
	cfg config.AlertConfig,
	log *logger.Logger,
) *MonitorService {
	return &MonitorService{
		streams:  streams,
		state:    state,
		locks:    locks,
		notifier: notifier,
		hub:      hub,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunCheck performs one alert pass. Lock contention is not an error: the pass
// is skipped and the next tick retries naturally.
func (s *MonitorService) RunCheck(ctx context.Context) (*models.MonitorResult, error) {
	lease, err := s.locks.Acquire(ctx, alertLockName, s.cfg.LockWait)
	if err == lock.ErrNotAcquired {
		s.log.Warn("Alert check skipped: lock busy")
		return &models.MonitorResult{Skipped: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire alert lock: %w", err)
	}
	defer lease.Release(ctx)

	blob := models.AlertStateBlob{}
	if _, err := s.state.Get(ctx, models.AlertStateKey, &blob); err != nil {
		return nil, fmt.Errorf("failed to load alert state: %w", err)
	}

	now := s.now()
	result := &models.MonitorResult{}

	for _, stream := range models.MonitoredStreams {
		result.CheckedStreams = append(result.CheckedStreams, stream)
		s.checkStream(ctx, stream, blob, now, result)
	}

	if len(result.StallAlerts) > 0 {
		// One coalesced message per pass, however many streams stalled.
		if err := s.notifier.StallAlert(ctx, result.StallAlerts); err != nil {
			s.log.Error("Failed to deliver stall alert: %v", err)
		}
		s.hub.Broadcast(websocket.EventStall, result.StallAlerts)
	}

	s.checkThreshold(ctx, blob, now, result)

	// Persisted unconditionally so activity timestamps stay current even on
	// alert-free runs.
	if err := s.state.Put(ctx, models.AlertStateKey, blob); err != nil {
		return result, fmt.Errorf("failed to persist alert state: %w", err)
	}

	return result, nil
}

func (s *MonitorService) checkStream(ctx context.Context, stream string, blob models.AlertStateBlob, now time.Time, result *models.MonitorResult) {
	count, err := s.streams.RowCount(ctx, stream)
	if err != nil {
		s.log.Error("Failed to count rows of %s: %v", stream, err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", stream, err))
		return
	}

	st := blob[stream]
	if st == nil {
		// First observation is not evidence of a stall.
		blob[stream] = &models.StreamAlertState{
			LastRowCount: count,
			LastChangeAt: now,
		}
		s.log.Info("Initialized alert state for %s at %d rows", stream, count)
		return
	}

	if count > st.LastRowCount {
		if st.AlertActive {
			if err := s.notifier.RecoveryAlert(ctx, stream); err != nil {
				s.log.Error("Failed to deliver recovery alert: %v", err)
			}
			s.hub.Broadcast(websocket.EventRecovery, stream)
			result.Recovered = append(result.Recovered, stream)
			s.log.Info("Recovery detected for %s", stream)
		}
		st.LastRowCount = count
		st.LastChangeAt = now
		st.LastAlertAt = nil
		st.AlertActive = false
		return
	}

	minutes := int(now.Sub(st.LastChangeAt).Minutes())
	if minutes < s.cfg.InactivityMinutes {
		return
	}

	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	if st.LastAlertAt != nil && now.Sub(*st.LastAlertAt) < cooldown {
		s.log.Debug("Stall alert for %s suppressed by cooldown", stream)
		return
	}

	alertAt := now
	st.LastAlertAt = &alertAt
	st.AlertActive = true
	result.StallAlerts = append(result.StallAlerts, models.StalledStream{
		Stream:         stream,
		MinutesStalled: minutes,
		RowCount:       count,
	})
	s.log.Warn("Stall detected on %s: %d min without growth (%d rows)", stream, minutes, count)
}

// checkThreshold inspects the latest primary-stream reading. Missing rows and
// unparsable values skip the check silently; they never abort the pass.
func (s *MonitorService) checkThreshold(ctx context.Context, blob models.AlertStateBlob, now time.Time, result *models.MonitorResult) {
	row, err := s.streams.LatestRow(ctx, models.StreamEnvironmental)
	if err != nil {
		s.log.Error("Failed to read latest environmental row: %v", err)
		result.Errors = append(result.Errors, fmt.Sprintf("threshold: %v", err))
		return
	}
	if len(row) <= colTemperature {
		return
	}

	value, ok := models.ParseCellFloat(row[colTemperature])
	if !ok || value <= s.cfg.TempThreshold {
		return
	}

	st := blob[models.StreamEnvironmental]
	if st == nil {
		st = &models.StreamAlertState{LastRowCount: 0, LastChangeAt: now}
		blob[models.StreamEnvironmental] = st
	}

	cooldown := time.Duration(s.cfg.TempCooldownMin) * time.Minute
	if st.LastThresholdAlertAt != nil && now.Sub(*st.LastThresholdAlertAt) < cooldown {
		s.log.Debug("Threshold alert suppressed by cooldown")
		return
	}

	breach := models.ThresholdBreach{
		Stream:       models.StreamEnvironmental,
		Value:        value,
		Threshold:    s.cfg.TempThreshold,
		RowTimestamp: row[colTimestamp],
	}

	if err := s.notifier.ThresholdAlert(ctx, breach); err != nil {
		s.log.Error("Failed to deliver threshold alert: %v", err)
	}
	s.hub.Broadcast(websocket.EventThreshold, breach)

	alertAt := now
	st.LastThresholdAlertAt = &alertAt
	result.ThresholdBreach = &breach
	s.log.Warn("Threshold breach on %s: %.2f > %.2f", breach.Stream, value, s.cfg.TempThreshold)
}
