package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlertConfig() config.AlertConfig {
	return config.AlertConfig{
		CheckInterval:     time.Minute,
		InactivityMinutes: 5,
		CooldownMinutes:   30,
		TempThreshold:     25.0,
		TempCooldownMin:   30,
		LockWait:          time.Second,
	}
}

type monitorFixture struct {
	svc      *MonitorService
	streams  *fakeStreamStore
	state    *fakeStateStore
	locks    *fakeLockManager
	notifier *fakeNotifier
	now      time.Time
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	f := &monitorFixture{
		streams:  newFakeStreamStore(),
		state:    newFakeStateStore(),
		locks:    &fakeLockManager{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewMonitorService(f.streams, f.state, f.locks, f.notifier, nil, testAlertConfig(), logger.Nop())
	f.svc.now = func() time.Time { return f.now }

	return f
}

func (f *monitorFixture) seedState(t *testing.T, blob models.AlertStateBlob) {
	t.Helper()
	require.NoError(t, f.state.Put(context.Background(), models.AlertStateKey, blob))
}

func (f *monitorFixture) loadState(t *testing.T) models.AlertStateBlob {
	t.Helper()
	blob := models.AlertStateBlob{}
	_, err := f.state.Get(context.Background(), models.AlertStateKey, &blob)
	require.NoError(t, err)
	return blob
}

func (f *monitorFixture) appendRows(stream string, n int) {
	for i := 0; i < n; i++ {
		f.streams.rows[stream] = append(f.streams.rows[stream],
			[]string{"2026-08-30 11:00:00", "dev", "20.0"})
	}
}

func ago(now time.Time, d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestRunCheck_FirstRunInitializesState(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 3)

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Empty(t, result.StallAlerts, "first observation is never a stall")
	assert.Equal(t, models.MonitoredStreams, result.CheckedStreams)

	blob := f.loadState(t)
	require.Contains(t, blob, models.StreamEnvironmental)
	assert.Equal(t, 3, blob[models.StreamEnvironmental].LastRowCount)
	assert.Equal(t, f.now, blob[models.StreamEnvironmental].LastChangeAt.UTC())
}

func TestRunCheck_StallAfterInactivityWindow(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 10)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {LastRowCount: 10, LastChangeAt: f.now.Add(-6 * time.Minute)},
		models.StreamPicoMonitor:   {LastRowCount: 0, LastChangeAt: f.now.Add(-2 * time.Minute)},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)

	require.Len(t, result.StallAlerts, 1)
	assert.Equal(t, models.StreamEnvironmental, result.StallAlerts[0].Stream)
	assert.Equal(t, 6, result.StallAlerts[0].MinutesStalled)
	assert.Equal(t, 10, result.StallAlerts[0].RowCount)

	blob := f.loadState(t)
	assert.True(t, blob[models.StreamEnvironmental].AlertActive)
	require.NotNil(t, blob[models.StreamEnvironmental].LastAlertAt)
	assert.Equal(t, f.now, blob[models.StreamEnvironmental].LastAlertAt.UTC())
}

func TestRunCheck_StallBelowWindowIsQuiet(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 10)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {LastRowCount: 10, LastChangeAt: f.now.Add(-4 * time.Minute)},
		models.StreamPicoMonitor:   {LastRowCount: 0, LastChangeAt: f.now},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.StallAlerts)
	assert.Empty(t, f.notifier.stalls)
}

func TestRunCheck_CoalescesMultipleStalls(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 10)
	f.appendRows(models.StreamPicoMonitor, 5)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {LastRowCount: 10, LastChangeAt: f.now.Add(-8 * time.Minute)},
		models.StreamPicoMonitor:   {LastRowCount: 5, LastChangeAt: f.now.Add(-7 * time.Minute)},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.StallAlerts, 2)
	require.Len(t, f.notifier.stalls, 1, "one message per pass, however many streams stalled")
	assert.Len(t, f.notifier.stalls[0], 2)
}

func TestRunCheck_CooldownSuppressesRepeatAlert(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 10)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {
			LastRowCount: 10,
			LastChangeAt: f.now.Add(-40 * time.Minute),
			LastAlertAt:  ago(f.now, 10*time.Minute),
			AlertActive:  true,
		},
		models.StreamPicoMonitor: {LastRowCount: 0, LastChangeAt: f.now},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.StallAlerts)
	assert.Empty(t, f.notifier.stalls)
}

func TestRunCheck_CooldownExpiryReAlerts(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 10)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {
			LastRowCount: 10,
			LastChangeAt: f.now.Add(-60 * time.Minute),
			LastAlertAt:  ago(f.now, 31*time.Minute),
			AlertActive:  true,
		},
		models.StreamPicoMonitor: {LastRowCount: 0, LastChangeAt: f.now},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	require.Len(t, result.StallAlerts, 1)
	assert.Equal(t, 60, result.StallAlerts[0].MinutesStalled)
}

func TestRunCheck_GrowthResetsStallAndSendsRecovery(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 12)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {
			LastRowCount: 10,
			LastChangeAt: f.now.Add(-60 * time.Minute),
			LastAlertAt:  ago(f.now, 20*time.Minute),
			AlertActive:  true,
		},
		models.StreamPicoMonitor: {LastRowCount: 0, LastChangeAt: f.now},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{models.StreamEnvironmental}, result.Recovered)
	assert.Equal(t, []string{models.StreamEnvironmental}, f.notifier.recoveries)

	blob := f.loadState(t)
	st := blob[models.StreamEnvironmental]
	assert.Equal(t, 12, st.LastRowCount)
	assert.False(t, st.AlertActive)
	assert.Nil(t, st.LastAlertAt)
	assert.Equal(t, f.now, st.LastChangeAt.UTC())
}

func TestRunCheck_GrowthWithoutActiveAlertIsQuiet(t *testing.T) {
	f := newMonitorFixture(t)
	f.appendRows(models.StreamEnvironmental, 12)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {LastRowCount: 10, LastChangeAt: f.now.Add(-2 * time.Minute)},
		models.StreamPicoMonitor:   {LastRowCount: 0, LastChangeAt: f.now},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Recovered)
	assert.Empty(t, f.notifier.recoveries)
}

func TestRunCheck_ThresholdBreach(t *testing.T) {
	f := newMonitorFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		{"2026-08-30 11:58:00", "bme680", "24.9"},
		{"2026-08-30 11:59:00", "bme680", "26.3"},
	}

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.ThresholdBreach)
	assert.Equal(t, 26.3, result.ThresholdBreach.Value)
	assert.Equal(t, 25.0, result.ThresholdBreach.Threshold)
	assert.Equal(t, "2026-08-30 11:59:00", result.ThresholdBreach.RowTimestamp)
	require.Len(t, f.notifier.breaches, 1)

	blob := f.loadState(t)
	require.NotNil(t, blob[models.StreamEnvironmental].LastThresholdAlertAt)
}

func TestRunCheck_ThresholdBoundaryNotBreached(t *testing.T) {
	f := newMonitorFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		{"2026-08-30 11:59:00", "bme680", "25.0"},
	}

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.ThresholdBreach, "exactly at threshold is not a breach")
}

func TestRunCheck_ThresholdCooldownIsIndependent(t *testing.T) {
	f := newMonitorFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		{"2026-08-30 11:59:00", "bme680", "26.3"},
	}
	// A fresh stall alert must not suppress the threshold alert.
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {
			LastRowCount: 1,
			LastChangeAt: f.now,
			LastAlertAt:  ago(f.now, time.Minute),
			AlertActive:  true,
		},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, result.ThresholdBreach)

	// And a fresh threshold alert suppresses only itself.
	f2 := newMonitorFixture(t)
	f2.streams.rows[models.StreamEnvironmental] = [][]string{
		{"2026-08-30 11:59:00", "bme680", "26.3"},
	}
	f2.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {
			LastRowCount:         1,
			LastChangeAt:         f2.now,
			LastThresholdAlertAt: ago(f2.now, 5*time.Minute),
		},
	})

	result, err = f2.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.ThresholdBreach)
	assert.Empty(t, f2.notifier.breaches)
}

func TestRunCheck_ThresholdUnparsableCellIsSkipped(t *testing.T) {
	f := newMonitorFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		{"2026-08-30 11:59:00", "bme680", "sensor-error"},
	}

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.ThresholdBreach)
	assert.Empty(t, result.Errors)
}

func TestRunCheck_LockBusySkipsPass(t *testing.T) {
	f := newMonitorFixture(t)
	f.locks.busy = true

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, result.CheckedStreams)
}

func TestRunCheck_CountErrorRecordedPassContinues(t *testing.T) {
	f := newMonitorFixture(t)
	f.streams.countErr = errors.New("db down")

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Errors, len(models.MonitoredStreams))
}

func TestRunCheck_NotifierFailureDoesNotFailPass(t *testing.T) {
	f := newMonitorFixture(t)
	f.notifier.failAll = true
	f.appendRows(models.StreamEnvironmental, 10)
	f.seedState(t, models.AlertStateBlob{
		models.StreamEnvironmental: {LastRowCount: 10, LastChangeAt: f.now.Add(-10 * time.Minute)},
		models.StreamPicoMonitor:   {LastRowCount: 0, LastChangeAt: f.now},
	})

	result, err := f.svc.RunCheck(context.Background())
	require.NoError(t, err)
	require.Len(t, result.StallAlerts, 1)

	// The alert is still marked sent so the cooldown applies.
	blob := f.loadState(t)
	assert.NotNil(t, blob[models.StreamEnvironmental].LastAlertAt)
}
