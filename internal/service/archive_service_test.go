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

type archiveFixture struct {
	svc      *ArchiveService
	streams  *fakeStreamStore
	state    *fakeStateStore
	locks    *fakeLockManager
	notifier *fakeNotifier
	now      time.Time
}

func newArchiveFixture(t *testing.T) *archiveFixture {
	t.Helper()

	cfg := &config.Config{
		Store:   config.StoreConfig{StoreID: "store-1", Timezone: "UTC"},
		Archive: config.ArchiveConfig{Hour: 0, Minute: 10, LockWait: time.Second},
	}

	f := &archiveFixture{
		streams:  newFakeStreamStore(),
		state:    newFakeStateStore(),
		locks:    &fakeLockManager{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 8, 31, 0, 10, 0, 0, time.UTC),
	}
	f.svc = NewArchiveService(f.streams, f.state, f.locks, f.notifier, cfg, logger.Nop())
	f.svc.now = func() time.Time { return f.now }

	return f
}

func envRow(ts string) []string {
	return []string{ts, "bme680", "21.0"}
}

func TestArchiveStreamName(t *testing.T) {
	assert.Equal(t, "2026-08-30_Environmental", ArchiveStreamName("2026-08-30", "Environmental"))
	assert.Equal(t, "2026-08-30_PicoMonitor", ArchiveStreamName("2026-08-30", "PicoMonitor"))
}

func TestRunArchive_PartitionsYesterdayAndToday(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.headers[models.StreamEnvironmental] = models.ClassEnvironmental.Header()
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-30 09:00:00"),
		envRow("2026-08-30 23:59:59"),
		envRow("2026-08-31 00:01:00"),
	}

	result, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, "2026-08-31", result.Date)
	assert.Equal(t, 2, result.ArchivedRows)
	assert.Equal(t, 1, result.RetainedRows)
	assert.Equal(t, 0, result.DroppedRows)

	archive := f.streams.rows["2026-08-30_Environmental"]
	require.Len(t, archive, 2)
	assert.Equal(t, "2026-08-30 09:00:00", archive[0][0])
	assert.Equal(t, "2026-08-30 23:59:59", archive[1][0], "append order preserved")

	live := f.streams.rows[models.StreamEnvironmental]
	require.Len(t, live, 1)
	assert.Equal(t, "2026-08-31 00:01:00", live[0][0])

	assert.Equal(t, models.ClassEnvironmental.Header(), f.streams.headers["2026-08-30_Environmental"],
		"archive stream mirrors the source header")
}

func TestRunArchive_IdempotentPerCalendarDay(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-30 09:00:00"),
	}

	first, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	require.False(t, first.Skipped)
	require.Equal(t, 1, first.ArchivedRows)

	// Re-appending yesterday's row and rerunning must not double-archive.
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-30 10:00:00"),
	}

	second, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Len(t, f.streams.rows["2026-08-30_Environmental"], 1)
}

func TestRunArchive_NextDayRunsAgain(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-30 09:00:00"),
	}

	first, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	require.False(t, first.Skipped)

	f.now = f.now.AddDate(0, 0, 1)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-31 15:00:00"),
		envRow("2026-09-01 00:05:00"),
	}

	second, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Skipped)
	assert.Equal(t, "2026-09-01", second.Date)
	assert.Len(t, f.streams.rows["2026-08-31_Environmental"], 1)
}

func TestRunArchive_DropsStaleAndUnparseableRows(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-28 09:00:00"), // older than yesterday
		envRow("not-a-timestamp"),
		envRow("2026-08-30 09:00:00"),
		envRow("2026-08-31 00:01:00"),
	}

	result, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ArchivedRows)
	assert.Equal(t, 1, result.RetainedRows)
	assert.Equal(t, 2, result.DroppedRows)
	assert.Len(t, f.streams.rows[models.StreamEnvironmental], 1)
}

func TestRunArchive_AcceptsFallbackTimestampLayouts(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-30T22:00:00Z"),
		envRow("2026-08-30T23:00:00"),
		envRow("08/30/2026 23:30:00"),
	}

	result, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ArchivedRows)
	assert.Equal(t, 0, result.DroppedRows)
}

func TestRunArchive_EmptyStreamsNoop(t *testing.T) {
	f := newArchiveFixture(t)

	result, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 0, result.ArchivedRows)
	assert.Empty(t, result.Errors)

	// The day is still recorded as done.
	var state models.ArchiveState
	found, err := f.state.Get(context.Background(), models.ArchiveStateKey, &state)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-08-31", state.LastArchiveDate)
}

func TestRunArchive_OneStreamFailingDoesNotAbortOthers(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.allRowsErr[models.StreamEnvironmental] = errors.New("read failed")
	f.streams.rows[models.StreamPicoMonitor] = [][]string{
		{"2026-08-30 09:00:00", "pico_w_01", "28.0"},
	}

	result, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], models.StreamEnvironmental)
	assert.Equal(t, 1, result.ArchivedRows, "healthy stream still archived")
	assert.Len(t, f.notifier.archiveErr, 1, "errors are reported through the sink")
}

func TestRunArchive_LockBusySkips(t *testing.T) {
	f := newArchiveFixture(t)
	f.locks.busy = true

	result, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestRunArchive_CumulativeArchivedRowCounter(t *testing.T) {
	f := newArchiveFixture(t)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-30 09:00:00"),
		envRow("2026-08-30 10:00:00"),
	}

	_, err := f.svc.RunArchive(context.Background())
	require.NoError(t, err)

	f.now = f.now.AddDate(0, 0, 1)
	f.streams.rows[models.StreamEnvironmental] = [][]string{
		envRow("2026-08-31 09:00:00"),
	}

	_, err = f.svc.RunArchive(context.Background())
	require.NoError(t, err)

	var state models.ArchiveState
	_, err = f.state.Get(context.Background(), models.ArchiveStateKey, &state)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.ArchivedRows)
}
