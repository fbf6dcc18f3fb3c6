package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"TelemetryHubAPI/internal/lock"
	"TelemetryHubAPI/internal/models"
)

// In-memory test doubles for the storage, state, lock and notification
// boundaries. They implement just enough behavior for the engines to run
// end to end without Postgres or Redis.

type fakeStreamStore struct {
	headers map[string][]string
	rows    map[string][][]string

	countErr   error
	allRowsErr map[string]error
	appendErr  error
}

func newFakeStreamStore() *fakeStreamStore {
	return &fakeStreamStore{
		headers:    make(map[string][]string),
		rows:       make(map[string][][]string),
		allRowsErr: make(map[string]error),
	}
}

func (f *fakeStreamStore) EnsureStream(ctx context.Context, name string, header []string) error {
	if _, ok := f.headers[name]; !ok {
		f.headers[name] = header
	}
	return nil
}

func (f *fakeStreamStore) StreamExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.headers[name]
	return ok, nil
}

func (f *fakeStreamStore) Header(ctx context.Context, name string) ([]string, error) {
	return f.headers[name], nil
}

func (f *fakeStreamStore) AppendRow(ctx context.Context, stream string, cells []string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows[stream] = append(f.rows[stream], cells)
	return nil
}

func (f *fakeStreamStore) AppendRows(ctx context.Context, stream string, rows [][]string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows[stream] = append(f.rows[stream], rows...)
	return nil
}

func (f *fakeStreamStore) RowCount(ctx context.Context, stream string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.rows[stream]), nil
}

func (f *fakeStreamStore) LatestRow(ctx context.Context, stream string) ([]string, error) {
	rows := f.rows[stream]
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[len(rows)-1], nil
}

func (f *fakeStreamStore) AllRows(ctx context.Context, stream string) ([][]string, error) {
	if err := f.allRowsErr[stream]; err != nil {
		return nil, err
	}
	return f.rows[stream], nil
}

func (f *fakeStreamStore) RowsInRange(ctx context.Context, stream, fromTS, toTS string) ([][]string, error) {
	var out [][]string
	for _, row := range f.rows[stream] {
		if len(row) > 0 && row[0] >= fromTS && row[0] < toTS {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStreamStore) ReplaceRows(ctx context.Context, stream string, rows [][]string) error {
	f.rows[stream] = rows
	return nil
}

func (f *fakeStreamStore) DevicesSince(ctx context.Context, stream, sinceTS string) ([]string, error) {
	seen := make(map[string]bool)
	var devices []string
	for _, row := range f.rows[stream] {
		if len(row) > 1 && row[0] >= sinceTS && !seen[row[1]] {
			seen[row[1]] = true
			devices = append(devices, row[1])
		}
	}
	sort.Strings(devices)
	return devices, nil
}

type fakeStateStore struct {
	blobs  map[string]json.RawMessage
	getErr error
	putErr error
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{blobs: make(map[string]json.RawMessage)}
}

func (f *fakeStateStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if f.getErr != nil {
		return false, f.getErr
	}
	raw, ok := f.blobs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeStateStore) Put(ctx context.Context, key string, value interface{}) error {
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.blobs[key] = raw
	return nil
}

type fakeLease struct{}

func (fakeLease) Release(ctx context.Context) {}

type fakeLockManager struct {
	busy     bool
	acquired []string
}

func (f *fakeLockManager) Acquire(ctx context.Context, name string, wait time.Duration) (lock.Lease, error) {
	if f.busy {
		return nil, lock.ErrNotAcquired
	}
	f.acquired = append(f.acquired, name)
	return fakeLease{}, nil
}

type fakeNotifier struct {
	stalls     [][]models.StalledStream
	recoveries []string
	breaches   []models.ThresholdBreach
	archiveErr []string
	reports    []models.HourlyReport
	failAll    bool
}

var errNotifyFailed = errors.New("notify failed")

func (f *fakeNotifier) StallAlert(ctx context.Context, stalls []models.StalledStream) error {
	if f.failAll {
		return errNotifyFailed
	}
	f.stalls = append(f.stalls, stalls)
	return nil
}

func (f *fakeNotifier) RecoveryAlert(ctx context.Context, stream string) error {
	if f.failAll {
		return errNotifyFailed
	}
	f.recoveries = append(f.recoveries, stream)
	return nil
}

func (f *fakeNotifier) ThresholdAlert(ctx context.Context, breach models.ThresholdBreach) error {
	if f.failAll {
		return errNotifyFailed
	}
	f.breaches = append(f.breaches, breach)
	return nil
}

func (f *fakeNotifier) ArchiveErrors(ctx context.Context, date string, errs []string) error {
	if f.failAll {
		return errNotifyFailed
	}
	f.archiveErr = append(f.archiveErr, errs...)
	return nil
}

func (f *fakeNotifier) HourlyReport(ctx context.Context, report models.HourlyReport) error {
	if f.failAll {
		return errNotifyFailed
	}
	f.reports = append(f.reports, report)
	return nil
}

type fakeDedupCache struct {
	seen     map[string]bool
	cacheErr error
}

func newFakeDedupCache() *fakeDedupCache {
	return &fakeDedupCache{seen: make(map[string]bool)}
}

func (f *fakeDedupCache) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.cacheErr != nil {
		return false, f.cacheErr
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}
