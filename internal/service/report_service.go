package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"
	"TelemetryHubAPI/internal/notify"
	"TelemetryHubAPI/internal/repository"
)

// Environmental column positions used by the hourly aggregation.
const (
	colDeviceID      = 1
	colHumidity      = 3
	colPressure      = 4
	colGas           = 5
	colStinkCount    = 8
	colSuccessCount  = 10
	colTotalRequests = 11
)

var reportHeader = []string{
	"Hour Start", "Device ID", "Reading Count",
	"Avg Temp (C)", "Max Temp (C)", "Min Temp (C)",
	"Avg Humidity (%)", "Avg Pressure (hPa)", "Avg Gas (kOhms)",
	"Total Stink Count", "Total Success Count", "Total Requests",
}

// ReportService aggregates the previous clock hour of the primary stream per
// device, appends the rollup to the Hourly Reports stream and posts a summary
// through the notification sink.
type ReportService struct {
	streams  repository.StreamStore
	notifier notify.Notifier
	log      *logger.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewReportService(
	streams repository.StreamStore,
	notifier notify.Notifier,
	cfg *config.Config,
	log *logger.Logger,
) *ReportService {
	return &ReportService{
		streams:  streams,
		notifier: notifier,
		log:      log,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

// RunHourly builds reports for the hour that just ended. Per-device delivery
// failures are logged and never abort the pass.
func (s *ReportService) RunHourly(ctx context.Context) ([]models.HourlyReport, error) {
	now := s.now().In(s.loc)
	hourStart := now.Truncate(time.Hour).Add(-time.Hour)

	reports, err := s.aggregateHour(ctx, hourStart)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		s.log.Debug("No readings in hour starting %s, no reports", hourStart.Format(models.TimestampLayout))
		return nil, nil
	}

	if err := s.streams.EnsureStream(ctx, models.StreamHourlyReports, reportHeader); err != nil {
		return nil, fmt.Errorf("failed to ensure report stream: %w", err)
	}

	for _, report := range reports {
		if err := s.streams.AppendRow(ctx, models.StreamHourlyReports, reportRow(report)); err != nil {
			s.log.Error("Failed to append report for %s: %v", report.DeviceID, err)
			continue
		}
		if err := s.notifier.HourlyReport(ctx, report); err != nil {
			s.log.Error("Failed to deliver report for %s: %v", report.DeviceID, err)
		}
	}

	s.log.Info("Hourly report pass done: %d device(s) for hour %s",
		len(reports), hourStart.Format("2006-01-02 15:00"))

	return reports, nil
}

type deviceAccumulator struct {
	count                          int
	tempSum, tempMax, tempMin      float64
	tempCount                      int
	humSum, pressSum, gasSum       float64
	humCount, pressCount, gasCount int
	stink, success, totalRequests  int
}

func (s *ReportService) aggregateHour(ctx context.Context, hourStart time.Time) ([]models.HourlyReport, error) {
	from := hourStart.Format(models.TimestampLayout)
	to := hourStart.Add(time.Hour).Format(models.TimestampLayout)

	rows, err := s.streams.RowsInRange(ctx, models.StreamEnvironmental, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows for report: %w", err)
	}

	acc := make(map[string]*deviceAccumulator)
	for _, row := range rows {
		if len(row) <= colTotalRequests {
			continue
		}

		device := row[colDeviceID]
		if device == "" {
			continue
		}

		a := acc[device]
		if a == nil {
			a = &deviceAccumulator{}
			acc[device] = a
		}
		a.count++

		if v, ok := models.ParseCellFloat(row[colTemperature]); ok {
			if a.tempCount == 0 || v > a.tempMax {
				a.tempMax = v
			}
			if a.tempCount == 0 || v < a.tempMin {
				a.tempMin = v
			}
			a.tempSum += v
			a.tempCount++
		}
		if v, ok := models.ParseCellFloat(row[colHumidity]); ok {
			a.humSum += v
			a.humCount++
		}
		if v, ok := models.ParseCellFloat(row[colPressure]); ok {
			a.pressSum += v
			a.pressCount++
		}
		if v, ok := models.ParseCellFloat(row[colGas]); ok {
			a.gasSum += v
			a.gasCount++
		}

		a.stink += cellInt(row[colStinkCount])
		a.success += cellInt(row[colSuccessCount])
		a.totalRequests += cellInt(row[colTotalRequests])
	}

	devices := make([]string, 0, len(acc))
	for device := range acc {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	reports := make([]models.HourlyReport, 0, len(devices))
	for _, device := range devices {
		a := acc[device]
		report := models.HourlyReport{
			DeviceID:      device,
			HourStart:     hourStart,
			ReadingCount:  a.count,
			TotalStink:    a.stink,
			TotalSuccess:  a.success,
			TotalRequests: a.totalRequests,
		}
		if a.tempCount > 0 {
			avg := a.tempSum / float64(a.tempCount)
			max := a.tempMax
			min := a.tempMin
			report.AvgTemperature = &avg
			report.MaxTemperature = &max
			report.MinTemperature = &min
		}
		if a.humCount > 0 {
			avg := a.humSum / float64(a.humCount)
			report.AvgHumidity = &avg
		}
		if a.pressCount > 0 {
			avg := a.pressSum / float64(a.pressCount)
			report.AvgPressure = &avg
		}
		if a.gasCount > 0 {
			avg := a.gasSum / float64(a.gasCount)
			report.AvgGas = &avg
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func reportRow(r models.HourlyReport) []string {
	return []string{
		r.HourStart.Format(models.TimestampLayout),
		r.DeviceID,
		strconv.Itoa(r.ReadingCount),
		cellFloat(r.AvgTemperature),
		cellFloat(r.MaxTemperature),
		cellFloat(r.MinTemperature),
		cellFloat(r.AvgHumidity),
		cellFloat(r.AvgPressure),
		cellFloat(r.AvgGas),
		strconv.Itoa(r.TotalStink),
		strconv.Itoa(r.TotalSuccess),
		strconv.Itoa(r.TotalRequests),
	}
}

func cellFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}

func cellInt(cell string) int {
	n, err := strconv.Atoi(cell)
	if err != nil {
		return 0
	}
	return n
}
