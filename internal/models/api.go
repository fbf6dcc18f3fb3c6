package models

import "time"

// IngestResult is the JSON body returned for every ingest request,
// successful or not.
type IngestResult struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	Stream    string `json:"stream,omitempty"`
	Cached    bool   `json:"cached"`
	Message   string `json:"message,omitempty"`
}

// StatusResponse is the read-only deployment probe. It never has side effects.
type StatusResponse struct {
	Status           string    `json:"status"`
	StoreConfigured  bool      `json:"store_configured"`
	DeviceClasses    []string  `json:"device_classes"`
	MonitoredStreams []string  `json:"monitored_streams"`
	Environment      string    `json:"environment"`
	StartedAt        time.Time `json:"started_at"`
	Timestamp        time.Time `json:"timestamp"`
}

type DevicesResponse struct {
	Devices []string `json:"devices"`
	Count   int      `json:"count"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  struct {
		Database bool `json:"database"`
		Redis    bool `json:"redis"`
	} `json:"services"`
}

// StalledStream describes one stream that stopped growing, for coalesced
// stall notifications.
type StalledStream struct {
	Stream         string `json:"stream"`
	MinutesStalled int    `json:"minutes_stalled"`
	RowCount       int    `json:"row_count"`
}

// ThresholdBreach describes a primary-stream reading above the safety
// threshold.
type ThresholdBreach struct {
	Stream       string  `json:"stream"`
	Value        float64 `json:"value"`
	Threshold    float64 `json:"threshold"`
	RowTimestamp string  `json:"row_timestamp"`
}

// MonitorResult summarizes one alert-check pass.
type MonitorResult struct {
	Skipped         bool             `json:"skipped"`
	CheckedStreams  []string         `json:"checked_streams"`
	StallAlerts     []StalledStream  `json:"stall_alerts,omitempty"`
	Recovered       []string         `json:"recovered,omitempty"`
	ThresholdBreach *ThresholdBreach `json:"threshold_breach,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
}

// ArchiveResult summarizes one daily archive pass.
type ArchiveResult struct {
	Skipped      bool     `json:"skipped"`
	Date         string   `json:"date"`
	ArchivedRows int      `json:"archived_rows"`
	RetainedRows int      `json:"retained_rows"`
	DroppedRows  int      `json:"dropped_rows"`
	Errors       []string `json:"errors,omitempty"`
}

// HourlyReport aggregates one device's primary-stream readings over a clock
// hour.
type HourlyReport struct {
	DeviceID       string    `json:"device_id"`
	HourStart      time.Time `json:"hour_start"`
	ReadingCount   int       `json:"reading_count"`
	AvgTemperature *float64  `json:"avg_temperature,omitempty"`
	MaxTemperature *float64  `json:"max_temperature,omitempty"`
	MinTemperature *float64  `json:"min_temperature,omitempty"`
	AvgHumidity    *float64  `json:"avg_humidity,omitempty"`
	AvgPressure    *float64  `json:"avg_pressure,omitempty"`
	AvgGas         *float64  `json:"avg_gas,omitempty"`
	TotalStink     int       `json:"total_stink_count"`
	TotalSuccess   int       `json:"total_success_count"`
	TotalRequests  int       `json:"total_requests"`
}
