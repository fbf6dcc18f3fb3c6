package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TimestampLayout is the canonical timestamp format used in the first column
// of every stream row. Archival date partitioning relies on this layout.
const TimestampLayout = "2006-01-02 15:04:05"

// DeviceClass identifies which stream a reading belongs to.
type DeviceClass string

const (
	ClassEnvironmental DeviceClass = "environmental"
	ClassPicoMonitor   DeviceClass = "pico_monitor"
)

const (
	StreamEnvironmental = "Environmental"
	StreamPicoMonitor   = "PicoMonitor"
	StreamHourlyReports = "Hourly Reports"
)

// MonitoredStreams lists the live streams watched by the stall detector and
// processed by the daily archive pass.
var MonitoredStreams = []string{StreamEnvironmental, StreamPicoMonitor}

// ClassifyDevice decides the device class from the device identifier.
// Exactly two classes are recognized; anything unrecognized defaults to the
// environmental class.
func ClassifyDevice(deviceID string) DeviceClass {
	if strings.Contains(strings.ToLower(deviceID), "pico_w") {
		return ClassPicoMonitor
	}
	return ClassEnvironmental
}

func (c DeviceClass) Stream() string {
	if c == ClassPicoMonitor {
		return StreamPicoMonitor
	}
	return StreamEnvironmental
}

// Header returns the column layout contract for the class stream. Archive
// streams must mirror this order exactly.
func (c DeviceClass) Header() []string {
	if c == ClassPicoMonitor {
		return []string{
			"Timestamp", "Device ID", "Temp (C)", "Raw ADC", "Voltage (V)",
			"Device TS", "Firmware",
			"Stink Count", "Redirect Count", "Success Count",
			"Total Requests", "Uptime Cycles", "Reset Count",
		}
	}
	return []string{
		"Timestamp", "Device ID", "Temp (C)", "Humidity (%)", "Pressure (hPa)", "Gas (kOhms)",
		"Device TS", "Firmware",
		"Stink Count", "Redirect Count", "Success Count",
		"Total Requests", "Uptime Cycles", "Reset Count",
	}
}

// HeaderForStream maps a live stream name back to its column contract, used
// as the fallback when an archive target is created and the source stream
// carries no header.
func HeaderForStream(stream string) []string {
	if stream == StreamPicoMonitor {
		return ClassPicoMonitor.Header()
	}
	return ClassEnvironmental.Header()
}

// Reading is one normalized measurement event. Optional numeric fields are
// nil when absent or unparsable; counters default to zero. A Reading is built
// once from the inbound payload and never mutated after that.
type Reading struct {
	DeviceID    string
	DeviceTS    string
	RequestID   string
	Firmware    string
	SensorError string

	// Environmental sensors
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Gas         *float64

	// Pico internal temperature sensor
	RawADC  *int
	Voltage *float64

	// Device-reported counters
	StinkCount    int
	RedirectCount int
	SuccessCount  int
	TotalRequests int
	UptimeCycles  int
	ResetCount    int
}

// ParseReading validates and normalizes a raw JSON payload. Numeric fields
// are coerced defensively: anything that does not parse to a finite number is
// stored as absent, never as NaN or a sentinel.
func ParseReading(body []byte) (*Reading, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	deviceID, _ := raw["device_id"].(string)
	if deviceID == "" {
		return nil, fmt.Errorf("missing device_id")
	}

	r := &Reading{
		DeviceID:    deviceID,
		DeviceTS:    stringField(raw["device_ts"]),
		RequestID:   stringField(raw["request_id"]),
		Firmware:    stringField(raw["firmware"]),
		SensorError: stringField(raw["sensor_error"]),

		Temperature: floatField(raw["temperature"]),
		Humidity:    floatField(raw["humidity"]),
		Pressure:    floatField(raw["pressure"]),
		Gas:         floatField(raw["gas"]),
		RawADC:      intField(raw["raw_adc"]),
		Voltage:     floatField(raw["voltage"]),

		StinkCount:    counterField(raw["stink_count"]),
		RedirectCount: counterField(raw["redirect_count"]),
		SuccessCount:  counterField(raw["success_count"]),
		TotalRequests: counterField(raw["total_requests"]),
		UptimeCycles:  counterField(raw["uptime_cycles"]),
		ResetCount:    counterField(raw["reset_count"]),
	}

	return r, nil
}

func (r *Reading) Class() DeviceClass {
	return ClassifyDevice(r.DeviceID)
}

// DedupKey computes the idempotency key for this reading: the request id when
// the device sent one, otherwise a composite of device id, device timestamp
// and the primary measurement. The composite can collide for two distinct
// readings taken in the same second with identical values; that is accepted
// lossy behavior within the bounded dedup window.
func (r *Reading) DedupKey() string {
	if r.RequestID != "" {
		return r.RequestID
	}
	return r.DeviceID + "|" + r.DeviceTS + "|" + r.primaryMeasurement()
}

func (r *Reading) primaryMeasurement() string {
	if r.Temperature != nil {
		return formatFloat(r.Temperature)
	}
	if r.RawADC != nil {
		return strconv.Itoa(*r.RawADC)
	}
	return ""
}

// Row renders the reading as a stream row using the class column contract.
// Absent fields become empty cells; counters are always present.
func (r *Reading) Row(timestamp string) []string {
	counters := []string{
		strconv.Itoa(r.StinkCount),
		strconv.Itoa(r.RedirectCount),
		strconv.Itoa(r.SuccessCount),
		strconv.Itoa(r.TotalRequests),
		strconv.Itoa(r.UptimeCycles),
		strconv.Itoa(r.ResetCount),
	}

	if r.Class() == ClassPicoMonitor {
		row := []string{
			timestamp,
			r.DeviceID,
			formatFloat(r.Temperature),
			formatInt(r.RawADC),
			formatFloat(r.Voltage),
			r.DeviceTS,
			r.Firmware,
		}
		return append(row, counters...)
	}

	row := []string{
		timestamp,
		r.DeviceID,
		formatFloat(r.Temperature),
		formatFloat(r.Humidity),
		formatFloat(r.Pressure),
		formatFloat(r.Gas),
		r.DeviceTS,
		r.Firmware,
	}
	return append(row, counters...)
}

func stringField(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func floatField(v interface{}) *float64 {
	switch val := v.(type) {
	case float64:
		if !isFinite(val) {
			return nil
		}
		f := val
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || !isFinite(f) {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func intField(v interface{}) *int {
	if f := floatField(v); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

func counterField(v interface{}) int {
	if f := floatField(v); f != nil && *f >= 0 {
		return int(*f)
	}
	return 0
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// ParseCellFloat parses a numeric stream cell. It accepts both the native
// dot-decimal rendering and locale exports that use a decimal comma.
func ParseCellFloat(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}
