package service

import (
	"context"
	"strings"
	"time"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/dedup"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"
	"TelemetryHubAPI/internal/repository"
	"TelemetryHubAPI/internal/websocket"
)

// IngestService validates, deduplicates and persists inbound readings.
// At most one row is appended per unique dedup key within the dedup window;
// loss of the cache costs at worst a duplicate row, never data loss.
type IngestService struct {
	streams  repository.StreamStore
	cache    dedup.Cache
	hub      *websocket.Hub
	log      *logger.Logger
	storeID  string
	dedupTTL time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewIngestService(
	streams repository.StreamStore,
	cache dedup.Cache,
	hub *websocket.Hub,
	cfg *config.Config,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		streams:  streams,
		cache:    cache,
		hub:      hub,
		log:      log,
		storeID:  cfg.Store.StoreID,
		dedupTTL: cfg.Store.DedupTTL,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

// Ingest processes one raw payload. Validation problems come back as an error
// result with a nil error; a non-nil error means a storage failure (the
// result still carries the structured error body).
func (s *IngestService) Ingest(ctx context.Context, body []byte, contentType string) (*models.IngestResult, error) {
	if s.storeID == "" {
		return errorResult("store not configured"), nil
	}

	if contentType != "" && !strings.Contains(contentType, "json") {
		return errorResult("unsupported content type: " + contentType), nil
	}

	reading, err := models.ParseReading(body)
	if err != nil {
		s.log.Warn("Rejected payload: %v", err)
		return errorResult(err.Error()), nil
	}

	if reading.SensorError != "" {
		s.log.Warn("Device %s reported sensor error: %s", reading.DeviceID, reading.SensorError)
	}

	class := reading.Class()
	stream := class.Stream()
	timestamp := s.now().In(s.loc).Format(models.TimestampLayout)

	// Dedup is best-effort: when the cache is unreachable we ingest anyway
	// and accept the possibility of a duplicate row.
	fresh, err := s.cache.MarkIfNew(ctx, reading.DedupKey(), s.dedupTTL)
	if err != nil {
		s.log.Warn("Dedup cache unavailable, ingesting without dedup: %v", err)
		fresh = true
	}

	if !fresh {
		s.log.Debug("Duplicate reading from %s (key=%s)", reading.DeviceID, reading.DedupKey())
		return &models.IngestResult{
			Status:    "success",
			Timestamp: timestamp,
			DeviceID:  reading.DeviceID,
			Stream:    stream,
			Cached:    true,
		}, nil
	}

	if err := s.streams.EnsureStream(ctx, stream, class.Header()); err != nil {
		s.log.Error("Failed to ensure stream %s: %v", stream, err)
		return errorResult("storage failure"), err
	}

	if err := s.streams.AppendRow(ctx, stream, reading.Row(timestamp)); err != nil {
		s.log.Error("Failed to append reading from %s: %v", reading.DeviceID, err)
		return errorResult("storage failure"), err
	}

	s.log.Info("Reading stored: device=%s, stream=%s", reading.DeviceID, stream)

	s.hub.Broadcast(websocket.EventReading, map[string]interface{}{
		"device_id": reading.DeviceID,
		"stream":    stream,
		"timestamp": timestamp,
	})

	return &models.IngestResult{
		Status:    "success",
		Timestamp: timestamp,
		DeviceID:  reading.DeviceID,
		Stream:    stream,
	}, nil
}

// DevicesToday lists device ids with rows since local midnight on the live
// streams.
func (s *IngestService) DevicesToday(ctx context.Context) ([]string, error) {
	midnight := s.now().In(s.loc).Format("2006-01-02") + " 00:00:00"

	seen := make(map[string]bool)
	var devices []string
	for _, stream := range models.MonitoredStreams {
		ids, err := s.streams.DevicesSince(ctx, stream, midnight)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				devices = append(devices, id)
			}
		}
	}

	return devices, nil
}

func errorResult(message string) *models.IngestResult {
	return &models.IngestResult{
		Status:  "error",
		Message: message,
	}
}
