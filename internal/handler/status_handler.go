package handler

import (
	"net/http"
	"time"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"
	"TelemetryHubAPI/internal/service"

	"github.com/gorilla/mux"
)

type StatusHandler struct {
	ingest    *service.IngestService
	cfg       *config.Config
	log       *logger.Logger
	startedAt time.Time
}

func NewStatusHandler(ingest *service.IngestService, cfg *config.Config, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		ingest:    ingest,
		cfg:       cfg,
		log:       log,
		startedAt: time.Now(),
	}
}

func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/status", h.Status).Methods("GET")
	r.HandleFunc("/devices", h.Devices).Methods("GET")
}

// Status is a read-only deployment probe. It never writes anything.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.StatusResponse{
		Status:          "ok",
		StoreConfigured: h.cfg.Store.StoreID != "",
		DeviceClasses: []string{
			string(models.ClassEnvironmental),
			string(models.ClassPicoMonitor),
		},
		MonitoredStreams: models.MonitoredStreams,
		Environment:      h.cfg.Server.Environment,
		StartedAt:        h.startedAt,
		Timestamp:        time.Now(),
	})
}

func (h *StatusHandler) Devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.ingest.DevicesToday(r.Context())
	if err != nil {
		h.log.Error("Failed to list devices: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}

	respondJSON(w, http.StatusOK, models.DevicesResponse{
		Devices: devices,
		Count:   len(devices),
	})
}
