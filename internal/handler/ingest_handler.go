package handler

import (
	"io"
	"net/http"

	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/service"

	"github.com/gorilla/mux"
)

// Device payloads are small JSON objects. Anything bigger is a misbehaving
// client, not a reading.
const maxIngestBody = 64 * 1024

type IngestHandler struct {
	ingest *service.IngestService
	log    *logger.Logger
}

func NewIngestHandler(ingest *service.IngestService, log *logger.Logger) *IngestHandler {
	return &IngestHandler{
		ingest: ingest,
		log:    log,
	}
}

func (h *IngestHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ingest", h.Ingest).Methods("POST")
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := h.ingest.Ingest(r.Context(), body, r.Header.Get("Content-Type"))
	if err != nil {
		h.log.Error("Ingest failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, result)
		return
	}

	if result.Status == "error" {
		respondJSON(w, http.StatusBadRequest, result)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
