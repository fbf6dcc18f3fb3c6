package handler

import (
	"context"
	"net/http"
	"time"

	"TelemetryHubAPI/internal/database"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

type HealthHandler struct {
	db    *database.Database
	redis *redis.Client
	log   *logger.Logger
}

func NewHealthHandler(db *database.Database, rdb *redis.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: rdb,
		log:   log,
	}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/health/live", h.Liveness).Methods("GET")
	r.HandleFunc("/health/ready", h.Readiness).Methods("GET")
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	dbErr := h.db.Health(ctx)
	response.Services.Database = (dbErr == nil)

	redisErr := h.redis.Ping(ctx).Err()
	response.Services.Redis = (redisErr == nil)

	if !response.Services.Database || !response.Services.Redis {
		response.Status = "degraded"
		h.log.Warn("Health check degraded - DB: %v, Redis: %v", response.Services.Database, response.Services.Redis)
	}

	statusCode := http.StatusOK
	if response.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, response)
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.db.Health(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		h.log.Warn("Readiness check failed - DB error: %v, Redis error: %v", dbErr, redisErr)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
