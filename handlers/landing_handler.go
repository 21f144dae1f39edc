package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/services"
)

type landingPage struct {
	TrackerPath string
}

// PageHandler serves the static pages around the tracker.
type PageHandler struct {
	pinger services.Pinger
	logger *zap.Logger
}

func NewPageHandler(pinger services.Pinger, l *zap.Logger) *PageHandler {
	return &PageHandler{pinger: pinger, logger: logger.OrNop(l)}
}

// ServeLanding is where signed out visitors end up.
func (h *PageHandler) ServeLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, "landing.html", landingPage{TrackerPath: TrackerPath}); err != nil {
		h.logger.Error("Template execution error", zap.Error(err))
	}
}

func (h *PageHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "habit store unavailable",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "habit-tracker-api",
	})
}
