package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorewheel/internal/engine"
	"github.com/dukerupert/chorewheel/internal/model"
)

// TriggerHandler exposes the scheduled entry points to an external caller
// such as a cron job or an uptime pinger.
type TriggerHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewTriggerHandler(eng *engine.Engine, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{engine: eng, logger: logger}
}

// Rotations handles POST /api/trigger/rotations
func (h *TriggerHandler) Rotations(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunScheduledRotation(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("scheduled rotation", "error", err)
		writeError(w, http.StatusInternalServerError, "rotation run failed")
		return
	}

	resp := map[string]any{
		"run_id":      report.RunID,
		"rotated":     report.Rotated(),
		"skipped":     report.Skipped(),
		"failed":      len(report.Failures()),
		"warnings":    warningMessages(report.BatchResult),
		"interrupted": report.Interrupted,
		"outcomes":    report.Outcomes,
		"deliveries":  len(report.Deliveries),
	}
	if err := report.Err(); err != nil {
		resp["errors"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reminders handles POST /api/trigger/reminders
func (h *TriggerHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.DueReminders(r.Context(), time.Now())
	if report == nil {
		h.logger.Error("due reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "reminder run failed")
		return
	}

	failed := 0
	for _, res := range report.Results {
		failed += res.Failed()
	}
	resp := map[string]any{
		"intents":         len(report.Intents),
		"sent":            report.Sent(),
		"failed_attempts": failed,
	}
	if err != nil {
		resp["errors"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview handles GET /api/reminders/preview?household={code}
func (h *TriggerHandler) Preview(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("household"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "household is required")
		return
	}

	intents, err := h.engine.PreviewReminders(r.Context(), code, time.Now())
	if err != nil {
		writeDomainError(w, h.logger, "failed to build reminders", err)
		return
	}
	if intents == nil {
		intents = []model.NotificationIntent{}
	}
	writeJSON(w, http.StatusOK, intents)
}
