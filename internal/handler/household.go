package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorewheel/internal/chore"
	"github.com/dukerupert/chorewheel/internal/engine"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

const recentNotifications = 10

type HouseholdHandler struct {
	households    *store.HouseholdStore
	members       *store.MemberStore
	chores        *store.ChoreStore
	notifications *store.NotificationStore
	engine        *engine.Engine
	hub           engine.Broadcaster
	logger        *slog.Logger
}

func NewHouseholdHandler(st engine.Stores, eng *engine.Engine, hub engine.Broadcaster, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{
		households:    st.Households,
		members:       st.Members,
		chores:        st.Chores,
		notifications: st.Notifications,
		engine:        eng,
		hub:           hub,
		logger:        logger,
	}
}

// resolve loads the household named by the {code} path value, writing a 404
// when it does not exist.
func (h *HouseholdHandler) resolve(w http.ResponseWriter, r *http.Request) (*model.Household, bool) {
	return resolveHousehold(w, r, h.households, h.logger)
}

func resolveHousehold(w http.ResponseWriter, r *http.Request, households *store.HouseholdStore, logger *slog.Logger) (*model.Household, bool) {
	code := r.PathValue("code")
	hh, err := households.GetByCode(r.Context(), code)
	if err != nil {
		logger.Error("get household", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return nil, false
	}
	if hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return nil, false
	}
	return hh, true
}

// Create handles POST /api/households
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	hh, err := h.households.Create(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("create household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}
	h.logger.Info("household created", "household_id", hh.ID, "code", hh.Code)
	writeJSON(w, http.StatusCreated, hh)
}

type householdView struct {
	*model.Household
	Members []model.Member          `json:"members"`
	Chores  []chore.ChoreWithStatus `json:"chores"`
}

// Get handles GET /api/households/{code}
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	hh, ok := h.resolve(w, r)
	if !ok {
		return
	}
	members, chores, err := h.load(r, hh.ID)
	if err != nil {
		h.logger.Error("load household", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load household")
		return
	}
	writeJSON(w, http.StatusOK, householdView{
		Household: hh,
		Members:   members,
		Chores:    chore.WithStatus(chores, members, time.Now(), h.engine.ReminderWindow()),
	})
}

// Delete handles DELETE /api/households/{code}
func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hh, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.households.Delete(r.Context(), hh.ID); err != nil {
		h.logger.Error("delete household", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete household")
		return
	}
	h.hub.Broadcast(hh.ID, websocket.NewMessage("household", "deleted", hh.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type statusView struct {
	Household     *model.Household           `json:"household"`
	Summary       chore.Summary              `json:"summary"`
	Notifications []model.NotificationRecord `json:"recent_notifications"`
}

// Status handles GET /api/households/{code}/status
func (h *HouseholdHandler) Status(w http.ResponseWriter, r *http.Request) {
	hh, ok := h.resolve(w, r)
	if !ok {
		return
	}
	members, chores, err := h.load(r, hh.ID)
	if err != nil {
		h.logger.Error("load household", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load household")
		return
	}
	recent, err := h.notifications.ListByHousehold(r.Context(), hh.ID, recentNotifications)
	if err != nil {
		h.logger.Error("list notifications", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if recent == nil {
		recent = []model.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, statusView{
		Household:     hh,
		Summary:       chore.Summarize(chores, members, time.Now(), h.engine.ReminderWindow()),
		Notifications: recent,
	})
}

// Notifications handles GET /api/households/{code}/notifications
func (h *HouseholdHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	hh, ok := h.resolve(w, r)
	if !ok {
		return
	}
	records, err := h.notifications.ListByHousehold(r.Context(), hh.ID, limitParam(r, 50))
	if err != nil {
		h.logger.Error("list notifications", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if records == nil {
		records = []model.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// SendNotification handles POST /api/households/{code}/notifications
func (h *HouseholdHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.engine.NotifyHousehold(r.Context(), r.PathValue("code"), req.Message)
	if err != nil {
		writeDomainError(w, h.logger, "failed to send notification", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent_count": len(res.Intent.Recipients),
		"failed":     res.Failed(),
	})
}

// Rotate handles POST /api/households/{code}/rotate. Every chore advances
// to its next member; chores left without anyone eligible come back as
// warnings.
func (h *HouseholdHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunHouseholdRotation(r.Context(), r.PathValue("code"), actorFrom(r), time.Now())
	if err != nil {
		writeDomainError(w, h.logger, "failed to rotate chores", err)
		return
	}
	warnings := report.Warnings()
	if warnings == nil {
		warnings = []rotation.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   report.RunID,
		"rotated":  report.Rotated(),
		"failed":   len(report.Failures()),
		"outcomes": report.Outcomes,
		"warnings": warnings,
	})
}

// RotationHistory handles GET /api/households/{code}/rotation-history
func (h *HouseholdHandler) RotationHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.RotationHistory(r.Context(), r.PathValue("code"), limitParam(r, 50))
	if err != nil {
		writeDomainError(w, h.logger, "failed to load rotation history", err)
		return
	}
	if entries == nil {
		entries = []model.RotationEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *HouseholdHandler) load(r *http.Request, householdID int64) ([]model.Member, []model.Chore, error) {
	members, err := h.members.ListByHousehold(r.Context(), householdID)
	if err != nil {
		return nil, nil, err
	}
	chores, err := h.chores.ListByHousehold(r.Context(), householdID)
	if err != nil {
		return nil, nil, err
	}
	if members == nil {
		members = []model.Member{}
	}
	return members, chores, nil
}
