package handler

import (
	"context"
	"errors"
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

type ChoreHandler struct {
	households *store.HouseholdStore
	members    *store.MemberStore
	chores     *store.ChoreStore
	engine     *engine.Engine
	hub        engine.Broadcaster
	logger     *slog.Logger
}

func NewChoreHandler(st engine.Stores, eng *engine.Engine, hub engine.Broadcaster, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{
		households: st.Households,
		members:    st.Members,
		chores:     st.Chores,
		engine:     eng,
		hub:        hub,
		logger:     logger,
	}
}

type choreRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Cadence     string     `json:"cadence"`
	AssigneeID  *int64     `json:"assignee_id"`
	StartAt     *time.Time `json:"start_at"`
}

func (req *choreRequest) validate() (model.Cadence, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "", errors.New("title is required")
	}
	return model.ParseCadence(req.Cadence)
}

// checkAssignee rejects assignees from outside the household.
func (h *ChoreHandler) checkAssignee(ctx context.Context, householdID int64, assigneeID *int64) (bool, error) {
	if assigneeID == nil {
		return true, nil
	}
	m, err := h.members.GetByID(ctx, *assigneeID)
	if err != nil {
		return false, err
	}
	return m != nil && m.HouseholdID == householdID, nil
}

// List handles GET /api/households/{code}/chores
func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	hh, ok := resolveHousehold(w, r, h.households, h.logger)
	if !ok {
		return
	}
	chores, err := h.chores.ListByHousehold(r.Context(), hh.ID)
	if err != nil {
		h.logger.Error("list chores", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list chores")
		return
	}
	members, err := h.members.ListByHousehold(r.Context(), hh.ID)
	if err != nil {
		h.logger.Error("list members", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, chore.WithStatus(chores, members, time.Now(), h.engine.ReminderWindow()))
}

// Create handles POST /api/households/{code}/chores
func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	hh, ok := resolveHousehold(w, r, h.households, h.logger)
	if !ok {
		return
	}

	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cadence, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	valid, err := h.checkAssignee(r.Context(), hh.ID, req.AssigneeID)
	if err != nil {
		h.logger.Error("check assignee", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check member")
		return
	}
	if !valid {
		writeError(w, http.StatusBadRequest, "assignee is not a member of this household")
		return
	}

	start := time.Now()
	if req.StartAt != nil {
		start = *req.StartAt
	}

	c, err := h.chores.Create(r.Context(), hh.ID, req.Title, req.Description, cadence, req.AssigneeID, start)
	if err != nil {
		h.logger.Error("create chore", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create chore")
		return
	}

	h.hub.Broadcast(hh.ID, websocket.NewMessage("chore", "created", c.ID, nil))
	writeJSON(w, http.StatusCreated, c)
}

// Update handles PUT /api/chores/{id}
func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.chore(w, r)
	if !ok {
		return
	}

	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Cadence == "" {
		req.Cadence = string(existing.Cadence)
	}
	cadence, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	valid, err := h.checkAssignee(r.Context(), existing.HouseholdID, req.AssigneeID)
	if err != nil {
		h.logger.Error("check assignee", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check member")
		return
	}
	if !valid {
		writeError(w, http.StatusBadRequest, "assignee is not a member of this household")
		return
	}

	c, err := h.chores.Update(r.Context(), existing.ID, req.Title, req.Description, cadence, req.AssigneeID)
	if err != nil {
		h.logger.Error("update chore", "chore_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update chore")
		return
	}

	h.hub.Broadcast(existing.HouseholdID, websocket.NewMessage("chore", "updated", c.ID, nil))
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/chores/{id}
func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.chore(w, r)
	if !ok {
		return
	}
	if err := h.chores.Delete(r.Context(), existing.ID); err != nil {
		h.logger.Error("delete chore", "chore_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete chore")
		return
	}
	h.hub.Broadcast(existing.HouseholdID, websocket.NewMessage("chore", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /api/chores/{id}/complete. The body may set
// "completed": false to reopen the current cycle.
func (h *ChoreHandler) Complete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.chore(w, r)
	if !ok {
		return
	}

	req := struct {
		Completed *bool `json:"completed"`
	}{}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	completed := req.Completed == nil || *req.Completed

	c, err := h.chores.SetCompleted(r.Context(), existing.ID, completed, time.Now())
	if err != nil {
		h.logger.Error("complete chore", "chore_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete chore")
		return
	}

	action := "completed"
	if !completed {
		action = "reopened"
	}
	h.hub.Broadcast(existing.HouseholdID, websocket.NewMessage("chore", action, c.ID, nil))
	writeJSON(w, http.StatusOK, c)
}

// Rotate handles POST /api/chores/{id}/rotate. An empty pool is not an
// error: the chore is stored unassigned, a history entry records the
// change, and the response carries a warning.
func (h *ChoreHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	out, err := h.engine.RunManualRotation(r.Context(), id, actorFrom(r), time.Now())
	switch {
	case errors.Is(err, rotation.ErrEmptyPool):
		writeJSON(w, http.StatusOK, map[string]any{
			"outcome": out,
			"warning": "no eligible members to rotate to",
		})
		return
	case err != nil:
		writeDomainError(w, h.logger, "failed to rotate chore", err)
		return
	}

	c, err := h.chores.GetByID(r.Context(), id)
	if err != nil || c == nil {
		writeJSON(w, http.StatusOK, map[string]any{"outcome": out})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": out, "chore": c})
}

// History handles GET /api/chores/{id}/history
func (h *ChoreHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	entries, err := h.engine.ChoreHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, "failed to load chore history", err)
		return
	}
	if entries == nil {
		entries = []model.RotationEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ChoreHandler) chore(w http.ResponseWriter, r *http.Request) (*model.Chore, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	c, err := h.chores.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get chore", "chore_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get chore")
		return nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "chore not found")
		return nil, false
	}
	return c, true
}
