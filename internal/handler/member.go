package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/engine"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

type MemberHandler struct {
	households *store.HouseholdStore
	members    *store.MemberStore
	engine     *engine.Engine
	hub        engine.Broadcaster
	logger     *slog.Logger
}

func NewMemberHandler(st engine.Stores, eng *engine.Engine, hub engine.Broadcaster, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{households: st.Households, members: st.Members, engine: eng, hub: hub, logger: logger}
}

// memberRequest carries optional fields so updates only touch what was sent.
type memberRequest struct {
	Name                 *string `json:"name"`
	Email                *string `json:"email"`
	Phone                *string `json:"phone"`
	IsAdmin              *bool   `json:"is_admin"`
	Available            *bool   `json:"available"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	EmailOptOut          *bool   `json:"email_opt_out"`
	SMSOptOut            *bool   `json:"sms_opt_out"`
	PushOptOut           *bool   `json:"push_opt_out"`
	ReminderDaysBefore   *int    `json:"reminder_days_before"`
}

// maxReminderDays bounds reminder_days_before to the longest cadence.
const maxReminderDays = 30

func (req memberRequest) validate() error {
	if req.ReminderDaysBefore != nil && (*req.ReminderDaysBefore < 0 || *req.ReminderDaysBefore > maxReminderDays) {
		return fmt.Errorf("reminder_days_before must be between 0 and %d", maxReminderDays)
	}
	return nil
}

func (req memberRequest) apply(m *model.Member) {
	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		m.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		m.Phone = strings.TrimSpace(*req.Phone)
	}
	setBool(&m.IsAdmin, req.IsAdmin)
	setBool(&m.Available, req.Available)
	setBool(&m.NotificationsEnabled, req.NotificationsEnabled)
	setBool(&m.EmailOptOut, req.EmailOptOut)
	setBool(&m.SMSOptOut, req.SMSOptOut)
	setBool(&m.PushOptOut, req.PushOptOut)
	if req.ReminderDaysBefore != nil {
		m.ReminderDaysBefore = *req.ReminderDaysBefore
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// List handles GET /api/households/{code}/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	hh, ok := resolveHousehold(w, r, h.households, h.logger)
	if !ok {
		return
	}
	members, err := h.members.ListByHousehold(r.Context(), hh.ID)
	if err != nil {
		h.logger.Error("list members", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

// Join handles POST /api/households/{code}/members. Joining twice with the
// same name returns the existing member.
func (h *MemberHandler) Join(w http.ResponseWriter, r *http.Request) {
	hh, ok := resolveHousehold(w, r, h.households, h.logger)
	if !ok {
		return
	}

	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := model.Member{HouseholdID: hh.ID, Available: true, NotificationsEnabled: true}
	req.apply(&m)
	if m.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	existing, err := h.members.GetByName(r.Context(), hh.ID, m.Name)
	if err != nil {
		h.logger.Error("get member by name", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check member")
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	// The first member to join administers the household.
	if req.IsAdmin == nil {
		members, err := h.members.ListByHousehold(r.Context(), hh.ID)
		if err != nil {
			h.logger.Error("list members", "household_id", hh.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list members")
			return
		}
		m.IsAdmin = len(members) == 0
	}

	created, err := h.members.Create(r.Context(), m)
	if err != nil {
		h.logger.Error("create member", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	h.hub.Broadcast(hh.ID, websocket.NewMessage("member", "created", created.ID, nil))
	h.engine.Welcome(r.Context(), hh, *created)
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/households/{code}/members/{id}
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	hh, ok := resolveHousehold(w, r, h.households, h.logger)
	if !ok {
		return
	}
	existing, ok := h.member(w, r, hh.ID)
	if !ok {
		return
	}

	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.apply(existing)
	if existing.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	exists, err := h.members.NameExists(r.Context(), hh.ID, existing.Name, existing.ID)
	if err != nil {
		h.logger.Error("check member name", "household_id", hh.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a member with that name already exists")
		return
	}

	updated, err := h.members.Update(r.Context(), *existing)
	if err != nil {
		h.logger.Error("update member", "member_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update member")
		return
	}
	h.hub.Broadcast(hh.ID, websocket.NewMessage("member", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/households/{code}/members/{id}. The member's
// chores are handed on before the member is removed.
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	res, err := h.engine.RemoveMember(r.Context(), r.PathValue("code"), id, actorFrom(r), time.Now())
	if err != nil {
		writeDomainError(w, h.logger, "failed to remove member", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"removed":    id,
		"reassigned": res.Outcomes,
		"warnings":   warningMessages(res),
	})
}

func (h *MemberHandler) member(w http.ResponseWriter, r *http.Request, householdID int64) (*model.Member, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	m, err := h.members.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get member", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return nil, false
	}
	if m == nil || m.HouseholdID != householdID {
		writeError(w, http.StatusNotFound, "member not found")
		return nil, false
	}
	return m, true
}

func actorFrom(r *http.Request) string {
	return auth.Name(r.Context())
}

func warningMessages(res *rotation.BatchResult) []string {
	out := []string{}
	for _, o := range res.Warnings() {
		out = append(out, o.ChoreTitle+": no eligible members, left unassigned")
	}
	return out
}
