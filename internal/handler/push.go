package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorewheel/internal/engine"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/push"
	"github.com/dukerupert/chorewheel/internal/store"
)

type PushHandler struct {
	households *store.HouseholdStore
	members    *store.MemberStore
	pushStore  *store.PushStore
	service    *push.Service
	logger     *slog.Logger
}

func NewPushHandler(st engine.Stores, ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{households: st.Households, members: st.Members, pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/households/{code}/members/{id}/push-subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	existing, err := h.pushStore.GetByEndpoint(r.Context(), req.Endpoint)
	if err != nil {
		h.logger.Error("get push subscription", "member_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	// Browsers resubscribe on every page load; an unchanged registration is
	// returned as is.
	if existing != nil && existing.MemberID == m.ID && existing.P256dhKey == req.P256dh && existing.AuthKey == req.Auth {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), m.ID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "member_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/households/{code}/members/{id}/push-subscriptions/{sub_id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	subID, err := parseInt64Param(r, "sub_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sub_id")
		return
	}
	if err := h.pushStore.Delete(r.Context(), subID, m.ID); err != nil {
		h.logger.Error("delete push subscription", "member_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/households/{code}/members/{id}/push-subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	subs, err := h.pushStore.ListByMember(r.Context(), m.ID)
	if err != nil {
		h.logger.Error("list push subscriptions", "member_id", m.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || !h.service.Configured() {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

func (h *PushHandler) member(w http.ResponseWriter, r *http.Request) (*model.Member, bool) {
	hh, ok := resolveHousehold(w, r, h.households, h.logger)
	if !ok {
		return nil, false
	}
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
	if m == nil || m.HouseholdID != hh.ID {
		writeError(w, http.StatusNotFound, "member not found")
		return nil, false
	}
	return m, true
}
