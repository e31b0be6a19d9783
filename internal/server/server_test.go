package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/chorewheel/internal/config"
	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/model"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.TriggerToken = testToken
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, &cfg, logger).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

type household struct {
	h    http.Handler
	code string
}

func createHousehold(t *testing.T, h http.Handler, members ...string) (household, []model.Member) {
	t.Helper()
	w := do(t, h, "POST", "/api/households", map[string]string{"name": "Flat 4"})
	expectStatus(t, w, http.StatusCreated)
	hh := household{h: h, code: decode[model.Household](t, w).Code}

	var out []model.Member
	for _, name := range members {
		w := do(t, h, "POST", hh.path("/members"), map[string]any{"name": name, "email": name + "@example.com"})
		expectStatus(t, w, http.StatusCreated)
		out = append(out, decode[model.Member](t, w))
	}
	return hh, out
}

func (hh household) path(suffix string) string {
	return "/api/households/" + hh.code + suffix
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, "GET", "/health", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w)["status"]; got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestHouseholdLifecycle(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob")

	if !members[0].IsAdmin || members[1].IsAdmin {
		t.Error("expected only the first member to be admin")
	}

	// Joining again with the same name is idempotent.
	w := do(t, h, "POST", hh.path("/members"), map[string]string{"name": "alice"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[model.Member](t, w).ID; got != members[0].ID {
		t.Errorf("expected existing member %d, got %d", members[0].ID, got)
	}

	w = do(t, h, "GET", "/api/households/"+hh.code, nil)
	expectStatus(t, w, http.StatusOK)
	view := decode[struct {
		Code    string         `json:"code"`
		Members []model.Member `json:"members"`
	}](t, w)
	if len(view.Members) != 2 {
		t.Errorf("expected 2 members, got %d", len(view.Members))
	}

	w = do(t, h, "DELETE", "/api/households/"+hh.code, nil)
	expectStatus(t, w, http.StatusNoContent)

	w = do(t, h, "GET", "/api/households/"+hh.code, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestHouseholdCodeIsCaseInsensitive(t *testing.T) {
	h := newTestServer(t)
	hh, _ := createHousehold(t, h)

	lower := []byte(hh.code)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + 'a' - 'A'
		}
	}
	w := do(t, h, "GET", "/api/households/"+string(lower), nil)
	expectStatus(t, w, http.StatusOK)
}

func TestCreateChoreValidation(t *testing.T) {
	h := newTestServer(t)
	hh, _ := createHousehold(t, h, "alice")
	_, otherMembers := createHousehold(t, h, "zed")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"cadence": "weekly"}},
		{"bad cadence", map[string]any{"title": "Bins", "cadence": "hourly"}},
		{"foreign assignee", map[string]any{"title": "Bins", "assignee_id": otherMembers[0].ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", hh.path("/chores"), tt.body)
			expectStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestManualRotateFlow(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob")
	alice, bob := members[0], members[1]

	start := time.Now().Add(-8 * 24 * time.Hour)
	w := do(t, h, "POST", hh.path("/chores"), map[string]any{
		"title":       "Bins",
		"cadence":     "weekly",
		"assignee_id": alice.ID,
		"start_at":    start,
	})
	expectStatus(t, w, http.StatusCreated)
	c := decode[model.Chore](t, w)

	w = do(t, h, "GET", hh.path("/chores"), nil)
	expectStatus(t, w, http.StatusOK)
	listed := decode[[]struct {
		Status       string `json:"status"`
		AssigneeName string `json:"assignee_name"`
	}](t, w)
	if len(listed) != 1 || listed[0].Status != "overdue" || listed[0].AssigneeName != "alice" {
		t.Fatalf("unexpected chore list: %+v", listed)
	}

	w = do(t, h, "POST", fmt.Sprintf("/api/chores/%d/rotate", c.ID), nil, "X-Actor", "alice")
	expectStatus(t, w, http.StatusOK)
	rotated := decode[struct {
		Chore model.Chore `json:"chore"`
	}](t, w)
	if rotated.Chore.AssigneeID == nil || *rotated.Chore.AssigneeID != bob.ID {
		t.Fatalf("expected bob to be assigned, got %v", rotated.Chore.AssigneeID)
	}

	w = do(t, h, "GET", hh.path("/rotation-history"), nil)
	expectStatus(t, w, http.StatusOK)
	hist := decode[[]model.RotationEntry](t, w)
	if len(hist) != 1 || hist[0].Trigger != model.TriggerManual || hist[0].Actor != "alice" {
		t.Fatalf("unexpected history: %+v", hist)
	}

	// The new-assignment notice is logged even though no channel is configured.
	w = do(t, h, "GET", hh.path("/notifications"), nil)
	expectStatus(t, w, http.StatusOK)
	if recs := decode[[]model.NotificationRecord](t, w); len(recs) == 0 {
		t.Error("expected a notification record")
	}

	w = do(t, h, "POST", fmt.Sprintf("/api/chores/%d/complete", c.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if !decode[model.Chore](t, w).Completed {
		t.Error("expected chore to be completed")
	}

	w = do(t, h, "GET", hh.path("/status"), nil)
	expectStatus(t, w, http.StatusOK)
	status := decode[struct {
		Summary struct {
			TotalChores     int     `json:"total_chores"`
			CompletedChores int     `json:"completed_chores"`
			CompletionRate  float64 `json:"completion_rate"`
		} `json:"summary"`
	}](t, w)
	if status.Summary.TotalChores != 1 || status.Summary.CompletedChores != 1 || status.Summary.CompletionRate != 100 {
		t.Errorf("unexpected summary: %+v", status.Summary)
	}
}

func TestRotateEmptyPoolWarns(t *testing.T) {
	h := newTestServer(t)
	hh, _ := createHousehold(t, h)

	w := do(t, h, "POST", hh.path("/chores"), map[string]any{"title": "Bins", "cadence": "weekly"})
	expectStatus(t, w, http.StatusCreated)
	c := decode[model.Chore](t, w)

	w = do(t, h, "POST", fmt.Sprintf("/api/chores/%d/rotate", c.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if decode[map[string]any](t, w)["warning"] == nil {
		t.Error("expected a warning for an empty pool")
	}

	// The chore is stored unassigned and the attempt is in its history.
	w = do(t, h, "GET", fmt.Sprintf("/api/chores/%d/history", c.ID), nil)
	expectStatus(t, w, http.StatusOK)
	hist := decode[[]model.RotationEntry](t, w)
	if len(hist) != 1 || hist[0].NewAssigneeID != nil {
		t.Errorf("expected one unassigned history entry, got %+v", hist)
	}
}

func TestRotateUnknownChore(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, "POST", "/api/chores/999/rotate", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestRemoveMemberReassigns(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob", "carol")

	w := do(t, h, "POST", hh.path("/chores"), map[string]any{
		"title": "Dishes", "cadence": "weekly", "assignee_id": members[1].ID,
	})
	expectStatus(t, w, http.StatusCreated)
	c := decode[model.Chore](t, w)

	w = do(t, h, "DELETE", hh.path(fmt.Sprintf("/members/%d", members[1].ID)), nil)
	expectStatus(t, w, http.StatusOK)

	w = do(t, h, "GET", hh.path("/chores"), nil)
	expectStatus(t, w, http.StatusOK)
	chores := decode[[]model.Chore](t, w)
	if len(chores) != 1 || chores[0].ID != c.ID {
		t.Fatalf("unexpected chores: %+v", chores)
	}
	if chores[0].AssigneeID == nil || *chores[0].AssigneeID != members[2].ID {
		t.Errorf("expected carol to take over, got %v", chores[0].AssigneeID)
	}

	w = do(t, h, "DELETE", hh.path(fmt.Sprintf("/members/%d", members[1].ID)), nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestUpdateMemberAvailability(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob")

	w := do(t, h, "PUT", hh.path(fmt.Sprintf("/members/%d", members[1].ID)), map[string]any{"available": false})
	expectStatus(t, w, http.StatusOK)
	m := decode[model.Member](t, w)
	if m.Available || m.Name != "bob" {
		t.Errorf("unexpected member after update: %+v", m)
	}

	w = do(t, h, "PUT", hh.path(fmt.Sprintf("/members/%d", members[1].ID)), map[string]any{"name": "alice"})
	expectStatus(t, w, http.StatusConflict)
}

func TestTriggerRequiresToken(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, "POST", "/api/trigger/rotations", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	w = do(t, h, "POST", "/api/trigger/rotations", nil, "Authorization", "Bearer "+testToken)
	expectStatus(t, w, http.StatusOK)
	if _, ok := decode[map[string]any](t, w)["run_id"]; !ok {
		t.Error("expected run_id in response")
	}
}

func TestTriggerReminders(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice")

	w := do(t, h, "POST", hh.path("/chores"), map[string]any{
		"title": "Bins", "cadence": "weekly", "assignee_id": members[0].ID,
		"start_at": time.Now().Add(-8 * 24 * time.Hour),
	})
	expectStatus(t, w, http.StatusCreated)

	w = do(t, h, "GET", "/api/reminders/preview?household="+hh.code, nil)
	expectStatus(t, w, http.StatusOK)
	if intents := decode[[]model.NotificationIntent](t, w); len(intents) != 1 || intents[0].Urgency != model.UrgencyOverdue {
		t.Fatalf("unexpected preview: %+v", intents)
	}

	w = do(t, h, "POST", "/api/trigger/reminders", nil, "Authorization", "Bearer "+testToken)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]any](t, w)["intents"]; got != float64(1) {
		t.Errorf("expected 1 intent, got %v", got)
	}
}

func TestPreviewRequiresHousehold(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, "GET", "/api/reminders/preview", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestPushSubscriptions(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice")
	base := hh.path(fmt.Sprintf("/members/%d/push-subscriptions", members[0].ID))

	w := do(t, h, "POST", base, map[string]string{"endpoint": "https://push.example.com/abc"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, h, "POST", base, map[string]string{
		"endpoint": "https://push.example.com/abc", "p256dh": "key", "auth": "auth", "device_name": "phone",
	})
	expectStatus(t, w, http.StatusCreated)
	sub := decode[model.PushSubscription](t, w)

	// The browser resubscribing with the same keys gets the same row back.
	w = do(t, h, "POST", base, map[string]string{
		"endpoint": "https://push.example.com/abc", "p256dh": "key", "auth": "auth", "device_name": "phone",
	})
	expectStatus(t, w, http.StatusOK)
	if again := decode[model.PushSubscription](t, w); again.ID != sub.ID {
		t.Errorf("expected subscription %d, got %d", sub.ID, again.ID)
	}

	w = do(t, h, "GET", base, nil)
	expectStatus(t, w, http.StatusOK)
	if subs := decode[[]model.PushSubscription](t, w); len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}

	w = do(t, h, "DELETE", fmt.Sprintf("%s/%d", base, sub.ID), nil)
	expectStatus(t, w, http.StatusNoContent)

	w = do(t, h, "GET", "/api/push/vapid-key", nil)
	expectStatus(t, w, http.StatusNotFound)
}

// recipients counts the distinct members with a record of urgency u. A
// member has one record per channel.
func recipients(recs []model.NotificationRecord, u model.Urgency) int {
	seen := map[int64]bool{}
	for _, r := range recs {
		if r.Urgency == u && r.MemberID != nil {
			seen[*r.MemberID] = true
		}
	}
	return len(seen)
}

func TestJoinRecordsWelcome(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob")

	// Rejoining is not a new member and gets no second welcome.
	w := do(t, h, "POST", hh.path("/members"), map[string]string{"name": "bob"})
	expectStatus(t, w, http.StatusOK)

	w = do(t, h, "GET", hh.path("/notifications"), nil)
	expectStatus(t, w, http.StatusOK)
	recs := decode[[]model.NotificationRecord](t, w)
	if got := recipients(recs, model.UrgencyWelcome); got != 2 {
		t.Fatalf("expected 2 members welcomed, got %d: %+v", got, recs)
	}
	for _, rec := range recs {
		if rec.ChoreID != nil {
			t.Errorf("welcome record has chore id %d", *rec.ChoreID)
		}
		if !strings.Contains(rec.Message, "Flat 4") {
			t.Errorf("unexpected welcome message %q", rec.Message)
		}
	}
	for _, rec := range recs {
		if rec.MemberID == nil || (*rec.MemberID != members[0].ID && *rec.MemberID != members[1].ID) {
			t.Errorf("unexpected welcome recipient %v", rec.MemberID)
		}
	}
}

func TestSendHouseholdNotification(t *testing.T) {
	h := newTestServer(t)
	hh, _ := createHousehold(t, h, "alice", "bob")

	w := do(t, h, "POST", hh.path("/notifications"), map[string]string{"message": "  "})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, h, "POST", "/api/households/NOPE0000/notifications", map[string]string{"message": "hi"})
	expectStatus(t, w, http.StatusNotFound)

	w = do(t, h, "POST", hh.path("/notifications"), map[string]string{"message": "Bins go out tonight"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]any](t, w)["sent_count"]; got != float64(2) {
		t.Errorf("expected sent_count 2, got %v", got)
	}

	w = do(t, h, "GET", hh.path("/notifications"), nil)
	expectStatus(t, w, http.StatusOK)
	recs := decode[[]model.NotificationRecord](t, w)
	if got := recipients(recs, model.UrgencyCustom); got != 2 {
		t.Fatalf("expected 2 members messaged, got %d", got)
	}
	for _, rec := range recs {
		if rec.Urgency == model.UrgencyCustom && rec.Message != "Bins go out tonight" {
			t.Errorf("unexpected custom message %q", rec.Message)
		}
	}
}

func TestHouseholdRotate(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob", "carol")

	var ids []int64
	for i, title := range []string{"Bins", "Dishes"} {
		w := do(t, h, "POST", hh.path("/chores"), map[string]any{
			"title": title, "cadence": "weekly", "assignee_id": members[i].ID,
		})
		expectStatus(t, w, http.StatusCreated)
		ids = append(ids, decode[model.Chore](t, w).ID)
	}

	w := do(t, h, "POST", hh.path("/rotate"), nil, "X-Actor", "carol")
	expectStatus(t, w, http.StatusOK)
	res := decode[struct {
		Rotated  int              `json:"rotated"`
		Warnings []map[string]any `json:"warnings"`
	}](t, w)
	if res.Rotated != 2 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected rotate result: %+v", res)
	}

	w = do(t, h, "GET", hh.path("/chores"), nil)
	expectStatus(t, w, http.StatusOK)
	want := map[int64]int64{ids[0]: members[1].ID, ids[1]: members[2].ID}
	for _, c := range decode[[]model.Chore](t, w) {
		if c.AssigneeID == nil || *c.AssigneeID != want[c.ID] {
			t.Errorf("chore %d: expected assignee %d, got %v", c.ID, want[c.ID], c.AssigneeID)
		}
	}

	w = do(t, h, "GET", hh.path("/rotation-history"), nil)
	expectStatus(t, w, http.StatusOK)
	for _, e := range decode[[]model.RotationEntry](t, w) {
		if e.Trigger != model.TriggerManual || e.Actor != "carol" {
			t.Errorf("unexpected history entry: %+v", e)
		}
	}

	w = do(t, h, "POST", "/api/households/NOPE0000/rotate", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestHouseholdRotateEmptyPoolWarns(t *testing.T) {
	h := newTestServer(t)
	hh, _ := createHousehold(t, h)
	w := do(t, h, "POST", hh.path("/chores"), map[string]any{"title": "Bins", "cadence": "weekly"})
	expectStatus(t, w, http.StatusCreated)

	w = do(t, h, "POST", hh.path("/rotate"), nil)
	expectStatus(t, w, http.StatusOK)
	res := decode[struct {
		Warnings []map[string]any `json:"warnings"`
	}](t, w)
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}

func TestChoreHistory(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice", "bob")

	w := do(t, h, "POST", hh.path("/chores"), map[string]any{
		"title": "Bins", "cadence": "weekly", "assignee_id": members[0].ID,
	})
	expectStatus(t, w, http.StatusCreated)
	c := decode[model.Chore](t, w)

	w = do(t, h, "GET", fmt.Sprintf("/api/chores/%d/history", c.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if hist := decode[[]model.RotationEntry](t, w); len(hist) != 0 {
		t.Fatalf("expected empty history, got %+v", hist)
	}

	for range 2 {
		w = do(t, h, "POST", fmt.Sprintf("/api/chores/%d/rotate", c.ID), nil)
		expectStatus(t, w, http.StatusOK)
	}

	w = do(t, h, "GET", fmt.Sprintf("/api/chores/%d/history", c.ID), nil)
	expectStatus(t, w, http.StatusOK)
	hist := decode[[]model.RotationEntry](t, w)
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hist))
	}
	if *hist[0].NewAssigneeID != members[1].ID || *hist[1].NewAssigneeID != members[0].ID {
		t.Errorf("expected oldest first, got %+v", hist)
	}

	w = do(t, h, "GET", "/api/chores/999/history", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestMemberReminderDays(t *testing.T) {
	h := newTestServer(t)
	hh, members := createHousehold(t, h, "alice")
	path := hh.path(fmt.Sprintf("/members/%d", members[0].ID))

	w := do(t, h, "PUT", path, map[string]any{"reminder_days_before": 31})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, h, "POST", hh.path("/members"), map[string]any{"name": "bob", "reminder_days_before": -1})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, h, "PUT", path, map[string]any{"reminder_days_before": 3})
	expectStatus(t, w, http.StatusOK)
	if got := decode[model.Member](t, w).ReminderDaysBefore; got != 3 {
		t.Errorf("expected 3 reminder days, got %d", got)
	}
}
