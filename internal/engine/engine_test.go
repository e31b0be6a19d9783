package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type recordingTransport struct {
	mu      sync.Mutex
	intents []model.NotificationIntent
}

func (t *recordingTransport) Send(_ context.Context, intent model.NotificationIntent) model.DeliveryResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.intents = append(t.intents, intent)
	res := model.DeliveryResult{Intent: intent}
	for _, r := range intent.Recipients {
		for _, ch := range r.Channels {
			res.Attempts = append(res.Attempts, model.DeliveryAttempt{MemberID: r.MemberID, Channel: ch})
		}
	}
	return res
}

func (t *recordingTransport) sent() []model.NotificationIntent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.NotificationIntent(nil), t.intents...)
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (h *recordingHub) Broadcast(_ int64, msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

type fixture struct {
	engine    *Engine
	stores    Stores
	transport *recordingTransport
	hub       *recordingHub
	household *model.Household
	members   []*model.Member
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stores := Stores{
		Households:    store.NewHouseholdStore(db),
		Members:       store.NewMemberStore(db),
		Chores:        store.NewChoreStore(db),
		History:       store.NewHistoryStore(db),
		Notifications: store.NewNotificationStore(db),
	}
	f := &fixture{
		stores:    stores,
		transport: &recordingTransport{},
		hub:       &recordingHub{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = New(stores, f.transport, f.hub, Options{Workers: 2, ReminderWindow: day}, logger)

	ctx := context.Background()
	f.household, err = stores.Households.Create(ctx, "Flat 4")
	require.NoError(t, err)
	for _, name := range names {
		m, err := stores.Members.Create(ctx, model.Member{
			HouseholdID:          f.household.ID,
			Name:                 name,
			Email:                name + "@example.com",
			Available:            true,
			NotificationsEnabled: true,
			PushOptOut:           true,
		})
		require.NoError(t, err)
		f.members = append(f.members, m)
	}
	return f
}

func (f *fixture) chore(t *testing.T, title string, cadence model.Cadence, assignee *model.Member, start time.Time) *model.Chore {
	t.Helper()
	var assigneeID *int64
	if assignee != nil {
		assigneeID = &assignee.ID
	}
	c, err := f.stores.Chores.Create(context.Background(), f.household.ID, title, "", cadence, assigneeID, start)
	require.NoError(t, err)
	return c
}

func TestRunScheduledRotationNotifiesNewAssignee(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	alice, bob := f.members[0], f.members[1]
	c := f.chore(t, "Bins", model.CadenceWeekly, alice, t0.Add(-8*day))

	report, err := f.engine.RunScheduledRotation(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rotated())
	require.Len(t, report.Deliveries, 1)

	got, err := f.stores.Chores.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, bob.ID, *got.AssigneeID)

	sent := f.transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, model.UrgencyNewAssignment, sent[0].Urgency)
	require.Len(t, sent[0].Recipients, 1)
	assert.Equal(t, bob.ID, sent[0].Recipients[0].MemberID)

	require.Len(t, f.hub.msgs, 1)
	assert.Equal(t, "chore_rotated", f.hub.msgs[0].Type)
	assert.Equal(t, c.ID, f.hub.msgs[0].ID)
}

func TestRunScheduledRotationNothingDue(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.chore(t, "Bins", model.CadenceWeekly, f.members[0], t0.Add(-2*day))

	report, err := f.engine.RunScheduledRotation(context.Background(), t0)
	require.NoError(t, err)
	assert.Zero(t, report.Rotated())
	assert.Empty(t, report.Deliveries)
	assert.Empty(t, f.transport.sent())
	assert.Empty(t, f.hub.msgs)
}

func TestRunManualRotation(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.chore(t, "Hoover", model.CadenceNone, f.members[2], t0)

	out, err := f.engine.RunManualRotation(context.Background(), c.ID, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, rotation.StatusRotated, out.Status)

	hist, err := f.engine.RotationHistory(context.Background(), f.household.Code, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.TriggerManual, hist[0].Trigger)
	assert.Equal(t, "alice", hist[0].Actor)
	assert.Equal(t, f.members[0].ID, *hist[0].NewAssigneeID, "wraps to the first member")

	assert.Len(t, f.transport.sent(), 1)
}

func TestRunManualRotationEmptyPool(t *testing.T) {
	f := newFixture(t)
	c := f.chore(t, "Hoover", model.CadenceWeekly, nil, t0)

	out, err := f.engine.RunManualRotation(context.Background(), c.ID, "admin", t0)
	require.ErrorIs(t, err, rotation.ErrEmptyPool)
	require.NotNil(t, out)
	assert.Empty(t, f.transport.sent())
}

func TestRunManualRotationNotFound(t *testing.T) {
	f := newFixture(t, "alice")
	_, err := f.engine.RunManualRotation(context.Background(), 999, "admin", t0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDueRemindersDeduplicatesPerCycle(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.chore(t, "Bins", model.CadenceWeekly, f.members[0], t0.Add(-7*day-time.Hour))
	f.chore(t, "Plants", model.CadenceWeekly, f.members[1], t0.Add(-6*day-time.Hour))
	f.chore(t, "Windows", model.CadenceWeekly, f.members[1], t0.Add(-2*day))

	report, err := f.engine.DueReminders(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, report.Intents, 2)
	assert.Equal(t, 2, report.Sent())

	urgencies := map[string]model.Urgency{}
	for _, in := range report.Intents {
		urgencies[in.ChoreTitle] = in.Urgency
	}
	assert.Equal(t, model.UrgencyOverdue, urgencies["Bins"])
	assert.Equal(t, model.UrgencyUpcoming, urgencies["Plants"])

	again, err := f.engine.DueReminders(context.Background(), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, again.Sent())
	assert.Len(t, f.transport.sent(), 2)

	records, err := f.stores.Notifications.ListByHousehold(context.Background(), f.household.ID, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDueRemindersEscalatesUnassigned(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.chore(t, "Bins", model.CadenceWeekly, nil, t0.Add(-8*day))

	report, err := f.engine.DueReminders(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, report.Intents, 1)
	assert.True(t, report.Intents[0].Escalated)
	assert.Len(t, report.Intents[0].Recipients, 2)
}

func TestPreviewRemindersDoesNotDeliver(t *testing.T) {
	f := newFixture(t, "alice")
	f.chore(t, "Bins", model.CadenceWeekly, f.members[0], t0.Add(-8*day))

	intents, err := f.engine.PreviewReminders(context.Background(), f.household.Code, t0)
	require.NoError(t, err)
	assert.Len(t, intents, 1)
	assert.Empty(t, f.transport.sent())

	_, err = f.engine.PreviewReminders(context.Background(), "NOPE", t0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRemoveMemberReassignsChores(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	bob, carol := f.members[1], f.members[2]
	start := t0.Add(-3 * day)
	c := f.chore(t, "Bins", model.CadenceWeekly, bob, start)

	res, err := f.engine.RemoveMember(context.Background(), f.household.Code, bob.ID, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rotated())

	got, err := f.stores.Chores.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, carol.ID, *got.AssigneeID)
	assert.True(t, got.LastRotatedAt.Equal(start), "reassignment keeps the cycle")

	m, err := f.stores.Members.GetByID(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Nil(t, m)

	hist, err := f.engine.RotationHistory(context.Background(), f.household.Code, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.TriggerReassigned, hist[0].Trigger)
}

func TestRemoveMemberOtherHousehold(t *testing.T) {
	f := newFixture(t, "alice")
	other, err := f.stores.Households.Create(context.Background(), "Elsewhere")
	require.NoError(t, err)

	_, err = f.engine.RemoveMember(context.Background(), other.Code, f.members[0].ID, "admin", t0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRunHouseholdRotation(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	alice, bob := f.members[0], f.members[1]
	bins := f.chore(t, "Bins", model.CadenceWeekly, alice, t0.Add(-day))
	dishes := f.chore(t, "Dishes", model.CadenceNone, bob, t0)

	report, err := f.engine.RunHouseholdRotation(context.Background(), f.household.Code, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rotated())
	assert.Len(t, report.Deliveries, 2)

	got, err := f.stores.Chores.GetByID(context.Background(), bins.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, *got.AssigneeID)
	got, err = f.stores.Chores.GetByID(context.Background(), dishes.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, *got.AssigneeID)
	assert.Len(t, f.hub.msgs, 2)

	_, err = f.engine.RunHouseholdRotation(context.Background(), "NOPE", "alice", t0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestChoreHistory(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.chore(t, "Bins", model.CadenceWeekly, f.members[0], t0)

	for i := range 3 {
		_, err := f.engine.RunManualRotation(context.Background(), c.ID, "alice", t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	hist, err := f.engine.ChoreHistory(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.True(t, hist[0].RotatedAt.Equal(t0))
	assert.Equal(t, f.members[1].ID, *hist[0].NewAssigneeID)
	assert.Equal(t, f.members[1].ID, *hist[2].NewAssigneeID)

	_, err = f.engine.ChoreHistory(context.Background(), 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWelcomeIsRecorded(t *testing.T) {
	f := newFixture(t, "alice")

	f.engine.Welcome(context.Background(), f.household, *f.members[0])

	sent := f.transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, model.UrgencyWelcome, sent[0].Urgency)

	recs, err := f.stores.Notifications.ListByHousehold(context.Background(), f.household.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].ChoreID)
	assert.Contains(t, recs[0].Message, "Flat 4")
}

func TestNotifyHousehold(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	bob := *f.members[1]
	bob.Available = false
	_, err := f.stores.Members.Update(context.Background(), bob)
	require.NoError(t, err)

	_, err = f.engine.NotifyHousehold(context.Background(), f.household.Code, " ")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.engine.NotifyHousehold(context.Background(), "NOPE", "hello")
	assert.ErrorIs(t, err, model.ErrNotFound)

	for range 2 {
		res, err := f.engine.NotifyHousehold(context.Background(), f.household.Code, "House meeting at 7")
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.Len(t, res.Intent.Recipients, 2, "unavailable members still receive messages")
	}

	recs, err := f.stores.Notifications.ListByHousehold(context.Background(), f.household.ID, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	for _, r := range recs {
		assert.Equal(t, model.UrgencyCustom, r.Urgency)
		assert.Equal(t, "House meeting at 7", r.Message)
	}
}

func TestDueRemindersMemberLeadTime(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	alice := *f.members[0]
	alice.ReminderDaysBefore = 3
	_, err := f.stores.Members.Update(context.Background(), alice)
	require.NoError(t, err)

	// Due in two days: inside alice's lead time, outside the default day.
	f.chore(t, "Bins", model.CadenceWeekly, f.members[0], t0.Add(-5*day))
	f.chore(t, "Dishes", model.CadenceWeekly, f.members[1], t0.Add(-5*day))

	report, err := f.engine.DueReminders(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, report.Intents, 1)
	assert.Equal(t, "Bins", report.Intents[0].ChoreTitle)
	assert.Equal(t, model.UrgencyUpcoming, report.Intents[0].Urgency)
}
