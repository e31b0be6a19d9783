package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

var (
	day = 24 * time.Hour
	t0  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(id int64) *int64 { return &id }

type fakeStore struct {
	households    []model.Household
	chores        map[int64][]model.Chore
	members       map[int64][]model.Member
	choreErr      map[int64]error
	eligibleCalls int
}

func (f *fakeStore) List(ctx context.Context) ([]model.Household, error) {
	return f.households, nil
}

type choreSource struct{ *fakeStore }

func (c choreSource) ListByHousehold(ctx context.Context, id int64) ([]model.Chore, error) {
	if err := c.choreErr[id]; err != nil {
		return nil, err
	}
	return c.chores[id], nil
}

type memberSource struct{ *fakeStore }

func (m memberSource) ListByHousehold(ctx context.Context, id int64) ([]model.Member, error) {
	return m.members[id], nil
}

func (m memberSource) ListEligible(ctx context.Context, id int64) ([]model.Member, error) {
	m.eligibleCalls++
	var out []model.Member
	for _, mem := range m.members[id] {
		if mem.Available {
			out = append(out, mem)
		}
	}
	return out, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		households: []model.Household{{ID: 1, Code: "HOUSE001"}},
		chores:     map[int64][]model.Chore{},
		members: map[int64][]model.Member{1: {
			{ID: 1, HouseholdID: 1, Name: "alice", Email: "alice@example.com", Available: true, NotificationsEnabled: true},
			{ID: 2, HouseholdID: 1, Name: "bob", Phone: "+15550001", Available: true, NotificationsEnabled: true},
			{ID: 3, HouseholdID: 1, Name: "carol", Available: false, NotificationsEnabled: true},
		}},
		choreErr: map[int64]error{},
	}
}

func newTestDispatcher(f *fakeStore) *Dispatcher {
	return NewDispatcher(f, choreSource{f}, memberSource{f}, 24*time.Hour, discardLogger())
}

type fakeLog struct {
	mu      sync.Mutex
	records []model.NotificationRecord
	sent    map[string]bool
}

func newFakeLog() *fakeLog { return &fakeLog{sent: map[string]bool{}} }

func sentKey(choreID int64, cycle time.Time, u model.Urgency) string {
	return fmt.Sprintf("%d/%d/%s", choreID, cycle.Unix(), u)
}

func (l *fakeLog) Record(ctx context.Context, rec *model.NotificationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.ID = int64(len(l.records) + 1)
	l.records = append(l.records, *rec)
	return nil
}

func (l *fakeLog) WasSent(ctx context.Context, choreID int64, cycle time.Time, u model.Urgency) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent[sentKey(choreID, cycle, u)], nil
}

func (l *fakeLog) RecordSent(ctx context.Context, choreID int64, cycle time.Time, u model.Urgency) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[sentKey(choreID, cycle, u)] = true
	return nil
}

type sentMessage struct {
	to  model.Recipient
	msg Message
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(ctx context.Context, to model.Recipient, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{to: to, msg: msg})
	return nil
}

var errSMTP = errors.New("smtp down")
