package rotation

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
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

// memStore is an in-memory store with the same atomic update contract as
// the sqlx one.
type memStore struct {
	mu         sync.Mutex
	households []model.Household
	members    map[int64][]model.Member
	chores     map[int64]*model.Chore
	history    []model.RotationEntry

	// conflicts forces that many ErrConflict results per chore.
	conflicts map[int64]int
	// failures makes every update of a chore fail with the given error.
	failures map[int64]error
	attempts map[int64]int
}

func newMemStore() *memStore {
	return &memStore{
		members:   map[int64][]model.Member{},
		chores:    map[int64]*model.Chore{},
		conflicts: map[int64]int{},
		failures:  map[int64]error{},
		attempts:  map[int64]int{},
	}
}

func (s *memStore) addHousehold(id int64) {
	s.households = append(s.households, model.Household{ID: id, Name: "h", Code: "CODE"})
}

func (s *memStore) addMember(householdID, id int64, name string) {
	s.members[householdID] = append(s.members[householdID], model.Member{
		ID: id, HouseholdID: householdID, Name: name, Available: true, NotificationsEnabled: true,
	})
}

func (s *memStore) setAvailable(householdID, id int64, available bool) {
	for i := range s.members[householdID] {
		if s.members[householdID][i].ID == id {
			s.members[householdID][i].Available = available
		}
	}
}

func (s *memStore) addChore(c model.Chore) {
	cp := c
	s.chores[c.ID] = &cp
}

func (s *memStore) chore(id int64) model.Chore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.chores[id]
}

func (s *memStore) List(ctx context.Context) ([]model.Household, error) {
	return s.households, nil
}

func (s *memStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.Member, error) {
	return append([]model.Member(nil), s.members[householdID]...), nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*model.Chore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chores[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) choresByHousehold(householdID int64) []model.Chore {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chore
	for _, id := range slices.Sorted(maps.Keys(s.chores)) {
		if c := s.chores[id]; c.HouseholdID == householdID {
			out = append(out, *c)
		}
	}
	return out
}

func (s *memStore) ListByAssignee(ctx context.Context, memberID int64) ([]model.Chore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chore
	for _, id := range slices.Sorted(maps.Keys(s.chores)) {
		if c := s.chores[id]; c.AssigneeID != nil && *c.AssigneeID == memberID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memStore) AtomicUpdate(ctx context.Context, id int64, fn model.ChoreMutator) (*model.Chore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[id]++

	stored, ok := s.chores[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if err := s.failures[id]; err != nil {
		return nil, err
	}

	c := *stored
	entry, err := fn(&c)
	if err != nil {
		return &c, err
	}
	if s.conflicts[id] > 0 {
		s.conflicts[id]--
		return nil, model.ErrConflict
	}

	c.Version++
	*stored = c
	if entry != nil {
		entry.ChoreID = c.ID
		entry.HouseholdID = c.HouseholdID
		entry.ID = int64(len(s.history) + 1)
		s.history = append(s.history, *entry)
	}
	return &c, nil
}

func (s *memStore) historyFor(choreID int64) []model.RotationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RotationEntry
	for _, e := range s.history {
		if e.ChoreID == choreID {
			out = append(out, e)
		}
	}
	return out
}

// choreLister adapts memStore to the chore side of ChoreRepo; memStore's own
// ListByHousehold serves members.
type choreLister struct{ *memStore }

func (c choreLister) ListByHousehold(ctx context.Context, householdID int64) ([]model.Chore, error) {
	return c.choresByHousehold(householdID), nil
}

func newTestScheduler(s *memStore, opts ...Option) *Scheduler {
	opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
	return NewScheduler(s, s, choreLister{s}, discardLogger(), opts...)
}

func ptr(id int64) *int64 { return &id }
