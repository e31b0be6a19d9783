package rotation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/chorewheel/internal/model"
)

// SchedulerActor is recorded as the actor of scheduled rotations.
const SchedulerActor = "scheduler"

type HouseholdLister interface {
	List(ctx context.Context) ([]model.Household, error)
}

type MemberLister interface {
	ListByHousehold(ctx context.Context, householdID int64) ([]model.Member, error)
}

// ChoreRepo is the chore persistence the scheduler needs. AtomicUpdate must
// apply the mutator to a fresh read and persist the chore and the returned
// history entry together, failing with model.ErrConflict when the row
// changed underneath it.
type ChoreRepo interface {
	GetByID(ctx context.Context, id int64) (*model.Chore, error)
	ListByHousehold(ctx context.Context, householdID int64) ([]model.Chore, error)
	ListByAssignee(ctx context.Context, memberID int64) ([]model.Chore, error)
	AtomicUpdate(ctx context.Context, id int64, fn model.ChoreMutator) (*model.Chore, error)
}

// Scheduler applies the rotation policy to stored chores. It holds no state
// between calls; every decision is a function of the store and now.
type Scheduler struct {
	households HouseholdLister
	members    MemberLister
	chores     ChoreRepo
	workers    int
	retryDelay time.Duration
	logger     *slog.Logger
}

type Option func(*Scheduler)

// WithWorkers bounds how many chores are rotated concurrently.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRetryDelay sets the pause before retrying a conflicted update.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

func NewScheduler(households HouseholdLister, members MemberLister, chores ChoreRepo, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		households: households,
		members:    members,
		chores:     chores,
		workers:    4,
		retryDelay: 10 * time.Millisecond,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type job struct {
	members []model.Member
	chore   model.Chore
}

// RunScheduled rotates every due chore in every household. Only a failure
// to list households is returned as an error; everything else is reported
// per chore in the result.
func (s *Scheduler) RunScheduled(ctx context.Context, now time.Time) (*BatchResult, error) {
	res := &BatchResult{RunID: uuid.NewString(), StartedAt: now}
	logger := s.logger.With("run_id", res.RunID)

	households, err := s.households.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	collect := func(o Outcome, a *Assignment) {
		mu.Lock()
		defer mu.Unlock()
		res.Outcomes = append(res.Outcomes, o)
		if a != nil {
			res.Assignments = append(res.Assignments, *a)
		}
	}

	for _, h := range households {
		jobs, err := s.dueJobs(ctx, h, now)
		if err != nil {
			logger.Error("load household", "household_id", h.ID, "error", err)
			o := Outcome{HouseholdID: h.ID}
			o.fail(err)
			collect(o, nil)
			continue
		}
		for _, j := range jobs {
			if ctx.Err() != nil {
				res.Interrupted = true
				break
			}
			g.Go(func() error {
				o, a := s.rotate(ctx, j.members, j.chore, model.TriggerScheduled, SchedulerActor, now, false)
				s.logOutcome(logger, o)
				collect(o, a)
				return nil
			})
		}
		if res.Interrupted {
			break
		}
	}
	g.Wait()

	slices.SortFunc(res.Outcomes, func(a, b Outcome) int {
		return cmp.Or(cmp.Compare(a.HouseholdID, b.HouseholdID), cmp.Compare(a.ChoreID, b.ChoreID))
	})
	slices.SortFunc(res.Assignments, func(a, b Assignment) int {
		return cmp.Compare(a.Chore.ID, b.Chore.ID)
	})

	logger.Info("scheduled rotation finished",
		"households", len(households),
		"rotated", res.Rotated(),
		"skipped", res.Skipped(),
		"failed", len(res.Failures()),
		"interrupted", res.Interrupted,
	)
	return res, nil
}

func (s *Scheduler) dueJobs(ctx context.Context, h model.Household, now time.Time) ([]job, error) {
	chores, err := s.chores.ListByHousehold(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}

	var due []model.Chore
	for _, c := range chores {
		if c.IsDue(now) {
			due = append(due, c)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}

	members, err := s.members.ListByHousehold(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	jobs := make([]job, 0, len(due))
	for _, c := range due {
		jobs = append(jobs, job{members: members, chore: c})
	}
	return jobs, nil
}

// RunManual advances a single chore to the next pool member regardless of
// its due date or cadence. When nobody is eligible the chore is stored
// unassigned and ErrEmptyPool is returned alongside the outcome.
func (s *Scheduler) RunManual(ctx context.Context, choreID int64, actor string, now time.Time) (*Outcome, *Assignment, error) {
	c, err := s.chores.GetByID(ctx, choreID)
	if err != nil {
		return nil, nil, fmt.Errorf("get chore: %w", err)
	}
	if c == nil {
		return nil, nil, fmt.Errorf("chore %d: %w", choreID, model.ErrNotFound)
	}

	members, err := s.members.ListByHousehold(ctx, c.HouseholdID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}

	o, a := s.rotate(ctx, members, *c, model.TriggerManual, actor, now, true)
	s.logOutcome(s.logger, o)

	switch o.Status {
	case StatusFailed:
		return &o, nil, o.Err
	case StatusSkipped:
		if o.Reason == ReasonNotFound {
			return &o, nil, fmt.Errorf("chore %d: %w", choreID, model.ErrNotFound)
		}
		if o.Reason == ReasonConflict {
			return &o, nil, fmt.Errorf("chore %d: %w", choreID, model.ErrConflict)
		}
		return &o, nil, fmt.Errorf("chore %d: %w", choreID, ctx.Err())
	case StatusUnassigned:
		return &o, a, fmt.Errorf("chore %d: %w", choreID, ErrEmptyPool)
	}
	return &o, a, nil
}

// RunHousehold manually advances every chore of one household, in id order.
// Chores are independent; a failure or empty pool on one is reported in the
// result and the rest still rotate.
func (s *Scheduler) RunHousehold(ctx context.Context, householdID int64, actor string, now time.Time) (*BatchResult, error) {
	res := &BatchResult{RunID: uuid.NewString(), StartedAt: now}
	logger := s.logger.With("run_id", res.RunID, "household_id", householdID)

	chores, err := s.chores.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	if len(chores) == 0 {
		return res, nil
	}
	members, err := s.members.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	slices.SortFunc(chores, func(a, b model.Chore) int { return cmp.Compare(a.ID, b.ID) })
	for _, c := range chores {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		o, a := s.rotate(ctx, members, c, model.TriggerManual, actor, now, true)
		s.logOutcome(logger, o)
		res.Outcomes = append(res.Outcomes, o)
		if a != nil {
			res.Assignments = append(res.Assignments, *a)
		}
	}

	logger.Info("household rotation finished",
		"rotated", res.Rotated(),
		"skipped", res.Skipped(),
		"failed", len(res.Failures()),
	)
	return res, nil
}

// Reassign moves every chore held by a departing member to whoever joined
// after them among the remaining eligible members. The cycle is not reset.
// Call it before the member is deleted.
func (s *Scheduler) Reassign(ctx context.Context, householdID, memberID int64, actor string, now time.Time) (*BatchResult, error) {
	res := &BatchResult{RunID: uuid.NewString(), StartedAt: now}
	logger := s.logger.With("run_id", res.RunID, "member_id", memberID)

	chores, err := s.chores.ListByAssignee(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list chores by assignee: %w", err)
	}
	if len(chores) == 0 {
		return res, nil
	}

	members, err := s.members.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	remaining := slices.DeleteFunc(slices.Clone(members), func(m model.Member) bool { return m.ID == memberID })
	pool := EligiblePool(remaining, nil)

	for _, c := range chores {
		o := Outcome{HouseholdID: c.HouseholdID, ChoreID: c.ID, ChoreTitle: c.Title}
		var entry *model.RotationEntry
		err := s.withRetry(ctx, func(ctx context.Context) error {
			entry = nil
			_, err := s.chores.AtomicUpdate(ctx, c.ID, func(c *model.Chore) (*model.RotationEntry, error) {
				if c.AssigneeID == nil || *c.AssigneeID != memberID {
					return nil, model.ErrNoChange
				}
				next := following(&memberID, pool)
				c.AssigneeID = next
				entry = &model.RotationEntry{
					PreviousAssigneeID: &memberID,
					NewAssigneeID:      next,
					Trigger:            model.TriggerReassigned,
					Actor:              actor,
					RotatedAt:          now,
				}
				return entry, nil
			})
			return err
		})
		s.classify(&o, entry, err)
		if o.Status == StatusRotated || o.Status == StatusUnassigned {
			chore := c
			chore.AssigneeID = entry.NewAssigneeID
			res.Assignments = append(res.Assignments, Assignment{
				HouseholdID: c.HouseholdID,
				Chore:       chore,
				Previous:    &memberID,
				Assignee:    lookup(members, entry.NewAssigneeID),
				Trigger:     model.TriggerReassigned,
			})
		}
		s.logOutcome(logger, o)
		res.Outcomes = append(res.Outcomes, o)
	}
	return res, nil
}

// rotate runs one chore through the policy inside an atomic update. With
// manual set the due gate is skipped and the chore always advances.
func (s *Scheduler) rotate(ctx context.Context, members []model.Member, c model.Chore, trigger model.Trigger, actor string, now time.Time, manual bool) (Outcome, *Assignment) {
	o := Outcome{HouseholdID: c.HouseholdID, ChoreID: c.ID, ChoreTitle: c.Title}

	var (
		entry   *model.RotationEntry
		updated *model.Chore
	)
	err := s.withRetry(ctx, func(ctx context.Context) error {
		entry = nil
		var err error
		updated, err = s.chores.AtomicUpdate(ctx, c.ID, func(c *model.Chore) (*model.RotationEntry, error) {
			current := resolveAssignee(c.AssigneeID, members)
			pool := EligiblePool(members, current)

			var next *int64
			if manual {
				next = ManualNextAssignee(current, pool)
			} else {
				if !c.IsDue(now) {
					return nil, model.ErrNoChange
				}
				next = NextAssignee(current, pool, c.Cadence, now, c.LastRotatedAt)
				if sameAssignee(c.AssigneeID, next) {
					// Nobody to hand over to. The holder starts a fresh
					// cycle; no history is written for it.
					c.LastRotatedAt = now
					c.Completed = false
					c.CompletedAt = nil
					return nil, nil
				}
			}

			entry = &model.RotationEntry{
				PreviousAssigneeID: c.AssigneeID,
				NewAssigneeID:      next,
				Trigger:            trigger,
				Actor:              actor,
				RotatedAt:          now,
			}
			c.AssigneeID = next
			c.LastRotatedAt = now
			c.Completed = false
			c.CompletedAt = nil
			return entry, nil
		})
		return err
	})

	s.classify(&o, entry, err)
	if o.Status == StatusRenewed && updated != nil {
		o.Previous = updated.AssigneeID
		o.Next = updated.AssigneeID
	}
	if o.Status != StatusRotated && o.Status != StatusUnassigned {
		return o, nil
	}
	if updated == nil {
		updated = &c
	}
	return o, &Assignment{
		HouseholdID: c.HouseholdID,
		Chore:       *updated,
		Previous:    entry.PreviousAssigneeID,
		Assignee:    lookup(members, entry.NewAssigneeID),
		Trigger:     trigger,
	}
}

// withRetry retries fn once when it reports a persistence conflict.
func (s *Scheduler) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, model.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Scheduler) classify(o *Outcome, entry *model.RotationEntry, err error) {
	switch {
	case err == nil && entry == nil:
		o.Status = StatusRenewed
	case err == nil:
		o.Entry = entry
		o.Previous = entry.PreviousAssigneeID
		o.Next = entry.NewAssigneeID
		o.Status = StatusRotated
		if entry.NewAssigneeID == nil {
			o.Status = StatusUnassigned
			o.Reason = "empty_pool"
			o.Err = ErrEmptyPool
			o.Error = ErrEmptyPool.Error()
		}
	case errors.Is(err, model.ErrNoChange):
		o.Status = StatusUnchanged
	case errors.Is(err, model.ErrConflict):
		o.Status = StatusSkipped
		o.Reason = ReasonConflict
	case errors.Is(err, model.ErrNotFound):
		o.Status = StatusSkipped
		o.Reason = ReasonNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.Status = StatusSkipped
		o.Reason = ReasonCanceled
	default:
		o.fail(err)
	}
}

func (s *Scheduler) logOutcome(logger *slog.Logger, o Outcome) {
	attrs := []any{"household_id", o.HouseholdID, "chore_id", o.ChoreID, "status", o.Status}
	switch o.Status {
	case StatusRotated:
		logger.Debug("chore rotated", append(attrs, "from", fmtID(o.Previous), "to", fmtID(o.Next))...)
	case StatusUnchanged:
		logger.Debug("chore unchanged", attrs...)
	case StatusRenewed:
		logger.Debug("chore renewed for current assignee", attrs...)
	case StatusUnassigned:
		logger.Warn("chore left unassigned, no eligible members", attrs...)
	case StatusSkipped:
		logger.Warn("chore skipped", append(attrs, "reason", o.Reason)...)
	case StatusFailed:
		logger.Error("chore rotation failed", append(attrs, "error", o.Err)...)
	}
}

func lookup(members []model.Member, id *int64) *model.Member {
	if id == nil {
		return nil
	}
	return model.FindMember(members, *id)
}

func fmtID(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}
