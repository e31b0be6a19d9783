package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/notify"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

// Broadcaster pushes live updates to a household's connected clients.
type Broadcaster interface {
	Broadcast(householdID int64, msg websocket.Message)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(int64, websocket.Message) {}

type Stores struct {
	Households    *store.HouseholdStore
	Members       *store.MemberStore
	Chores        *store.ChoreStore
	History       *store.HistoryStore
	Notifications *store.NotificationStore
}

type Options struct {
	Workers        int
	ReminderWindow time.Duration
}

// Engine is the entry point for the HTTP layer and the trigger source. It
// keeps no state between calls; every operation is a function of the
// store and the now it is given.
type Engine struct {
	stores     Stores
	scheduler  *rotation.Scheduler
	dispatcher *notify.Dispatcher
	delivery   *notify.Service
	hub        Broadcaster
	logger     *slog.Logger
}

func New(stores Stores, transport notify.Transport, hub Broadcaster, opts Options, logger *slog.Logger) *Engine {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &Engine{
		stores: stores,
		scheduler: rotation.NewScheduler(stores.Households, stores.Members, stores.Chores,
			logger.With("component", "rotation"), rotation.WithWorkers(opts.Workers)),
		dispatcher: notify.NewDispatcher(stores.Households, stores.Chores, stores.Members,
			opts.ReminderWindow, logger.With("component", "dispatcher")),
		delivery: notify.NewService(transport, stores.Notifications, logger.With("component", "delivery")),
		hub:      hub,
		logger:   logger,
	}
}

// ReminderWindow returns the configured window for upcoming reminders.
func (e *Engine) ReminderWindow() time.Duration { return e.dispatcher.Window() }

// RotationReport is the result of a scheduled rotation run.
type RotationReport struct {
	*rotation.BatchResult
	Deliveries []model.DeliveryResult `json:"deliveries"`
}

// RunScheduledRotation rotates every due chore, then notifies the new
// assignees. Safe to call at any frequency.
func (e *Engine) RunScheduledRotation(ctx context.Context, now time.Time) (*RotationReport, error) {
	res, err := e.scheduler.RunScheduled(ctx, now)
	if err != nil {
		return nil, err
	}
	report := &RotationReport{BatchResult: res}
	report.Deliveries = e.announce(ctx, res.Assignments)
	return report, nil
}

// RunManualRotation advances one chore. An empty pool is reported as
// rotation.ErrEmptyPool together with the outcome.
func (e *Engine) RunManualRotation(ctx context.Context, choreID int64, actor string, now time.Time) (*rotation.Outcome, error) {
	out, a, err := e.scheduler.RunManual(ctx, choreID, actor, now)
	if err != nil && !errors.Is(err, rotation.ErrEmptyPool) {
		return out, err
	}
	if a != nil {
		e.announce(ctx, []rotation.Assignment{*a})
	}
	return out, err
}

// RunHouseholdRotation advances every chore of a household at once, the
// manual rotation applied chore by chore. Empty pools are warnings in the
// result.
func (e *Engine) RunHouseholdRotation(ctx context.Context, code, actor string, now time.Time) (*RotationReport, error) {
	h, err := e.household(ctx, code)
	if err != nil {
		return nil, err
	}
	res, err := e.scheduler.RunHousehold(ctx, h.ID, actor, now)
	if err != nil {
		return nil, err
	}
	report := &RotationReport{BatchResult: res}
	report.Deliveries = e.announce(ctx, res.Assignments)
	return report, nil
}

// ReminderReport pairs the intents built for a run with their delivery.
type ReminderReport struct {
	Intents []model.NotificationIntent `json:"intents"`
	Results []model.DeliveryResult     `json:"results"`
}

func (r *ReminderReport) Sent() int {
	n := 0
	for _, res := range r.Results {
		if !res.Skipped {
			n++
		}
	}
	return n
}

// DueReminders builds reminder intents for every household and hands them
// to the transport. Households that fail to load are reported in the error
// while the rest are still delivered.
func (e *Engine) DueReminders(ctx context.Context, now time.Time) (*ReminderReport, error) {
	intents, err := e.dispatcher.DueReminders(ctx, now)
	if intents == nil && err != nil {
		return nil, err
	}
	report := &ReminderReport{Intents: intents, Results: e.delivery.Deliver(ctx, intents)}
	e.logger.Info("reminders dispatched", "intents", len(intents), "sent", report.Sent())
	return report, err
}

// PreviewReminders builds reminder intents for a household without
// delivering anything.
func (e *Engine) PreviewReminders(ctx context.Context, code string, now time.Time) ([]model.NotificationIntent, error) {
	h, err := e.household(ctx, code)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.HouseholdReminders(ctx, h.ID, now)
}

// RotationHistory returns a household's rotation log, newest first.
func (e *Engine) RotationHistory(ctx context.Context, code string, limit int) ([]model.RotationEntry, error) {
	h, err := e.household(ctx, code)
	if err != nil {
		return nil, err
	}
	return e.stores.History.ListByHousehold(ctx, h.ID, limit)
}

// ChoreHistory returns one chore's rotation log, oldest first.
func (e *Engine) ChoreHistory(ctx context.Context, choreID int64) ([]model.RotationEntry, error) {
	c, err := e.stores.Chores.GetByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("chore %d: %w", choreID, model.ErrNotFound)
	}
	return e.stores.History.ListByChore(ctx, choreID)
}

// Welcome greets a member who just joined. Delivery is best-effort.
func (e *Engine) Welcome(ctx context.Context, h *model.Household, m model.Member) {
	intent := e.dispatcher.WelcomeNotice(*h, m)
	e.delivery.Deliver(ctx, []model.NotificationIntent{intent})
}

// NotifyHousehold sends a free-form message to every member of the
// household, available or not.
func (e *Engine) NotifyHousehold(ctx context.Context, code, message string) (*model.DeliveryResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", model.ErrValidation)
	}
	h, err := e.household(ctx, code)
	if err != nil {
		return nil, err
	}
	members, err := e.stores.Members.ListByHousehold(ctx, h.ID)
	if err != nil {
		return nil, err
	}

	intent := e.dispatcher.CustomNotice(*h, members, message)
	res := e.delivery.Deliver(ctx, []model.NotificationIntent{intent})
	if len(res) == 0 {
		return nil, ctx.Err()
	}
	e.logger.Info("household message sent", "household_id", h.ID, "recipients", len(intent.Recipients))
	return &res[0], nil
}

// RemoveMember hands the member's chores to the remaining pool and then
// deletes the member, so no chore is left pointing at them.
func (e *Engine) RemoveMember(ctx context.Context, code string, memberID int64, actor string, now time.Time) (*rotation.BatchResult, error) {
	h, err := e.household(ctx, code)
	if err != nil {
		return nil, err
	}
	m, err := e.stores.Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.HouseholdID != h.ID {
		return nil, fmt.Errorf("member %d: %w", memberID, model.ErrNotFound)
	}

	res, err := e.scheduler.Reassign(ctx, h.ID, memberID, actor, now)
	if err != nil {
		return nil, fmt.Errorf("reassign chores: %w", err)
	}
	if err := e.stores.Members.Delete(ctx, memberID); err != nil {
		return res, err
	}

	e.hub.Broadcast(h.ID, websocket.NewMessage("member", "deleted", memberID, nil))
	e.announce(ctx, res.Assignments)
	return res, nil
}

func (e *Engine) household(ctx context.Context, code string) (*model.Household, error) {
	h, err := e.stores.Households.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("household %s: %w", code, model.ErrNotFound)
	}
	return h, nil
}

// announce broadcasts each changed assignment and delivers new-assignment
// notices to the incoming assignees.
func (e *Engine) announce(ctx context.Context, assignments []rotation.Assignment) []model.DeliveryResult {
	var intents []model.NotificationIntent
	for _, a := range assignments {
		extra := map[string]any{"trigger": string(a.Trigger), "assignee_id": a.Chore.AssigneeID}
		e.hub.Broadcast(a.HouseholdID, websocket.NewMessage("chore", "rotated", a.Chore.ID, extra))

		if intent, ok := e.dispatcher.AssignmentChangedNotice(a); ok {
			intents = append(intents, intent)
		}
	}
	if len(intents) == 0 {
		return nil
	}
	return e.delivery.Deliver(ctx, intents)
}
