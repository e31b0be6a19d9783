package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/rotation"
)

// DefaultReminderWindow is how far ahead of the due time a reminder fires.
const DefaultReminderWindow = 24 * time.Hour

type HouseholdLister interface {
	List(ctx context.Context) ([]model.Household, error)
}

type ChoreLister interface {
	ListByHousehold(ctx context.Context, householdID int64) ([]model.Chore, error)
}

// MemberLister loads members in join order. ListEligible returns only the
// available ones.
type MemberLister interface {
	ListByHousehold(ctx context.Context, householdID int64) ([]model.Member, error)
	ListEligible(ctx context.Context, householdID int64) ([]model.Member, error)
}

// Dispatcher decides which chores warrant a reminder and who gets it. It
// never sends anything itself.
type Dispatcher struct {
	households HouseholdLister
	chores     ChoreLister
	members    MemberLister
	window     time.Duration
	logger     *slog.Logger
}

func NewDispatcher(households HouseholdLister, chores ChoreLister, members MemberLister, window time.Duration, logger *slog.Logger) *Dispatcher {
	if window <= 0 {
		window = DefaultReminderWindow
	}
	return &Dispatcher{
		households: households,
		chores:     chores,
		members:    members,
		window:     window,
		logger:     logger,
	}
}

// Window returns the reminder window.
func (d *Dispatcher) Window() time.Duration { return d.window }

// Classify maps the time left until due onto an urgency tier. The second
// result is false when the chore is outside the reminder window.
func Classify(due, now time.Time, window time.Duration) (model.Urgency, bool) {
	timeToDue := due.Sub(now)
	switch {
	case timeToDue <= 0:
		return model.UrgencyOverdue, true
	case timeToDue <= window:
		return model.UrgencyUpcoming, true
	}
	return "", false
}

// DueReminders builds reminder intents for every household. A household
// that cannot be loaded is skipped and its error joined into the returned
// error; intents for the others are still returned.
func (d *Dispatcher) DueReminders(ctx context.Context, now time.Time) ([]model.NotificationIntent, error) {
	households, err := d.households.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}

	var (
		intents []model.NotificationIntent
		errs    error
	)
	for _, h := range households {
		hi, err := d.HouseholdReminders(ctx, h.ID, now)
		if err != nil {
			d.logger.Error("household reminders", "household_id", h.ID, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("household %d: %w", h.ID, err))
			continue
		}
		intents = append(intents, hi...)
	}
	return intents, errs
}

// HouseholdReminders builds reminder intents for one household.
func (d *Dispatcher) HouseholdReminders(ctx context.Context, householdID int64, now time.Time) ([]model.NotificationIntent, error) {
	chores, err := d.chores.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	if len(chores) == 0 {
		return nil, nil
	}

	members, err := d.members.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	var (
		intents  []model.NotificationIntent
		eligible []model.Member
		loaded   bool
	)
	for _, c := range chores {
		if c.Completed {
			continue
		}
		due, ok := c.DueAt()
		if !ok {
			continue
		}

		var assignee *model.Member
		if c.AssigneeID != nil {
			assignee = model.FindMember(members, *c.AssigneeID)
		}
		window := d.window
		if assignee != nil {
			window = assignee.ReminderWindow(d.window)
		}
		urgency, ok := Classify(due, now, window)
		if !ok {
			continue
		}

		intent := model.NotificationIntent{
			HouseholdID: householdID,
			ChoreID:     c.ID,
			ChoreTitle:  c.Title,
			Urgency:     urgency,
			DueAt:       &due,
			CycleStart:  c.LastRotatedAt,
		}
		if assignee != nil {
			intent.Recipients = []model.Recipient{NewRecipient(*assignee)}
		} else {
			if !loaded {
				eligible, err = d.members.ListEligible(ctx, householdID)
				if err != nil {
					return nil, fmt.Errorf("list eligible members: %w", err)
				}
				loaded = true
			}
			intent.Escalated = true
			for _, m := range eligible {
				intent.Recipients = append(intent.Recipients, NewRecipient(m))
			}
		}
		intents = append(intents, intent)
	}
	return intents, nil
}

// AssignmentChangedNotice turns a rotation into a new-assignment intent for
// the incoming assignee. It returns false when the chore ended up
// unassigned.
func (d *Dispatcher) AssignmentChangedNotice(a rotation.Assignment) (model.NotificationIntent, bool) {
	if a.Assignee == nil {
		return model.NotificationIntent{}, false
	}
	intent := model.NotificationIntent{
		HouseholdID: a.HouseholdID,
		ChoreID:     a.Chore.ID,
		ChoreTitle:  a.Chore.Title,
		Urgency:     model.UrgencyNewAssignment,
		CycleStart:  a.Chore.LastRotatedAt,
		Recipients:  []model.Recipient{NewRecipient(*a.Assignee)},
	}
	if due, ok := a.Chore.DueAt(); ok {
		intent.DueAt = &due
	}
	return intent, true
}

// WelcomeNotice greets a member who just joined h.
func (d *Dispatcher) WelcomeNotice(h model.Household, m model.Member) model.NotificationIntent {
	return model.NotificationIntent{
		HouseholdID: h.ID,
		ChoreTitle:  "Welcome",
		Urgency:     model.UrgencyWelcome,
		Message:     fmt.Sprintf("Welcome to %s! You've joined the household.", h.Name),
		Recipients:  []model.Recipient{NewRecipient(m)},
	}
}

// CustomNotice addresses message to every member of h, available or not.
func (d *Dispatcher) CustomNotice(h model.Household, members []model.Member, message string) model.NotificationIntent {
	intent := model.NotificationIntent{
		HouseholdID: h.ID,
		ChoreTitle:  "Custom Message",
		Urgency:     model.UrgencyCustom,
		Message:     message,
	}
	for _, m := range members {
		intent.Recipients = append(intent.Recipients, NewRecipient(m))
	}
	return intent
}

// NewRecipient expands a member into a recipient with the channels their
// contact details and opt-outs allow.
func NewRecipient(m model.Member) model.Recipient {
	return model.Recipient{
		MemberID: m.ID,
		Name:     m.Name,
		Email:    m.Email,
		Phone:    m.Phone,
		Channels: Channels(m),
	}
}

// Channels lists the delivery channels open for a member. The list is empty
// when notifications are disabled or every channel is opted out.
func Channels(m model.Member) []model.Channel {
	channels := []model.Channel{}
	if !m.NotificationsEnabled {
		return channels
	}
	if m.Email != "" && !m.EmailOptOut {
		channels = append(channels, model.ChannelEmail)
	}
	if m.Phone != "" && !m.SMSOptOut {
		channels = append(channels, model.ChannelSMS)
	}
	if !m.PushOptOut {
		channels = append(channels, model.ChannelPush)
	}
	return channels
}
