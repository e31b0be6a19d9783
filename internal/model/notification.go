package model

import "time"

type Urgency string

const (
	UrgencyUpcoming      Urgency = "upcoming"
	UrgencyDueToday      Urgency = "due_today"
	UrgencyOverdue       Urgency = "overdue"
	UrgencyNewAssignment Urgency = "new_assignment"
	// UrgencyWelcome and UrgencyCustom are household messages with no chore.
	UrgencyWelcome Urgency = "welcome"
	UrgencyCustom  Urgency = "custom"
)

// IsReminder reports whether u is a due-date reminder tier. Only reminders
// are deduplicated per cycle.
func (u Urgency) IsReminder() bool {
	return u == UrgencyUpcoming || u == UrgencyDueToday || u == UrgencyOverdue
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Recipient is one target member of an intent with the channels left after
// preference filtering. An empty channel list means record only.
type Recipient struct {
	MemberID int64     `json:"member_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Channels []Channel `json:"channels"`
}

// NotificationIntent is transient and never persisted. ChoreID is zero for
// welcome and custom messages, which carry their text in Message.
type NotificationIntent struct {
	HouseholdID int64       `json:"household_id"`
	ChoreID     int64       `json:"chore_id"`
	ChoreTitle  string      `json:"chore_title"`
	Message     string      `json:"message,omitempty"`
	Urgency     Urgency     `json:"urgency"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	CycleStart  time.Time   `json:"cycle_start"`
	Escalated   bool        `json:"escalated"`
	Recipients  []Recipient `json:"recipients"`
}

type DeliveryAttempt struct {
	MemberID int64   `json:"member_id"`
	Channel  Channel `json:"channel"`
	Err      error   `json:"-"`
}

func (a DeliveryAttempt) OK() bool { return a.Err == nil }

type DeliveryResult struct {
	Intent   NotificationIntent `json:"intent"`
	Attempts []DeliveryAttempt  `json:"attempts"`
	// Skipped is set when the intent was already delivered for this cycle.
	Skipped bool `json:"skipped"`
}

// Failed counts attempts that returned an error.
func (r DeliveryResult) Failed() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Err != nil {
			n++
		}
	}
	return n
}

// Notification record statuses.
const (
	NotificationSent     = "sent"
	NotificationFailed   = "failed"
	NotificationRecorded = "recorded"
)

// NotificationRecord is the persisted log of one recipient/channel attempt.
type NotificationRecord struct {
	ID          int64     `json:"id" db:"id"`
	HouseholdID int64     `json:"household_id" db:"household_id"`
	ChoreID     *int64    `json:"chore_id" db:"chore_id"`
	MemberID    *int64    `json:"member_id" db:"member_id"`
	MemberName  string    `json:"member_name" db:"member_name"`
	ChoreTitle  string    `json:"chore_title" db:"chore_title"`
	Message     string    `json:"message,omitempty" db:"message"`
	Urgency     Urgency   `json:"urgency" db:"urgency"`
	Channel     string    `json:"channel" db:"channel"`
	Status      string    `json:"status" db:"status"`
	Error       string    `json:"error" db:"error"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
