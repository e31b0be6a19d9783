package model

import "time"

// Member belongs to exactly one household. Members are ordered by ID, which
// is their join order; rotation pools rely on that ordering.
type Member struct {
	ID                   int64  `json:"id" db:"id"`
	HouseholdID          int64  `json:"household_id" db:"household_id"`
	Name                 string `json:"name" db:"name"`
	Email                string `json:"email" db:"email"`
	Phone                string `json:"phone" db:"phone"`
	IsAdmin              bool   `json:"is_admin" db:"is_admin"`
	Available            bool   `json:"available" db:"available"`
	NotificationsEnabled bool   `json:"notifications_enabled" db:"notifications_enabled"`
	EmailOptOut          bool   `json:"email_opt_out" db:"email_opt_out"`
	SMSOptOut            bool   `json:"sms_opt_out" db:"sms_opt_out"`
	PushOptOut           bool   `json:"push_opt_out" db:"push_opt_out"`
	// ReminderDaysBefore overrides the household reminder window for chores
	// this member holds. Zero uses the default.
	ReminderDaysBefore int       `json:"reminder_days_before" db:"reminder_days_before"`
	JoinedAt           time.Time `json:"joined_at" db:"joined_at"`
}

// ReminderWindow returns the member's own reminder lead, or def when unset.
func (m Member) ReminderWindow(def time.Duration) time.Duration {
	if m.ReminderDaysBefore > 0 {
		return time.Duration(m.ReminderDaysBefore) * 24 * time.Hour
	}
	return def
}

// FindMember returns the member with the given ID, or nil.
func FindMember(members []Member, id int64) *Member {
	for i := range members {
		if members[i].ID == id {
			return &members[i]
		}
	}
	return nil
}
