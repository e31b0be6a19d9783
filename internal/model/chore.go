package model

import (
	"fmt"
	"time"
)

type Cadence string

const (
	CadenceNone     Cadence = "none"
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// ParseCadence validates a cadence string. An empty string means none.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case "":
		return CadenceNone, nil
	case CadenceNone, CadenceWeekly, CadenceBiweekly, CadenceMonthly:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown cadence %q", ErrValidation, s)
	}
}

// Interval returns the fixed rotation interval for the cadence. Monthly is
// 30 days, not calendar months. Returns false for none.
func (c Cadence) Interval() (time.Duration, bool) {
	const day = 24 * time.Hour
	switch c {
	case CadenceWeekly:
		return 7 * day, true
	case CadenceBiweekly:
		return 14 * day, true
	case CadenceMonthly:
		return 30 * day, true
	default:
		return 0, false
	}
}

type Chore struct {
	ID            int64      `json:"id" db:"id"`
	HouseholdID   int64      `json:"household_id" db:"household_id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	Cadence       Cadence    `json:"cadence" db:"cadence"`
	AssigneeID    *int64     `json:"assignee_id" db:"assignee_id"`
	LastRotatedAt time.Time  `json:"last_rotated_at" db:"last_rotated_at"`
	Completed     bool       `json:"completed" db:"completed"`
	CompletedAt   *time.Time `json:"completed_at" db:"completed_at"`
	Version       int64      `json:"-" db:"version"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// DueAt is LastRotatedAt plus the cadence interval. Chores with cadence
// none have no due timestamp.
func (c Chore) DueAt() (time.Time, bool) {
	iv, ok := c.Cadence.Interval()
	if !ok {
		return time.Time{}, false
	}
	return c.LastRotatedAt.Add(iv), true
}

// IsDue reports whether the due-date gate is open at now.
func (c Chore) IsDue(now time.Time) bool {
	due, ok := c.DueAt()
	return ok && !now.Before(due)
}

// ChoreMutator is applied inside the per-chore transaction. It mutates the
// freshly read chore and returns the history entry to append, or
// ErrNoChange to leave the row untouched.
type ChoreMutator func(c *Chore) (*RotationEntry, error)
