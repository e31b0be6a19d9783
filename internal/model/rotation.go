package model

import "time"

type Trigger string

const (
	TriggerScheduled  Trigger = "scheduled"
	TriggerManual     Trigger = "manual"
	TriggerReassigned Trigger = "reassigned"
)

// RotationEntry is an append-only history record. It is never updated.
type RotationEntry struct {
	ID                 int64     `json:"id" db:"id"`
	HouseholdID        int64     `json:"household_id" db:"household_id"`
	ChoreID            int64     `json:"chore_id" db:"chore_id"`
	PreviousAssigneeID *int64    `json:"previous_assignee_id" db:"previous_assignee_id"`
	NewAssigneeID      *int64    `json:"new_assignee_id" db:"new_assignee_id"`
	Trigger            Trigger   `json:"trigger" db:"rotation_trigger"`
	Actor              string    `json:"actor" db:"actor"`
	RotatedAt          time.Time `json:"rotated_at" db:"rotated_at"`
}
