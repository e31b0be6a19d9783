package rotation

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dukerupert/chorewheel/internal/model"
)

type Status string

const (
	StatusRotated    Status = "rotated"
	StatusUnassigned Status = "unassigned"
	StatusUnchanged  Status = "unchanged"
	// StatusRenewed means the sole eligible member keeps the chore for a
	// new cycle: completion is cleared and no history is written.
	StatusRenewed Status = "renewed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip reasons.
const (
	ReasonConflict = "conflict"
	ReasonNotFound = "not_found"
	ReasonCanceled = "canceled"
	ReasonNotDue   = "not_due"
)

// Outcome is the result of evaluating one chore.
type Outcome struct {
	HouseholdID int64                `json:"household_id"`
	ChoreID     int64                `json:"chore_id"`
	ChoreTitle  string               `json:"chore_title,omitempty"`
	Status      Status               `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	Previous    *int64               `json:"previous_assignee_id"`
	Next        *int64               `json:"new_assignee_id"`
	Entry       *model.RotationEntry `json:"entry,omitempty"`
	Err         error                `json:"-"`
	Error       string               `json:"error,omitempty"`
}

func (o *Outcome) fail(err error) {
	o.Status = StatusFailed
	o.Err = err
	o.Error = err.Error()
}

// Assignment describes a changed assignee. It feeds the new-assignment
// notice.
type Assignment struct {
	HouseholdID int64         `json:"household_id"`
	Chore       model.Chore   `json:"chore"`
	Previous    *int64        `json:"previous_assignee_id"`
	Assignee    *model.Member `json:"assignee"`
	Trigger     model.Trigger `json:"trigger"`
}

// BatchResult aggregates the per-chore outcomes of one run. A failed chore
// never aborts the run; it is reported here instead.
type BatchResult struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	Outcomes    []Outcome    `json:"outcomes"`
	Assignments []Assignment `json:"-"`
	// Interrupted is set when the context was canceled before every due
	// chore was scheduled. The chores that did run are consistent.
	Interrupted bool `json:"interrupted"`
}

func (r *BatchResult) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *BatchResult) Rotated() int { return r.count(StatusRotated) + r.count(StatusUnassigned) }

func (r *BatchResult) Skipped() int { return r.count(StatusSkipped) }

// Warnings returns chores left unassigned because their pool was empty.
func (r *BatchResult) Warnings() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusUnassigned {
			out = append(out, o)
		}
	}
	return out
}

func (r *BatchResult) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Err combines the errors of all failed chores, or returns nil.
func (r *BatchResult) Err() error {
	var err error
	for _, o := range r.Failures() {
		if o.ChoreID == 0 {
			err = multierr.Append(err, fmt.Errorf("household %d: %w", o.HouseholdID, o.Err))
			continue
		}
		err = multierr.Append(err, fmt.Errorf("chore %d: %w", o.ChoreID, o.Err))
	}
	return err
}
