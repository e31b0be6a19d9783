package chore

import (
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/notify"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusCompleted   Status = "completed"
	StatusUpcoming    Status = "upcoming"
	StatusOverdue     Status = "overdue"
	StatusUnscheduled Status = "unscheduled"
)

type ChoreWithStatus struct {
	model.Chore
	Status       Status     `json:"status"`
	DueAt        *time.Time `json:"due_at"`
	AssigneeName string     `json:"assignee_name,omitempty"`
}

// ComputeStatus reports where a chore stands in its current cycle. Chores
// without a cadence have no due time and are unscheduled until completed.
func ComputeStatus(c model.Chore, now time.Time, window time.Duration) (Status, *time.Time) {
	due, ok := c.DueAt()
	if c.Completed {
		if ok {
			return StatusCompleted, &due
		}
		return StatusCompleted, nil
	}
	if !ok {
		return StatusUnscheduled, nil
	}

	switch urgency, _ := notify.Classify(due, now, window); urgency {
	case model.UrgencyOverdue:
		return StatusOverdue, &due
	case model.UrgencyUpcoming:
		return StatusUpcoming, &due
	}
	return StatusPending, &due
}

// WithStatus decorates chores with their status and assignee name.
func WithStatus(chores []model.Chore, members []model.Member, now time.Time, window time.Duration) []ChoreWithStatus {
	out := make([]ChoreWithStatus, 0, len(chores))
	for _, c := range chores {
		status, due := ComputeStatus(c, now, window)
		cs := ChoreWithStatus{Chore: c, Status: status, DueAt: due}
		if c.AssigneeID != nil {
			if m := model.FindMember(members, *c.AssigneeID); m != nil {
				cs.AssigneeName = m.Name
			}
		}
		out = append(out, cs)
	}
	return out
}

// Summary is the household dashboard rollup.
type Summary struct {
	TotalChores     int     `json:"total_chores"`
	CompletedChores int     `json:"completed_chores"`
	OverdueChores   int     `json:"overdue_chores"`
	DueForRotation  int     `json:"due_for_rotation"`
	CompletionRate  float64 `json:"completion_rate"`
	TotalMembers    int     `json:"total_members"`
	Available       int     `json:"available_members"`
}

func Summarize(chores []model.Chore, members []model.Member, now time.Time, window time.Duration) Summary {
	s := Summary{TotalChores: len(chores), TotalMembers: len(members)}
	for _, m := range members {
		if m.Available {
			s.Available++
		}
	}
	for _, c := range chores {
		status, _ := ComputeStatus(c, now, window)
		switch status {
		case StatusCompleted:
			s.CompletedChores++
		case StatusOverdue:
			s.OverdueChores++
		}
		if c.IsDue(now) {
			s.DueForRotation++
		}
	}
	if s.TotalChores > 0 {
		s.CompletionRate = float64(s.CompletedChores) / float64(s.TotalChores) * 100
	}
	return s
}
