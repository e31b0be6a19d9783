package rotation

import (
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

// Interval returns the rotation interval of a cadence.
func Interval(c model.Cadence) (time.Duration, bool) {
	return c.Interval()
}

// NextAssignee decides who holds the chore after a scheduled evaluation at
// now. Cadence none and chores that are not yet due keep their assignee.
// Otherwise the chore moves round-robin through the pool. A nil result
// means the chore is unassigned.
func NextAssignee(current *int64, pool []model.Member, cadence model.Cadence, now, lastRotated time.Time) *int64 {
	iv, ok := Interval(cadence)
	if !ok {
		return current
	}
	if now.Before(lastRotated.Add(iv)) {
		return current
	}
	return following(current, pool)
}

// ManualNextAssignee always advances, ignoring the due gate and cadence.
func ManualNextAssignee(current *int64, pool []model.Member) *int64 {
	return following(current, pool)
}

// following picks the pool member after current in join order, wrapping to
// the front. The pool can shrink or grow between rotations, so the position
// is looked up by identity every time. When current is not in the pool
// (excluded or unavailable) the first member who joined after it is used.
func following(current *int64, pool []model.Member) *int64 {
	if len(pool) == 0 {
		return nil
	}
	first := pool[0].ID
	if current == nil {
		return &first
	}

	for i, m := range pool {
		if m.ID == *current {
			next := pool[(i+1)%len(pool)].ID
			return &next
		}
	}
	for _, m := range pool {
		if m.ID > *current {
			next := m.ID
			return &next
		}
	}
	return &first
}

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
