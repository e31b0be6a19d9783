package rotation

import (
	"slices"

	"github.com/dukerupert/chorewheel/internal/model"
)

// EligiblePool returns the available members in join order. The current
// assignee is left out when at least one other member is available, so a
// rotation never hands the chore back to the same person while someone
// else could take it.
func EligiblePool(members []model.Member, current *int64) []model.Member {
	pool := make([]model.Member, 0, len(members))
	for _, m := range members {
		if m.Available {
			pool = append(pool, m)
		}
	}
	slices.SortFunc(pool, func(a, b model.Member) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if current == nil || len(pool) < 2 {
		return pool
	}
	return slices.DeleteFunc(pool, func(m model.Member) bool { return m.ID == *current })
}

// resolveAssignee drops an assignee reference that no longer points at a
// household member.
func resolveAssignee(id *int64, members []model.Member) *int64 {
	if id == nil || model.FindMember(members, *id) == nil {
		return nil
	}
	return id
}
