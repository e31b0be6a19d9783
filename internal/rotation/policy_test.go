package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorewheel/internal/model"
)

func members(names ...string) []model.Member {
	out := make([]model.Member, len(names))
	for i, n := range names {
		out[i] = model.Member{ID: int64(i + 1), Name: n, Available: true}
	}
	return out
}

func TestEligiblePool(t *testing.T) {
	all := members("alice", "bob", "carol")

	t.Run("excludes current when alternatives exist", func(t *testing.T) {
		pool := EligiblePool(all, ptr(1))
		require.Len(t, pool, 2)
		assert.Equal(t, int64(2), pool[0].ID)
		assert.Equal(t, int64(3), pool[1].ID)
	})

	t.Run("keeps sole eligible member", func(t *testing.T) {
		ms := members("alice", "bob")
		ms[1].Available = false
		pool := EligiblePool(ms, ptr(1))
		require.Len(t, pool, 1)
		assert.Equal(t, int64(1), pool[0].ID)
	})

	t.Run("join order regardless of input order", func(t *testing.T) {
		shuffled := []model.Member{all[2], all[0], all[1]}
		pool := EligiblePool(shuffled, nil)
		require.Len(t, pool, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{pool[0].ID, pool[1].ID, pool[2].ID})
	})

	t.Run("empty when nobody is available", func(t *testing.T) {
		ms := members("alice")
		ms[0].Available = false
		assert.Empty(t, EligiblePool(ms, ptr(1)))
	})
}

func TestNextAssignee(t *testing.T) {
	all := members("alice", "bob", "carol")

	t.Run("weekly due advances to next member", func(t *testing.T) {
		got := NextAssignee(ptr(1), EligiblePool(all, ptr(1)), model.CadenceWeekly, t0, t0.Add(-7*day))
		require.NotNil(t, got)
		assert.Equal(t, int64(2), *got)
	})

	t.Run("not yet due keeps assignee", func(t *testing.T) {
		got := NextAssignee(ptr(1), EligiblePool(all, ptr(1)), model.CadenceWeekly, t0, t0.Add(-3*day))
		require.NotNil(t, got)
		assert.Equal(t, int64(1), *got)
	})

	t.Run("cadence none never advances", func(t *testing.T) {
		for _, elapsed := range []int{0, 7, 365} {
			got := NextAssignee(ptr(1), EligiblePool(all, ptr(1)), model.CadenceNone, t0, t0.Add(-time.Duration(elapsed)*day))
			require.NotNil(t, got)
			assert.Equal(t, int64(1), *got)
		}
	})

	t.Run("wraps around", func(t *testing.T) {
		got := NextAssignee(ptr(3), EligiblePool(all, ptr(3)), model.CadenceBiweekly, t0, t0.Add(-14*day))
		require.NotNil(t, got)
		assert.Equal(t, int64(1), *got)
	})

	t.Run("unknown current picks first", func(t *testing.T) {
		got := NextAssignee(nil, EligiblePool(all, nil), model.CadenceMonthly, t0, t0.Add(-30*day))
		require.NotNil(t, got)
		assert.Equal(t, int64(1), *got)
	})

	t.Run("unavailable current skips to later member", func(t *testing.T) {
		ms := members("alice", "bob", "carol")
		ms[1].Available = false
		got := NextAssignee(ptr(2), EligiblePool(ms, ptr(2)), model.CadenceWeekly, t0, t0.Add(-7*day))
		require.NotNil(t, got)
		assert.Equal(t, int64(3), *got)
	})

	t.Run("empty pool unassigns", func(t *testing.T) {
		assert.Nil(t, NextAssignee(ptr(1), nil, model.CadenceWeekly, t0, t0.Add(-7*day)))
	})

	t.Run("monthly is thirty days", func(t *testing.T) {
		pool := EligiblePool(all, ptr(1))
		assert.Equal(t, int64(1), *NextAssignee(ptr(1), pool, model.CadenceMonthly, t0, t0.Add(-29*day)))
		assert.Equal(t, int64(2), *NextAssignee(ptr(1), pool, model.CadenceMonthly, t0, t0.Add(-30*day)))
	})
}

func TestNextAssigneeDeterministic(t *testing.T) {
	all := members("alice", "bob", "carol", "dave")
	pool := EligiblePool(all, ptr(2))
	first := NextAssignee(ptr(2), pool, model.CadenceWeekly, t0, t0.Add(-8*day))
	for i := range 20 {
		now := t0.Add(time.Duration(i) * day)
		got := NextAssignee(ptr(2), pool, model.CadenceWeekly, now, t0.Add(-8*day))
		assert.Equal(t, *first, *got)
	}
}

func TestManualRoundRobinClosure(t *testing.T) {
	all := members("alice", "bob", "carol")
	current := ptr(1)
	seen := []int64{}
	for range len(all) {
		current = ManualNextAssignee(current, EligiblePool(all, current))
		require.NotNil(t, current)
		seen = append(seen, *current)
	}
	assert.Equal(t, []int64{2, 3, 1}, seen)
}

func TestInterval(t *testing.T) {
	iv, ok := Interval(model.CadenceWeekly)
	assert.True(t, ok)
	assert.Equal(t, 7*day, iv)

	_, ok = Interval(model.CadenceNone)
	assert.False(t, ok)
}
