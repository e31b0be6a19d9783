package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/chorewheel/internal/model"
)

type HistoryStore struct {
	db *sqlx.DB
}

func NewHistoryStore(db *sqlx.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

const historyCols = `id, household_id, chore_id, previous_assignee_id, new_assignee_id, rotation_trigger, actor, rotated_at`

// appendHistory runs inside ChoreStore.AtomicUpdate; history is never
// written on its own.
func appendHistory(ctx context.Context, tx *sqlx.Tx, entry *model.RotationEntry) error {
	err := tx.GetContext(ctx, &entry.ID, tx.Rebind(
		`INSERT INTO rotation_history (household_id, chore_id, previous_assignee_id, new_assignee_id, rotation_trigger, actor, rotated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		entry.HouseholdID, entry.ChoreID, entry.PreviousAssigneeID, entry.NewAssigneeID,
		string(entry.Trigger), entry.Actor, entry.RotatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert rotation history: %w", err)
	}
	return nil
}

// ListByHousehold returns the newest entries first. limit <= 0 means all.
func (s *HistoryStore) ListByHousehold(ctx context.Context, householdID int64, limit int) ([]model.RotationEntry, error) {
	q := `SELECT ` + historyCols + ` FROM rotation_history WHERE household_id = ? ORDER BY rotated_at DESC, id DESC`
	args := []any{householdID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var entries []model.RotationEntry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list rotation history: %w", err)
	}
	return entries, nil
}

// ListByChore returns one chore's entries, oldest first.
func (s *HistoryStore) ListByChore(ctx context.Context, choreID int64) ([]model.RotationEntry, error) {
	var entries []model.RotationEntry
	err := s.db.SelectContext(ctx, &entries,
		s.db.Rebind(`SELECT `+historyCols+` FROM rotation_history WHERE chore_id = ? ORDER BY rotated_at ASC, id ASC`),
		choreID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chore history: %w", err)
	}
	return entries, nil
}
