package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/chorewheel/internal/model"
)

type ChoreStore struct {
	db *sqlx.DB
}

func NewChoreStore(db *sqlx.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

const choreCols = `id, household_id, title, description, cadence, assignee_id, last_rotated_at,
	completed, completed_at, version, created_at, updated_at`

// Create inserts a chore. The rotation cycle starts at startAt.
func (s *ChoreStore) Create(ctx context.Context, householdID int64, title, description string, cadence model.Cadence, assigneeID *int64, startAt time.Time) (*model.Chore, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		`INSERT INTO chores (household_id, title, description, cadence, assignee_id, last_rotated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		householdID, title, description, string(cadence), assigneeID, startAt.UTC(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChoreStore) GetByID(ctx context.Context, id int64) (*model.Chore, error) {
	var c model.Chore
	err := s.db.GetContext(ctx, &c, s.db.Rebind(`SELECT `+choreCols+` FROM chores WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return &c, nil
}

func (s *ChoreStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.Chore, error) {
	var chores []model.Chore
	err := s.db.SelectContext(ctx, &chores,
		s.db.Rebind(`SELECT `+choreCols+` FROM chores WHERE household_id = ? ORDER BY id ASC`),
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	return chores, nil
}

func (s *ChoreStore) ListByAssignee(ctx context.Context, memberID int64) ([]model.Chore, error) {
	var chores []model.Chore
	err := s.db.SelectContext(ctx, &chores,
		s.db.Rebind(`SELECT `+choreCols+` FROM chores WHERE assignee_id = ? ORDER BY id ASC`),
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores by assignee: %w", err)
	}
	return chores, nil
}

// Update edits the descriptive fields of a chore and its assignee. Rotation
// state (last rotation, completion) is left alone.
func (s *ChoreStore) Update(ctx context.Context, id int64, title, description string, cadence model.Cadence, assigneeID *int64) (*model.Chore, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE chores SET title = ?, description = ?, cadence = ?, assignee_id = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ?`),
		title, description, string(cadence), assigneeID, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SetCompleted marks the current cycle done or pending.
func (s *ChoreStore) SetCompleted(ctx context.Context, id int64, completed bool, at time.Time) (*model.Chore, error) {
	var completedAt *time.Time
	if completed {
		t := at.UTC()
		completedAt = &t
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE chores SET completed = ?, completed_at = ?, version = version + 1, updated_at = ? WHERE id = ?`),
		completed, completedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set chore completed: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChoreStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM chores WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}

// AtomicUpdate reads the chore, applies fn and writes the result together
// with the returned history entry in one transaction. The write is guarded
// by the version read at the start; if another writer got there first the
// update fails with model.ErrConflict and nothing is written.
func (s *ChoreStore) AtomicUpdate(ctx context.Context, id int64, fn model.ChoreMutator) (*model.Chore, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var c model.Chore
	err = tx.GetContext(ctx, &c, tx.Rebind(`SELECT `+choreCols+` FROM chores WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chore %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read chore: %w", err)
	}

	readVersion := c.Version
	entry, err := fn(&c)
	if err != nil {
		return &c, err
	}

	c.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE chores SET assignee_id = ?, last_rotated_at = ?, completed = ?, completed_at = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`),
		c.AssigneeID, c.LastRotatedAt.UTC(), c.Completed, c.CompletedAt, c.UpdatedAt, c.ID, readVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("chore %d: %w", id, model.ErrConflict)
	}

	if entry != nil {
		entry.ChoreID = c.ID
		entry.HouseholdID = c.HouseholdID
		if err := appendHistory(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	c.Version = readVersion + 1
	return &c, nil
}
