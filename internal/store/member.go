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

type MemberStore struct {
	db *sqlx.DB
}

func NewMemberStore(db *sqlx.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, household_id, name, email, phone, is_admin, available, notifications_enabled,
	email_opt_out, sms_opt_out, push_opt_out, reminder_days_before, joined_at`

// Create adds a member to a household. Only HouseholdID, Name, Email, Phone,
// IsAdmin and the preference fields of m are used.
func (s *MemberStore) Create(ctx context.Context, m model.Member) (*model.Member, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		`INSERT INTO members (household_id, name, email, phone, is_admin, available, notifications_enabled,
			email_opt_out, sms_opt_out, push_opt_out, reminder_days_before, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		m.HouseholdID, m.Name, m.Email, m.Phone, m.IsAdmin, m.Available, m.NotificationsEnabled,
		m.EmailOptOut, m.SMSOptOut, m.PushOptOut, m.ReminderDaysBefore, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MemberStore) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	var m model.Member
	err := s.db.GetContext(ctx, &m, s.db.Rebind(`SELECT `+memberCols+` FROM members WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *MemberStore) GetByName(ctx context.Context, householdID int64, name string) (*model.Member, error) {
	var m model.Member
	err := s.db.GetContext(ctx, &m,
		s.db.Rebind(`SELECT `+memberCols+` FROM members WHERE household_id = ? AND name = ?`),
		householdID, name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by name: %w", err)
	}
	return &m, nil
}

// ListByHousehold returns all members in join order.
func (s *MemberStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.Member, error) {
	var members []model.Member
	err := s.db.SelectContext(ctx, &members,
		s.db.Rebind(`SELECT `+memberCols+` FROM members WHERE household_id = ? ORDER BY id ASC`),
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// ListEligible returns available members in join order.
func (s *MemberStore) ListEligible(ctx context.Context, householdID int64) ([]model.Member, error) {
	var members []model.Member
	err := s.db.SelectContext(ctx, &members,
		s.db.Rebind(`SELECT `+memberCols+` FROM members WHERE household_id = ? AND available = ? ORDER BY id ASC`),
		householdID, true,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible members: %w", err)
	}
	return members, nil
}

// Update writes the mutable fields of m. Name, contact info, availability
// and notification preferences can change; household and join time cannot.
func (s *MemberStore) Update(ctx context.Context, m model.Member) (*model.Member, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE members SET name = ?, email = ?, phone = ?, is_admin = ?, available = ?,
			notifications_enabled = ?, email_opt_out = ?, sms_opt_out = ?, push_opt_out = ?,
			reminder_days_before = ?
		 WHERE id = ?`),
		m.Name, m.Email, m.Phone, m.IsAdmin, m.Available,
		m.NotificationsEnabled, m.EmailOptOut, m.SMSOptOut, m.PushOptOut,
		m.ReminderDaysBefore, m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(ctx, m.ID)
}

func (s *MemberStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM members WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *MemberStore) NameExists(ctx context.Context, householdID int64, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		s.db.Rebind(`SELECT COUNT(*) FROM members WHERE household_id = ? AND name = ? AND id != ?`),
		householdID, name, excludeID,
	)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}
