package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/chorewheel/internal/model"
)

type NotificationStore struct {
	db *sqlx.DB
}

func NewNotificationStore(db *sqlx.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, household_id, chore_id, member_id, member_name, chore_title, message, urgency, channel, status, error, created_at`

// Record appends a delivery record. CreatedAt defaults to now.
func (s *NotificationStore) Record(ctx context.Context, rec *model.NotificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.db.GetContext(ctx, &rec.ID, s.db.Rebind(
		`INSERT INTO notifications (household_id, chore_id, member_id, member_name, chore_title, message, urgency, channel, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		rec.HouseholdID, rec.ChoreID, rec.MemberID, rec.MemberName, rec.ChoreTitle, rec.Message,
		string(rec.Urgency), rec.Channel, rec.Status, rec.Error, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByHousehold returns the newest records first. limit <= 0 means all.
func (s *NotificationStore) ListByHousehold(ctx context.Context, householdID int64, limit int) ([]model.NotificationRecord, error) {
	q := `SELECT ` + notificationCols + ` FROM notifications WHERE household_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{householdID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var recs []model.NotificationRecord
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return recs, nil
}

// WasSent reports whether a reminder of this urgency already went out for
// the chore's cycle.
func (s *NotificationStore) WasSent(ctx context.Context, choreID int64, cycleStart time.Time, urgency model.Urgency) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(
		`SELECT COUNT(*) FROM sent_reminders WHERE chore_id = ? AND cycle_start = ? AND urgency = ?`),
		choreID, cycleStart.Unix(), string(urgency),
	)
	if err != nil {
		return false, fmt.Errorf("check sent reminder: %w", err)
	}
	return count > 0, nil
}

// RecordSent marks a reminder as delivered for the cycle. Recording twice is
// a no-op.
func (s *NotificationStore) RecordSent(ctx context.Context, choreID int64, cycleStart time.Time, urgency model.Urgency) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO sent_reminders (chore_id, cycle_start, urgency, sent_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (chore_id, cycle_start, urgency) DO NOTHING`),
		choreID, cycleStart.Unix(), string(urgency), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record sent reminder: %w", err)
	}
	return nil
}

// CleanupSent deletes dedup rows recorded before the given time.
func (s *NotificationStore) CleanupSent(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sent_reminders WHERE sent_at < ?`), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup sent reminders: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
