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

type PushStore struct {
	db *sqlx.DB
}

func NewPushStore(db *sqlx.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, member_id, endpoint, p256dh_key, auth_key, device_name, created_at`

// CreateSubscription registers a browser endpoint for a member. Registering
// an endpoint again replaces its keys and owner.
func (s *PushStore) CreateSubscription(ctx context.Context, memberID int64, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO push_subscriptions (member_id, endpoint, p256dh_key, auth_key, device_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (endpoint) DO UPDATE SET member_id = excluded.member_id, p256dh_key = excluded.p256dh_key,
			auth_key = excluded.auth_key, device_name = excluded.device_name`),
		memberID, endpoint, p256dh, auth, deviceName, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}
	return s.GetByEndpoint(ctx, endpoint)
}

func (s *PushStore) GetByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.GetContext(ctx, &sub, s.db.Rebind(`SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`), endpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", err)
	}
	return &sub, nil
}

func (s *PushStore) ListByMember(ctx context.Context, memberID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.SelectContext(ctx, &subs,
		s.db.Rebind(`SELECT `+pushCols+` FROM push_subscriptions WHERE member_id = ? ORDER BY id ASC`),
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	return subs, nil
}

// Delete removes a subscription owned by memberID.
func (s *PushStore) Delete(ctx context.Context, id, memberID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM push_subscriptions WHERE id = ? AND member_id = ?`), id, memberID)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM push_subscriptions WHERE endpoint = ?`), endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}
