package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/chorewheel/internal/model"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
	codeAttempts = 5
)

type HouseholdStore struct {
	db *sqlx.DB
}

func NewHouseholdStore(db *sqlx.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

const householdCols = `id, name, code, created_at`

// GenerateCode returns a random 8-character join code.
func GenerateCode() (string, error) {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// Create inserts a household with a fresh unique join code.
func (s *HouseholdStore) Create(ctx context.Context, name string) (*model.Household, error) {
	for range codeAttempts {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		existing, err := s.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		var id int64
		err = s.db.GetContext(ctx, &id,
			s.db.Rebind(`INSERT INTO households (name, code) VALUES (?, ?) RETURNING id`),
			name, code,
		)
		if err != nil {
			return nil, fmt.Errorf("insert household: %w", err)
		}
		return s.GetByID(ctx, id)
	}
	return nil, fmt.Errorf("insert household: no unique code after %d attempts", codeAttempts)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	var h model.Household
	err := s.db.GetContext(ctx, &h, s.db.Rebind(`SELECT `+householdCols+` FROM households WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return &h, nil
}

// GetByCode looks up a household by join code. Codes are case-insensitive.
func (s *HouseholdStore) GetByCode(ctx context.Context, code string) (*model.Household, error) {
	var h model.Household
	err := s.db.GetContext(ctx, &h, s.db.Rebind(`SELECT `+householdCols+` FROM households WHERE code = ?`),
		strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by code: %w", err)
	}
	return &h, nil
}

func (s *HouseholdStore) List(ctx context.Context) ([]model.Household, error) {
	var households []model.Household
	if err := s.db.SelectContext(ctx, &households, `SELECT `+householdCols+` FROM households ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	return households, nil
}

// Delete removes a household. Members, chores, history and notification
// records go with it through ON DELETE CASCADE.
func (s *HouseholdStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM households WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}
