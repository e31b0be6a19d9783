package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/model"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedHousehold(t *testing.T, db *sqlx.DB, name string) *model.Household {
	t.Helper()
	h, err := NewHouseholdStore(db).Create(context.Background(), name)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h
}

func seedMember(t *testing.T, db *sqlx.DB, householdID int64, name string) *model.Member {
	t.Helper()
	m, err := NewMemberStore(db).Create(context.Background(), model.Member{
		HouseholdID:          householdID,
		Name:                 name,
		Email:                name + "@example.com",
		Available:            true,
		NotificationsEnabled: true,
	})
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}
