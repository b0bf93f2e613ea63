// Package storetest opens migrated in-memory databases for repository tests.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"kkn/internal/store"
)

// User is a row of the users table.
type User struct {
	ID   string
	Name string
}

// Team describes a team and its roster for seeding.
type Team struct {
	ID         string
	Name       string
	Supervisor string
	Leader     User
	Members    []User
}

// Open returns a fresh migrated SQLite database closed at test cleanup.
func Open(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.NewDB(store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedTeam inserts the team, its users and memberships in roster order.
func SeedTeam(t testing.TB, db *store.DB, team Team) {
	t.Helper()
	ctx := context.Background()
	users := append([]User{team.Leader}, team.Members...)
	for _, u := range users {
		if _, err := db.Client.ExecContext(ctx,
			`INSERT INTO users (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, u.ID, u.Name); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	if _, err := db.Client.ExecContext(ctx,
		`INSERT INTO teams (id, name, leader_id, supervisor_id) VALUES (?, ?, ?, ?)`,
		team.ID, team.Name, team.Leader.ID, team.Supervisor); err != nil {
		t.Fatalf("seed team %s: %v", team.ID, err)
	}
	for i, m := range team.Members {
		if _, err := db.Client.ExecContext(ctx,
			`INSERT INTO team_members (team_id, user_id, position) VALUES (?, ?, ?)`, team.ID, m.ID, i); err != nil {
			t.Fatalf("seed member %s: %v", m.ID, err)
		}
	}
}
