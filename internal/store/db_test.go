package store

import (
	"context"
	"testing"
)

func TestRebind(t *testing.T) {
	pg := &DB{Driver: DriverPostgres}
	got := pg.Rebind("SELECT 1 FROM attendance WHERE team_id = ? AND date BETWEEN ? AND ?")
	want := "SELECT 1 FROM attendance WHERE team_id = $1 AND date BETWEEN $2 AND $3"
	if got != want {
		t.Fatalf("unexpected rebind:\n got %s\nwant %s", got, want)
	}

	lite := &DB{Driver: DriverSQLite}
	if q := "SELECT ? "; lite.Rebind(q) != q {
		t.Fatalf("sqlite queries must stay untouched")
	}
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	if _, err := NewDB("oracle", "whatever"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := NewDB(DriverSQLite, "file:migrate_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	for _, table := range []string{"users", "teams", "team_members", "attendance", "weekly_approvals", "weekly_approval_history"} {
		var name string
		err := db.Client.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
