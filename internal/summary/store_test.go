package summary_test

import (
	"context"
	"testing"
	"time"

	"kkn/internal/approval"
	"kkn/internal/attendance"
	"kkn/internal/auth"
	"kkn/internal/roster"
	"kkn/internal/store/storetest"
	"kkn/internal/summary"
)

func TestSummarizeAgainstSQLite(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedTeam(t, db, storetest.Team{
		ID: "T1", Name: "Desa Sukamaju", Supervisor: "dpl-1",
		Leader:  storetest.User{ID: "alice", Name: "Alice"},
		Members: []storetest.User{{ID: "bob", Name: "Bob"}},
	})
	ctx := context.Background()
	rosters := roster.NewRepository(db)
	records := attendance.NewRepository(db)
	for _, d := range []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08"} {
		if err := records.Insert(ctx, attendance.Record{Team: "T1", User: "alice", Date: d, Status: attendance.StatusPresent}); err != nil {
			t.Fatalf("insert %s: %v", d, err)
		}
	}
	ledger := approval.NewLedger(approval.NewRepository(db), rosters, auth.NewAuthorizer(nil, rosters), nil, nil)
	agg := summary.NewAggregator(rosters, records, ledger, nil).
		WithClock(func() time.Time { return time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC) })

	s, err := agg.Summarize(ctx, "T1", "2024-W10")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Students[0].PresentCount != 5 || s.Students[1].PresentCount != 0 {
		t.Fatalf("unexpected counts %+v", s.Students)
	}

	if _, err := ledger.Decide(ctx, auth.Principal{UserID: "dpl-1"},
		approval.Decision{Team: "T1", Student: "alice", Week: "2024-W10", Status: "approved"}); err != nil {
		t.Fatalf("decide: %v", err)
	}
	s, _ = agg.Summarize(ctx, "T1", "2024-W10")
	if s.Students[0].ApprovalStatus != approval.StatusApproved || s.Students[1].ApprovalStatus != approval.StatusPending {
		t.Fatalf("unexpected statuses %s/%s", s.Students[0].ApprovalStatus, s.Students[1].ApprovalStatus)
	}
}
