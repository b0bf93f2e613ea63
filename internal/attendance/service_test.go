package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kkn/internal/apperror"
	"kkn/internal/auth"
	"kkn/internal/queue"
	"kkn/internal/roster"
	"kkn/internal/store/storetest"
	"kkn/internal/week"
)

type recordingCache struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (c *recordingCache) Invalidate(_ context.Context, team string, labels []week.Label) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string][]string{}
	}
	for _, l := range labels {
		c.calls[team] = append(c.calls[team], l.String())
	}
	return nil
}

type recordingQueue struct {
	msgs []queue.Message
}

func (q *recordingQueue) Publish(_ context.Context, msg queue.Message) error {
	q.msgs = append(q.msgs, msg)
	return nil
}

type fixture struct {
	svc   *Service
	cache *recordingCache
	queue *recordingQueue
}

func newFixture(t *testing.T, now time.Time) fixture {
	t.Helper()
	db := storetest.Open(t)
	storetest.SeedTeam(t, db, storetest.Team{
		ID: "T1", Name: "Desa Sukamaju", Supervisor: "dpl-1",
		Leader:  storetest.User{ID: "alice", Name: "Alice"},
		Members: []storetest.User{{ID: "bob", Name: "Bob"}},
	})
	rosters := roster.NewRepository(db)
	cache := &recordingCache{}
	q := &recordingQueue{}
	authz := auth.NewAuthorizer([]string{"admin@kkn.ac.id"}, rosters)
	svc := NewService(NewRepository(db), rosters, authz, cache, q).WithClock(func() time.Time { return now })
	return fixture{svc: svc, cache: cache, queue: q}
}

func TestCheckInRules(t *testing.T) {
	now := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	lat := 1.5
	cases := []struct {
		name string
		p    auth.Principal
		in   CheckInInput
		want *apperror.Error
	}{
		{"present today", auth.Principal{UserID: "alice"}, CheckInInput{Team: "T1", Status: "present"}, nil},
		{"past date", auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Date: "2024-03-04", Status: "Present"}, nil},
		{"future date", auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Date: "2024-03-07", Status: "present"}, apperror.ErrValidation},
		{"permission without excuse", auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Status: "permission", Excuse: "  "}, apperror.ErrValidation},
		{"unknown status", auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Status: "late"}, apperror.ErrValidation},
		{"half a coordinate", auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Status: "present", Latitude: &lat}, apperror.ErrValidation},
		{"bad date", auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Date: "06/03/2024", Status: "present"}, apperror.ErrParse},
		{"not on roster", auth.Principal{UserID: "mallory"}, CheckInInput{Team: "T1", Status: "present"}, apperror.ErrPermission},
		{"unknown team", auth.Principal{UserID: "alice"}, CheckInInput{Team: "T9", Status: "present"}, apperror.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, now)
			rec, err := f.svc.CheckIn(context.Background(), tc.p, tc.in)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if rec.User != tc.p.UserID {
					t.Fatalf("record must belong to the caller, got %s", rec.User)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want.Kind, err)
			}
		})
	}
}

func TestCheckInSideEffects(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	alice := auth.Principal{UserID: "alice"}

	rec, err := f.svc.CheckIn(ctx, alice, CheckInInput{Team: "T1", Status: "present"})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if rec.Date != "2024-03-06" {
		t.Fatalf("date should default to today, got %s", rec.Date)
	}
	if got := f.cache.calls["T1"]; len(got) != 1 || got[0] != "2024-W10" {
		t.Fatalf("expected invalidation of 2024-W10, got %v", got)
	}
	if len(f.queue.msgs) != 1 || f.queue.msgs[0].Type != queue.TypeAttendanceRecorded {
		t.Fatalf("expected one recorded event, got %+v", f.queue.msgs)
	}

	if _, err := f.svc.CheckIn(ctx, alice, CheckInInput{Team: "T1", Status: "alpha"}); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second check-in must conflict, got %v", err)
	}
	if len(f.queue.msgs) != 1 {
		t.Fatalf("conflicting write must not publish")
	}
}

func TestAmendRequiresReviewer(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	rec := Record{Team: "T1", User: "bob", Date: "2024-03-05", Status: StatusPermission, Excuse: "family event"}

	if _, err := f.svc.Amend(ctx, auth.Principal{UserID: "alice"}, rec); !errors.Is(err, apperror.ErrPermission) {
		t.Fatalf("student must not amend, got %v", err)
	}
	got, err := f.svc.Amend(ctx, auth.Principal{UserID: "dpl-1"}, rec)
	if err != nil {
		t.Fatalf("supervisor amend: %v", err)
	}
	if got.Status != StatusPermission || got.UpdatedBy != "dpl-1" {
		t.Fatalf("unexpected amended record %+v", got)
	}

	rec.Status = StatusPresent
	rec.Excuse = ""
	got, err = f.svc.Amend(ctx, auth.Principal{UserID: "x", Email: "ADMIN@kkn.ac.id"}, rec)
	if err != nil || got.Status != StatusPresent {
		t.Fatalf("admin amend: %+v %v", got, err)
	}

	rec.User = "mallory"
	if _, err := f.svc.Amend(ctx, auth.Principal{UserID: "dpl-1"}, rec); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("amending a non-member must be not found, got %v", err)
	}
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	if _, err := f.svc.CheckIn(ctx, auth.Principal{UserID: "bob"}, CheckInInput{Team: "T1", Status: "present"}); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.svc.Get(ctx, auth.Principal{UserID: "alice"}, "T1", "bob", "2024-03-06"); err != nil {
		t.Fatalf("teammate should read: %v", err)
	}
	if _, err := f.svc.Get(ctx, auth.Principal{UserID: "dpl-1"}, "T1", "bob", "2024-03-05"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("missing day should be not found, got %v", err)
	}
	if _, err := f.svc.Get(ctx, auth.Principal{UserID: "mallory"}, "T1", "bob", "2024-03-06"); !errors.Is(err, apperror.ErrPermission) {
		t.Fatalf("outsider should be rejected, got %v", err)
	}
}

func TestImportReportsPerLine(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	admin := auth.Principal{UserID: "root", Role: auth.RoleAdmin}

	rows := []ImportRow{
		{Line: 2, Team: "T1", User: "alice", Date: "2024-03-04", Status: "present"},
		{Line: 3, Team: "T1", User: "alice", Date: "2024-03-04", Status: "alpha"},
		{Line: 4, Team: "T1", User: "bob", Date: "2024-03-05", Status: "permission"},
		{Line: 5, Team: "T9", User: "bob", Date: "2024-03-05", Status: "present"},
		{Line: 6, Team: "T1", User: "bob", Date: "2024-03-09", Status: "present"},
		{Line: 7, Team: "T1", User: "bob", Date: "2024-03-06", Status: "permission", Excuse: "sick"},
	}
	res, err := f.svc.Import(ctx, admin, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Inserted != 2 || res.Conflicts != 1 || len(res.Errors) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	for i, line := range []int{4, 5, 6} {
		if res.Errors[i].Line != line {
			t.Fatalf("error %d: want line %d, got %d", i, line, res.Errors[i].Line)
		}
	}

	if _, err := f.svc.Import(ctx, auth.Principal{UserID: "dpl-1"}, rows); !errors.Is(err, apperror.ErrPermission) {
		t.Fatalf("non-admin import must be rejected, got %v", err)
	}
}
