package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kkn/internal/apperror"
	"kkn/internal/store/storetest"
)

func TestInsertEnforcesUniqueness(t *testing.T) {
	db := storetest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := Record{Team: "T1", User: "alice", Date: "2024-03-04", Status: StatusPresent}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	second := first
	second.Status = StatusAlpha
	if err := repo.Insert(ctx, second); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := repo.Get(ctx, "T1", "alice", "2024-03-04")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Status != StatusPresent {
		t.Fatalf("first writer must win, got %s", got.Status)
	}

	var n int
	if err := db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("expected exactly one row, got %d (%v)", n, err)
	}
}

func TestConcurrentInsertsOneWinner(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Insert(ctx, Record{Team: "T1", User: "bob", Date: "2024-03-05", Status: StatusPresent})
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, apperror.ErrConflict):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected one successful insert, got %d", ok)
	}
}

func TestUpsertKeepsCaptureTime(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()
	captured := time.Date(2024, 3, 4, 7, 30, 0, 0, time.UTC)
	lat, lng := -7.25, 112.75

	if err := repo.Insert(ctx, Record{Team: "T1", User: "alice", Date: "2024-03-04", Timestamp: captured,
		Status: StatusPresent, Latitude: &lat, Longitude: &lng}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Upsert(ctx, Record{Team: "T1", User: "alice", Date: "2024-03-04",
		Status: StatusPermission, Excuse: "sick", UpdatedBy: "dpl-1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Get(ctx, "T1", "alice", "2024-03-04")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Status != StatusPermission || got.Excuse != "sick" || got.UpdatedBy != "dpl-1" {
		t.Fatalf("correction not applied: %+v", got)
	}
	if !got.Timestamp.Equal(captured) {
		t.Fatalf("capture time changed: %s", got.Timestamp)
	}
	if got.Latitude == nil || *got.Latitude != lat || got.UpdatedAt == nil {
		t.Fatalf("expected coordinates kept and updated_at set: %+v", got)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	got, err := repo.Get(context.Background(), "T1", "nobody", "2024-03-04")
	if err != nil || got != nil {
		t.Fatalf("expected nil record, got %+v %v", got, err)
	}
}

func TestListRangeFiltersByTeamAndDate(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()
	for _, rec := range []Record{
		{Team: "T1", User: "alice", Date: "2024-03-03", Status: StatusPresent},
		{Team: "T1", User: "alice", Date: "2024-03-04", Status: StatusPresent},
		{Team: "T1", User: "bob", Date: "2024-03-10", Status: StatusAlpha},
		{Team: "T1", User: "bob", Date: "2024-03-11", Status: StatusPresent},
		{Team: "T2", User: "alice", Date: "2024-03-05", Status: StatusPresent},
	} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert %+v: %v", rec, err)
		}
	}
	got, err := repo.ListRange(ctx, "T1", "2024-03-04", "2024-03-10")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].User != "alice" || got[1].User != "bob" {
		t.Fatalf("unexpected records %+v", got)
	}
}
