package roster_test

import (
	"context"
	"errors"
	"testing"

	"kkn/internal/apperror"
	"kkn/internal/roster"
	"kkn/internal/store/storetest"
)

func TestOrderedLeaderFirstWithoutDuplicates(t *testing.T) {
	r := roster.Roster{
		Leader:  roster.Member{UserID: "alice", Name: "Alice"},
		Members: []roster.Member{{UserID: "carol"}, {UserID: "alice"}, {UserID: "bob"}},
	}
	got := r.Ordered()
	want := []string{"alice", "carol", "bob"}
	if len(got) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].UserID != id {
			t.Fatalf("position %d: want %s got %s", i, id, got[i].UserID)
		}
	}
	if !r.Has("bob") || r.Has("mallory") {
		t.Fatalf("unexpected membership result")
	}
}

func TestRepositoryGetTeamRoster(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedTeam(t, db, storetest.Team{
		ID: "T1", Name: "Desa Sukamaju", Supervisor: "dpl-1",
		Leader:  storetest.User{ID: "alice", Name: "Alice"},
		Members: []storetest.User{{ID: "zed", Name: "Zed"}, {ID: "bob", Name: ""}},
	})
	repo := roster.NewRepository(db)

	got, err := repo.GetTeamRoster(context.Background(), "T1")
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if got.SupervisorID != "dpl-1" || got.Leader.Name != "Alice" || got.TeamName != "Desa Sukamaju" {
		t.Fatalf("unexpected roster header %+v", got)
	}
	if len(got.Members) != 2 || got.Members[0].UserID != "zed" || got.Members[1].UserID != "bob" {
		t.Fatalf("members must keep stored order, got %+v", got.Members)
	}
	if got.Members[1].Name != "bob" {
		t.Fatalf("blank names fall back to the user id, got %q", got.Members[1].Name)
	}

	_, err = repo.GetTeamRoster(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepositoryListTeamsByName(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedTeam(t, db, storetest.Team{ID: "T2", Name: "Zeta", Leader: storetest.User{ID: "u1", Name: "U1"}})
	storetest.SeedTeam(t, db, storetest.Team{ID: "T1", Name: "Alpha", Leader: storetest.User{ID: "u2", Name: "U2"}})

	teams, err := roster.NewRepository(db).ListTeams(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(teams) != 2 || teams[0].Name != "Alpha" || teams[1].Name != "Zeta" {
		t.Fatalf("unexpected order %+v", teams)
	}
}
