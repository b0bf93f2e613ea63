package worker

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"kkn/internal/approval"
	"kkn/internal/roster"
	"kkn/internal/summary"
)

type staticTeams []roster.Team

func (s staticTeams) ListTeams(context.Context) ([]roster.Team, error) { return s, nil }

type summariesByTeam map[string][]approval.Status

func (s summariesByTeam) Summarize(_ context.Context, team, label string) (summary.Summary, error) {
	out := summary.Summary{Team: team, Week: label}
	for _, st := range s[team] {
		out.Students = append(out.Students, summary.StudentRow{ApprovalStatus: st})
	}
	return out, nil
}

func TestDigestCollectsPreviousWeek(t *testing.T) {
	d := NewDigest(
		staticTeams{{ID: "T1"}, {ID: "T2"}},
		summariesByTeam{
			"T1": {approval.StatusPending, approval.StatusApproved, approval.StatusPending},
			"T2": {approval.StatusRejected},
		},
	)
	d.now = func() time.Time { return time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC) }

	got, err := d.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || got[0].Team != "T1" || got[0].Pending != 2 || got[0].Week != "2024-W10" {
		t.Fatalf("unexpected digest %+v", got)
	}
}

func TestDigestScheduleRejectsBadSpec(t *testing.T) {
	d := NewDigest(staticTeams{}, summariesByTeam{})
	c := cron.New()
	if err := d.Schedule(context.Background(), c, DefaultDigestSchedule); err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	if err := d.Schedule(context.Background(), c, "every monday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
