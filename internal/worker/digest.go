package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"kkn/internal/approval"
	"kkn/internal/roster"
	"kkn/internal/summary"
	"kkn/internal/week"
)

// DefaultDigestSchedule runs every Monday at 01:00.
const DefaultDigestSchedule = "0 1 * * 1"

// TeamLister enumerates teams.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]roster.Team, error)
}

// Summarizer builds weekly summaries.
type Summarizer interface {
	Summarize(ctx context.Context, team, label string) (summary.Summary, error)
}

// PendingCount is the number of students of a team still awaiting review.
type PendingCount struct {
	Team    string
	Week    string
	Pending int
}

// Digest reports which teams still have unreviewed students for the previous
// week.
type Digest struct {
	teams     TeamLister
	summaries Summarizer
	now       func() time.Time
	log       *logrus.Entry
}

// NewDigest creates a digest job.
func NewDigest(teams TeamLister, summaries Summarizer) *Digest {
	return &Digest{
		teams:     teams,
		summaries: summaries,
		now:       time.Now,
		log:       logrus.WithField("component", "digest"),
	}
}

// Collect counts pending students per team for the week before now.
func (d *Digest) Collect(ctx context.Context) ([]PendingCount, error) {
	label := week.Current(d.now()).Shift(-1).String()
	teams, err := d.teams.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	var out []PendingCount
	for _, t := range teams {
		s, err := d.summaries.Summarize(ctx, t.ID, label)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, st := range s.Students {
			if st.ApprovalStatus == approval.StatusPending {
				n++
			}
		}
		if n > 0 {
			out = append(out, PendingCount{Team: t.ID, Week: label, Pending: n})
		}
	}
	return out, nil
}

// Run logs the digest once.
func (d *Digest) Run(ctx context.Context) {
	counts, err := d.Collect(ctx)
	if err != nil {
		d.log.WithError(err).Error("pending digest failed")
		return
	}
	for _, c := range counts {
		d.log.WithFields(logrus.Fields{"team": c.Team, "week": c.Week, "pending": c.Pending}).
			Warn("weekly attendance awaiting review")
	}
	d.log.WithField("teams", len(counts)).Info("pending digest finished")
}

// Schedule registers the digest on a cron scheduler. The caller starts and
// stops the scheduler.
func (d *Digest) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() { d.Run(ctx) })
	return err
}
