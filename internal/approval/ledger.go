// Package approval holds the supervisor's weekly sign-off per student.
package approval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kkn/internal/apperror"
	"kkn/internal/auth"
	"kkn/internal/metrics"
	"kkn/internal/queue"
	"kkn/internal/roster"
	"kkn/internal/week"
)

// Status of a weekly approval. Approved and rejected may be swapped freely.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseDecision accepts the statuses a reviewer may set.
func ParseDecision(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", apperror.Validation("decision must be approved or rejected, got %q", s)
	}
}

// Approval is the current decision for a student's week.
type Approval struct {
	Team       string     `json:"team"`
	Student    string     `json:"student"`
	Week       string     `json:"week"`
	Status     Status     `json:"status"`
	Notes      string     `json:"notes"`
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// HistoryEntry is one logged decision.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Team       string    `json:"team"`
	Student    string    `json:"student"`
	Week       string    `json:"week"`
	Status     Status    `json:"status"`
	Notes      string    `json:"notes"`
	ReviewedBy string    `json:"reviewedBy"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// Decision is a reviewer's request to set a status.
type Decision struct {
	Team    string
	Student string
	Week    string
	Status  string
	Notes   string
}

// Invalidator drops cached summaries of a team for the given weeks.
type Invalidator interface {
	Invalidate(ctx context.Context, team string, labels []week.Label) error
}

// Ledger applies decisions and answers status queries.
type Ledger struct {
	repo    *Repository
	rosters roster.Source
	authz   *auth.Authorizer
	cache   Invalidator
	events  queue.Publisher
	now     func() time.Time
	log     *logrus.Entry
}

// NewLedger wires a ledger. cache and events may be nil.
func NewLedger(repo *Repository, rosters roster.Source, authz *auth.Authorizer, cache Invalidator, events queue.Publisher) *Ledger {
	return &Ledger{
		repo:    repo,
		rosters: rosters,
		authz:   authz,
		cache:   cache,
		events:  events,
		now:     time.Now,
		log:     logrus.WithField("component", "approval"),
	}
}

// GetStatus returns the current status, pending when nothing was decided.
func (l *Ledger) GetStatus(ctx context.Context, team, student, label string) (Status, error) {
	wk, err := week.Parse(label)
	if err != nil {
		return "", err
	}
	a, err := l.repo.Get(ctx, team, student, wk.String())
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

// StatusesForWeek satisfies the summary's status lookup.
func (l *Ledger) StatusesForWeek(ctx context.Context, team string, wk week.Label) (map[string]Status, error) {
	return l.repo.StatusesForWeek(ctx, team, wk.String())
}

// Get returns the full approval for a caller allowed to see the team.
func (l *Ledger) Get(ctx context.Context, p auth.Principal, team, student, label string) (Approval, error) {
	wk, err := week.Parse(label)
	if err != nil {
		return Approval{}, err
	}
	if err := l.authz.RequireViewer(ctx, p, team); err != nil {
		return Approval{}, err
	}
	return l.repo.Get(ctx, team, student, wk.String())
}

// Decide records a reviewer's decision. Repeating the current decision is a
// no-op; a different status overwrites the previous one.
func (l *Ledger) Decide(ctx context.Context, p auth.Principal, d Decision) (Approval, error) {
	wk, err := week.Parse(d.Week)
	if err != nil {
		return Approval{}, err
	}
	status, err := ParseDecision(d.Status)
	if err != nil {
		return Approval{}, err
	}
	if err := l.authz.RequireReviewer(ctx, p, d.Team); err != nil {
		return Approval{}, err
	}
	ros, err := l.rosters.GetTeamRoster(ctx, d.Team)
	if err != nil {
		return Approval{}, err
	}
	if !ros.Has(d.Student) {
		return Approval{}, apperror.NotFound("student %s is not on team %s", d.Student, d.Team)
	}

	now := l.now().UTC()
	a := Approval{
		Team:       d.Team,
		Student:    d.Student,
		Week:       wk.String(),
		Status:     status,
		Notes:      strings.TrimSpace(d.Notes),
		ReviewedBy: p.UserID,
		ReviewedAt: &now,
	}
	changed, err := l.repo.Upsert(ctx, a)
	if err != nil {
		return Approval{}, err
	}
	fields := logrus.Fields{"team": a.Team, "student": a.Student, "week": a.Week, "status": a.Status, "by": a.ReviewedBy}
	if !changed {
		l.log.WithFields(fields).Debug("decision unchanged")
		return l.repo.Get(ctx, a.Team, a.Student, a.Week)
	}

	metrics.ApprovalDecisions.WithLabelValues(string(status)).Inc()
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, a.Team, []week.Label{wk}); err != nil {
			l.log.WithFields(fields).WithError(err).Error("summary cache invalidation failed")
		}
	}
	l.publish(ctx, HistoryEntry{
		ID:         uuid.NewString(),
		Team:       a.Team,
		Student:    a.Student,
		Week:       a.Week,
		Status:     a.Status,
		Notes:      a.Notes,
		ReviewedBy: a.ReviewedBy,
		DecidedAt:  now,
	}, fields)
	l.log.WithFields(fields).Info("weekly attendance decided")
	return a, nil
}

// History lists logged decisions for a caller allowed to see the team.
func (l *Ledger) History(ctx context.Context, p auth.Principal, team, student, label string) ([]HistoryEntry, error) {
	wk, err := week.Parse(label)
	if err != nil {
		return nil, err
	}
	if err := l.authz.RequireViewer(ctx, p, team); err != nil {
		return nil, err
	}
	return l.repo.History(ctx, team, student, wk.String())
}

// RecordHistory stores a decided event delivered by the queue.
func (l *Ledger) RecordHistory(ctx context.Context, msg queue.Message) error {
	var e HistoryEntry
	if err := msg.Decode(&e); err != nil {
		return apperror.Wrap(apperror.KindParse, err, "decode decision event")
	}
	if e.Team == "" || e.Student == "" || e.Week == "" {
		return apperror.Validation("decision event without key")
	}
	return l.repo.AppendHistory(ctx, e)
}

func (l *Ledger) publish(ctx context.Context, e HistoryEntry, fields logrus.Fields) {
	if l.events == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypeApprovalDecided, e)
	if err == nil {
		err = l.events.Publish(ctx, msg)
	}
	if err != nil {
		l.log.WithFields(fields).WithError(err).Warn("queue publish failed")
	}
}
