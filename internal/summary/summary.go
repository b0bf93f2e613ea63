// Package summary folds a team's daily records for one week into a row per
// student and merges in the weekly approval status.
package summary

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"kkn/internal/approval"
	"kkn/internal/attendance"
	"kkn/internal/metrics"
	"kkn/internal/roster"
	"kkn/internal/week"
)

// DailyRecord is one cell of the weekly grid. Status is empty for dates after
// today. Implicit marks a past day without a stored record, counted as alpha.
// Hidden cells carry only their date.
type DailyRecord struct {
	Date      string            `json:"date"`
	Status    attendance.Status `json:"status,omitempty"`
	Excuse    string            `json:"excuse,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Implicit  bool              `json:"implicit,omitempty"`
	Hidden    bool              `json:"hidden,omitempty"`
}

// StudentRow is one student's week.
type StudentRow struct {
	User           string          `json:"user"`
	UserName       string          `json:"userName"`
	DailyRecords   []DailyRecord   `json:"dailyRecords"`
	PresentCount   int             `json:"presentCount"`
	ApprovalStatus approval.Status `json:"approvalStatus"`
}

// Summary is the derived weekly attendance of a team.
type Summary struct {
	Team      string       `json:"team"`
	TeamName  string       `json:"teamName"`
	Week      string       `json:"week"`
	StartDate string       `json:"startDate"`
	EndDate   string       `json:"endDate"`
	Dates     []string     `json:"dates"`
	Students  []StudentRow `json:"students"`
}

// HidePending returns a copy of s in which the days of students whose week is
// still pending carry no status, excuse or timestamp. Totals are kept.
func (s Summary) HidePending() Summary {
	out := s
	out.Students = make([]StudentRow, len(s.Students))
	for i, st := range s.Students {
		if st.ApprovalStatus == approval.StatusPending {
			days := make([]DailyRecord, len(st.DailyRecords))
			for j, d := range st.DailyRecords {
				days[j] = DailyRecord{Date: d.Date, Hidden: true}
			}
			st.DailyRecords = days
		}
		out.Students[i] = st
	}
	return out
}

// RecordReader loads stored records of a team in an inclusive date range.
type RecordReader interface {
	ListRange(ctx context.Context, team, from, to string) ([]attendance.Record, error)
}

// StatusReader loads stored approval statuses of a team for a week.
type StatusReader interface {
	StatusesForWeek(ctx context.Context, team string, wk week.Label) (map[string]approval.Status, error)
}

// Aggregator builds weekly summaries.
type Aggregator struct {
	rosters  roster.Source
	records  RecordReader
	statuses StatusReader
	cache    Cache
	now      func() time.Time
	log      *logrus.Entry
}

// NewAggregator wires an aggregator. A nil cache disables caching.
func NewAggregator(rosters roster.Source, records RecordReader, statuses StatusReader, cache Cache) *Aggregator {
	if cache == nil {
		cache = NopCache{}
	}
	return &Aggregator{
		rosters:  rosters,
		records:  records,
		statuses: statuses,
		cache:    cache,
		now:      time.Now,
		log:      logrus.WithField("component", "summary"),
	}
}

// WithClock replaces the clock that decides which dates are in the future.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Summarize returns the weekly summary of team for the week label.
func (a *Aggregator) Summarize(ctx context.Context, team, label string) (Summary, error) {
	wk, err := week.Parse(label)
	if err != nil {
		return Summary{}, err
	}
	if s, ok := a.cache.Get(ctx, team, wk); ok {
		metrics.SummaryCache.WithLabelValues("hit").Inc()
		return *s, nil
	}
	metrics.SummaryCache.WithLabelValues("miss").Inc()

	// read before building so a write that lands mid-build voids the Set
	gen, cacheable := a.cache.Generation(ctx, team, wk)

	started := time.Now()
	s, err := a.build(ctx, team, wk)
	if err != nil {
		return Summary{}, err
	}
	metrics.SummariesComputed.Inc()
	metrics.SummarizeDuration.Observe(time.Since(started).Seconds())
	if cacheable {
		a.cache.Set(ctx, s, gen)
	}
	return s, nil
}

func (a *Aggregator) build(ctx context.Context, team string, wk week.Label) (Summary, error) {
	ros, err := a.rosters.GetTeamRoster(ctx, team)
	if err != nil {
		return Summary{}, err
	}
	dates := wk.DateStrings()
	records, err := a.records.ListRange(ctx, team, dates[0], dates[len(dates)-1])
	if err != nil {
		return Summary{}, err
	}
	statuses, err := a.statuses.StatusesForWeek(ctx, team, wk)
	if err != nil {
		return Summary{}, err
	}

	byKey := latestByUserDate(records)
	today := week.Date(a.now()).Format(week.DateLayout)

	members := ros.Ordered()
	s := Summary{
		Team:      ros.TeamID,
		TeamName:  ros.TeamName,
		Week:      wk.String(),
		StartDate: dates[0],
		EndDate:   dates[len(dates)-1],
		Dates:     dates,
		Students:  make([]StudentRow, 0, len(members)),
	}
	for _, m := range members {
		row := StudentRow{
			User:           m.UserID,
			UserName:       m.Name,
			DailyRecords:   make([]DailyRecord, 0, len(dates)),
			ApprovalStatus: approval.StatusPending,
		}
		if st, ok := statuses[m.UserID]; ok {
			row.ApprovalStatus = st
		}
		for _, d := range dates {
			cell := DailyRecord{Date: d}
			if rec, ok := byKey[userDate{m.UserID, d}]; ok {
				ts := rec.Timestamp
				cell.Status = rec.Status
				cell.Excuse = rec.Excuse
				cell.Timestamp = &ts
			} else if d <= today {
				cell.Status = attendance.StatusAlpha
				cell.Implicit = true
			}
			if cell.Status == attendance.StatusPresent {
				row.PresentCount++
			}
			row.DailyRecords = append(row.DailyRecords, cell)
		}
		s.Students = append(s.Students, row)
	}

	a.log.WithFields(logrus.Fields{"team": team, "week": s.Week, "students": len(s.Students), "records": len(records)}).
		Debug("summary built")
	return s, nil
}

type userDate struct {
	user string
	date string
}

// latestByUserDate keeps one record per user and date. Rows that predate the
// unique key may hold duplicates; the latest capture wins.
func latestByUserDate(records []attendance.Record) map[userDate]attendance.Record {
	out := make(map[userDate]attendance.Record, len(records))
	for _, rec := range records {
		k := userDate{rec.User, rec.Date}
		if prev, ok := out[k]; ok && prev.Timestamp.After(rec.Timestamp) {
			continue
		}
		out[k] = rec
	}
	return out
}
