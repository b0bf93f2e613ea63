package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kkn/internal/apperror"
	"kkn/internal/auth"
	"kkn/internal/metrics"
	"kkn/internal/queue"
	"kkn/internal/roster"
	"kkn/internal/week"
)

// Invalidator drops cached summaries of a team for the given weeks.
type Invalidator interface {
	Invalidate(ctx context.Context, team string, labels []week.Label) error
}

// RecordedEvent is published after every successful write.
type RecordedEvent struct {
	Team   string `json:"team"`
	User   string `json:"user"`
	Date   string `json:"date"`
	Status Status `json:"status"`
	Source string `json:"source"`
	By     string `json:"by"`
}

// CheckInInput is what a student submits for themself.
type CheckInInput struct {
	Team      string
	Date      string
	Status    string
	Excuse    string
	Latitude  *float64
	Longitude *float64
	PhotoURL  string
}

// ImportRow is one parsed line of a bulk import file.
type ImportRow struct {
	Line   int
	Team   string
	User   string
	Date   string
	Status string
	Excuse string
}

// ImportError describes a rejected import line.
type ImportError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Inserted  int           `json:"inserted"`
	Conflicts int           `json:"conflicts"`
	Errors    []ImportError `json:"errors"`
}

// Service coordinates attendance writes and their side effects.
type Service struct {
	repo    *Repository
	rosters roster.Source
	authz   *auth.Authorizer
	cache   Invalidator
	events  queue.Publisher
	now     func() time.Time
	log     *logrus.Entry
}

// NewService wires the service. cache and events may be nil.
func NewService(repo *Repository, rosters roster.Source, authz *auth.Authorizer, cache Invalidator, events queue.Publisher) *Service {
	return &Service{
		repo:    repo,
		rosters: rosters,
		authz:   authz,
		cache:   cache,
		events:  events,
		now:     time.Now,
		log:     logrus.WithField("component", "attendance"),
	}
}

// WithClock replaces the clock used for "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CheckIn records the caller's own attendance for a team. The date defaults
// to today and may not lie in the future.
func (s *Service) CheckIn(ctx context.Context, p auth.Principal, in CheckInInput) (Record, error) {
	ros, err := s.rosters.GetTeamRoster(ctx, in.Team)
	if err != nil {
		return Record{}, err
	}
	if !ros.Has(p.UserID) {
		return Record{}, apperror.Permission("user %s is not on team %s", p.UserID, in.Team)
	}

	now := s.now()
	today := week.Date(now).Format(week.DateLayout)
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = today
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Team:      in.Team,
		User:      p.UserID,
		Date:      date,
		Timestamp: now.UTC(),
		Status:    status,
		Excuse:    strings.TrimSpace(in.Excuse),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		PhotoURL:  in.PhotoURL,
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	if rec.Date > today {
		return Record{}, apperror.Validation("cannot check in for future date %s", rec.Date)
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			metrics.CheckInConflicts.Inc()
		}
		return Record{}, err
	}
	metrics.CheckIns.WithLabelValues(string(rec.Status), "checkin").Inc()
	s.afterWrite(ctx, rec, "checkin", p.UserID)
	return rec, nil
}

// Amend corrects or creates a record on behalf of a student. Only the team's
// supervisor or an admin may call it.
func (s *Service) Amend(ctx context.Context, p auth.Principal, rec Record) (Record, error) {
	if err := s.authz.RequireReviewer(ctx, p, rec.Team); err != nil {
		return Record{}, err
	}
	ros, err := s.rosters.GetTeamRoster(ctx, rec.Team)
	if err != nil {
		return Record{}, err
	}
	if !ros.Has(rec.User) {
		return Record{}, apperror.NotFound("student %s is not on team %s", rec.User, rec.Team)
	}
	status, err := ParseStatus(string(rec.Status))
	if err != nil {
		return Record{}, err
	}
	rec.Status = status
	rec.Excuse = strings.TrimSpace(rec.Excuse)
	rec.UpdatedBy = p.UserID
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return Record{}, err
	}
	metrics.CheckIns.WithLabelValues(string(rec.Status), "amend").Inc()
	s.afterWrite(ctx, rec, "amend", p.UserID)

	stored, err := s.repo.Get(ctx, rec.Team, rec.User, rec.Date)
	if err != nil || stored == nil {
		return rec, err
	}
	return *stored, nil
}

// Get returns a single record visible to the caller.
func (s *Service) Get(ctx context.Context, p auth.Principal, team, user, date string) (Record, error) {
	if err := s.authz.RequireViewer(ctx, p, team); err != nil {
		return Record{}, err
	}
	if _, err := week.ParseDate(date); err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Get(ctx, team, user, date)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, apperror.NotFound("no attendance for %s on %s in team %s", user, date, team)
	}
	return *rec, nil
}

// Import inserts parsed rows one by one. Bad rows are reported with their
// line number and never abort the import; existing records are counted as
// conflicts and left untouched.
func (s *Service) Import(ctx context.Context, p auth.Principal, rows []ImportRow) (ImportResult, error) {
	if err := s.authz.RequireAdmin(p); err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Errors: []ImportError{}}
	rosters := map[string]*roster.Roster{}
	today := week.Date(s.now()).Format(week.DateLayout)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fail := func(err error) {
			res.Errors = append(res.Errors, ImportError{Line: row.Line, Error: apperror.Message(err)})
		}

		ros, ok := rosters[row.Team]
		if !ok {
			r, err := s.rosters.GetTeamRoster(ctx, row.Team)
			if err != nil && !errors.Is(err, apperror.ErrNotFound) {
				return res, err
			}
			ros = r
			rosters[row.Team] = r
		}
		if ros == nil {
			fail(apperror.NotFound("team %q not found", row.Team))
			continue
		}
		if !ros.Has(row.User) {
			fail(apperror.NotFound("student %s is not on team %s", row.User, row.Team))
			continue
		}
		status, err := ParseStatus(row.Status)
		if err != nil {
			fail(err)
			continue
		}
		rec := Record{
			Team:      row.Team,
			User:      row.User,
			Date:      strings.TrimSpace(row.Date),
			Timestamp: s.now().UTC(),
			Status:    status,
			Excuse:    strings.TrimSpace(row.Excuse),
			UpdatedBy: p.UserID,
		}
		if err := rec.Validate(); err != nil {
			fail(err)
			continue
		}
		if rec.Date > today {
			fail(apperror.Validation("date %s is in the future", rec.Date))
			continue
		}
		if err := s.repo.Insert(ctx, rec); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				metrics.CheckInConflicts.Inc()
				res.Conflicts++
				continue
			}
			return res, err
		}
		res.Inserted++
		metrics.CheckIns.WithLabelValues(string(rec.Status), "import").Inc()
		s.afterWrite(ctx, rec, "import", p.UserID)
	}

	s.log.WithFields(logrus.Fields{
		"by":        p.UserID,
		"inserted":  res.Inserted,
		"conflicts": res.Conflicts,
		"rejected":  len(res.Errors),
	}).Info("attendance import finished")
	return res, nil
}

func (s *Service) afterWrite(ctx context.Context, rec Record, source, by string) {
	fields := logrus.Fields{"team": rec.Team, "user": rec.User, "date": rec.Date, "status": rec.Status, "source": source}
	if s.cache != nil {
		d, _ := week.ParseDate(rec.Date)
		if err := s.cache.Invalidate(ctx, rec.Team, week.Containing(d)); err != nil {
			s.log.WithFields(fields).WithError(err).Error("summary cache invalidation failed")
		}
	}
	if s.events != nil {
		msg, err := queue.NewMessage(queue.TypeAttendanceRecorded, RecordedEvent{
			Team: rec.Team, User: rec.User, Date: rec.Date, Status: rec.Status, Source: source, By: by,
		})
		if err == nil {
			err = s.events.Publish(ctx, msg)
		}
		if err != nil {
			s.log.WithFields(fields).WithError(err).Warn("queue publish failed")
		}
	}
	s.log.WithFields(fields).Debug("attendance recorded")
}
