// Package api exposes attendance, summaries, approvals and reports over HTTP.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kkn/internal/apperror"
	"kkn/internal/approval"
	"kkn/internal/attendance"
	"kkn/internal/auth"
	"kkn/internal/cloudinary"
	"kkn/internal/metrics"
	"kkn/internal/report"
	"kkn/internal/roster"
	"kkn/internal/summary"
	"kkn/internal/week"
)

const maxUploadBytes = 10 << 20

// TeamLister enumerates teams for cross-team exports.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]roster.Team, error)
}

// Uploader stores proof photos.
type Uploader interface {
	UploadBytes(ctx context.Context, p cloudinary.Proof, data []byte, filename string) (*cloudinary.UploadResult, error)
	UploadBase64(ctx context.Context, p cloudinary.Proof, data string) (*cloudinary.UploadResult, error)
}

// Deps are the collaborators of the HTTP layer. Uploader may be nil.
type Deps struct {
	Attendance *attendance.Service
	Ledger     *approval.Ledger
	Summaries  *summary.Aggregator
	Teams      TeamLister
	Authz      *auth.Authorizer
	Uploader   Uploader
	Now        func() time.Time
}

// Handler serves the /v1 API.
type Handler struct {
	att       *attendance.Service
	ledger    *approval.Ledger
	summaries *summary.Aggregator
	teams     TeamLister
	authz     *auth.Authorizer
	uploader  Uploader
	now       func() time.Time
	log       *logrus.Entry
}

// New builds a handler.
func New(d Deps) *Handler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		att:       d.Attendance,
		ledger:    d.Ledger,
		summaries: d.Summaries,
		teams:     d.Teams,
		authz:     d.Authz,
		uploader:  d.Uploader,
		now:       now,
		log:       logrus.WithField("component", "api"),
	}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/weeks/current", h.currentWeek)
	r.GET("/weeks/:week/shift", h.shiftWeek)

	r.POST("/teams/:team/attendance", h.checkIn)
	r.POST("/teams/:team/attendance/proof", h.uploadProof)
	r.GET("/teams/:team/attendance/:user/:date", h.getRecord)
	r.PUT("/teams/:team/attendance/:user/:date", h.amend)

	r.GET("/teams/:team/weeks/:week/summary", h.summary)
	r.GET("/teams/:team/weeks/:week/approvals/:student", h.getApproval)
	r.PUT("/teams/:team/weeks/:week/approvals/:student", h.decide)
	r.GET("/teams/:team/weeks/:week/approvals/:student/history", h.history)
	r.GET("/teams/:team/weeks/:week/export.csv", h.exportCSV)
	r.GET("/teams/:team/weeks/:week/export.xlsx", h.exportXLSX)

	r.GET("/admin/weeks/:week/export.csv", h.exportWeekAllTeams)
	r.GET("/admin/months/:month/export.csv", h.exportMonth)
	r.POST("/admin/attendance/import", h.importAttendance)
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(c)
	return p
}

func info(l week.Label) weekInfo {
	dates := l.DateStrings()
	return weekInfo{Week: l.String(), StartDate: dates[0], EndDate: dates[len(dates)-1], Dates: dates}
}

func (h *Handler) currentWeek(c *gin.Context) {
	c.JSON(http.StatusOK, info(week.Current(h.now())))
}

func (h *Handler) shiftWeek(c *gin.Context) {
	l, err := week.Parse(c.Param("week"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	switch c.DefaultQuery("direction", "next") {
	case "next":
		l = l.Shift(1)
	case "prev":
		l = l.Shift(-1)
	default:
		h.writeError(c, apperror.Validation("direction must be next or prev"))
		return
	}
	c.JSON(http.StatusOK, info(l))
}

func (h *Handler) checkIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	rec, err := h.att.CheckIn(c.Request.Context(), principal(c), attendance.CheckInInput{
		Team:      c.Param("team"),
		Date:      req.Date,
		Status:    req.Status,
		Excuse:    req.Excuse,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		PhotoURL:  req.PhotoURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) amend(c *gin.Context) {
	var req amendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	rec, err := h.att.Amend(c.Request.Context(), principal(c), attendance.Record{
		Team:      c.Param("team"),
		User:      c.Param("user"),
		Date:      c.Param("date"),
		Status:    attendance.Status(req.Status),
		Excuse:    req.Excuse,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		PhotoURL:  req.PhotoURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) getRecord(c *gin.Context) {
	ctx := c.Request.Context()
	p := principal(c)
	rec, err := h.att.Get(ctx, p, c.Param("team"), c.Param("user"), c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	hide, err := h.authz.HidesPendingDetails(ctx, p, rec.Team)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if hide {
		d, _ := week.ParseDate(rec.Date)
		wk := week.Of(d).String()
		status, err := h.ledger.GetStatus(ctx, rec.Team, rec.User, wk)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if status == approval.StatusPending {
			h.writeError(c, apperror.Permission("attendance of %s in %s is hidden until the week is reviewed", rec.User, wk))
			return
		}
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) uploadProof(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "image storage not configured"})
		return
	}
	ctx := c.Request.Context()
	p := principal(c)
	team := c.Param("team")
	if err := h.authz.RequireViewer(ctx, p, team); err != nil {
		h.writeError(c, err)
		return
	}
	proof := cloudinary.Proof{Team: team, User: p.UserID, Date: week.Date(h.now()).Format(week.DateLayout)}

	var result *cloudinary.UploadResult
	var err error
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			h.writeError(c, apperror.Validation("file field required"))
			return
		}
		defer file.Close()
		if d := c.PostForm("date"); d != "" {
			proof.Date = d
		}
		if _, perr := week.ParseDate(proof.Date); perr != nil {
			h.writeError(c, perr)
			return
		}
		data, rerr := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if rerr != nil {
			h.writeError(c, apperror.Wrap(apperror.KindParse, rerr, "read file failed"))
			return
		}
		result, err = h.uploader.UploadBytes(ctx, proof, data, header.Filename)
	} else {
		var req proofRequest
		if berr := c.ShouldBindJSON(&req); berr != nil {
			h.bindError(c, berr)
			return
		}
		if req.Date != "" {
			proof.Date = req.Date
		}
		result, err = h.uploader.UploadBase64(ctx, proof, req.Data)
	}
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"team": team, "user": p.UserID}).Warn("proof upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream", "message": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":      result.SecureURL,
		"publicId": result.PublicID,
		"width":    result.Width,
		"height":   result.Height,
		"bytes":    result.Bytes,
	})
}

// visibleSummary checks the week label before authorization so malformed
// labels are reported as such.
func (h *Handler) visibleSummary(c *gin.Context) (summary.Summary, bool) {
	ctx := c.Request.Context()
	team, label := c.Param("team"), c.Param("week")
	if _, err := week.Parse(label); err != nil {
		h.writeError(c, err)
		return summary.Summary{}, false
	}
	if err := h.authz.RequireViewer(ctx, principal(c), team); err != nil {
		h.writeError(c, err)
		return summary.Summary{}, false
	}
	s, err := h.summaries.Summarize(ctx, team, label)
	if err != nil {
		h.writeError(c, err)
		return summary.Summary{}, false
	}
	return s, true
}

func (h *Handler) summary(c *gin.Context) {
	s, ok := h.visibleSummary(c)
	if !ok {
		return
	}
	hide, err := h.authz.HidesPendingDetails(c.Request.Context(), principal(c), s.Team)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if hide {
		s = s.HidePending()
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) getApproval(c *gin.Context) {
	a, err := h.ledger.Get(c.Request.Context(), principal(c), c.Param("team"), c.Param("student"), c.Param("week"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) decide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	a, err := h.ledger.Decide(c.Request.Context(), principal(c), approval.Decision{
		Team:    c.Param("team"),
		Student: c.Param("student"),
		Week:    c.Param("week"),
		Status:  req.Status,
		Notes:   req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) history(c *gin.Context) {
	entries, err := h.ledger.History(c.Request.Context(), principal(c), c.Param("team"), c.Param("student"), c.Param("week"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) exportOptions(c *gin.Context) report.Options {
	return report.Options{AdminView: h.authz.IsAdmin(principal(c)), IncludeStatus: true}
}

func attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) exportCSV(c *gin.Context) {
	s, ok := h.visibleSummary(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, s, h.exportOptions(c)); err != nil {
		h.writeError(c, err)
		return
	}
	metrics.Exports.WithLabelValues("team_csv").Inc()
	attachment(c, fmt.Sprintf("attendance-%s-%s.csv", s.Team, s.Week), "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) exportXLSX(c *gin.Context) {
	s, ok := h.visibleSummary(c)
	if !ok {
		return
	}
	raw, err := report.ToXLSX(s, h.exportOptions(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	metrics.Exports.WithLabelValues("team_xlsx").Inc()
	attachment(c, fmt.Sprintf("attendance-%s-%s.xlsx", s.Team, s.Week),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", raw)
}

// summariesFor builds the summary of every team for each week, weeks outer.
func (h *Handler) summariesFor(ctx context.Context, weeks []week.Label) ([]summary.Summary, error) {
	teams, err := h.teams.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]summary.Summary, 0, len(teams)*len(weeks))
	for _, wk := range weeks {
		for _, t := range teams {
			s, err := h.summaries.Summarize(ctx, t.ID, wk.String())
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func (h *Handler) exportWeekAllTeams(c *gin.Context) {
	wk, err := week.Parse(c.Param("week"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.authz.RequireAdmin(principal(c)); err != nil {
		h.writeError(c, err)
		return
	}
	summaries, err := h.summariesFor(c.Request.Context(), []week.Label{wk})
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteWeekCSV(&buf, wk, summaries); err != nil {
		h.writeError(c, err)
		return
	}
	metrics.Exports.WithLabelValues("week_csv").Inc()
	attachment(c, fmt.Sprintf("attendance-%s.csv", wk), "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) exportMonth(c *gin.Context) {
	month := c.Param("month")
	year, m, err := week.ParseMonth(month)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.authz.RequireAdmin(principal(c)); err != nil {
		h.writeError(c, err)
		return
	}
	summaries, err := h.summariesFor(c.Request.Context(), week.StartingIn(year, m))
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteMonthCSV(&buf, summaries); err != nil {
		h.writeError(c, err)
		return
	}
	metrics.Exports.WithLabelValues("month_csv").Inc()
	attachment(c, fmt.Sprintf("attendance-%s.csv", month), "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) importAttendance(c *gin.Context) {
	p := principal(c)
	if err := h.authz.RequireAdmin(p); err != nil {
		h.writeError(c, err)
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.writeError(c, apperror.Validation("file field required"))
		return
	}
	defer file.Close()

	rows, err := report.ParseImport(io.LimitReader(file, maxUploadBytes), header.Filename)
	if err != nil {
		h.writeError(c, err)
		return
	}
	res, err := h.att.Import(c.Request.Context(), p, rows)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
