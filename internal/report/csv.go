// Package report renders weekly summaries for download and parses bulk
// attendance imports.
package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"kkn/internal/approval"
	"kkn/internal/attendance"
	"kkn/internal/summary"
	"kkn/internal/week"
)

// Day markers.
const (
	MarkPresent    = "✓"
	MarkPermission = "I"
	MarkAlpha      = "A"
	MarkUnmarked   = "-"
	MarkHidden     = "?"
)

// Options controls how a summary is rendered.
type Options struct {
	// AdminView distinguishes permission, alpha and unmarked days and hides
	// the days of students whose week is still pending.
	AdminView     bool
	IncludeStatus bool
}

// Marker renders one day of a student's week.
func Marker(d summary.DailyRecord, status approval.Status, opt Options) string {
	if !opt.AdminView {
		if d.Status == attendance.StatusPresent {
			return MarkPresent
		}
		return ""
	}
	if status == approval.StatusPending {
		return MarkHidden
	}
	switch d.Status {
	case attendance.StatusPresent:
		return MarkPresent
	case attendance.StatusPermission:
		return MarkPermission
	case attendance.StatusAlpha:
		return MarkAlpha
	default:
		return MarkUnmarked
	}
}

// Header returns the column titles of a weekly grid.
func Header(dates []string, opt Options) []string {
	h := make([]string, 0, len(dates)+3)
	h = append(h, "Student")
	h = append(h, dates...)
	h = append(h, "Total Present")
	if opt.IncludeStatus {
		h = append(h, "Status")
	}
	return h
}

// Row returns the cells of one student in a weekly grid.
func Row(st summary.StudentRow, opt Options) []string {
	r := make([]string, 0, len(st.DailyRecords)+3)
	r = append(r, st.UserName)
	for _, d := range st.DailyRecords {
		r = append(r, Marker(d, st.ApprovalStatus, opt))
	}
	r = append(r, strconv.Itoa(st.PresentCount))
	if opt.IncludeStatus {
		r = append(r, strings.ToUpper(string(st.ApprovalStatus)))
	}
	return r
}

// WriteCSV writes the weekly grid of one team.
func WriteCSV(w io.Writer, s summary.Summary, opt Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(s.Dates, opt)); err != nil {
		return err
	}
	for _, st := range s.Students {
		if err := cw.Write(Row(st, opt)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ToCSV renders a summary as CSV text.
func ToCSV(s summary.Summary, opt Options) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, s, opt); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteWeekCSV writes the cross-team grid of one week in admin view. The
// summaries are written in the order given.
func WriteWeekCSV(w io.Writer, wk week.Label, summaries []summary.Summary) error {
	opt := Options{AdminView: true, IncludeStatus: true}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Team"}, Header(wk.DateStrings(), opt)...)); err != nil {
		return err
	}
	for _, s := range summaries {
		for _, st := range s.Students {
			if err := cw.Write(append([]string{s.TeamName}, Row(st, opt)...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMonthCSV writes per-week totals of every team and student. It carries
// no day markers.
func WriteMonthCSV(w io.Writer, summaries []summary.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Team", "Week", "Student", "Total Present", "Status"}); err != nil {
		return err
	}
	for _, s := range summaries {
		for _, st := range s.Students {
			rec := []string{s.TeamName, s.Week, st.UserName, strconv.Itoa(st.PresentCount), strings.ToUpper(string(st.ApprovalStatus))}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
