// Package week implements the cohort's week labels.
//
// Weeks are counted from January 1: days 1-7 of the year are week 1, days
// 8-14 week 2, and so on. This is not ISO-8601 and must stay that way, stored
// approval rows and exported reports are keyed by these labels.
package week

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"kkn/internal/apperror"
)

// DateLayout is the calendar date format used for records and reports.
const DateLayout = "2006-01-02"

// DaysPerWeek is the fixed width of the reporting grid.
const DaysPerWeek = 7

var labelPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Label identifies a week as "{year}-W{2-digit week}".
type Label struct {
	Year int
	Week int
}

// Parse validates and decodes a label such as "2024-W10".
func Parse(s string) (Label, error) {
	m := labelPattern.FindStringSubmatch(s)
	if m == nil {
		return Label{}, apperror.Parse("invalid week label %q, expected YYYY-Www", s)
	}
	year, _ := strconv.Atoi(m[1])
	num, _ := strconv.Atoi(m[2])
	if year < 1 {
		return Label{}, apperror.Parse("invalid week label %q: year out of range", s)
	}
	if num < 1 || num > WeeksInYear(year) {
		return Label{}, apperror.Parse("invalid week label %q: week out of range", s)
	}
	return Label{Year: year, Week: num}, nil
}

func (l Label) String() string {
	return fmt.Sprintf("%d-W%02d", l.Year, l.Week)
}

// Date truncates t to a naive calendar date (midnight UTC, same Y/M/D as t).
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperror.Wrap(apperror.KindParse, err, fmt.Sprintf("invalid date %q", s))
	}
	return d, nil
}

// Of returns the label of the week containing t.
func Of(t time.Time) Label {
	d := Date(t)
	return Label{Year: d.Year(), Week: (d.YearDay()-1)/DaysPerWeek + 1}
}

// Current returns the label of the week containing now.
func Current(now time.Time) Label {
	return Of(now)
}

// WeeksInYear applies the week formula to December 31 of year.
func WeeksInYear(year int) int {
	return Of(time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)).Week
}

// Start is the first calendar date of the week.
func (l Label) Start() time.Time {
	jan1 := time.Date(l.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return jan1.AddDate(0, 0, (l.Week-1)*DaysPerWeek)
}

// End is the last calendar date of the week. For the final week of a year it
// lies in the following year.
func (l Label) End() time.Time {
	return l.Start().AddDate(0, 0, DaysPerWeek-1)
}

// Range returns the first and last dates of the week.
func (l Label) Range() (time.Time, time.Time) {
	return l.Start(), l.End()
}

// Dates returns the 7 consecutive dates of the week.
func (l Label) Dates() []time.Time {
	start := l.Start()
	out := make([]time.Time, DaysPerWeek)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

// DateStrings returns Dates formatted with DateLayout.
func (l Label) DateStrings() []string {
	dates := l.Dates()
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(DateLayout)
	}
	return out
}

// Contains reports whether date d falls inside the week's range.
func (l Label) Contains(d time.Time) bool {
	d = Date(d)
	return !d.Before(l.Start()) && !d.After(l.End())
}

// Shift moves delta weeks forward (or backward when negative), rolling over
// year boundaries with WeeksInYear.
func (l Label) Shift(delta int) Label {
	for ; delta > 0; delta-- {
		if l.Week >= WeeksInYear(l.Year) {
			l = Label{Year: l.Year + 1, Week: 1}
			continue
		}
		l.Week++
	}
	for ; delta < 0; delta++ {
		if l.Week <= 1 {
			l = Label{Year: l.Year - 1, Week: WeeksInYear(l.Year - 1)}
			continue
		}
		l.Week--
	}
	return l
}

// ShiftLabel parses s and shifts it by delta.
func ShiftLabel(s string, delta int) (string, error) {
	l, err := Parse(s)
	if err != nil {
		return "", err
	}
	return l.Shift(delta).String(), nil
}

// Containing lists every label whose range includes d. A date in the first
// days of January can also sit in the spill-over of the previous year's last
// week.
func Containing(d time.Time) []Label {
	d = Date(d)
	labels := []Label{Of(d)}
	prev := Label{Year: d.Year() - 1, Week: WeeksInYear(d.Year() - 1)}
	if prev.Contains(d) {
		labels = append(labels, prev)
	}
	return labels
}

var monthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (int, time.Month, error) {
	m := monthPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, apperror.Parse("invalid month %q, expected YYYY-MM", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if year < 1 || month < 1 || month > 12 {
		return 0, 0, apperror.Parse("invalid month %q", s)
	}
	return year, time.Month(month), nil
}

// StartingIn lists the weeks whose first date falls in the given month.
func StartingIn(year int, month time.Month) []Label {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	var out []Label
	l := Of(first)
	if l.Start().Before(first) {
		l = l.Shift(1)
	}
	for l.Start().Year() == year && l.Start().Month() == month {
		out = append(out, l)
		l = l.Shift(1)
	}
	return out
}
