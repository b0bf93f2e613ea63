package report

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"kkn/internal/apperror"
	"kkn/internal/attendance"
)

var requiredImportColumns = []string{"team", "user", "date", "status"}

// ParseImport reads attendance rows from a CSV or XLSX upload. The format is
// picked from the file extension. The first row is a header naming the
// columns team, user, date, status and optionally excuse, in any order and
// case.
func ParseImport(r io.Reader, filename string) ([]attendance.ImportRow, error) {
	var rows []sourceRow
	var err error
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		rows, err = readXLSX(r)
	} else {
		rows, err = readCSV(r)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindParse, err, "unreadable import file")
	}
	if len(rows) == 0 {
		return nil, apperror.Validation("import file is empty")
	}

	col := mapHeaderIndexes(rows[0].cells)
	for _, name := range requiredImportColumns {
		if _, ok := col[name]; !ok {
			return nil, apperror.Validation("import header is missing column %q", name)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make([]attendance.ImportRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := row.cells
		if blank(rec) {
			continue
		}
		out = append(out, attendance.ImportRow{
			Line:   row.line,
			Team:   get(rec, "team"),
			User:   get(rec, "user"),
			Date:   get(rec, "date"),
			Status: get(rec, "status"),
			Excuse: get(rec, "excuse"),
		})
	}
	return out, nil
}

// sourceRow is a record with the physical line it starts on.
type sourceRow struct {
	line  int
	cells []string
}

func readCSV(r io.Reader) ([]sourceRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	var rows []sourceRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		// quoted fields may span lines, so count from the reader
		line, _ := cr.FieldPos(0)
		rows = append(rows, sourceRow{line: line, cells: rec})
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([]sourceRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sht := f.GetSheetName(0)
	if sht == "" {
		sht = "Sheet1"
	}
	cells, err := f.GetRows(sht)
	if err != nil {
		return nil, err
	}
	rows := make([]sourceRow, len(cells))
	for i, c := range cells {
		rows[i] = sourceRow{line: i + 1, cells: c}
	}
	return rows, nil
}

func mapHeaderIndexes(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := m[key]; !dup {
			m[key] = i
		}
	}
	return m
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
