package report

import (
	"github.com/xuri/excelize/v2"

	"kkn/internal/summary"
)

// ToXLSX renders the weekly grid of one team as a workbook with a single
// sheet named after the week.
func ToXLSX(s summary.Summary, opt Options) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := s.Week
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	header := Header(s.Dates, opt)
	if err := setRow(f, sheet, 1, toCells(header)); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, st := range s.Students {
		cells := toCells(Row(st, opt))
		// keep the total numeric so spreadsheets can sum it
		cells[len(st.DailyRecords)+1] = st.PresentCount
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
