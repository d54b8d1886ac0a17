// Package export renders movement history as a spreadsheet. Pure
// transform: rows in, workbook bytes out.
package export

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"campuspass/internal/movement"
)

const sheet = "Movements"

var header = []string{"Enrollment", "Transition", "Recorded By", "Correction", "Occurred At"}

// MovementsXLSX builds an .xlsx workbook of the crossing log.
func MovementsXLSX(events []movement.AuditEvent) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	for i, evt := range events {
		values := []any{
			evt.EnrollmentID,
			evt.Transition,
			evt.RecordedBy,
			evt.Correction,
			evt.OccurredAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
