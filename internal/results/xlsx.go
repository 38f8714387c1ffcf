package results

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "structured_table"

// WriteXLSX renders t as a single-sheet workbook: a bold header row, then
// one row per record. Cells are written as strings.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	if len(t.Header) > 0 {
		if err := writeRow(f, 1, t.Header); err != nil {
			return err
		}
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("xlsx style: %w", err)
		}
		if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
			return fmt.Errorf("xlsx style: %w", err)
		}
	}
	for i, row := range t.Rows {
		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("xlsx cell: %w", err)
		}
		if err := f.SetCellStr(SheetName, cell, v); err != nil {
			return fmt.Errorf("xlsx cell %s: %w", cell, err)
		}
	}
	return nil
}
