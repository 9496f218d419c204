package domains

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of exported workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ParseXLSX reads the first column of the first sheet, applying the same
// rules as ParseImport to each cell.
func ParseXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("domains: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("domains: read sheet %s: %w", sheets[0], err)
	}
	var out []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if d, ok := entry(row[0]); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// WriteXLSX writes items into column A of a single-sheet workbook.
func WriteXLSX(w io.Writer, sheet string, items []string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("domains: name sheet: %w", err)
	}
	for i, d := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, d); err != nil {
			return fmt.Errorf("domains: write %s: %w", cell, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 48); err != nil {
		return err
	}
	return f.Write(w)
}
