package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// WriteCSV writes t with its header row to path, replacing any existing file.
func WriteCSV(path string, t Table) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return fmt.Errorf("write %s header: %w", path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s rows: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes each table to its own sheet, named after the table.
func WriteXLSX(path string, tables ...Table) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return fmt.Errorf("xlsx rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("xlsx new sheet %s: %w", t.Name, err)
		}

		if err := writeSheet(f, t); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", t.Name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, t Table) error {
	for col, h := range t.Header {
		if err := setCell(f, t.Name, col+1, 1, h); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for col, v := range row {
			var header string
			if col < len(t.Header) {
				header = t.Header[col]
			}
			if err := setCell(f, t.Name, col+1, r+2, xlsxValue(header, v)); err != nil {
				return err
			}
		}
	}
	if err := f.SetColWidth(t.Name, "A", "A", 12); err != nil {
		return err
	}
	return f.SetColWidth(t.Name, "B", "B", 40)
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, v)
}

// numericColumns are stored as numbers so the sheet sorts them properly.
// Everything else stays text; CIKs lose their leading zeros otherwise.
var numericColumns = map[string]bool{"Rank": true, "Value": true}

func xlsxValue(header, s string) any {
	if !numericColumns[header] {
		return s
	}
	if v, ok := ParseNumber(s); ok {
		return v
	}
	return s
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}
