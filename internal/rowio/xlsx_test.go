package rowio

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func createTempXLSX(t *testing.T, sheetName string, data [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	if sheetName != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
		if _, err := f.NewSheet(sheetName); err != nil {
			t.Fatalf("failed to create sheet %q: %v", sheetName, err)
		}
		f.SetActiveSheet(0)
	}
	for rowIdx, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
		if err != nil {
			t.Fatalf("failed to compute cell coordinates: %v", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			t.Fatalf("failed to write row %d: %v", rowIdx, err)
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}
	return path
}

func TestXLSXReader_ReadsActiveSheetKeyedByHeader(t *testing.T) {
	path := createTempXLSX(t, "Sheet1", [][]interface{}{
		{"BMSM No.", "Locality"},
		{"100", "Big Lake"},
		{"101", "Small Pond"},
	})

	rows, err := NewXLSXReader("").Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["BMSM No."] != "100" || rows[0]["Locality"] != "Big Lake" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1]["BMSM No."] != "101" || rows[1]["Locality"] != "Small Pond" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestXLSXReader_NamedSheet(t *testing.T) {
	path := createTempXLSX(t, "Occurrences", [][]interface{}{
		{"BMSM No."},
		{"100"},
	})

	rows, err := NewXLSXReader("Occurrences").Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0]["BMSM No."] != "100" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestXLSXReader_HeaderOnlyYieldsNoRows(t *testing.T) {
	path := createTempXLSX(t, "Sheet1", [][]interface{}{{"BMSM No."}})
	rows, err := NewXLSXReader("").Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %+v", rows)
	}
}
