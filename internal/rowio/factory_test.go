package rowio

import (
	"path/filepath"
	"testing"
)

func TestNewRowReader_CSV(t *testing.T) {
	r, err := NewRowReader("rows.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.(*CSVReader); !ok {
		t.Errorf("expected *CSVReader, got %T", r)
	}
}

func TestNewRowReader_XLSX(t *testing.T) {
	r, err := NewRowReader("rows.XLSX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.(*XLSXReader); !ok {
		t.Errorf("expected *XLSXReader, got %T", r)
	}
}

func TestNewRowReader_UnsupportedExtension(t *testing.T) {
	if _, err := NewRowReader("rows.txt"); err == nil {
		t.Fatalf("expected an error for an unsupported extension")
	}
}

func TestNewRowReader_UsesExtensionNotWholePath(t *testing.T) {
	path := filepath.Join("data", "2024", "rows.csv")
	if _, err := NewRowReader(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
