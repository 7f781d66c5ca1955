package rowio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NewRowReader selects a RowReader for path by its file extension.
func NewRowReader(path string) (RowReader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return NewCSVReader("", "")
	case ".xlsx":
		return NewXLSXReader(""), nil
	default:
		return nil, fmt.Errorf("rowio: unsupported row source extension %q for %q", ext, path)
	}
}
