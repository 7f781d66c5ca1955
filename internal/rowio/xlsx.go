package rowio

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"bulkupload/internal/logging"
	"bulkupload/internal/uploadplan"
)

// XLSXReader reads rows from the active (or a named) sheet of an Excel
// workbook, keying each row by its header row's captions.
type XLSXReader struct {
	sheetName string
}

// NewXLSXReader creates an XLSXReader; an empty sheetName reads the
// workbook's active sheet.
func NewXLSXReader(sheetName string) *XLSXReader {
	return &XLSXReader{sheetName: sheetName}
}

// Read loads every row from path's target sheet.
func (xr *XLSXReader) Read(path string) ([]uploadplan.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("rowio: XLSXReader failed to open '%s': %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Logf(logging.Error, "rowio: XLSXReader failed to close '%s': %v", path, err)
		}
	}()

	sheetName := xr.sheetName
	if sheetName == "" {
		sheetName = f.GetSheetName(f.GetActiveSheetIndex())
		if sheetName == "" {
			return nil, fmt.Errorf("rowio: XLSXReader: '%s' contains no sheets", path)
		}
	}

	rawRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("rowio: XLSXReader failed to read sheet '%s' of '%s': %w", sheetName, path, err)
	}
	if len(rawRows) < 1 {
		return []uploadplan.Row{}, nil
	}

	headers := rawRows[0]
	headerForIndex := make(map[int]string, len(headers))
	for i, h := range headers {
		header := strings.TrimSpace(h)
		if header == "" {
			logging.Logf(logging.Warning, "rowio: XLSXReader: empty header at column %d of sheet '%s', column skipped", i+1, sheetName)
			continue
		}
		headerForIndex[i] = header
	}

	rows := make([]uploadplan.Row, 0, len(rawRows)-1)
	for _, record := range rawRows[1:] {
		row := make(uploadplan.Row, len(headerForIndex))
		for idx, value := range record {
			if header, ok := headerForIndex[idx]; ok {
				row[header] = value
			}
		}
		for _, header := range headerForIndex {
			if _, ok := row[header]; !ok {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}

	logging.Logf(logging.Debug, "rowio: XLSXReader loaded %d rows from sheet '%s' of %s", len(rows), sheetName, path)
	return rows, nil
}
