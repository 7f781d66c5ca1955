package rowio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"bulkupload/internal/logging"
	"bulkupload/internal/uploadplan"
)

// CSVReader reads rows from a CSV row source, keying each row by its
// header caption. Supports configurable delimiters and comment characters.
type CSVReader struct {
	Delimiter   rune
	CommentChar rune
}

// NewCSVReader creates a CSVReader; an empty delimiter defaults to ','.
func NewCSVReader(delimiter, commentChar string) (*CSVReader, error) {
	delim := ','
	var comment rune

	if delimiter != "" {
		if utf8.RuneCountInString(delimiter) != 1 {
			return nil, fmt.Errorf("invalid delimiter '%s': must be a single character", delimiter)
		}
		delim = []rune(delimiter)[0]
	}
	if commentChar != "" {
		if utf8.RuneCountInString(commentChar) != 1 {
			return nil, fmt.Errorf("invalid comment character '%s': must be a single character or empty", commentChar)
		}
		comment = []rune(commentChar)[0]
	}

	return &CSVReader{Delimiter: rune(delim), CommentChar: comment}, nil
}

// Read loads every row from path, keyed by its header row's captions.
func (cr *CSVReader) Read(path string) ([]uploadplan.Row, error) {
	logging.Logf(logging.Debug, "CSVReader reading file: %s (delimiter %q)", path, cr.Delimiter)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rowio: CSVReader failed to open '%s': %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = cr.Delimiter
	if cr.CommentChar != 0 {
		reader.Comment = cr.CommentChar
	}
	reader.FieldsPerRecord = -1

	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("rowio: CSVReader failed to read '%s': %w", path, err)
	}
	if len(allRows) < 2 {
		return []uploadplan.Row{}, nil
	}

	headers := allRows[0]
	headerForIndex := make(map[int]string, len(headers))
	for i, h := range headers {
		header := strings.TrimSpace(h)
		if header == "" {
			logging.Logf(logging.Warning, "rowio: CSVReader: empty header at column %d of '%s', column skipped", i+1, path)
			continue
		}
		headerForIndex[i] = header
	}

	rows := make([]uploadplan.Row, 0, len(allRows)-1)
	for i, record := range allRows[1:] {
		if len(record) != len(headers) {
			logging.Logf(logging.Warning, "rowio: CSVReader: row %d of '%s' has %d fields, expected %d; skipping", i+2, path, len(record), len(headers))
			continue
		}
		row := make(uploadplan.Row, len(headerForIndex))
		for idx, value := range record {
			if header, ok := headerForIndex[idx]; ok {
				row[header] = value
			}
		}
		rows = append(rows, row)
	}

	logging.Logf(logging.Debug, "rowio: CSVReader loaded %d rows from %s", len(rows), path)
	return rows, nil
}
