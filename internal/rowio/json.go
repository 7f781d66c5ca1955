package rowio

import (
	"encoding/json"
	"io"

	"bulkupload/internal/result"
)

// JSONResultWriter writes a run's Result tree array as indented JSON to w,
// matching the teacher's JSONWriter shape but over an io.WriteCloser so it
// can target both stdout (wrapped in a no-op closer) and an output file.
type JSONResultWriter struct {
	w io.WriteCloser
}

// NewJSONResultWriter wraps w for one run's result output.
func NewJSONResultWriter(w io.WriteCloser) *JSONResultWriter {
	return &JSONResultWriter{w: w}
}

// Write marshals results as an indented JSON array, per spec.md §6.
func (jw *JSONResultWriter) Write(results []*result.Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = jw.w.Write(data)
	return err
}

// Close releases the underlying writer.
func (jw *JSONResultWriter) Close() error {
	return jw.w.Close()
}
