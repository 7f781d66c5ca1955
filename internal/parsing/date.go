package parsing

import (
	"fmt"
	"regexp"
	"time"
)

// Precision values stored in a field's companion "<field>precision" column.
const (
	precisionDay   = 0
	precisionMonth = 1
	precisionYear  = 2
)

var ddmmyyyy = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
var mmyyyy = regexp.MustCompile(`^\d{1,2}/\d{4}$`)
var yyyyOnly = regexp.MustCompile(`^\d{4}$`)

// freeformLayouts are tried in order; the Go reference date is
// "Mon Jan 2 15:04:05 MST 2006". The first layout that parses wins;
// month-precision layouts resolve to the first day of the month.
var freeformLayouts = []struct {
	layout    string
	precision int
}{
	{"2006-01-02", precisionDay},
	{"January 2, 2006", precisionDay},
	{"Jan 2, 2006", precisionDay},
	{"2 January 2006", precisionDay},
	{"January 2006", precisionMonth},
	{"Jan 2006", precisionMonth},
}

// parseTemporal parses raw per spec.md §4.1.1. field is the target field
// name; precisionField is the sibling field name storing precision, or
// empty if the schema defines none for this field.
func parseTemporal(raw, field, precisionField string) (map[string]interface{}, *ParseFailure) {
	var year, month, day, precision int
	var matched bool

	switch {
	case ddmmyyyy.MatchString(raw):
		t, err := time.Parse("2/1/2006", raw)
		if err != nil {
			return nil, fail("invalid date %q", raw)
		}
		year, month, day = t.Year(), int(t.Month()), t.Day()
		precision = precisionDay
		matched = true
	case mmyyyy.MatchString(raw):
		t, err := time.Parse("1/2006", raw)
		if err != nil {
			return nil, fail("invalid date %q", raw)
		}
		year, month, day = t.Year(), int(t.Month()), 1
		precision = precisionMonth
		matched = true
	case yyyyOnly.MatchString(raw):
		t, err := time.Parse("2006", raw)
		if err != nil {
			return nil, fail("invalid date %q", raw)
		}
		year, month, day = t.Year(), 1, 1
		precision = precisionYear
		matched = true
	default:
		for _, lf := range freeformLayouts {
			t, err := time.Parse(lf.layout, raw)
			if err != nil {
				continue
			}
			year, month, day = t.Year(), int(t.Month()), t.Day()
			if lf.precision == precisionMonth {
				day = 1
			}
			precision = lf.precision
			matched = true
			break
		}
	}

	if !matched {
		return nil, fail("unrecognized date %q", raw)
	}

	if precisionField == "" && precision != precisionDay {
		return nil, fail("date %q lacks day-level precision and field has no precision column", raw)
	}

	switch precision {
	case precisionMonth:
		day = 1
	case precisionYear:
		month, day = 1, 1
	}

	result := map[string]interface{}{
		field: fmt.Sprintf("%04d-%02d-%02d", year, month, day),
	}
	if precisionField != "" {
		result[precisionField] = precision
	}
	return result, nil
}
