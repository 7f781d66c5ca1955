package parsing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unit codes stored alongside the numeric value, identifying which of the
// three input forms produced it.
const (
	unitDecimalDegrees       = 0
	unitDegreesMinutesSeconds = 1
	unitDegreesDecimalMinutes = 2
)

// latLongForms are tried in order; each group 1 captures the signed degree
// text (so a "-0" magnitude-zero degree still carries its sign), group 2/3
// the optional minutes/seconds, and the final group the optional trailing
// hemisphere letter.
var latLongForms = []struct {
	re   *regexp.Regexp
	unit int
}{
	{regexp.MustCompile(`(?i)^(-?\d{1,3}(?:\.\d+)?)\s*([NSEW])?$`), unitDecimalDegrees},
	{regexp.MustCompile(`(?i)^(-?\d{1,3})\s+(\d{1,2}(?:\.\d+)?)\s*([NSEW])?$`), unitDegreesDecimalMinutes},
	{regexp.MustCompile(`(?i)^(-?\d{1,3})\s+(\d{1,2})\s+(\d{1,2}(?:\.\d+)?)\s*([NSEW])?$`), unitDegreesMinutesSeconds},
}

// parseLatLong parses raw per spec.md §4.1.2, returning both the numeric
// field and the parallel "<field>text" field carrying the trimmed literal
// input (matching uses only the text field).
func parseLatLong(raw, field string) (map[string]interface{}, *ParseFailure) {
	var value float64

	for _, form := range latLongForms {
		m := form.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		var deg, min, sec float64
		var hemisphere string
		var err error

		degText := m[1]
		deg, err = strconv.ParseFloat(strings.TrimPrefix(degText, "-"), 64)
		if err != nil {
			return nil, fail("invalid latitude/longitude %q", raw)
		}
		negative := strings.HasPrefix(degText, "-")

		switch form.unit {
		case unitDecimalDegrees:
			hemisphere = m[2]
		case unitDegreesDecimalMinutes:
			min, err = strconv.ParseFloat(m[2], 64)
			if err != nil {
				return nil, fail("invalid latitude/longitude %q", raw)
			}
			hemisphere = m[3]
		case unitDegreesMinutesSeconds:
			min, err = strconv.ParseFloat(m[2], 64)
			if err != nil {
				return nil, fail("invalid latitude/longitude %q", raw)
			}
			sec, err = strconv.ParseFloat(m[3], 64)
			if err != nil {
				return nil, fail("invalid latitude/longitude %q", raw)
			}
			hemisphere = m[4]
		}

		sign := 1.0
		if negative {
			sign = -1.0
		}
		hemisphere = strings.ToUpper(hemisphere)
		if hemisphere == "S" || hemisphere == "W" {
			sign = -sign
		}

		sum := deg + min/60.0 + sec/3600.0
		value = math.Copysign(sum, sign)

		if err := rangeCheck(field, value); err != nil {
			return nil, err
		}

		result := map[string]interface{}{
			field:          value,
			field + "text": strings.TrimSpace(raw),
			field + "unit": form.unit,
		}
		return result, nil
	}

	return nil, fail("unrecognized latitude/longitude format %q", raw)
}

func rangeCheck(field string, value float64) *ParseFailure {
	if strings.HasPrefix(field, "latitude") {
		if math.Abs(value) >= 90 {
			return fail("latitude magnitude must be less than 90, got %v", value)
		}
	}
	if strings.HasPrefix(field, "longitude") {
		if math.Abs(value) >= 180 {
			return fail("longitude magnitude must be less than 180, got %v", value)
		}
	}
	return nil
}
