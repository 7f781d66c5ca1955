// Package parsing coerces raw spreadsheet cell text into typed field values,
// driven by schema metadata (picklists, UI formatters, datatypes).
package parsing

import (
	"fmt"
	"strings"

	"bulkupload/internal/schema"
)

// PicklistAddition records that a parsed value was accepted onto a
// user-extensible picklist even though it did not previously exist there.
type PicklistAddition struct {
	PicklistID int64
	Caption    string
	Value      string
}

// ParseResult is the outcome of successfully parsing one cell.
type ParseResult struct {
	// FilterOn is the subset of the parsed value used to locate an existing
	// matching record; usually identical to Upload, except lat/long (where
	// only the text form participates in matching).
	FilterOn map[string]interface{}
	// Upload is the full payload written on insert.
	Upload map[string]interface{}
	// AddToPicklist is set when the value was accepted onto an
	// extensible picklist and is not yet present there.
	AddToPicklist *PicklistAddition
}

// ParseFailure is a structured cell-parsing error, never a Go error: it is
// reported in-band as a CellIssue within a ParseFailed outcome.
type ParseFailure struct {
	Message string
}

func (f *ParseFailure) Error() string { return f.Message }

func fail(format string, args ...interface{}) *ParseFailure {
	return &ParseFailure{Message: fmt.Sprintf(format, args...)}
}

// agentTypes is the fixed ordered enumeration for Agent.agenttype.
var agentTypes = []string{"Organization", "Person", "Other", "Group"}

// ParseValue dispatches a single raw cell value through the precedence
// chain of spec.md §4.1. Temporal parsing looks up the precision field in
// the same table through provider.
func ParseValue(provider schema.Provider, table, field, raw, caption string) (*ParseResult, *ParseFailure) {
	trimmed := strings.TrimSpace(raw)

	info, hasInfo := provider.FieldInfo(table, field)

	if trimmed == "" {
		if hasInfo && info.Required {
			return nil, fail("field is required")
		}
		return &ParseResult{
			FilterOn: map[string]interface{}{field: nil},
			Upload:   map[string]interface{}{field: nil},
		}, nil
	}

	if table == "Agent" && field == "agenttype" {
		return parseAgentType(trimmed)
	}

	if hasInfo && info.Picklist != nil {
		switch info.Picklist.Type {
		case schema.PicklistTypeItems:
			return parseWithPicklist(info.Picklist, trimmed, field)
		case schema.PicklistTypeRowsOfTable, schema.PicklistTypeFieldOfTable:
			// Not handled here; fall through to datatype dispatch.
		}
	}

	if hasInfo && info.Formatter != nil {
		canon, err := info.Formatter.Canonicalize(trimmed)
		if err != nil {
			return nil, &ParseFailure{Message: err.Error()}
		}
		return singleField(field, canon), nil
	}

	dt := schema.DataTypeText
	if hasInfo {
		dt = info.DataType
	}

	switch dt {
	case schema.DataTypeBoolean:
		b, pf := parseBoolean(trimmed)
		if pf != nil {
			return nil, pf
		}
		return singleField(field, b), nil
	case schema.DataTypeTemporal:
		upload, pf := parseTemporal(trimmed, field, info.PrecisionField)
		if pf != nil {
			return nil, pf
		}
		return &ParseResult{FilterOn: upload, Upload: upload}, nil
	case schema.DataTypeLatLong:
		if table == "Locality" && isLatLongField(field) {
			upload, pf := parseLatLong(trimmed, field)
			if pf != nil {
				return nil, pf
			}
			textField := field + "text"
			return &ParseResult{
				FilterOn: map[string]interface{}{textField: upload[textField]},
				Upload:   upload,
			}, nil
		}
		return singleField(field, trimmed), nil
	default:
		return singleField(field, trimmed), nil
	}
}

func isLatLongField(field string) bool {
	switch field {
	case "latitude1", "latitude2", "longitude1", "longitude2":
		return true
	default:
		return false
	}
}

func singleField(field string, value interface{}) *ParseResult {
	return &ParseResult{
		FilterOn: map[string]interface{}{field: value},
		Upload:   map[string]interface{}{field: value},
	}
}

func parseAgentType(value string) (*ParseResult, *ParseFailure) {
	capitalized := value
	if len(capitalized) > 0 {
		capitalized = strings.ToUpper(capitalized[:1]) + strings.ToLower(capitalized[1:])
	}
	for idx, name := range agentTypes {
		if name == capitalized {
			return singleField("agenttype", idx), nil
		}
	}
	return nil, fail("invalid agent type %q, must be one of %v", value, agentTypes)
}

func parseWithPicklist(pl *schema.Picklist, value, field string) (*ParseResult, *ParseFailure) {
	if item, ok := pl.ItemByTitle(value); ok {
		return singleField(field, item.Value), nil
	}
	if pl.ReadOnly {
		return nil, fail("value %s not in picklist %s", value, pl.Name)
	}
	result := singleField(field, value)
	result.AddToPicklist = &PicklistAddition{PicklistID: pl.ID, Caption: value, Value: value}
	return result, nil
}

func parseBoolean(value string) (bool, *ParseFailure) {
	switch strings.ToLower(value) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	default:
		return false, fail("invalid boolean value %q", value)
	}
}
