// Package result models the UploadResult tree produced by evaluating one
// row against a bound plan: a record of what was matched, created, or
// rejected at every node, mirroring the plan's shape (spec.md §3, §6).
package result

import "encoding/json"

// Outcome tags the disposition of one plan node for one row.
type Outcome int

const (
	// NullRecord: all inputs were empty and the node was not required.
	NullRecord Outcome = iota
	// Matched: exactly one pre-existing record satisfied the filter.
	Matched
	// MatchedMultiple: more than one pre-existing record satisfied the
	// filter; recorded as ambiguity, never auto-resolved.
	MatchedMultiple
	// NoMatch: a must-match node found no existing record.
	NoMatch
	// Uploaded: a new record was created.
	Uploaded
	// ParseFailed: one or more cells failed to parse; nothing was created.
	ParseFailed
)

func (o Outcome) String() string {
	switch o {
	case NullRecord:
		return "nullRecord"
	case Matched:
		return "matched"
	case MatchedMultiple:
		return "matchedMultiple"
	case NoMatch:
		return "noMatch"
	case Uploaded:
		return "uploaded"
	case ParseFailed:
		return "parseFailed"
	default:
		return "unknown"
	}
}

// CellIssue pairs a parse failure with the column caption that produced it.
type CellIssue struct {
	Column  string
	Message string
}

// ReportInfo names the table and wbcols columns a result node corresponds
// to, carried through to the serialized result for display purposes.
type ReportInfo struct {
	TableName string
	Columns   []string
}

// PicklistAddition records a user-extensible picklist item created while
// parsing this node's cells.
type PicklistAddition struct {
	PicklistID int64
	Caption    string
	Value      string
}

// Result is one node of the UploadResult tree.
type Result struct {
	Outcome Outcome
	Info    ReportInfo

	// ID is set for Matched/Uploaded.
	ID int64
	// IDs is set for MatchedMultiple.
	IDs []int64
	// Issues is set for ParseFailed.
	Issues []CellIssue
	// PicklistAdditions is set for Uploaded nodes that recorded new
	// picklist entries while parsing.
	PicklistAdditions []PicklistAddition

	ToOne  map[string]*Result
	ToMany map[string][]*Result
}

// MarshalJSON renders the Result tree per spec.md §6's Result JSON
// contract: the outcome tag, record id(s) where applicable, ReportInfo,
// picklistAdditions, and the toOne/toMany subtree.
func (r *Result) MarshalJSON() ([]byte, error) {
	type wire struct {
		Outcome           string                  `json:"outcome"`
		TableName         string                  `json:"tableName"`
		Columns           []string                `json:"columns,omitempty"`
		ID                *int64                  `json:"id,omitempty"`
		IDs               []int64                 `json:"ids,omitempty"`
		Issues            []CellIssue             `json:"issues,omitempty"`
		PicklistAdditions []PicklistAddition      `json:"picklistAdditions,omitempty"`
		ToOne             map[string]*Result      `json:"toOne,omitempty"`
		ToMany            map[string][]*Result    `json:"toMany,omitempty"`
	}

	w := wire{
		Outcome:           r.Outcome.String(),
		TableName:         r.Info.TableName,
		Columns:           r.Info.Columns,
		IDs:               r.IDs,
		Issues:            r.Issues,
		PicklistAdditions: r.PicklistAdditions,
		ToOne:             r.ToOne,
		ToMany:            r.ToMany,
	}
	if r.Outcome == Matched || r.Outcome == Uploaded {
		id := r.ID
		w.ID = &id
	}
	return json.Marshal(w)
}
