// Package uploadeval walks a bound upload plan against a store, producing
// the Result tree of matches and inserts for one row (spec.md §4.3).
package uploadeval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mohae/deepcopy"

	"bulkupload/internal/parsing"
	"bulkupload/internal/result"
	"bulkupload/internal/schema"
	"bulkupload/internal/store"
	"bulkupload/internal/treematch"
	"bulkupload/internal/uploadplan"
)

// Evaluate walks node against tx, parsing cells via provider, and returns
// the resulting Result tree. Every store call happens inside the caller's
// transaction; Evaluate makes no commit/rollback decisions of its own.
func Evaluate(ctx context.Context, tx store.Tx, provider schema.Provider, node uploadplan.BoundNode) (*result.Result, error) {
	switch v := node.(type) {
	case *uploadplan.BoundTable:
		return evaluateTable(ctx, tx, provider, v, nil)
	case *uploadplan.BoundTreeRecord:
		return treematch.Match(ctx, tx, v, treematch.ModeCreate)
	default:
		return nil, fmt.Errorf("uploadeval: unknown BoundNode implementation")
	}
}

// fkColumn is the naming convention shared with store.NextCollectorOrderNumber:
// a relation or table name, FK'd as its lowercase form with an "id" suffix.
func fkColumn(name string) string {
	return strings.ToLower(name) + "id"
}

// evaluateTable implements spec.md §4.3's six-step algorithm for one
// UploadTable/OneToOneUploadTable/MustMatchTable node. inherited carries
// values a to-many parent contributes to its child (the parent FK, and any
// resolved ordernumber); they participate in both the match filter and the
// insert payload, same as the node's own static values.
func evaluateTable(ctx context.Context, tx store.Tx, provider schema.Provider, t *uploadplan.BoundTable, inherited map[string]interface{}) (*result.Result, error) {
	info := result.ReportInfo{TableName: t.Name, Columns: wbcolsColumns(t.WBCols)}

	// Step 1: to-one children, depth-first.
	toOneResults := make(map[string]*result.Result, len(t.ToOne))
	fks := make(map[string]interface{}, len(t.ToOne))
	skipCreation := false
	ambiguous := false
	var ambiguousIDs []int64
	allToOneNull := true
	for _, relation := range sortedNodeKeys(t.ToOne) {
		childRes, err := Evaluate(ctx, tx, provider, t.ToOne[relation])
		if err != nil {
			return nil, fmt.Errorf("uploadeval: evaluating toOne relation %q of %q: %w", relation, t.Name, err)
		}
		toOneResults[relation] = childRes
		switch childRes.Outcome {
		case result.ParseFailed, result.NoMatch:
			skipCreation = true
			allToOneNull = false
		case result.MatchedMultiple:
			skipCreation = true
			ambiguous = true
			ambiguousIDs = append(ambiguousIDs, childRes.IDs...)
			allToOneNull = false
		case result.Matched, result.Uploaded:
			fks[fkColumn(relation)] = childRes.ID
			allToOneNull = false
		case result.NullRecord:
			fks[fkColumn(relation)] = nil
		}
	}

	// Step 2: parse every wbcols field.
	var issues []result.CellIssue
	var picklistAdditions []result.PicklistAddition
	parsedFilter := make(map[string]interface{})
	parsedUpload := make(map[string]interface{})
	cellsAllNull := true
	for _, field := range sortedOptionKeys(t.WBCols) {
		opt := t.WBCols[field]
		raw := t.Cells[field]
		if strings.TrimSpace(raw) == "" && opt.Default != nil {
			raw = *opt.Default
		}
		trimmed := strings.TrimSpace(raw)

		pr, pf := parsing.ParseValue(provider, t.Name, field, raw, opt.Column)
		if pf != nil {
			issues = append(issues, result.CellIssue{Column: opt.Column, Message: pf.Message})
			continue
		}
		if trimmed == "" && !opt.NullAllowed {
			issues = append(issues, result.CellIssue{Column: opt.Column, Message: "value is required (null not allowed for this column)"})
			continue
		}

		for k, v := range pr.Upload {
			parsedUpload[k] = v
			if v != nil {
				cellsAllNull = false
			}
		}
		switch opt.MatchBehavior {
		case uploadplan.MatchIgnoreAlways:
			// never contributes to the match filter
		case uploadplan.MatchIgnoreWhenBlank:
			if trimmed != "" {
				for k, v := range pr.FilterOn {
					parsedFilter[k] = v
				}
			}
		default: // MatchIgnoreNever
			for k, v := range pr.FilterOn {
				parsedFilter[k] = v
			}
		}
		if pr.AddToPicklist != nil {
			picklistAdditions = append(picklistAdditions, result.PicklistAddition{
				PicklistID: pr.AddToPicklist.PicklistID,
				Caption:    pr.AddToPicklist.Caption,
				Value:      pr.AddToPicklist.Value,
			})
		}
	}
	if len(issues) > 0 {
		return &result.Result{Outcome: result.ParseFailed, Info: info, Issues: issues, ToOne: toOneResults}, nil
	}

	// Step 3: build the full match filter (children's filter contributions,
	// the static mapping, inherited parent context, and this node's own
	// parsed filter), then check for the all-null shortcut.
	filter := make(map[string]interface{}, len(fks)+len(t.Static)+len(inherited)+len(parsedFilter)+1)
	for k, v := range fks {
		filter[k] = v
	}
	for k, v := range t.Static {
		filter[k] = v
	}
	for k, v := range inherited {
		filter[k] = v
	}
	for k, v := range parsedFilter {
		filter[k] = v
	}
	// A OneToOneUploadTable's match is constrained to its parent's scope
	// (spec.md §3): unlike a plain UploadTable, which matches any existing
	// record across the discipline, it may only match a record already
	// scoped to the same discipline the parent was resolved against.
	if t.Kind == uploadplan.KindOneToOneUploadTable {
		filter["disciplineid"] = t.DisciplineID
	}

	if cellsAllNull && allToOneNull {
		return &result.Result{Outcome: result.NullRecord, Info: info, ToOne: toOneResults}, nil
	}

	if ambiguous {
		return &result.Result{Outcome: result.MatchedMultiple, Info: info, IDs: ambiguousIDs, ToOne: toOneResults}, nil
	}

	// A to-one child that failed to parse, matched nothing, or matched
	// ambiguously leaves this node's filter missing that relation's FK
	// entirely, so a query here could spuriously match an unrelated
	// existing record. Invariant 2 (spec.md §3) requires every to-one
	// child to resolve to Matched, Uploaded, or NullRecord before this
	// node may itself be Matched or Uploaded: skip the match (and the
	// insert) outright.
	if skipCreation {
		return &result.Result{Outcome: result.NoMatch, Info: info, ToOne: toOneResults}, nil
	}

	// Step 4: query the store.
	ids, err := tx.FindMatching(ctx, t.Name, store.Filter(filter))
	if err != nil {
		return nil, fmt.Errorf("uploadeval: matching %q: %w", t.Name, err)
	}
	switch {
	case len(ids) > 1:
		return &result.Result{Outcome: result.MatchedMultiple, Info: info, IDs: ids, ToOne: toOneResults}, nil
	case len(ids) == 1:
		return &result.Result{Outcome: result.Matched, Info: info, ID: ids[0], ToOne: toOneResults}, nil
	}

	if t.Kind == uploadplan.KindMustMatchTable {
		return &result.Result{Outcome: result.NoMatch, Info: info, ToOne: toOneResults}, nil
	}

	// Step 5: insert. Static values are deep-copied before merge so mutating
	// the assembled payload can never leak back into the plan's shared
	// Static map (the teacher's flatten stage uses the same guard).
	payload := make(map[string]interface{}, len(t.Static)+len(inherited)+len(fks)+len(parsedUpload))
	for k, v := range deepcopy.Copy(t.Static).(map[string]interface{}) {
		payload[k] = v
	}
	for k, v := range inherited {
		payload[k] = v
	}
	for k, v := range fks {
		payload[k] = v
	}
	for k, v := range parsedUpload {
		payload[k] = v
	}
	if t.Kind == uploadplan.KindOneToOneUploadTable {
		payload["disciplineid"] = t.DisciplineID
	}

	newID, err := tx.Insert(ctx, t.Name, payload)
	if err != nil {
		return nil, fmt.Errorf("uploadeval: inserting %q: %w", t.Name, err)
	}
	for _, pa := range picklistAdditions {
		if err := tx.RecordPicklistAddition(ctx, pa.PicklistID, pa.Caption, pa.Value); err != nil {
			return nil, fmt.Errorf("uploadeval: recording picklist addition for %q: %w", t.Name, err)
		}
	}

	// Step 6: to-many children, in plan order, each carrying the new
	// record's id as its parent FK.
	var toMany map[string][]*result.Result
	if len(t.ToMany) > 0 {
		toMany = make(map[string][]*result.Result, len(t.ToMany))
		for _, relation := range sortedSliceKeys(t.ToMany) {
			children := t.ToMany[relation]
			childResults := make([]*result.Result, 0, len(children))
			deferredOrdering := strings.ToLower(relation) == "collectors"
			for _, child := range children {
				childInherited := map[string]interface{}{fkColumn(t.Name): newID}
				if deferredOrdering {
					if _, has := child.Static["ordernumber"]; !has {
						next, err := tx.NextCollectorOrderNumber(ctx, t.Name, newID)
						if err != nil {
							return nil, fmt.Errorf("uploadeval: assigning collector ordernumber under %q: %w", t.Name, err)
						}
						childInherited["ordernumber"] = next
					}
				}
				childRes, err := evaluateTable(ctx, tx, provider, child, childInherited)
				if err != nil {
					return nil, fmt.Errorf("uploadeval: evaluating toMany relation %q of %q: %w", relation, t.Name, err)
				}
				childResults = append(childResults, childRes)
			}
			toMany[relation] = childResults
		}
	}

	return &result.Result{
		Outcome:           result.Uploaded,
		Info:              info,
		ID:                newID,
		PicklistAdditions: picklistAdditions,
		ToOne:             toOneResults,
		ToMany:            toMany,
	}, nil
}

func wbcolsColumns(wbcols map[string]uploadplan.ColumnOption) []string {
	if len(wbcols) == 0 {
		return nil
	}
	cols := make([]string, 0, len(wbcols))
	for _, opt := range wbcols {
		cols = append(cols, opt.Column)
	}
	sort.Strings(cols)
	return cols
}

func sortedOptionKeys(m map[string]uploadplan.ColumnOption) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNodeKeys(m map[string]uploadplan.BoundNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSliceKeys(m map[string][]*uploadplan.BoundTable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
