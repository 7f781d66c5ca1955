// Package treematch implements rank-ordered matching of a row's partial
// tree path against an existing hierarchy, with deepest-match-wins
// semantics and conditional creation of missing ancestors (spec.md §4.4).
package treematch

import (
	"context"
	"strings"

	"bulkupload/internal/result"
	"bulkupload/internal/store"
	"bulkupload/internal/uploadplan"
)

// Mode controls whether Match is permitted to create missing nodes.
type Mode int

const (
	// ModeCreate inserts missing ancestors and the leaf itself.
	ModeCreate Mode = iota
	// ModeMatchOnly never writes; an incomplete match yields NoMatch.
	ModeMatchOnly
)

// uploadedSentinel is the literal name substituted for a missing enforced
// ancestor or an absent root, preserved verbatim for compatibility with
// existing deployed trees (spec.md §9).
const uploadedSentinel = "Uploaded"

type pathStep struct {
	rankID int
	name   string
}

// Match evaluates node against tx per spec.md §4.4's ten-step algorithm.
func Match(ctx context.Context, tx store.Tx, node *uploadplan.BoundTreeRecord, mode Mode) (*result.Result, error) {
	info := result.ReportInfo{TableName: node.Name}

	// Steps 1-3: read values, trim, find the deepest non-null rank.
	type rankValue struct {
		rank     uploadplan.BoundRank
		value    string
		hasValue bool
	}
	values := make([]rankValue, len(node.Ranks))
	deepest := -1
	for i, r := range node.Ranks {
		v := strings.TrimSpace(r.Cells["name"])
		values[i] = rankValue{rank: r, value: v, hasValue: v != ""}
		if v != "" {
			deepest = i
		}
	}
	if deepest == -1 {
		return &result.Result{Outcome: result.NullRecord, Info: info}, nil
	}
	values = values[:deepest+1]

	// Step 4: root must have a value; substitute the sentinel if absent.
	if !values[0].hasValue {
		values[0].hasValue = true
		values[0].value = uploadedSentinel
	}

	// Step 5: enforced intervening ranks without a value also take the
	// sentinel; unenforced ranks without a value are dropped from the path.
	path := make([]pathStep, 0, len(values))
	for _, v := range values {
		if v.hasValue {
			path = append(path, pathStep{rankID: v.rank.RankID, name: v.value})
			continue
		}
		if v.rank.Enforced {
			path = append(path, pathStep{rankID: v.rank.RankID, name: uploadedSentinel})
		}
	}
	if len(path) == 0 {
		return &result.Result{Outcome: result.NullRecord, Info: info}, nil
	}

	// Hold the tree definition's write lease across both the match and any
	// resulting insert (spec.md §5: "tree inserts for a shared tree
	// definition are serialized"), so two rows racing to create the same
	// missing ancestor can't both observe it absent.
	release, err := tx.LockTree(ctx, node.TreeDefinitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Steps 6-8: attempt the full path, then drop the deepest item and
	// retry until a match is found or the path is exhausted.
	matchDepth := len(path)
	var ids []int64
	for matchDepth > 0 {
		found, err := tx.MatchTreePath(ctx, node.TreeDefinitionID, toTreeSteps(path[:matchDepth]))
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			ids = found
			break
		}
		matchDepth--
	}

	if matchDepth == 0 {
		// Nothing matched at any depth, not even the root.
		if mode == ModeMatchOnly {
			return &result.Result{Outcome: result.NoMatch, Info: info}, nil
		}
		return createPath(ctx, tx, node, info, path, nil, 0)
	}

	if len(ids) > 1 {
		return &result.Result{Outcome: result.MatchedMultiple, Info: info, IDs: ids}, nil
	}

	matchedID := ids[0]
	if matchDepth == len(path) {
		return &result.Result{Outcome: result.Matched, Info: info, ID: matchedID}, nil
	}

	// Step 10: match-only mode with unmatched leaf ranks fails outright.
	if mode == ModeMatchOnly {
		return &result.Result{Outcome: result.NoMatch, Info: info}, nil
	}

	// Step 9: insert the remaining items shallow-to-deep so each parent
	// exists before its child is created.
	return createPath(ctx, tx, node, info, path, &matchedID, matchDepth)
}

func createPath(ctx context.Context, tx store.Tx, node *uploadplan.BoundTreeRecord, info result.ReportInfo, path []pathStep, parent *int64, fromDepth int) (*result.Result, error) {
	currentParent := parent
	var leafID int64
	for i := fromDepth; i < len(path); i++ {
		id, err := tx.InsertTreeNode(ctx, node.TreeDefinitionID, store.TreeStep{RankID: path[i].rankID, Name: path[i].name}, currentParent)
		if err != nil {
			return nil, err
		}
		currentParent = &id
		leafID = id
	}
	return &result.Result{Outcome: result.Uploaded, Info: info, ID: leafID}, nil
}

func toTreeSteps(path []pathStep) []store.TreeStep {
	steps := make([]store.TreeStep, len(path))
	for i, p := range path {
		steps[i] = store.TreeStep{RankID: p.rankID, Name: p.name}
	}
	return steps
}
