// Package store defines the persistence abstraction the evaluator and tree
// matcher are written against: "records of table T whose named fields equal
// a filter, and tree nodes of a definition whose (rankid, name) chain
// matches along the parent relation" (spec.md §9). Concrete SQL is never
// part of the contract; MemoryStore and PostgresStore are two independent
// realizations of the same semantics.
package store

import "context"

// Filter is an exact-match conjunction: every key/value pair must equal the
// stored record's field. A nil value matches a NULL column.
type Filter map[string]interface{}

// TreeStep is one (rankid, name) pair along a tree path, root-to-leaf.
type TreeStep struct {
	RankID int
	Name   string
}

// DataStore is the persistence boundary the driver constructs once per run.
type DataStore interface {
	// WithTransaction runs fn inside one atomic transaction, committing on a
	// nil return and rolling back otherwise (spec.md §5: "each row must
	// execute inside its own atomic transaction").
	WithTransaction(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of operations available within one row's transaction.
type Tx interface {
	// FindMatching returns the ids of records of table whose fields satisfy
	// filter exactly. Zero, one, or many results are all valid outcomes.
	FindMatching(ctx context.Context, table string, filter Filter) ([]int64, error)

	// Insert creates a record of table with the given field values and
	// returns its new id.
	Insert(ctx context.Context, table string, values map[string]interface{}) (int64, error)

	// LockTree acquires the write lease for one tree definition's rank chain
	// (spec.md §5: "hold a per-tree-definition write lease, or run
	// sequentially"). The returned func releases it; callers must call it
	// exactly once.
	LockTree(ctx context.Context, treeDefinitionID int64) (func(), error)

	// MatchTreePath attempts to match path (root-to-leaf, in order) against
	// existing tree nodes joined by parent up to a null-parented root. It
	// returns the ids of the node(s) matching the path's last step whose
	// ancestor chain carries every earlier step (nodes of unlisted ranks may
	// sit between them); an empty result means the whole path did not match.
	// Shorter prefixes are not tried here.
	MatchTreePath(ctx context.Context, treeDefinitionID int64, path []TreeStep) ([]int64, error)

	// InsertTreeNode creates one tree node under parentID (nil for a root)
	// and returns its new id.
	InsertTreeNode(ctx context.Context, treeDefinitionID int64, step TreeStep, parentID *int64) (int64, error)

	// NextCollectorOrderNumber returns max(existing ordernumber)+1 for
	// children of parentID in the collectors relation of parentTable,
	// or 0 if none exist yet. This is the one to-many relation whose
	// ordering is NOT assigned densely at scoping time (spec_full.md §10).
	NextCollectorOrderNumber(ctx context.Context, parentTable string, parentID int64) (int, error)

	// RecordPicklistAddition persists a user-extensible picklist's new item.
	RecordPicklistAddition(ctx context.Context, picklistID int64, caption, value string) error

	// RenumberTree and RecomputeFullNames are the tree post-pass operations
	// for one tree definition. The driver in internal/app does not call
	// them; a run leaves node numbering and full names as the inserts set
	// them.
	RenumberTree(ctx context.Context, treeDefinitionID int64) error
	RecomputeFullNames(ctx context.Context, treeDefinitionID int64) error
}
