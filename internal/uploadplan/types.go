// Package uploadplan models the recursive upload-plan data structure and
// its two compile phases (scoping against a Collection, then binding to a
// single row), per spec.md §3 and §4.2.
package uploadplan

// NodeKind distinguishes the three table-shaped plan variants; tree
// records are a separate Go type entirely (TreeRecordNode) rather than a
// fourth NodeKind, since their interior shape (ranks) has nothing in
// common with the table variants' wbcols/static/toOne/toMany shape.
type NodeKind int

const (
	KindUploadTable NodeKind = iota
	KindOneToOneUploadTable
	KindMustMatchTable
)

func (k NodeKind) String() string {
	switch k {
	case KindUploadTable:
		return "uploadTable"
	case KindOneToOneUploadTable:
		return "oneToOneTable"
	case KindMustMatchTable:
		return "mustMatchTable"
	default:
		return "unknown"
	}
}

// MatchBehavior controls whether a wbcols column participates in matching
// when its parsed value is blank, mirroring column_options.py.
type MatchBehavior int

const (
	MatchIgnoreNever MatchBehavior = iota
	MatchIgnoreWhenBlank
	MatchIgnoreAlways
)

// ColumnOption is a per-wbcols-entry refinement of the bare-caption
// shorthand: `"wbcols": {"catalognumber": "BMSM No."}` is shorthand for
// `{"catalognumber": {"column": "BMSM No."}}` with default MatchBehavior,
// NullAllowed and no Default.
type ColumnOption struct {
	Column        string
	MatchBehavior MatchBehavior
	NullAllowed   bool
	Default       *string
}

// PlanNode is the closed sum type over the three table-shaped variants and
// the tree-record variant, implemented by *TableNode and *TreeRecordNode.
type PlanNode interface {
	planNode()
}

// TableNode is the shared shape of UploadTable, OneToOneUploadTable,
// MustMatchTable and ToManyRecord entries (spec.md §3: "ToManyRecord has
// the same interior shape as UploadTable").
type TableNode struct {
	Kind   NodeKind
	Name   string
	WBCols map[string]ColumnOption
	Static map[string]interface{}
	ToOne  map[string]PlanNode
	ToMany map[string][]*TableNode
}

func (*TableNode) planNode() {}

// RankColumns maps a tree-node column name (always includes "name"; may
// also include e.g. "author") to the row caption supplying its value.
type RankColumns map[string]string

// RankEntry is one entry of a TreeRecordNode's ranks mapping; RankName is
// the tree rank's name (e.g. "Family"), matched against the schema's
// TreeDefinition by name during scoping.
type RankEntry struct {
	RankName string
	Columns  RankColumns
}

// TreeRecordNode models spec.md's `TreeRecord { name, ranks }` variant.
type TreeRecordNode struct {
	Name  string
	Ranks []RankEntry
}

func (*TreeRecordNode) planNode() {}
