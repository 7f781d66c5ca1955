package uploadplan

import "fmt"

// Row is one data row keyed by column caption, as produced by a row reader.
type Row map[string]string

// BoundNode is the sum type of a plan node after binding to a single row:
// every wbcols caption has been checked present in the row (Invariant 1)
// and the row's relevant cell values are carried alongside the scoped
// shape so the evaluator never needs the row again.
type BoundNode interface {
	boundNode()
}

// BoundTable is a ScopedTable bound to one row.
type BoundTable struct {
	Kind         NodeKind
	Name         string
	WBCols       map[string]ColumnOption
	Cells        map[string]string // field name -> raw cell value from Row
	Static       map[string]interface{}
	ToOne        map[string]BoundNode
	ToMany       map[string][]*BoundTable
	DisciplineID int64
}

func (*BoundTable) boundNode() {}

// BoundRank is a ScopedRank bound to one row: Cells maps each tree column
// name (e.g. "name", "author") to the row value of its configured caption.
type BoundRank struct {
	RankName string
	RankID   int
	Enforced bool
	Cells    map[string]string
}

// BoundTreeRecord is a ScopedTreeRecord bound to one row.
type BoundTreeRecord struct {
	Name             string
	TreeDefinitionID int64
	Ranks            []BoundRank
}

func (*BoundTreeRecord) boundNode() {}

// Bind checks Invariant 1 ("every wbcols caption must exist as a key in the
// bound row") and produces a BoundNode carrying the row's raw cell values
// for each configured column, per spec.md §4.2's binding phase.
func Bind(n ScopedNode, row Row) (BoundNode, error) {
	switch v := n.(type) {
	case *ScopedTable:
		return bindTable(v, row)
	case *ScopedTreeRecord:
		return bindTreeRecord(v, row)
	default:
		return nil, fmt.Errorf("uploadplan: unknown ScopedNode implementation")
	}
}

func bindTable(t *ScopedTable, row Row) (*BoundTable, error) {
	cells := make(map[string]string, len(t.WBCols))
	for field, opt := range t.WBCols {
		value, ok := row[opt.Column]
		if !ok {
			return nil, fmt.Errorf("uploadplan: row missing column %q required by %q.%s", opt.Column, t.Name, field)
		}
		cells[field] = value
	}

	var toOne map[string]BoundNode
	if len(t.ToOne) > 0 {
		toOne = make(map[string]BoundNode, len(t.ToOne))
		for relation, child := range t.ToOne {
			bound, err := Bind(child, row)
			if err != nil {
				return nil, fmt.Errorf("uploadplan: binding toOne relation %q of %q: %w", relation, t.Name, err)
			}
			toOne[relation] = bound
		}
	}

	var toMany map[string][]*BoundTable
	if len(t.ToMany) > 0 {
		toMany = make(map[string][]*BoundTable, len(t.ToMany))
		for relation, children := range t.ToMany {
			bound := make([]*BoundTable, 0, len(children))
			for i, child := range children {
				boundChild, err := bindTable(child, row)
				if err != nil {
					return nil, fmt.Errorf("uploadplan: binding toMany relation %q of %q, item %d: %w", relation, t.Name, i, err)
				}
				bound = append(bound, boundChild)
			}
			toMany[relation] = bound
		}
	}

	return &BoundTable{
		Kind:         t.Kind,
		Name:         t.Name,
		WBCols:       t.WBCols,
		Cells:        cells,
		Static:       t.Static,
		ToOne:        toOne,
		ToMany:       toMany,
		DisciplineID: t.DisciplineID,
	}, nil
}

func bindTreeRecord(t *ScopedTreeRecord, row Row) (*BoundTreeRecord, error) {
	ranks := make([]BoundRank, 0, len(t.Ranks))
	for _, r := range t.Ranks {
		cells := make(map[string]string, len(r.Columns))
		for col, caption := range r.Columns {
			value, ok := row[caption]
			if !ok {
				return nil, fmt.Errorf("uploadplan: row missing column %q required by tree %q rank %q", caption, t.Name, r.RankName)
			}
			cells[col] = value
		}
		ranks = append(ranks, BoundRank{RankName: r.RankName, RankID: r.RankID, Enforced: r.Enforced, Cells: cells})
	}
	return &BoundTreeRecord{Name: t.Name, TreeDefinitionID: t.TreeDefinitionID, Ranks: ranks}, nil
}
