package uploadplan

import (
	"fmt"
	"strings"

	"bulkupload/internal/schema"
)

// Collection is the scoping context a plan is resolved against: the
// discipline identifier flows into scoped nodes' DisciplineID; the
// schema.Provider resolves tree definitions. Scoping adds no
// collection-specific defaults to Static; the only values it adds there
// are to-many ordernumbers.
type Collection struct {
	ID           int64
	DisciplineID int64
}

// ScopedNode is the sum type of a plan after collection scoping; its
// shapes parallel PlanNode's (spec.md §9: "parallel sum types").
type ScopedNode interface {
	scopedNode()
}

// ScopedTable carries everything TableNode did, plus the discipline id
// resolved for this collection and any scoping-default overlay merged
// into Static (e.g. positional ordernumbers for to-many slots).
type ScopedTable struct {
	Kind         NodeKind
	Name         string
	WBCols       map[string]ColumnOption
	Static       map[string]interface{}
	ToOne        map[string]ScopedNode
	ToMany       map[string][]*ScopedTable
	DisciplineID int64
}

func (*ScopedTable) scopedNode() {}

// ScopedRank is one rank of a scoped tree record, with its schema-resolved
// RankID and Enforced flag attached and its row-caption columns carried
// forward.
type ScopedRank struct {
	RankName string
	RankID   int
	Enforced bool
	Columns  RankColumns
}

// ScopedTreeRecord is a TreeRecordNode after the tree definition for the
// collection's discipline has been resolved. Ranks is reordered to the
// tree definition's root-to-leaf order (ascending RankID); ranks present
// in the plan but absent from the tree definition are rejected as a
// structural error.
type ScopedTreeRecord struct {
	Name             string
	TreeDefinitionID int64
	Ranks            []ScopedRank
}

func (*ScopedTreeRecord) scopedNode() {}

// relationsWithDeferredOrdering lists to-many relations whose ordernumber
// default is NOT assigned at scoping time because it depends on store
// state observed per parent at evaluation time (the collector ordernumber
// business rule, spec_full.md §10). All other to-many relations get a
// dense positional default here.
var relationsWithDeferredOrdering = map[string]bool{
	"collectors": true,
}

// Scope resolves n against coll using provider for tree-definition lookup,
// producing a ScopedNode per spec.md §4.2.
func Scope(n PlanNode, coll *Collection, provider schema.Provider) (ScopedNode, error) {
	switch v := n.(type) {
	case *TableNode:
		return scopeTable(v, coll, provider)
	case *TreeRecordNode:
		return scopeTreeRecord(v, coll, provider)
	default:
		return nil, fmt.Errorf("uploadplan: unknown PlanNode implementation")
	}
}

func scopeTable(t *TableNode, coll *Collection, provider schema.Provider) (*ScopedTable, error) {
	static := make(map[string]interface{}, len(t.Static))
	for k, v := range t.Static {
		static[k] = v
	}

	var toOne map[string]ScopedNode
	if len(t.ToOne) > 0 {
		toOne = make(map[string]ScopedNode, len(t.ToOne))
		for relation, child := range t.ToOne {
			scoped, err := Scope(child, coll, provider)
			if err != nil {
				return nil, fmt.Errorf("uploadplan: scoping toOne relation %q of %q: %w", relation, t.Name, err)
			}
			toOne[relation] = scoped
		}
	}

	var toMany map[string][]*ScopedTable
	if len(t.ToMany) > 0 {
		toMany = make(map[string][]*ScopedTable, len(t.ToMany))
		for relation, children := range t.ToMany {
			scopedChildren := make([]*ScopedTable, 0, len(children))
			deferOrdering := relationsWithDeferredOrdering[strings.ToLower(relation)]
			for i, child := range children {
				scopedChild, err := scopeTable(child, coll, provider)
				if err != nil {
					return nil, fmt.Errorf("uploadplan: scoping toMany relation %q of %q, item %d: %w", relation, t.Name, i, err)
				}
				if !deferOrdering {
					if _, has := scopedChild.Static["ordernumber"]; !has {
						scopedChild.Static["ordernumber"] = i
					}
				}
				scopedChildren = append(scopedChildren, scopedChild)
			}
			toMany[relation] = scopedChildren
		}
	}

	return &ScopedTable{
		Kind:         t.Kind,
		Name:         t.Name,
		WBCols:       t.WBCols,
		Static:       static,
		ToOne:        toOne,
		ToMany:       toMany,
		DisciplineID: coll.DisciplineID,
	}, nil
}

func scopeTreeRecord(t *TreeRecordNode, coll *Collection, provider schema.Provider) (*ScopedTreeRecord, error) {
	def, ok := provider.TreeDefinition(t.Name, coll.DisciplineID)
	if !ok {
		return nil, fmt.Errorf("uploadplan: no tree definition for table %q in discipline %d", t.Name, coll.DisciplineID)
	}

	byName := make(map[string]RankEntry, len(t.Ranks))
	for _, entry := range t.Ranks {
		byName[entry.RankName] = entry
	}

	ranks := make([]ScopedRank, 0, len(t.Ranks))
	for _, r := range def.Ranks {
		entry, present := byName[r.Name]
		if !present {
			continue
		}
		ranks = append(ranks, ScopedRank{
			RankName: r.Name,
			RankID:   r.RankID,
			Enforced: r.Enforced,
			Columns:  entry.Columns,
		})
		delete(byName, r.Name)
	}
	if len(byName) > 0 {
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		return nil, fmt.Errorf("uploadplan: plan rank(s) %v not present in tree definition for %q", names, t.Name)
	}

	return &ScopedTreeRecord{Name: t.Name, TreeDefinitionID: def.ID, Ranks: ranks}, nil
}
