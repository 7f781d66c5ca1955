package uploadplan

import (
	"testing"

	"bulkupload/internal/schema"
)

func TestScope_ToManyOrdernumberDefaulted(t *testing.T) {
	plan := &TableNode{
		Kind: KindUploadTable,
		Name: "collectionobject",
		ToMany: map[string][]*TableNode{
			"determinations": {
				{Kind: KindUploadTable, Name: "determination"},
				{Kind: KindUploadTable, Name: "determination"},
			},
		},
	}

	provider := schema.NewMemoryProvider()
	scoped, err := Scope(plan, &Collection{ID: 1, DisciplineID: 2}, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := scoped.(*ScopedTable)
	dets := table.ToMany["determinations"]
	if len(dets) != 2 {
		t.Fatalf("expected 2 determinations, got %d", len(dets))
	}
	if dets[0].Static["ordernumber"] != 0 || dets[1].Static["ordernumber"] != 1 {
		t.Errorf("expected dense positional ordernumbers 0,1; got %v, %v", dets[0].Static["ordernumber"], dets[1].Static["ordernumber"])
	}
}

func TestScope_CollectorsOrdernumberDeferred(t *testing.T) {
	plan := &TableNode{
		Kind: KindUploadTable,
		Name: "collectingevent",
		ToMany: map[string][]*TableNode{
			"collectors": {
				{Kind: KindUploadTable, Name: "collector"},
			},
		},
	}

	provider := schema.NewMemoryProvider()
	scoped, err := Scope(plan, &Collection{ID: 1, DisciplineID: 2}, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := scoped.(*ScopedTable)
	collectors := table.ToMany["collectors"]
	if _, has := collectors[0].Static["ordernumber"]; has {
		t.Errorf("expected collectors ordernumber to be left unset at scoping time, got %v", collectors[0].Static["ordernumber"])
	}
}

func TestScope_TreeRecordReordersAndResolvesRankID(t *testing.T) {
	provider := schema.NewMemoryProvider()
	provider.SetTreeDefinition("taxon", 2, schema.TreeDefinition{
		ID: 99,
		Ranks: []schema.Rank{
			{Name: "Kingdom", RankID: 10},
			{Name: "Family", RankID: 140, Enforced: true},
			{Name: "Genus", RankID: 180},
		},
	})

	plan := &TreeRecordNode{
		Name: "taxon",
		Ranks: []RankEntry{
			{RankName: "Genus", Columns: RankColumns{"name": "Genus"}},
			{RankName: "Family", Columns: RankColumns{"name": "Family"}},
		},
	}

	scoped, err := Scope(plan, &Collection{ID: 1, DisciplineID: 2}, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree := scoped.(*ScopedTreeRecord)
	if tree.TreeDefinitionID != 99 {
		t.Errorf("expected tree definition id 99, got %d", tree.TreeDefinitionID)
	}
	if len(tree.Ranks) != 2 || tree.Ranks[0].RankName != "Family" || tree.Ranks[1].RankName != "Genus" {
		t.Fatalf("expected ranks reordered root-to-leaf (Family before Genus), got %+v", tree.Ranks)
	}
	if !tree.Ranks[0].Enforced {
		t.Errorf("expected Family to carry the enforced flag from the tree definition")
	}
	if tree.Ranks[1].RankID != 180 {
		t.Errorf("expected Genus rank id 180, got %d", tree.Ranks[1].RankID)
	}
}

func TestScope_UnknownRankRejected(t *testing.T) {
	provider := schema.NewMemoryProvider()
	provider.SetTreeDefinition("taxon", 2, schema.TreeDefinition{
		ID:    99,
		Ranks: []schema.Rank{{Name: "Kingdom", RankID: 10}},
	})
	plan := &TreeRecordNode{
		Name:  "taxon",
		Ranks: []RankEntry{{RankName: "Species", Columns: RankColumns{"name": "Species"}}},
	}
	_, err := Scope(plan, &Collection{ID: 1, DisciplineID: 2}, provider)
	if err == nil {
		t.Fatalf("expected error for a plan rank absent from the tree definition")
	}
}

func TestScope_MissingTreeDefinitionRejected(t *testing.T) {
	provider := schema.NewMemoryProvider()
	plan := &TreeRecordNode{Name: "taxon"}
	_, err := Scope(plan, &Collection{ID: 1, DisciplineID: 2}, provider)
	if err == nil {
		t.Fatalf("expected error when no tree definition is registered")
	}
}
