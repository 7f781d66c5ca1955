package treematch

import (
	"context"
	"testing"

	"bulkupload/internal/result"
	"bulkupload/internal/store"
	"bulkupload/internal/uploadplan"
)

var taxonRankIDs = map[string]int{
	"Kingdom": 10, "Phylum": 30, "Class": 60, "Family": 140, "Genus": 180, "Species": 220,
}

// taxonRanks builds the BoundRank list a plan would carry: only ranks the
// plan actually configures appear at all (configured), in root-to-leaf
// order; values supplies this row's cell content for some of them (the
// rest are configured-but-blank), and enforced flags any as enforced.
func taxonRanks(configured []string, values map[string]string, enforced map[string]bool) []uploadplan.BoundRank {
	ranks := make([]uploadplan.BoundRank, 0, len(configured))
	for _, name := range configured {
		ranks = append(ranks, uploadplan.BoundRank{
			RankName: name,
			RankID:   taxonRankIDs[name],
			Enforced: enforced[name],
			Cells:    map[string]string{"name": values[name]},
		})
	}
	return ranks
}

func seedMollusca(t *testing.T, tx store.Tx) int64 {
	t.Helper()
	ctx := context.Background()
	animalia, err := tx.InsertTreeNode(ctx, 1, store.TreeStep{RankID: 10, Name: "Animalia"}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	mollusca, err := tx.InsertTreeNode(ctx, 1, store.TreeStep{RankID: 30, Name: "Mollusca"}, &animalia)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	gastropoda, err := tx.InsertTreeNode(ctx, 1, store.TreeStep{RankID: 60, Name: "Gastropoda"}, &mollusca)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	helicidae, err := tx.InsertTreeNode(ctx, 1, store.TreeStep{RankID: 140, Name: "Helicidae"}, &gastropoda)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return helicidae
}

func TestMatch_DeepestMatchInsertsOnlyBelowMatchedDepth(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	var res *result.Result
	_ = s.WithTransaction(ctx, func(tx store.Tx) error {
		seedMollusca(t, tx)
		node := &uploadplan.BoundTreeRecord{
			Name:             "taxon",
			TreeDefinitionID: 1,
			Ranks: taxonRanks([]string{"Class", "Family", "Species"}, map[string]string{
				"Class":   "Gastropoda",
				"Family":  "Helicidae",
				"Species": "Cepaea nemoralis",
			}, nil),
		}
		var err error
		res, err = Match(ctx, tx, node, ModeCreate)
		return err
	})
	if res.Outcome != result.Uploaded {
		t.Fatalf("expected Uploaded, got %v", res.Outcome)
	}

	// Idempotence: running the exact same row again must yield Matched
	// with the same species id, not a second insertion.
	var res2 *result.Result
	_ = s.WithTransaction(ctx, func(tx store.Tx) error {
		node := &uploadplan.BoundTreeRecord{
			Name:             "taxon",
			TreeDefinitionID: 1,
			Ranks: taxonRanks([]string{"Class", "Family", "Species"}, map[string]string{
				"Class":   "Gastropoda",
				"Family":  "Helicidae",
				"Species": "Cepaea nemoralis",
			}, nil),
		}
		var err error
		res2, err = Match(ctx, tx, node, ModeCreate)
		return err
	})
	if res2.Outcome != result.Matched {
		t.Fatalf("expected Matched on second run (tree idempotence), got %v", res2.Outcome)
	}
	if res2.ID != res.ID {
		t.Errorf("expected same species id on repeated upload, got %d and %d", res.ID, res2.ID)
	}
}

func TestMatch_NoValuesYieldsNullRecord(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	var res *result.Result
	_ = s.WithTransaction(ctx, func(tx store.Tx) error {
		node := &uploadplan.BoundTreeRecord{Name: "taxon", TreeDefinitionID: 1, Ranks: taxonRanks([]string{"Class", "Family", "Species"}, nil, nil)}
		var err error
		res, err = Match(ctx, tx, node, ModeCreate)
		return err
	})
	if res.Outcome != result.NullRecord {
		t.Fatalf("expected NullRecord, got %v", res.Outcome)
	}
}

func TestMatch_EnforcedMissingAncestorGetsSentinel(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	var res *result.Result
	_ = s.WithTransaction(ctx, func(tx store.Tx) error {
		node := &uploadplan.BoundTreeRecord{
			Name:             "taxon",
			TreeDefinitionID: 1,
			Ranks: taxonRanks([]string{"Kingdom", "Family"}, map[string]string{
				"Family": "Helicidae",
			}, map[string]bool{"Kingdom": true}),
		}
		var err error
		res, err = Match(ctx, tx, node, ModeCreate)
		return err
	})
	if res.Outcome != result.Uploaded {
		t.Fatalf("expected Uploaded, got %v", res.Outcome)
	}
	_ = s.WithTransaction(ctx, func(tx store.Tx) error {
		ids, err := tx.MatchTreePath(ctx, 1, []store.TreeStep{{RankID: 10, Name: "Uploaded"}, {RankID: 140, Name: "Helicidae"}})
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			t.Errorf("expected the enforced Kingdom ancestor to be synthesized as 'Uploaded', got %v", ids)
		}
		return nil
	})
}

func TestMatch_MatchOnlyModeNeverWrites(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	var res *result.Result
	_ = s.WithTransaction(ctx, func(tx store.Tx) error {
		seedMollusca(t, tx)
		node := &uploadplan.BoundTreeRecord{
			Name:             "taxon",
			TreeDefinitionID: 1,
			Ranks: taxonRanks([]string{"Family", "Species"}, map[string]string{
				"Family":  "Helicidae",
				"Species": "Cepaea nemoralis",
			}, nil),
		}
		var err error
		res, err = Match(ctx, tx, node, ModeMatchOnly)
		return err
	})
	if res.Outcome != result.NoMatch {
		t.Fatalf("expected NoMatch in match-only mode with an unmatched leaf, got %v", res.Outcome)
	}
}
