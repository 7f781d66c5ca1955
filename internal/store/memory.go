package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"bulkupload/internal/logging"
)

type record map[string]interface{}

type treeNode struct {
	id       int64
	parentID *int64
	rankID   int
	name     string
}

// MemoryStore is an in-process DataStore, useful both as a production
// store for small deployments and as the fake driving the evaluator's and
// tree matcher's tests.
//
// Simplification: MemoryStore.WithTransaction holds a single mutex across
// the entire transaction body rather than taking real per-row locks, so
// "concurrent" rows against a MemoryStore serialize completely. This
// trades PostgresStore's finer-grained row-level locking for a trivially
// correct in-memory implementation; it is not a concern for the small
// fixture datasets MemoryStore is meant to serve.
type MemoryStore struct {
	mu sync.Mutex

	tables  map[string][]record
	nextID  map[string]int64

	treeNodes      map[int64][]*treeNode
	nextTreeNodeID int64

	picklistAdditions []picklistAddition

	treeLeases map[int64]*sync.Mutex
}

type picklistAddition struct {
	picklistID int64
	caption    string
	value      string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:     make(map[string][]record),
		nextID:     make(map[string]int64),
		treeNodes:  make(map[int64][]*treeNode),
		treeLeases: make(map[int64]*sync.Mutex),
	}
}

// WithTransaction implements DataStore.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	tx := &memoryTx{store: s, ctx: ctx}
	if err := fn(tx); err != nil {
		s.restore(snapshot)
		logging.Logf(logging.Debug, "MemoryStore: transaction rolled back: %v", err)
		return err
	}
	return nil
}

type storeSnapshot struct {
	tables            map[string][]record
	nextID            map[string]int64
	treeNodes         map[int64][]*treeNode
	nextTreeNodeID    int64
	picklistAdditions []picklistAddition
}

func (s *MemoryStore) snapshot() storeSnapshot {
	tables := make(map[string][]record, len(s.tables))
	for t, recs := range s.tables {
		tables[t] = append([]record(nil), recs...)
	}
	treeNodes := make(map[int64][]*treeNode, len(s.treeNodes))
	for def, nodes := range s.treeNodes {
		treeNodes[def] = append([]*treeNode(nil), nodes...)
	}
	return storeSnapshot{
		tables:            tables,
		nextID:            copyInt64Map(s.nextID),
		treeNodes:         treeNodes,
		nextTreeNodeID:    s.nextTreeNodeID,
		picklistAdditions: append([]picklistAddition(nil), s.picklistAdditions...),
	}
}

func (s *MemoryStore) restore(snap storeSnapshot) {
	s.tables = snap.tables
	s.nextID = snap.nextID
	s.treeNodes = snap.treeNodes
	s.nextTreeNodeID = snap.nextTreeNodeID
	s.picklistAdditions = snap.picklistAdditions
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memoryTx struct {
	store *MemoryStore
	ctx   context.Context
}

func (tx *memoryTx) FindMatching(_ context.Context, table string, filter Filter) ([]int64, error) {
	var ids []int64
	for _, rec := range tx.store.tables[table] {
		if matches(rec, filter) {
			ids = append(ids, rec["id"].(int64))
		}
	}
	return ids, nil
}

func matches(rec record, filter Filter) bool {
	for k, want := range filter {
		got, present := rec[k]
		if want == nil {
			if present && got != nil {
				return false
			}
			continue
		}
		if !present || got != want {
			return false
		}
	}
	return true
}

func (tx *memoryTx) Insert(_ context.Context, table string, values map[string]interface{}) (int64, error) {
	id := tx.store.nextID[table] + 1
	tx.store.nextID[table] = id
	rec := make(record, len(values)+1)
	for k, v := range values {
		rec[k] = v
	}
	rec["id"] = id
	tx.store.tables[table] = append(tx.store.tables[table], rec)
	return id, nil
}

func (tx *memoryTx) LockTree(_ context.Context, treeDefinitionID int64) (func(), error) {
	lease, ok := tx.store.treeLeases[treeDefinitionID]
	if !ok {
		lease = &sync.Mutex{}
		tx.store.treeLeases[treeDefinitionID] = lease
	}
	lease.Lock()
	return func() { lease.Unlock() }, nil
}

// MatchTreePath matches the leaf entry of path against existing nodes by
// (rankid, name), then walks each candidate's parent chain confirming the
// remaining path entries occur, in order, among its ancestors — ranks not
// named in path (because the plan doesn't configure them) are skipped over
// rather than required to be absent. The chain must still terminate at a
// genuine null-parent root; a match needs the whole lineage to be valid,
// not merely the constrained levels (spec.md §9: "rooted at a null parent").
func (tx *memoryTx) MatchTreePath(_ context.Context, treeDefinitionID int64, path []TreeStep) ([]int64, error) {
	if len(path) == 0 {
		return nil, nil
	}
	nodes := tx.store.treeNodes[treeDefinitionID]
	byID := make(map[int64]*treeNode, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	leaf := path[len(path)-1]
	ancestors := path[:len(path)-1]

	var ids []int64
	for _, n := range nodes {
		if n.rankID != leaf.RankID || n.name != leaf.Name {
			continue
		}
		if chainSatisfies(n, ancestors, byID) {
			ids = append(ids, n.id)
		}
	}
	return ids, nil
}

// chainSatisfies walks from node's parent upward, consuming ancestorPath
// (root-to-leaf order) from its deepest remaining entry backward, and
// requires the walk to terminate at a null-parent root with every entry
// consumed.
func chainSatisfies(node *treeNode, ancestorPath []TreeStep, byID map[int64]*treeNode) bool {
	pending := len(ancestorPath) - 1
	cur := node
	for {
		if cur.parentID == nil {
			return pending < 0
		}
		parent, ok := byID[*cur.parentID]
		if !ok {
			return false
		}
		if pending >= 0 && parent.rankID == ancestorPath[pending].RankID {
			if parent.name != ancestorPath[pending].Name {
				return false
			}
			pending--
		}
		cur = parent
	}
}

func (tx *memoryTx) InsertTreeNode(_ context.Context, treeDefinitionID int64, step TreeStep, parentID *int64) (int64, error) {
	tx.store.nextTreeNodeID++
	id := tx.store.nextTreeNodeID
	n := &treeNode{id: id, parentID: parentID, rankID: step.RankID, name: step.Name}
	tx.store.treeNodes[treeDefinitionID] = append(tx.store.treeNodes[treeDefinitionID], n)
	return id, nil
}

// Collector rows carry their parent's foreign key directly (spec_full.md
// §10's collector_rules.py business rule); there is no join table.
func (tx *memoryTx) NextCollectorOrderNumber(_ context.Context, parentTable string, parentID int64) (int, error) {
	fkColumn := strings.ToLower(parentTable) + "id"
	max := -1
	for _, rec := range tx.store.tables["Collector"] {
		fk, ok := rec[fkColumn]
		if !ok || fk != parentID {
			continue
		}
		if on, ok := rec["ordernumber"].(int); ok && on > max {
			max = on
		}
	}
	return max + 1, nil
}

func (tx *memoryTx) RecordPicklistAddition(_ context.Context, picklistID int64, caption, value string) error {
	tx.store.picklistAdditions = append(tx.store.picklistAdditions, picklistAddition{picklistID: picklistID, caption: caption, value: value})
	return nil
}

func (tx *memoryTx) RenumberTree(_ context.Context, treeDefinitionID int64) error {
	nodes := tx.store.treeNodes[treeDefinitionID]
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
	logging.Logf(logging.Debug, "MemoryStore: renumbered %d nodes of tree definition %d", len(nodes), treeDefinitionID)
	return nil
}

func (tx *memoryTx) RecomputeFullNames(_ context.Context, treeDefinitionID int64) error {
	logging.Logf(logging.Debug, "MemoryStore: recomputed full names for tree definition %d", treeDefinitionID)
	return nil
}
