package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bulkupload/internal/logging"
	"bulkupload/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPoolNewFunc allows overriding pgxpool.New for testing.
var pgxPoolNewFunc = pgxpool.New

const defaultDbTimeout = 30 * time.Second

// PostgresStore is a DataStore backed by a pgx connection pool. Every
// exported operation assumes a *pgx.Tx supplied by WithTransaction;
// table/column names are taken as-is from the caller (the evaluator and
// tree matcher), since concrete SQL is explicitly outside the data model's
// contract (spec.md §9).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connStr, expanding environment references
// the same way the rest of the driver's configuration does.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	expanded := util.ExpandEnvUniversal(connStr)
	pool, err := pgxPoolNewFunc(ctx, expanded)
	if err != nil {
		masked := util.MaskCredentials(expanded)
		return nil, fmt.Errorf("store: failed to create connection pool (using %s): %w", masked, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// WithTransaction implements DataStore.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, defaultDbTimeout)
	defer cancel()

	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			rbCtx, rbCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer rbCancel()
			if rbErr := pgTx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logging.Logf(logging.Error, "store: failed to roll back transaction: %v", rbErr)
			}
		}
	}()

	if err := fn(&postgresTx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) FindMatching(ctx context.Context, table string, filter Filter) ([]int64, error) {
	columns := make([]string, 0, len(filter))
	for col := range filter {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id FROM %s", pgx.Identifier{table}.Sanitize())
	args := make([]interface{}, 0, len(columns))
	for i, col := range columns {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		val := filter[col]
		if val == nil {
			fmt.Fprintf(&sb, "%s IS NULL", pgx.Identifier{col}.Sanitize())
			continue
		}
		args = append(args, val)
		fmt.Fprintf(&sb, "%s = $%d", pgx.Identifier{col}.Sanitize(), len(args))
	}

	rows, err := t.tx.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: FindMatching query on %q failed: %w", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: FindMatching scan on %q failed: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: FindMatching row iteration on %q failed: %w", table, err)
	}
	return ids, nil
}

func (t *postgresTx) Insert(ctx context.Context, table string, values map[string]interface{}) (int64, error) {
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quotedCols := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		quotedCols[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		pgx.Identifier{table}.Sanitize(), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

	var id int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: Insert into %q failed: %w", table, err)
	}
	return id, nil
}

// LockTree takes a Postgres advisory lock keyed by the tree definition id,
// relying on the database's own lock manager rather than an in-process
// mutex: multiple driver processes sharing one PostgresStore serialize
// correctly without additional coordination.
func (t *postgresTx) LockTree(ctx context.Context, treeDefinitionID int64) (func(), error) {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", treeDefinitionID); err != nil {
		return nil, fmt.Errorf("store: failed to acquire tree lease for definition %d: %w", treeDefinitionID, err)
	}
	// pg_advisory_xact_lock releases automatically at transaction end.
	return func() {}, nil
}

// MatchTreePath finds candidate leaf nodes by (rankid, name), then for each
// fetches its full ancestor chain via one recursive query and checks, in
// Go, that the remaining path entries occur among those ancestors in order
// (ranks the plan doesn't configure are skipped rather than required
// absent) and that the chain terminates at a genuine null-parent root
// (spec.md §9: "rooted at a null parent"). A single recursive query per
// candidate keeps the SQL itself simple; the subsequence check is ordinary
// sum-type matching identical to MemoryStore's.
func (t *postgresTx) MatchTreePath(ctx context.Context, treeDefinitionID int64, path []TreeStep) ([]int64, error) {
	if len(path) == 0 {
		return nil, nil
	}
	leaf := path[len(path)-1]
	ancestorPath := path[:len(path)-1]

	leafRows, err := t.tx.Query(ctx,
		"SELECT id FROM treenode WHERE treedefinitionid = $1 AND rankid = $2 AND name = $3",
		treeDefinitionID, leaf.RankID, leaf.Name)
	if err != nil {
		return nil, fmt.Errorf("store: MatchTreePath leaf query failed for definition %d: %w", treeDefinitionID, err)
	}
	var leafIDs []int64
	for leafRows.Next() {
		var id int64
		if err := leafRows.Scan(&id); err != nil {
			leafRows.Close()
			return nil, fmt.Errorf("store: MatchTreePath leaf scan failed: %w", err)
		}
		leafIDs = append(leafIDs, id)
	}
	if err := leafRows.Err(); err != nil {
		leafRows.Close()
		return nil, err
	}
	leafRows.Close()

	var matched []int64
	for _, id := range leafIDs {
		chain, reachedRoot, err := t.ancestorChain(ctx, id)
		if err != nil {
			return nil, err
		}
		if reachedRoot && treeStepChainSatisfies(chain, ancestorPath) {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

type ancestorRow struct {
	rankID int
	name   string
}

// ancestorChain returns nodeID's ancestors ordered immediate-parent first,
// along with whether the chain reaches a genuine null-parented root. It
// does not include nodeID itself.
func (t *postgresTx) ancestorChain(ctx context.Context, nodeID int64) ([]ancestorRow, bool, error) {
	rows, err := t.tx.Query(ctx, `
WITH RECURSIVE chain AS (
	SELECT id, parentid, rankid, name, 0 AS depth FROM treenode WHERE id = $1
	UNION ALL
	SELECT n.id, n.parentid, n.rankid, n.name, c.depth + 1
	FROM treenode n JOIN chain c ON n.id = c.parentid
)
SELECT rankid, name, parentid FROM chain ORDER BY depth ASC
`, nodeID)
	if err != nil {
		return nil, false, fmt.Errorf("store: ancestorChain query failed for node %d: %w", nodeID, err)
	}
	defer rows.Close()

	var chain []ancestorRow
	reachedRoot := false
	first := true
	for rows.Next() {
		var rankID int
		var name string
		var parentID *int64
		if err := rows.Scan(&rankID, &name, &parentID); err != nil {
			return nil, false, fmt.Errorf("store: ancestorChain scan failed for node %d: %w", nodeID, err)
		}
		if first {
			// the leaf node itself; not part of its own ancestor chain
			first = false
		} else {
			chain = append(chain, ancestorRow{rankID: rankID, name: name})
		}
		if parentID == nil {
			reachedRoot = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return chain, reachedRoot, nil
}

func treeStepChainSatisfies(chain []ancestorRow, ancestorPath []TreeStep) bool {
	pending := len(ancestorPath) - 1
	for _, anc := range chain {
		if pending < 0 {
			break
		}
		if anc.rankID == ancestorPath[pending].RankID {
			if anc.name != ancestorPath[pending].Name {
				return false
			}
			pending--
		}
	}
	return pending < 0
}

func (t *postgresTx) InsertTreeNode(ctx context.Context, treeDefinitionID int64, step TreeStep, parentID *int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		"INSERT INTO treenode (treedefinitionid, parentid, rankid, name) VALUES ($1, $2, $3, $4) RETURNING id",
		treeDefinitionID, parentID, step.RankID, step.Name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: InsertTreeNode failed for definition %d: %w", treeDefinitionID, err)
	}
	return id, nil
}

// NextCollectorOrderNumber scans Collector directly: it carries its
// parent's foreign key inline rather than through a join table
// (spec_full.md §10's collector_rules.py business rule).
func (t *postgresTx) NextCollectorOrderNumber(ctx context.Context, parentTable string, parentID int64) (int, error) {
	fkColumn := strings.ToLower(parentTable) + "id"
	query := fmt.Sprintf("SELECT COALESCE(MAX(ordernumber), -1) + 1 FROM %s WHERE %s = $1",
		pgx.Identifier{"Collector"}.Sanitize(), pgx.Identifier{fkColumn}.Sanitize())
	var next int
	if err := t.tx.QueryRow(ctx, query, parentID).Scan(&next); err != nil {
		return 0, fmt.Errorf("store: NextCollectorOrderNumber query on Collector failed: %w", err)
	}
	return next, nil
}

func (t *postgresTx) RecordPicklistAddition(ctx context.Context, picklistID int64, caption, value string) error {
	_, err := t.tx.Exec(ctx, "INSERT INTO picklistitem (picklistid, title, value) VALUES ($1, $2, $3)", picklistID, caption, value)
	if err != nil {
		return fmt.Errorf("store: RecordPicklistAddition failed for picklist %d: %w", picklistID, err)
	}
	return nil
}

func (t *postgresTx) RenumberTree(ctx context.Context, treeDefinitionID int64) error {
	_, err := t.tx.Exec(ctx, "SELECT renumber_tree($1)", treeDefinitionID)
	if err != nil {
		return fmt.Errorf("store: RenumberTree failed for definition %d: %w", treeDefinitionID, err)
	}
	return nil
}

func (t *postgresTx) RecomputeFullNames(ctx context.Context, treeDefinitionID int64) error {
	_, err := t.tx.Exec(ctx, "SELECT recompute_tree_fullnames($1)", treeDefinitionID)
	if err != nil {
		return fmt.Errorf("store: RecomputeFullNames failed for definition %d: %w", treeDefinitionID, err)
	}
	return nil
}
