package cypherexec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/isolation"
	"github.com/r3e-network/graphdb/internal/graph/txn"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Executor drives a parsed Cypher statement against a storage engine,
// its index manager, and (for mutating statements) a transaction. It
// mirrors the fluent query.Builder's separation of "read against the
// committed engine view" from "write by staging transaction ops", just
// generalized from single-variable traversals to Cypher's full
// multi-variable pattern language.
type Executor struct {
	eng   engine.Engine
	idx   *index.Manager
	txMgr *txn.Manager
}

// New returns an Executor reading through eng/idx and opening autocommit
// transactions via txMgr when Execute is called without an explicit one.
func New(eng engine.Engine, idx *index.Manager, txMgr *txn.Manager) *Executor {
	return &Executor{eng: eng, idx: idx, txMgr: txMgr}
}

// Execute runs stmt's query. If tx is non-nil, any mutation the
// statement performs is staged on it and left for the caller to commit
// or roll back. If tx is nil, mutating statements are wrapped in a
// fresh autocommit transaction that is committed on success and rolled
// back on error; read-only statements need no transaction at all.
//
// Execute does not itself handle stmt.TxControl (BEGIN/COMMIT/ROLLBACK):
// those verbs affect a session spanning multiple statements, a scope the
// embedding facade (pkg/graphdb) owns, not a single Execute call.
func (ex *Executor) Execute(ctx context.Context, stmt *cypher.Statement, params map[string]value.Value) (*Result, error) {
	if stmt.TxControl != nil {
		return nil, graphcode.InvalidArgument("statement", "transaction control must be handled by the caller's session, not Execute")
	}
	if stmt.Query == nil {
		return &Result{}, nil
	}
	if params == nil {
		params = map[string]value.Value{}
	}

	mutating := statementMutates(stmt.Query)
	var tx *txn.Transaction
	autocommit := false
	if mutating {
		tx = ex.txMgr.Begin(txn.Options{Level: isolation.ReadCommitted})
		autocommit = true
	}

	result, err := ex.runQuery(ctx, tx, stmt.Query, params, []Row{{}})
	if autocommit {
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		resolveTempIDs(result, tx)
		return result, nil
	}
	return result, err
}

// ExecuteOn runs stmt against an explicit, caller-owned transaction,
// staging any mutation without committing it.
func (ex *Executor) ExecuteOn(ctx context.Context, tx *txn.Transaction, stmt *cypher.Statement, params map[string]value.Value) (*Result, error) {
	if stmt.TxControl != nil {
		return nil, graphcode.InvalidArgument("statement", "transaction control must be handled by the caller's session, not Execute")
	}
	if stmt.Query == nil {
		return &Result{}, nil
	}
	if params == nil {
		params = map[string]value.Value{}
	}
	return ex.runQuery(ctx, tx, stmt.Query, params, []Row{{}})
}

func statementMutates(q *cypher.Query) bool {
	if singleQueryMutates(q.First) {
		return true
	}
	for _, u := range q.Unions {
		if singleQueryMutates(u.Query) {
			return true
		}
	}
	return false
}

func singleQueryMutates(sq *cypher.SingleQuery) bool {
	for _, c := range sq.Clauses {
		switch cl := c.(type) {
		case *cypher.CreateClause, *cypher.SetClause, *cypher.DeleteClause, *cypher.MergeClause, *cypher.ForeachClause:
			return true
		case *cypher.CallClause:
			if statementMutates(cl.Subquery) {
				return true
			}
		}
	}
	return false
}

// resolveTempIDs rewrites every node/rel cell in result that still
// carries a staged temp id into its post-commit real id, so a caller
// sees the same stable ids a subsequent statement's MATCH would find.
func resolveTempIDs(result *Result, tx *txn.Transaction) {
	if result == nil {
		return
	}
	for _, row := range result.Rows {
		for k, cell := range row {
			switch cell.Kind {
			case CellNode:
				cell.Node.ID = tx.ResolveNodeID(cell.Node.ID)
				row[k] = cell
			case CellRel:
				cell.Rel.ID = tx.ResolveRelID(cell.Rel.ID)
				cell.Rel.Start = tx.ResolveNodeID(cell.Rel.Start)
				cell.Rel.End = tx.ResolveNodeID(cell.Rel.End)
				row[k] = cell
			}
		}
	}
}

// runQuery executes a (possibly UNIONed) Query, merging UNION branches'
// results and deduping unless UNION ALL. seed is the initial row set
// each branch starts from — a single empty row for a top-level
// statement, or an outer row's bindings for a CALL subquery.
func (ex *Executor) runQuery(ctx context.Context, tx *txn.Transaction, q *cypher.Query, params map[string]value.Value, seed []Row) (*Result, error) {
	first, err := ex.runSingleQuery(ctx, tx, q.First, params, seed)
	if err != nil {
		return nil, err
	}
	if len(q.Unions) == 0 {
		return first, nil
	}

	columns := first.Columns
	allRows := append([]Row{}, first.Rows...)
	dedupAll := true
	for _, u := range q.Unions {
		part, err := ex.runSingleQuery(ctx, tx, u.Query, params, seed)
		if err != nil {
			return nil, err
		}
		allRows = append(allRows, part.Rows...)
		if !u.All {
			dedupAll = false
		}
	}
	if !dedupAll {
		allRows = dedupRows(allRows, columns)
	}
	return &Result{Columns: columns, Rows: allRows}, nil
}

// runSingleQuery executes one linear clause sequence, threading the
// working row set through MATCH/mutation/projection clauses in order,
// starting from seed.
func (ex *Executor) runSingleQuery(ctx context.Context, tx *txn.Transaction, sq *cypher.SingleQuery, params map[string]value.Value, seed []Row) (*Result, error) {
	rows := seed
	var result *Result
	var err error

	for _, clause := range sq.Clauses {
		switch c := clause.(type) {
		case *cypher.MatchClause:
			rows, err = ex.execMatch(ctx, c, rows, params)
		case *cypher.CreateClause:
			rows, err = ex.execCreate(ctx, tx, c, rows, params)
		case *cypher.SetClause:
			rows, err = ex.execSet(ctx, tx, c, rows, params)
		case *cypher.DeleteClause:
			rows, err = ex.execDelete(ctx, tx, c, rows)
		case *cypher.MergeClause:
			rows, err = ex.execMerge(ctx, tx, c, rows, params)
		case *cypher.ForeachClause:
			rows, err = ex.execForeach(ctx, tx, c, rows, params)
		case *cypher.CallClause:
			rows, err = ex.execCall(ctx, tx, c, rows, params)
		case *cypher.WithClause:
			rows, err = ex.execWith(c, rows, params)
		case *cypher.ReturnClause:
			result, err = ex.execReturn(c, rows, params)
		default:
			err = fmt.Errorf("cypherexec: unsupported clause %T", clause)
		}
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = &Result{}
	}
	return result, nil
}

func (ex *Executor) execMatch(ctx context.Context, c *cypher.MatchClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	m := &matcher{ctx: ctx, eng: ex.eng, idx: ex.idx, params: params}
	perRow, err := m.expandPatternPerRow(c.Pattern, rows)
	if err != nil {
		return nil, err
	}

	var out []Row
	for i, matches := range perRow {
		if c.Where != nil && len(matches) > 0 {
			matches, err = filterRows(matches, c.Where, params)
			if err != nil {
				return nil, err
			}
		}
		if len(matches) == 0 {
			if c.Optional {
				out = append(out, rows[i])
			}
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

func filterRows(rows []Row, where cypher.Expr, params map[string]value.Value) ([]Row, error) {
	var out []Row
	for _, r := range rows {
		cell, err := eval(where, evalCtx{row: r, params: params})
		if err != nil {
			return nil, err
		}
		if ok, isBool := cell.Truthy(); isBool && ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// execCall runs cl's subquery once per outer row, carrying the outer
// row's bindings (or, for "CALL { subquery } IN (vars)", just the
// listed vars) as the subquery's starting row, and returns the
// cartesian product of each outer row with its subquery's result rows.
func (ex *Executor) execCall(ctx context.Context, tx *txn.Transaction, cl *cypher.CallClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	var out []Row
	for _, outer := range rows {
		seed := outer.Clone()
		if len(cl.InVars) > 0 {
			seed = Row{}
			for _, v := range cl.InVars {
				if cell, ok := outer[v]; ok {
					seed[v] = cell
				}
			}
		}
		sub, err := ex.runQuery(ctx, tx, cl.Subquery, params, []Row{seed})
		if err != nil {
			return nil, err
		}
		if len(sub.Rows) == 0 {
			continue
		}
		for _, subRow := range sub.Rows {
			merged := outer.Clone()
			for k, v := range subRow {
				merged[k] = v
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

func (ex *Executor) execWith(c *cypher.WithClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	aliases, projected, err := projectItems(rows, c.Items, c.Distinct, params)
	if err != nil {
		return nil, err
	}
	if c.Where != nil {
		projected, err = filterRows(projected, c.Where, params)
		if err != nil {
			return nil, err
		}
	}
	projected, err = applyOrderSkipLimit(projected, aliases, c.OrderBy, c.Skip, c.Limit, params)
	if err != nil {
		return nil, err
	}
	return projected, nil
}

func (ex *Executor) execReturn(c *cypher.ReturnClause, rows []Row, params map[string]value.Value) (*Result, error) {
	if err := checkGroupBy(c.GroupBy, c.Items); err != nil {
		return nil, err
	}
	aliases, projected, err := projectItems(rows, c.Items, c.Distinct, params)
	if err != nil {
		return nil, err
	}
	projected, err = applyOrderSkipLimit(projected, aliases, c.OrderBy, c.Skip, c.Limit, params)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: aliases, Rows: projected}, nil
}

func applyOrderSkipLimit(rows []Row, aliases []string, orderBy []*cypher.OrderItem, skipExpr, limitExpr cypher.Expr, params map[string]value.Value) ([]Row, error) {
	if len(orderBy) > 0 {
		// An ORDER BY key that names a projected column (by alias or by
		// its rendered form, e.g. "COUNT(...)" for COUNT(*)) sorts on the
		// already-computed cell; aggregates are only evaluable that way.
		columns := make(map[string]string, len(aliases))
		for _, a := range aliases {
			columns[strings.ToLower(a)] = a
		}
		keyFor := func(ord *cypher.OrderItem, r Row) (Cell, error) {
			name := aliasFor(&cypher.ReturnItem{Expr: ord.Expr})
			if col, ok := columns[strings.ToLower(name)]; ok {
				return r[col], nil
			}
			return eval(ord.Expr, evalCtx{row: r, params: params})
		}
		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			for _, ord := range orderBy {
				ci, err := keyFor(ord, rows[i])
				if err != nil {
					sortErr = err
					return false
				}
				cj, err := keyFor(ord, rows[j])
				if err != nil {
					sortErr = err
					return false
				}
				if ci.Equal(cj) {
					continue
				}
				if ci.IsNull() != cj.IsNull() {
					return cj.IsNull()
				}
				if ord.Desc {
					return cj.Less(ci)
				}
				return ci.Less(cj)
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}

	if skipExpr != nil {
		n, err := evalIntLiteral(skipExpr, params)
		if err != nil {
			return nil, err
		}
		if n >= len(rows) {
			rows = nil
		} else if n > 0 {
			rows = rows[n:]
		}
	}
	if limitExpr != nil {
		n, err := evalIntLiteral(limitExpr, params)
		if err != nil {
			return nil, err
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	return rows, nil
}

func evalIntLiteral(e cypher.Expr, params map[string]value.Value) (int, error) {
	cell, err := eval(e, evalCtx{row: Row{}, params: params})
	if err != nil {
		return 0, err
	}
	i, ok := cell.Scalar.AsInt()
	if cell.Kind != CellScalar || !ok {
		return 0, graphcode.InvalidExpression("SKIP/LIMIT must evaluate to an integer")
	}
	if i < 0 {
		return 0, graphcode.InvalidExpression("SKIP/LIMIT must be non-negative")
	}
	return int(i), nil
}
