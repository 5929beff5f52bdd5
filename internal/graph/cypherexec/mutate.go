package cypherexec

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/txn"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// execCreate stages a CREATE clause's pattern for every row, reusing a
// pattern variable already bound in row (by a prior MATCH, say) rather
// than creating a duplicate node, and creating a fresh node/relationship
// for every variable seen for the first time — matching Cypher's "bound
// variables are referenced, new variables are created" CREATE semantics.
func (ex *Executor) execCreate(ctx context.Context, tx *txn.Transaction, cl *cypher.CreateClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		r := row.Clone()
		prevID, err := ex.createOrGetNode(ctx, tx, cl.Pattern.Start, r, params)
		if err != nil {
			return nil, err
		}
		for _, step := range cl.Pattern.Steps {
			endID, err := ex.createOrGetNode(ctx, tx, step.Node, r, params)
			if err != nil {
				return nil, err
			}
			if err := ex.createRelForStep(ctx, tx, step.Rel, prevID, endID, r, params); err != nil {
				return nil, err
			}
			prevID = endID
		}
		out = append(out, r)
	}
	return out, nil
}

func (ex *Executor) createOrGetNode(ctx context.Context, tx *txn.Transaction, np *cypher.NodePattern, row Row, params map[string]value.Value) (model.NodeID, error) {
	if np.Var != "" {
		if cell, ok := row[np.Var]; ok && cell.Kind == CellNode {
			return cell.Node.ID, nil
		}
	}
	props, err := evalPropPairs(np.Props, row, params)
	if err != nil {
		return 0, err
	}
	id, err := tx.CreateNode(ctx, np.Labels, props)
	if err != nil {
		return 0, err
	}
	if np.Var != "" {
		row[np.Var] = FromNode(&model.Node{ID: id, Labels: append([]string{}, np.Labels...), Props: props})
	}
	return id, nil
}

func (ex *Executor) createRelForStep(ctx context.Context, tx *txn.Transaction, rp *cypher.RelPattern, fromID, toID model.NodeID, row Row, params map[string]value.Value) error {
	if rp.Var != "" {
		if cell, ok := row[rp.Var]; ok && cell.Kind == CellRel {
			return nil
		}
	}
	props, err := evalPropPairs(rp.Props, row, params)
	if err != nil {
		return err
	}
	relType := ""
	if len(rp.Types) > 0 {
		relType = rp.Types[0]
	}
	start, end := fromID, toID
	if rp.Direction == cypher.DirIncoming {
		start, end = toID, fromID
	}
	id, err := tx.CreateRel(ctx, start, end, relType, props)
	if err != nil {
		return err
	}
	if rp.Var != "" {
		row[rp.Var] = FromRel(&model.Relationship{ID: id, Start: start, End: end, Type: relType, Props: props})
	}
	return nil
}

func evalPropPairs(pairs []*cypher.PropPair, row Row, params map[string]value.Value) (value.Map, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(value.Map, len(pairs))
	for _, p := range pairs {
		cell, err := eval(p.Value, evalCtx{row: row, params: params})
		if err != nil {
			return nil, err
		}
		if cell.Kind != CellScalar {
			return nil, graphcode.InvalidExpression("property value must be a scalar")
		}
		out[p.Key] = cell.Scalar
	}
	return out, nil
}

// execSet applies every SetItem in cl to each row's currently-bound
// node/relationship, merging new properties onto the existing map.
func (ex *Executor) execSet(ctx context.Context, tx *txn.Transaction, cl *cypher.SetClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	for _, row := range rows {
		for _, item := range cl.Items {
			if err := ex.applySetItem(ctx, tx, item, row, params); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

func (ex *Executor) applySetItem(ctx context.Context, tx *txn.Transaction, item *cypher.SetItem, row Row, params map[string]value.Value) error {
	cell, ok := row[item.Var]
	if !ok {
		return graphcode.InvalidArgument("set", "unbound variable "+item.Var)
	}
	if item.Prop == "" {
		return graphcode.NotImplemented("SET var = expr (whole-entity map replacement)")
	}
	valCell, err := eval(item.Value, evalCtx{row: row, params: params})
	if err != nil {
		return err
	}
	if valCell.Kind != CellScalar {
		return graphcode.InvalidExpression("SET value must be a scalar")
	}
	switch cell.Kind {
	case CellNode:
		merged := cell.Node.Props.Merge(value.Map{item.Prop: valCell.Scalar})
		if err := tx.UpdateNodeProps(ctx, cell.Node.ID, value.Map{item.Prop: valCell.Scalar}); err != nil {
			return err
		}
		cell.Node.Props = merged
	case CellRel:
		merged := cell.Rel.Props.Merge(value.Map{item.Prop: valCell.Scalar})
		if err := tx.UpdateRelProps(ctx, cell.Rel.ID, value.Map{item.Prop: valCell.Scalar}); err != nil {
			return err
		}
		cell.Rel.Props = merged
	default:
		return graphcode.InvalidArgument("set", item.Var+" is not a node or relationship")
	}
	return nil
}

// execDelete removes every variable cl names from the graph. A plain
// DELETE on a node with incident relationships is rejected (Cypher
// requires DETACH DELETE for that); DETACH DELETE removes the node's
// relationships first via the engine's cascading DeleteNode.
func (ex *Executor) execDelete(ctx context.Context, tx *txn.Transaction, cl *cypher.DeleteClause, rows []Row) ([]Row, error) {
	for _, row := range rows {
		for _, v := range cl.Vars {
			cell, ok := row[v]
			if !ok {
				continue
			}
			switch cell.Kind {
			case CellNode:
				if !cl.Detach {
					connected, err := ex.nodeHasRels(ctx, cell.Node.ID)
					if err != nil {
						return nil, err
					}
					if connected {
						return nil, graphcode.InvalidArgument("delete", "node has relationships; use DETACH DELETE")
					}
				}
				if _, err := tx.DeleteNode(ctx, cell.Node.ID); err != nil {
					return nil, err
				}
			case CellRel:
				if _, err := tx.DeleteRel(ctx, cell.Rel.ID); err != nil {
					return nil, err
				}
			}
		}
	}
	return rows, nil
}

func (ex *Executor) nodeHasRels(ctx context.Context, id model.NodeID) (bool, error) {
	outIt, err := ex.eng.OutgoingRels(ctx, id)
	if err != nil {
		return false, err
	}
	if len(engine.DrainRels(outIt)) > 0 {
		return true, nil
	}
	inIt, err := ex.eng.IncomingRels(ctx, id)
	if err != nil {
		return false, err
	}
	return len(engine.DrainRels(inIt)) > 0, nil
}

// execMerge matches cl's pattern; rows that already satisfy it get
// ON MATCH SET applied, rows that don't get the pattern created (as a
// single-row CREATE) followed by ON CREATE SET. MERGE never produces a
// cartesian expansion the way MATCH does for an ambiguous pattern: only
// the first match per incoming row is kept, matching the common
// single-match MERGE usage pattern (MERGE on a uniquely-constrained key).
func (ex *Executor) execMerge(ctx context.Context, tx *txn.Transaction, cl *cypher.MergeClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	m := &matcher{ctx: ctx, eng: ex.eng, idx: ex.idx, params: params}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		matches, err := m.expandPattern(cl.Pattern, []Row{row})
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			r := matches[0]
			for _, item := range cl.OnMatch {
				if err := ex.applySetItem(ctx, tx, item, r, params); err != nil {
					return nil, err
				}
			}
			out = append(out, r)
			continue
		}
		created, err := ex.execCreate(ctx, tx, &cypher.CreateClause{Pattern: cl.Pattern}, []Row{row}, params)
		if err != nil {
			return nil, err
		}
		r := created[0]
		for _, item := range cl.OnCreate {
			if err := ex.applySetItem(ctx, tx, item, r, params); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// execForeach runs cl's nested update clauses once per element of its
// list expression, for each row, threading the same transaction so every
// iteration's writes are staged together.
func (ex *Executor) execForeach(ctx context.Context, tx *txn.Transaction, cl *cypher.ForeachClause, rows []Row, params map[string]value.Value) ([]Row, error) {
	for _, row := range rows {
		listCell, err := eval(cl.List, evalCtx{row: row, params: params})
		if err != nil {
			return nil, err
		}
		if listCell.Kind != CellList {
			continue
		}
		for _, item := range listCell.List {
			iterRow := row.Clone()
			iterRow[cl.Var] = item
			cur := []Row{iterRow}
			for _, upd := range cl.Updates {
				cur, err = ex.applyUpdateClause(ctx, tx, upd, cur, params)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return rows, nil
}

// applyUpdateClause dispatches one of FOREACH's permitted nested clause
// kinds (CREATE/SET/DELETE/MERGE/FOREACH).
func (ex *Executor) applyUpdateClause(ctx context.Context, tx *txn.Transaction, cl cypher.Clause, rows []Row, params map[string]value.Value) ([]Row, error) {
	switch c := cl.(type) {
	case *cypher.CreateClause:
		return ex.execCreate(ctx, tx, c, rows, params)
	case *cypher.SetClause:
		return ex.execSet(ctx, tx, c, rows, params)
	case *cypher.DeleteClause:
		return ex.execDelete(ctx, tx, c, rows)
	case *cypher.MergeClause:
		return ex.execMerge(ctx, tx, c, rows, params)
	case *cypher.ForeachClause:
		return ex.execForeach(ctx, tx, c, rows, params)
	default:
		return nil, graphcode.NotImplemented("FOREACH update clause type")
	}
}
