package cypherexec

import (
	"context"
	"fmt"
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// matcher resolves cypher.PatternPath graph patterns against the
// committed storage state. It never sees a transaction's staged writes
// (Transaction exposes no traversal API, only point lookups — the same
// simplification the fluent query.Builder already makes), so a MATCH
// inside an explicit transaction sees the graph as of the last commit,
// not its own uncommitted CREATEs.
type matcher struct {
	ctx    context.Context
	eng    engine.Engine
	idx    *index.Manager
	params map[string]value.Value
}

// expandPattern extends every row in rows with every way pattern can be
// satisfied, returning the (generally larger) set of extended rows. A
// row that cannot satisfy the pattern at all is dropped; callers
// implementing OPTIONAL MATCH re-add a null-bound copy for rows that
// produced zero extensions.
func (m *matcher) expandPattern(pattern *cypher.PatternPath, rows []Row) ([]Row, error) {
	perRow, err := m.expandPatternPerRow(pattern, rows)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, group := range perRow {
		out = append(out, group...)
	}
	return out, nil
}

// expandPatternPerRow is expandPattern's per-input-row form, letting
// OPTIONAL MATCH tell "zero matches" apart from "matched but filtered",
// row by row, rather than from one flattened slice.
func (m *matcher) expandPatternPerRow(pattern *cypher.PatternPath, rows []Row) ([][]Row, error) {
	out := make([][]Row, len(rows))
	for i, row := range rows {
		starts, err := m.resolveNodeCandidates(pattern.Start, row)
		if err != nil {
			return nil, err
		}
		var frontier []Row
		for _, n := range starts {
			r := row.Clone()
			r[bindKey(pattern.Start)] = FromNode(n)
			frontier = append(frontier, r)
		}
		for j, step := range pattern.Steps {
			// Each hop traverses outward from the node the previous
			// step bound: the pattern's start for the first step, the
			// prior step's node pattern thereafter.
			from := pattern.Start
			if j > 0 {
				from = pattern.Steps[j-1].Node
			}
			var next []Row
			for _, r := range frontier {
				extended, err := m.expandStep(step, bindKey(from), r)
				if err != nil {
					return nil, err
				}
				next = append(next, extended...)
			}
			frontier = next
		}
		out[i] = frontier
	}
	return out, nil
}

// resolveNodeCandidates returns every node consistent with np given the
// variable bindings already in row: the node already bound to np.Var if
// any, otherwise every node satisfying np's labels and literal
// properties (via the exact index when a (label, prop) pair is
// declared, else a full scan).
func (m *matcher) resolveNodeCandidates(np *cypher.NodePattern, row Row) ([]*model.Node, error) {
	if np.Var != "" {
		if cell, ok := row[np.Var]; ok {
			if cell.Kind != CellNode {
				return nil, nil
			}
			if nodeMatches(cell.Node, np, row, m.params) {
				return []*model.Node{cell.Node}, nil
			}
			return nil, nil
		}
	}

	if len(np.Labels) == 1 && len(np.Props) >= 1 && m.idx != nil {
		label := np.Labels[0]
		if pair := np.Props[0]; m.idx.Schema().HasExact(label, pair.Key) {
			v, err := m.evalPropLiteral(pair.Value, row)
			if err == nil {
				ids := m.idx.Exact().Find(label, pair.Key, v)
				nodes := make([]*model.Node, 0, len(ids))
				for _, id := range ids {
					n, found, err := m.eng.GetNode(m.ctx, id)
					if err != nil {
						return nil, err
					}
					if found && nodeMatches(n, np, row, m.params) {
						nodes = append(nodes, n)
					}
				}
				return nodes, nil
			}
		}
	}

	it, err := m.eng.AllNodes(m.ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Node
	for _, n := range engine.Drain(it) {
		if nodeMatches(n, np, row, m.params) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *matcher) evalPropLiteral(e cypher.Expr, row Row) (value.Value, error) {
	cell, err := eval(e, evalCtx{row: row, params: m.params})
	if err != nil {
		return value.Value{}, err
	}
	if cell.Kind != CellScalar {
		return value.Value{}, errNotScalar
	}
	return cell.Scalar, nil
}

var errNotScalar = &mismatchError{"pattern property literal did not evaluate to a scalar"}

type mismatchError struct{ msg string }

func (e *mismatchError) Error() string { return e.msg }

func nodeMatches(n *model.Node, np *cypher.NodePattern, row Row, params map[string]value.Value) bool {
	for _, label := range np.Labels {
		if !n.HasLabel(label) {
			return false
		}
	}
	for _, pair := range np.Props {
		cell, err := eval(pair.Value, evalCtx{row: row, params: params})
		if err != nil || cell.Kind != CellScalar {
			return false
		}
		v, ok := n.Props[pair.Key]
		if !ok || !v.Equal(cell.Scalar) {
			return false
		}
	}
	return true
}

func relMatches(r *model.Relationship, rp *cypher.RelPattern, row Row, params map[string]value.Value) bool {
	if len(rp.Types) > 0 {
		found := false
		for _, t := range rp.Types {
			if r.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, pair := range rp.Props {
		cell, err := eval(pair.Value, evalCtx{row: row, params: params})
		if err != nil || cell.Kind != CellScalar {
			return false
		}
		v, ok := r.Props[pair.Key]
		if !ok || !v.Equal(cell.Scalar) {
			return false
		}
	}
	return true
}

// expandStep extends row with every way step's relationship and node can
// be satisfied starting from the node bound under fromKey (the binding
// key of the step's left-hand pattern node, already in row by the time
// expandStep runs — callers chain steps left to right).
func (m *matcher) expandStep(step *cypher.PathStep, fromKey string, row Row) ([]Row, error) {
	fromCell, ok := row[fromKey]
	if !ok || fromCell.Kind != CellNode {
		return nil, nil
	}
	fromID := fromCell.Node.ID

	if step.Rel.VarLength != nil {
		return m.expandVarLengthStep(step, fromID, row)
	}

	rels, err := m.oneHopRels(fromID, step.Rel.Direction)
	if err != nil {
		return nil, err
	}

	var out []Row
	for _, hop := range rels {
		if !relMatches(hop.rel, step.Rel, row, m.params) {
			continue
		}
		endNode, found, err := m.eng.GetNode(m.ctx, hop.other)
		if err != nil {
			return nil, err
		}
		if !found || !nodeMatches(endNode, step.Node, row, m.params) {
			continue
		}
		if step.Node.Var != "" {
			if existing, bound := row[step.Node.Var]; bound && (existing.Kind != CellNode || existing.Node.ID != endNode.ID) {
				continue
			}
		}
		r := row.Clone()
		if step.Rel.Var != "" {
			r[step.Rel.Var] = FromRel(hop.rel)
		}
		// The step's node binding becomes the "from" binding for any
		// subsequent step; an unnamed node still needs a slot so the
		// next hop can find its frontier.
		r[bindKey(step.Node)] = FromNode(endNode)
		out = append(out, r)
	}
	return out, nil
}

// bindKey is the row key a pattern node's binding lives under: its
// variable name, or a private placeholder scoped to the node pattern's
// own address so two different anonymous nodes in one pattern never
// collide.
func bindKey(np *cypher.NodePattern) string {
	if np.Var != "" {
		return np.Var
	}
	return fmt.Sprintf("\x00anon%p", np)
}

type hopRel struct {
	rel   *model.Relationship
	other model.NodeID
}

func (m *matcher) oneHopRels(from model.NodeID, dir cypher.RelDirection) ([]hopRel, error) {
	var out []hopRel
	if dir == cypher.DirOutgoing || dir == cypher.DirEither {
		it, err := m.eng.OutgoingRels(m.ctx, from)
		if err != nil {
			return nil, err
		}
		for _, r := range engine.DrainRels(it) {
			out = append(out, hopRel{rel: r, other: r.End})
		}
	}
	if dir == cypher.DirIncoming || dir == cypher.DirEither {
		it, err := m.eng.IncomingRels(m.ctx, from)
		if err != nil {
			return nil, err
		}
		for _, r := range engine.DrainRels(it) {
			out = append(out, hopRel{rel: r, other: r.Start})
		}
	}
	return out, nil
}

// maxVarLengthDepth caps open-ended variable-length patterns (`*`,
// `*2..`): with no explicit upper bound the BFS stops after this many
// hops. Nodes farther than the cap are not matched; a pattern that
// needs more must spell its upper bound out.
const maxVarLengthDepth = 32

// expandVarLengthStep performs a bounded BFS from fromID along step's
// relationship type/direction filter, binding the node var to every
// node first reached within [min, max] hops and the rel var (if named)
// to the list of relationships traversed along that node's discovery
// path. Results are ordered by end-node id.
func (m *matcher) expandVarLengthStep(step *cypher.PathStep, fromID model.NodeID, row Row) ([]Row, error) {
	vl := step.Rel.VarLength
	min := 1
	if vl.Min != nil {
		min = *vl.Min
	}
	max := maxVarLengthDepth
	if vl.Max != nil {
		max = *vl.Max
	}
	if max < min {
		return nil, nil
	}

	type discovery struct {
		depth int
		via   *model.Relationship
		from  model.NodeID
	}
	visited := map[model.NodeID]discovery{fromID: {depth: 0}}
	frontier := []model.NodeID{fromID}

	for depth := 1; depth <= max && len(frontier) > 0; depth++ {
		var nextFrontier []model.NodeID
		for _, cur := range frontier {
			hops, err := m.oneHopRels(cur, step.Rel.Direction)
			if err != nil {
				return nil, err
			}
			for _, hop := range hops {
				if !relMatches(hop.rel, step.Rel, row, m.params) {
					continue
				}
				if _, seen := visited[hop.other]; seen {
					continue
				}
				visited[hop.other] = discovery{depth: depth, via: hop.rel, from: cur}
				nextFrontier = append(nextFrontier, hop.other)
			}
		}
		frontier = nextFrontier
	}

	reached := make([]model.NodeID, 0, len(visited))
	for id := range visited {
		reached = append(reached, id)
	}
	sort.Slice(reached, func(i, j int) bool { return reached[i] < reached[j] })

	var out []Row
	for _, id := range reached {
		d := visited[id]
		if d.depth < min || d.depth == 0 {
			continue
		}
		endNode, found, err := m.eng.GetNode(m.ctx, id)
		if err != nil {
			return nil, err
		}
		if !found || !nodeMatches(endNode, step.Node, row, m.params) {
			continue
		}
		path := make([]*model.Relationship, d.depth)
		cursor := id
		for i := d.depth - 1; i >= 0; i-- {
			disc := visited[cursor]
			path[i] = disc.via
			cursor = disc.from
		}
		r := row.Clone()
		if step.Rel.Var != "" {
			cells := make([]Cell, len(path))
			for i, rel := range path {
				cells[i] = FromRel(rel)
			}
			r[step.Rel.Var] = FromList(cells)
		}
		r[bindKey(step.Node)] = FromNode(endNode)
		out = append(out, r)
	}
	return out, nil
}
