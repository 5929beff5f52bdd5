// Package query implements the fluent traversal/filter/aggregate query
// builder: a state-carrying object holding an implicit working set
// of node ids, seeded from a label or index lookup, narrowed by
// in-memory filters and edge traversals, and drained by a terminator.
package query

import (
	"context"
	"math"
	"regexp"
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Direction picks which side of a relationship a traversal follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// Builder carries the working set of the query in progress plus a
// reference to the storage engine and index manager it reads through.
// Every narrowing operation returns the same *Builder for chaining; a
// failed step latches Err() and every later step becomes a no-op, so
// callers only need to check the error once, at the terminator.
type Builder struct {
	ctx     context.Context
	eng     engine.Engine
	idx     *index.Manager
	current []model.NodeID
	err     error
}

// New starts a query builder with an empty working set.
func New(ctx context.Context, eng engine.Engine, idx *index.Manager) *Builder {
	return &Builder{ctx: ctx, eng: eng, idx: idx}
}

// Err returns the first error encountered by any step so far, if any.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// FromLabel seeds the working set with every node carrying label l. The
// index manager keeps no generic per-label index, so a bare label seed
// always scans AllNodes.
func (b *Builder) FromLabel(label string) *Builder {
	if b.err != nil {
		return b
	}
	it, err := b.eng.AllNodes(b.ctx)
	if err != nil {
		return b.fail(err)
	}
	var ids []model.NodeID
	for _, n := range engine.Drain(it) {
		if n.HasLabel(label) {
			ids = append(ids, n.ID)
		}
	}
	b.current = ids
	return b
}

// FromLabelAndPropEq seeds the working set from the exact index when
// (label, prop) is declared exact; otherwise it falls back to a full
// scan with an in-memory equality check.
func (b *Builder) FromLabelAndPropEq(label, prop string, v value.Value) *Builder {
	if b.err != nil {
		return b
	}
	if b.idx != nil && b.idx.Schema().HasExact(label, prop) {
		b.current = b.idx.Exact().Find(label, prop, v)
		return b
	}
	return b.FromLabel(label).WherePropEq(prop, v)
}

// loadNodes resolves the current working set to full node records,
// skipping any id that no longer exists (deleted concurrently).
func (b *Builder) loadNodes() ([]*model.Node, error) {
	nodes := make([]*model.Node, 0, len(b.current))
	for _, id := range b.current {
		n, found, err := b.eng.GetNode(b.ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func (b *Builder) filter(pred func(*model.Node) bool) *Builder {
	if b.err != nil {
		return b
	}
	nodes, err := b.loadNodes()
	if err != nil {
		return b.fail(err)
	}
	var kept []model.NodeID
	for _, n := range nodes {
		if pred(n) {
			kept = append(kept, n.ID)
		}
	}
	b.current = kept
	return b
}

// WherePropEq keeps nodes whose prop equals v.
func (b *Builder) WherePropEq(prop string, v value.Value) *Builder {
	return b.filter(func(n *model.Node) bool {
		p, ok := n.Props[prop]
		return ok && p.Equal(v)
	})
}

// WherePropNeq keeps nodes whose prop is absent or differs from v.
func (b *Builder) WherePropNeq(prop string, v value.Value) *Builder {
	return b.filter(func(n *model.Node) bool {
		p, ok := n.Props[prop]
		return !ok || !p.Equal(v)
	})
}

// WherePropIntGt keeps nodes whose Int prop is greater than threshold; a
// Float or other non-Int value never matches.
func (b *Builder) WherePropIntGt(prop string, threshold int64) *Builder {
	return b.filter(func(n *model.Node) bool {
		p, ok := n.Props[prop]
		if !ok {
			return false
		}
		i, ok := p.AsInt()
		return ok && i > threshold
	})
}

// WherePropIntLt keeps nodes whose Int prop is less than threshold; a
// Float or other non-Int value never matches.
func (b *Builder) WherePropIntLt(prop string, threshold int64) *Builder {
	return b.filter(func(n *model.Node) bool {
		p, ok := n.Props[prop]
		if !ok {
			return false
		}
		i, ok := p.AsInt()
		return ok && i < threshold
	})
}

// WherePropExists keeps nodes carrying prop at all.
func (b *Builder) WherePropExists(prop string) *Builder {
	return b.filter(func(n *model.Node) bool {
		_, ok := n.Props[prop]
		return ok
	})
}

// WherePropMatches keeps nodes whose text prop matches the regular
// expression pattern. The pattern is compiled with Go's regexp package
// (RE2 syntax), not the ECMAScript-mode dialect the Cypher executor's
// `=~` operator uses.
func (b *Builder) WherePropMatches(prop, pattern string) *Builder {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return b.fail(err)
	}
	return b.filter(func(n *model.Node) bool {
		p, ok := n.Props[prop]
		if !ok {
			return false
		}
		s, ok := p.AsText()
		return ok && re.MatchString(s)
	})
}

func (b *Builder) traverse(relType string, dir Direction) *Builder {
	if b.err != nil {
		return b
	}
	seen := make(map[model.NodeID]struct{})
	var next []model.NodeID
	visit := func(nodeID model.NodeID, it engine.RelIterator) error {
		for _, r := range engine.DrainRels(it) {
			if relType != "" && r.Type != relType {
				continue
			}
			var neighbor model.NodeID
			switch {
			case dir == Outgoing:
				neighbor = r.End
			case dir == Incoming:
				neighbor = r.Start
			default:
				if r.Start == nodeID {
					neighbor = r.End
				} else {
					neighbor = r.Start
				}
			}
			if _, ok := seen[neighbor]; !ok {
				seen[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		return nil
	}

	for _, id := range b.current {
		if dir == Outgoing || dir == Both {
			it, err := b.eng.OutgoingRels(b.ctx, id)
			if err != nil {
				return b.fail(err)
			}
			if err := visit(id, it); err != nil {
				return b.fail(err)
			}
		}
		if dir == Incoming || dir == Both {
			it, err := b.eng.IncomingRels(b.ctx, id)
			if err != nil {
				return b.fail(err)
			}
			if err := visit(id, it); err != nil {
				return b.fail(err)
			}
		}
	}
	b.current = next
	return b
}

// Out replaces the working set with the one-hop outgoing neighbors
// reachable via a relationship of the given type.
func (b *Builder) Out(relType string) *Builder { return b.traverse(relType, Outgoing) }

// In replaces the working set with the one-hop incoming neighbors.
func (b *Builder) In(relType string) *Builder { return b.traverse(relType, Incoming) }

// OutVariableLength runs a breadth-first walk along relType (both
// directions when undirected is true), visiting each node at most once,
// and replaces the working set with every node first reached at a depth
// within [min, max].
func (b *Builder) OutVariableLength(relType string, min, max int, undirected bool) *Builder {
	if b.err != nil {
		return b
	}
	dir := Outgoing
	if undirected {
		dir = Both
	}

	visited := make(map[model.NodeID]int)
	frontier := make([]model.NodeID, len(b.current))
	copy(frontier, b.current)
	for _, id := range frontier {
		visited[id] = 0
	}

	var result []model.NodeID
	depth := 0
	for len(frontier) > 0 && depth < max {
		depth++
		var nextFrontier []model.NodeID
		for _, id := range frontier {
			neighbors, err := b.neighborsOf(id, relType, dir)
			if err != nil {
				return b.fail(err)
			}
			for _, nb := range neighbors {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = depth
				nextFrontier = append(nextFrontier, nb)
				if depth >= min {
					result = append(result, nb)
				}
			}
		}
		frontier = nextFrontier
	}
	b.current = result
	return b
}

func (b *Builder) neighborsOf(id model.NodeID, relType string, dir Direction) ([]model.NodeID, error) {
	var out []model.NodeID
	collect := func(it engine.RelIterator, endpoint func(*model.Relationship) model.NodeID) error {
		for _, r := range engine.DrainRels(it) {
			if relType != "" && r.Type != relType {
				continue
			}
			out = append(out, endpoint(r))
		}
		return nil
	}
	if dir == Outgoing || dir == Both {
		it, err := b.eng.OutgoingRels(b.ctx, id)
		if err != nil {
			return nil, err
		}
		if err := collect(it, func(r *model.Relationship) model.NodeID { return r.End }); err != nil {
			return nil, err
		}
	}
	if dir == Incoming || dir == Both {
		it, err := b.eng.IncomingRels(b.ctx, id)
		if err != nil {
			return nil, err
		}
		if err := collect(it, func(r *model.Relationship) model.NodeID { return r.Start }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Distinct removes duplicate ids from the working set, preserving first
// occurrence order.
func (b *Builder) Distinct() *Builder {
	if b.err != nil {
		return b
	}
	seen := make(map[model.NodeID]struct{}, len(b.current))
	kept := b.current[:0:0]
	for _, id := range b.current {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}
	b.current = kept
	return b
}

// Skip drops the first n ids. Uses a slice re-slice rather than a
// shift-and-truncate so no element is copied.
func (b *Builder) Skip(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n >= len(b.current) {
		b.current = nil
		return b
	}
	if n > 0 {
		b.current = b.current[n:]
	}
	return b
}

// Limit keeps at most n ids, truncating in place rather than allocating
// a fresh slice.
func (b *Builder) Limit(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < len(b.current) {
		b.current = b.current[:n]
	}
	return b
}

// Paginate is Skip(offset).Limit(limit).
func (b *Builder) Paginate(offset, limit int) *Builder {
	return b.Skip(offset).Limit(limit)
}

// OrderBy sorts the working set by prop, ascending unless asc is false.
// Nodes missing prop sort last, matching the NaN-sorts-greatest ordering
// value.Value.Compare already applies to floats.
func (b *Builder) OrderBy(prop string, asc bool) *Builder {
	if b.err != nil {
		return b
	}
	nodes, err := b.loadNodes()
	if err != nil {
		return b.fail(err)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		vi, oki := nodes[i].Props[prop]
		vj, okj := nodes[j].Props[prop]
		if !oki && !okj {
			return false
		}
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		if asc {
			return vi.Less(vj)
		}
		return vj.Less(vi)
	})
	ids := make([]model.NodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	b.current = ids
	return b
}

// CollectNodes terminates the query, returning every node in the working
// set in its current order.
func (b *Builder) CollectNodes() ([]*model.Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.loadNodes()
}

// Count terminates the query, returning the working set's size.
func (b *Builder) Count() (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	return len(b.current), nil
}

func (b *Builder) intValues(prop string) ([]int64, error) {
	nodes, err := b.loadNodes()
	if err != nil {
		return nil, err
	}
	vals := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		p, ok := n.Props[prop]
		if !ok {
			continue
		}
		i, ok := p.AsInt()
		if ok {
			vals = append(vals, i)
		}
	}
	return vals, nil
}

// SumInt terminates the query, summing the integer values of prop across
// the working set (missing or non-integer values are skipped).
func (b *Builder) SumInt(prop string) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	vals, err := b.intValues(prop)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, v := range vals {
		sum += v
	}
	return sum, nil
}

// AvgInt terminates the query, averaging the integer values of prop.
func (b *Builder) AvgInt(prop string) (float64, error) {
	if b.err != nil {
		return 0, b.err
	}
	vals, err := b.intValues(prop)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, nil
	}
	var sum int64
	for _, v := range vals {
		sum += v
	}
	return float64(sum) / float64(len(vals)), nil
}

// PercentileCont terminates the query, computing the linear-interpolated
// continuous percentile p (in [0,1]) of prop's integer values.
func (b *Builder) PercentileCont(prop string, p float64) (float64, error) {
	if b.err != nil {
		return 0, b.err
	}
	vals, err := b.intValues(prop)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, nil
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	if len(vals) == 1 {
		return float64(vals[0]), nil
	}
	rank := p * float64(len(vals)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(vals[lo]), nil
	}
	frac := rank - float64(lo)
	return float64(vals[lo])*(1-frac) + float64(vals[hi])*frac, nil
}

// Stdev terminates the query, computing the sample standard deviation of
// prop's integer values.
func (b *Builder) Stdev(prop string) (float64, error) {
	variance, err := b.Variance(prop)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(variance), nil
}

// Variance terminates the query, computing the sample variance of prop's
// integer values.
func (b *Builder) Variance(prop string) (float64, error) {
	if b.err != nil {
		return 0, b.err
	}
	vals, err := b.intValues(prop)
	if err != nil {
		return 0, err
	}
	if len(vals) < 2 {
		return 0, nil
	}
	var sum int64
	for _, v := range vals {
		sum += v
	}
	mean := float64(sum) / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := float64(v) - mean
		sq += d * d
	}
	return sq / float64(len(vals)-1), nil
}

// Current returns a copy of the working set's ids without consuming the
// builder, for composing queries (e.g. a Cypher executor seeding a
// subsequent clause from a prior MATCH's result).
func (b *Builder) Current() []model.NodeID {
	out := make([]model.NodeID, len(b.current))
	copy(out, b.current)
	return out
}

// Seed replaces the working set directly, bypassing FromLabel/
// FromLabelAndPropEq — used by callers (the Cypher executor) that have
// already resolved a working set some other way.
func (b *Builder) Seed(ids []model.NodeID) *Builder {
	b.current = ids
	return b
}
