package cypherexec

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func isAggregateFuncName(name string) bool {
	switch strings.ToLower(name) {
	case "count", "sum", "avg", "min", "max", "collect",
		"stdev", "percentilecont", "percentiledisc":
		return true
	default:
		return false
	}
}

// checkGroupBy validates an explicit GROUP BY list against the projected
// items. Grouping is implicit on every non-aggregated item, so the
// explicit form is legal exactly when each listed expression is one of
// those items (by name or alias).
func checkGroupBy(groupBy []cypher.Expr, items []*cypher.ReturnItem) error {
	if len(groupBy) == 0 {
		return nil
	}
	grouped := make(map[string]bool)
	for _, it := range items {
		if fc, ok := it.Expr.(*cypher.FuncCall); ok && isAggregateFuncName(fc.Name) {
			continue
		}
		grouped[aliasFor(it)] = true
		if it.Alias != "" {
			grouped[aliasFor(&cypher.ReturnItem{Expr: it.Expr})] = true
		}
	}
	for _, e := range groupBy {
		name := aliasFor(&cypher.ReturnItem{Expr: e})
		if !grouped[name] {
			return graphcode.InvalidExpression(fmt.Sprintf("GROUP BY %s does not match a non-aggregated return item", name))
		}
	}
	return nil
}

// aliasFor derives a ReturnItem's output column name: its explicit alias,
// or a rendering of the underlying expression for the common cases
// (bare variable, property reference, function call) Cypher itself
// defaults to.
func aliasFor(it *cypher.ReturnItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	switch e := it.Expr.(type) {
	case *cypher.Variable:
		return e.Name
	case *cypher.PropertyRef:
		return e.Var + "." + e.Prop
	case *cypher.FuncCall:
		return e.Name + "(...)"
	default:
		return "expr"
	}
}

// aggAccumulator accumulates one aggregate function's running state
// across a group of rows.
type aggAccumulator struct {
	fn       string
	distinct bool
	count    int64
	sum      float64
	sumIsInt bool
	haveMin  bool
	min      Cell
	haveMax  bool
	max      Cell
	values   []Cell
	floats   []float64
	pct      float64
	seen     map[any]struct{}
}

func newAccumulator(fc *cypher.FuncCall, params map[string]value.Value) (*aggAccumulator, error) {
	a := &aggAccumulator{
		fn:       strings.ToLower(fc.Name),
		distinct: fc.Distinct,
		sumIsInt: true,
		seen:     make(map[any]struct{}),
	}
	if a.fn == "percentilecont" || a.fn == "percentiledisc" {
		if len(fc.Args) < 2 {
			return nil, graphcode.InvalidExpression(fc.Name + " requires a percentile argument")
		}
		cell, err := eval(fc.Args[1], evalCtx{row: Row{}, params: params})
		if err != nil {
			return nil, err
		}
		p, _, ok := numeric(cell)
		if !ok || p < 0 || p > 1 {
			return nil, graphcode.InvalidExpression(fc.Name + " percentile must be a number in [0,1]")
		}
		a.pct = p
	}
	return a, nil
}

func (a *aggAccumulator) addCount() {
	a.count++
}

func (a *aggAccumulator) add(c Cell) {
	if c.IsNull() {
		return
	}
	if a.distinct {
		key := c.HashKey()
		if _, ok := a.seen[key]; ok {
			return
		}
		a.seen[key] = struct{}{}
	}
	a.count++
	switch a.fn {
	case "sum", "avg":
		if f, isInt, ok := numeric(c); ok {
			a.sum += f
			if !isInt {
				a.sumIsInt = false
			}
		}
	case "min":
		if !a.haveMin || c.Less(a.min) {
			a.min = c
			a.haveMin = true
		}
	case "max":
		if !a.haveMax || a.max.Less(c) {
			a.max = c
			a.haveMax = true
		}
	case "collect":
		a.values = append(a.values, c)
	case "stdev", "percentilecont", "percentiledisc":
		if f, _, ok := numeric(c); ok {
			a.floats = append(a.floats, f)
		}
	}
}

func (a *aggAccumulator) result() Cell {
	switch a.fn {
	case "count":
		return FromValue(value.Int(a.count))
	case "sum":
		if a.sumIsInt {
			return FromValue(value.Int(int64(a.sum)))
		}
		return FromValue(value.Float(a.sum))
	case "avg":
		if a.count == 0 {
			return FromValue(value.Float(0))
		}
		return FromValue(value.Float(a.sum / float64(a.count)))
	case "min":
		if !a.haveMin {
			return Null()
		}
		return a.min
	case "max":
		if !a.haveMax {
			return Null()
		}
		return a.max
	case "collect":
		return FromList(a.values)
	case "stdev":
		if len(a.floats) < 2 {
			return FromValue(value.Float(0))
		}
		var mean float64
		for _, f := range a.floats {
			mean += f
		}
		mean /= float64(len(a.floats))
		var ss float64
		for _, f := range a.floats {
			d := f - mean
			ss += d * d
		}
		// Sample standard deviation (n-1 denominator), matching Cypher.
		return FromValue(value.Float(math.Sqrt(ss / float64(len(a.floats)-1))))
	case "percentilecont":
		if len(a.floats) == 0 {
			return Null()
		}
		sorted := append([]float64(nil), a.floats...)
		sort.Float64s(sorted)
		rank := a.pct * float64(len(sorted)-1)
		lo := int(math.Floor(rank))
		hi := int(math.Ceil(rank))
		if lo == hi {
			return FromValue(value.Float(sorted[lo]))
		}
		frac := rank - float64(lo)
		return FromValue(value.Float(sorted[lo] + frac*(sorted[hi]-sorted[lo])))
	case "percentiledisc":
		if len(a.floats) == 0 {
			return Null()
		}
		sorted := append([]float64(nil), a.floats...)
		sort.Float64s(sorted)
		// Nearest-rank: the smallest value whose cumulative share of the
		// sorted set is >= the requested percentile.
		idx := int(math.Ceil(a.pct*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		return FromValue(value.Float(sorted[idx]))
	default:
		return Null()
	}
}

// projectItems implements the WITH/RETURN projection shared behavior:
// per-row projection when no item aggregates, grouped aggregation
// (grouping on every non-aggregate item, per Cypher's implicit GROUP BY)
// otherwise.
func projectItems(rows []Row, items []*cypher.ReturnItem, distinct bool, params map[string]value.Value) ([]string, []Row, error) {
	aliases := make([]string, len(items))
	aggFns := make([]*cypher.FuncCall, len(items))
	hasAgg := false
	for i, it := range items {
		aliases[i] = aliasFor(it)
		if fc, ok := it.Expr.(*cypher.FuncCall); ok && isAggregateFuncName(fc.Name) {
			aggFns[i] = fc
			hasAgg = true
		}
	}

	if !hasAgg {
		outRows := make([]Row, 0, len(rows))
		for _, r := range rows {
			out := make(Row, len(items))
			for i, it := range items {
				cell, err := eval(it.Expr, evalCtx{row: r, params: params})
				if err != nil {
					return nil, nil, err
				}
				out[aliases[i]] = cell
			}
			outRows = append(outRows, out)
		}
		if distinct {
			outRows = dedupRows(outRows, aliases)
		}
		return aliases, outRows, nil
	}

	type group struct {
		keyRow Row
		accs   []*aggAccumulator
	}
	groups := make(map[string]*group)
	var order []string

	for _, r := range rows {
		keyParts := make([]any, 0, len(items))
		keyRow := make(Row, len(items))
		for i, it := range items {
			if aggFns[i] != nil {
				continue
			}
			cell, err := eval(it.Expr, evalCtx{row: r, params: params})
			if err != nil {
				return nil, nil, err
			}
			keyRow[aliases[i]] = cell
			keyParts = append(keyParts, cell.HashKey())
		}
		key := fmt.Sprintf("%v", keyParts)
		g, ok := groups[key]
		if !ok {
			g = &group{keyRow: keyRow, accs: make([]*aggAccumulator, len(items))}
			for i, fc := range aggFns {
				if fc != nil {
					acc, err := newAccumulator(fc, params)
					if err != nil {
						return nil, nil, err
					}
					g.accs[i] = acc
				}
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, fc := range aggFns {
			if fc == nil {
				continue
			}
			if fc.Star {
				g.accs[i].addCount()
				continue
			}
			if len(fc.Args) == 0 {
				continue
			}
			cell, err := eval(fc.Args[0], evalCtx{row: r, params: params})
			if err != nil {
				return nil, nil, err
			}
			g.accs[i].add(cell)
		}
	}

	// An aggregation with no grouping keys still yields one row over zero
	// input rows (e.g. "MATCH (n:Missing) RETURN count(n)" yields 0, not
	// an empty result set).
	if len(order) == 0 && allNil(aggFns) == false && hasNoGroupingKeys(items, aggFns) {
		g := &group{keyRow: Row{}, accs: make([]*aggAccumulator, len(items))}
		for i, fc := range aggFns {
			if fc != nil {
				acc, err := newAccumulator(fc, params)
				if err != nil {
					return nil, nil, err
				}
				g.accs[i] = acc
			}
		}
		groups["__empty__"] = g
		order = append(order, "__empty__")
	}

	var outRows []Row
	for _, key := range order {
		g := groups[key]
		out := g.keyRow.Clone()
		for i, fc := range aggFns {
			if fc == nil {
				continue
			}
			out[aliases[i]] = g.accs[i].result()
		}
		outRows = append(outRows, out)
	}
	return aliases, outRows, nil
}

func allNil(fns []*cypher.FuncCall) bool {
	for _, f := range fns {
		if f != nil {
			return false
		}
	}
	return true
}

func hasNoGroupingKeys(items []*cypher.ReturnItem, aggFns []*cypher.FuncCall) bool {
	for i := range items {
		if aggFns[i] == nil {
			return false
		}
	}
	return true
}

func dedupRows(rows []Row, aliases []string) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		parts := make([]any, len(aliases))
		for i, a := range aliases {
			parts[i] = r[a].HashKey()
		}
		key := fmt.Sprintf("%v", parts)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
