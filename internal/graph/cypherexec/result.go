// Package cypherexec implements the Cypher query executor: it
// walks a parsed cypher.Statement and drives the storage engine, index
// manager, and transaction manager to produce bound rows, mirroring the
// row-oriented evaluation the fluent query.Builder already applies
// to simpler single-variable traversals but generalized to Cypher's
// multi-variable pattern matching, WITH piping, and mutations.
package cypherexec

import (
	"fmt"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// CellKind discriminates which field of a Cell is populated.
type CellKind int

const (
	CellNull CellKind = iota
	CellScalar
	CellNode
	CellRel
	CellList
)

// Cell is one bound value flowing through the executor: a scalar
// property Value, a whole Node or Relationship, a list of Cells (for
// collect() and list literals), or null. Cypher's type system is wider
// than the storage layer's property Value sum (which has no node, list,
// or null arm), so the executor carries its own richer cell type rather
// than forcing everything through value.Value.
type Cell struct {
	Kind   CellKind
	Scalar value.Value
	Node   *model.Node
	Rel    *model.Relationship
	List   []Cell
}

// Null is the null cell.
func Null() Cell { return Cell{Kind: CellNull} }

// FromValue wraps a storage-layer Value as a scalar cell.
func FromValue(v value.Value) Cell { return Cell{Kind: CellScalar, Scalar: v} }

// FromNode wraps a node as a node cell.
func FromNode(n *model.Node) Cell { return Cell{Kind: CellNode, Node: n} }

// FromRel wraps a relationship as a rel cell.
func FromRel(r *model.Relationship) Cell { return Cell{Kind: CellRel, Rel: r} }

// FromList wraps a slice of cells as a list cell.
func FromList(items []Cell) Cell { return Cell{Kind: CellList, List: items} }

// IsNull reports whether c holds no value.
func (c Cell) IsNull() bool { return c.Kind == CellNull }

// Truthy implements Cypher's boolean coercion for WHERE/CASE guards:
// a bool scalar is itself; null and every non-bool cell report
// isBool=false, which filterRows treats as "row does not match".
func (c Cell) Truthy() (bool, bool) {
	if c.Kind != CellScalar {
		return false, false
	}
	b, ok := c.Scalar.AsBool()
	return b, ok
}

// Equal reports whether two cells represent the same value, used by
// DISTINCT, IN, and group-by key comparison.
func (c Cell) Equal(other Cell) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case CellNull:
		return true
	case CellScalar:
		return c.Scalar.Equal(other.Scalar)
	case CellNode:
		return c.Node != nil && other.Node != nil && c.Node.ID == other.Node.ID
	case CellRel:
		return c.Rel != nil && other.Rel != nil && c.Rel.ID == other.Rel.ID
	case CellList:
		if len(c.List) != len(other.List) {
			return false
		}
		for i := range c.List {
			if !c.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Less orders two cells for ORDER BY, paralleling value.Value.Compare's
// NaN-greatest, kind-then-value ordering; a null cell orders after every
// non-null cell. The ORDER BY sort checks for nulls before applying DESC,
// so nulls sort last under both ASC and DESC, matching Cypher's "ORDER BY
// always puts nulls at the end" rule.
func (c Cell) Less(other Cell) bool {
	if c.Kind == CellNull {
		return false
	}
	if other.Kind == CellNull {
		return true
	}
	if c.Kind != other.Kind {
		return c.Kind < other.Kind
	}
	switch c.Kind {
	case CellScalar:
		return c.Scalar.Less(other.Scalar)
	case CellNode:
		return c.Node.ID < other.Node.ID
	case CellRel:
		return c.Rel.ID < other.Rel.ID
	default:
		return false
	}
}

// HashKey returns a comparable Go value for use as a map key (group-by
// buckets, DISTINCT dedup sets).
func (c Cell) HashKey() any {
	switch c.Kind {
	case CellNull:
		return "null"
	case CellScalar:
		return c.Scalar.HashKey()
	case CellNode:
		return fmt.Sprintf("node:%d", c.Node.ID)
	case CellRel:
		return fmt.Sprintf("rel:%d", c.Rel.ID)
	case CellList:
		keys := make([]any, len(c.List))
		for i, item := range c.List {
			keys[i] = item.HashKey()
		}
		return fmt.Sprintf("%v", keys)
	default:
		return nil
	}
}

// String renders c for diagnostics; not a wire format.
func (c Cell) String() string {
	switch c.Kind {
	case CellNull:
		return "null"
	case CellScalar:
		return c.Scalar.String()
	case CellNode:
		return fmt.Sprintf("Node(%d)", c.Node.ID)
	case CellRel:
		return fmt.Sprintf("Rel(%d)", c.Rel.ID)
	case CellList:
		return fmt.Sprintf("%v", c.List)
	default:
		return ""
	}
}

// Row binds variable names (and, after a WITH/RETURN projection, output
// aliases) to cells.
type Row map[string]Cell

// Clone returns a shallow copy of r, safe to extend without mutating the
// original binding set a sibling branch (e.g. OPTIONAL MATCH, UNION) is
// still using.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Result is the terminal output of a RETURN clause (or a mutation-only
// statement's empty projection): an ordered column list plus the rows
// projected onto it.
type Result struct {
	Columns []string
	Rows    []Row
}
