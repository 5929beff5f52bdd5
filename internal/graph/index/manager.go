package index

import (
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Manager owns every index kind plus the schema that decides which
// (label, property) pairs are auto-maintained. Indexes are derived state:
// Rebuild can always reconstruct them from base data.
type Manager struct {
	schema    *Schema
	exact     *ExactIndex
	rangeIdx  *RangeIndex
	fullText  *FullTextIndex
	composite map[string]*CompositeIndex // keyed by declaration name
}

// NewManager builds a Manager from decls.
func NewManager(decls []Declaration) (*Manager, error) {
	schema, err := NewSchema(decls)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		schema:    schema,
		exact:     NewExactIndex(),
		rangeIdx:  NewRangeIndex(),
		fullText:  NewFullTextIndex(),
		composite: make(map[string]*CompositeIndex),
	}
	for _, d := range decls {
		if d.Kind == KindComposite {
			m.composite[d.Name] = NewCompositeIndex(d)
		}
	}
	return m, nil
}

// Schema returns the underlying declarative registry.
func (m *Manager) Schema() *Schema { return m.schema }

// Exact returns the exact-index reader.
func (m *Manager) Exact() *ExactIndex { return m.exact }

// Range returns the range-index reader.
func (m *Manager) Range() *RangeIndex { return m.rangeIdx }

// FullText returns the full-text-index reader.
func (m *Manager) FullText() *FullTextIndex { return m.fullText }

// Composite returns the named composite index, if declared.
func (m *Manager) Composite(name string) (*CompositeIndex, bool) {
	c, ok := m.composite[name]
	return c, ok
}

// OnNodeCreate adds entries for every indexed (label, property) the new
// node has, per the index maintenance contract.
func (m *Manager) OnNodeCreate(n *model.Node) {
	for _, label := range n.Labels {
		m.indexProps(label, n.Props, n.ID)
	}
}

// OnNodeUpdate removes old entries for changed properties, then adds new
// ones.
func (m *Manager) OnNodeUpdate(n *model.Node, oldProps value.Map) {
	for _, label := range n.Labels {
		m.unindexProps(label, oldProps, n.ID)
		m.indexProps(label, n.Props, n.ID)
	}
}

// OnNodeDelete removes every entry mentioning the node.
func (m *Manager) OnNodeDelete(n *model.Node) {
	for _, label := range n.Labels {
		m.unindexProps(label, n.Props, n.ID)
	}
}

func (m *Manager) indexProps(label string, props value.Map, id model.NodeID) {
	for prop, v := range props {
		if m.schema.HasExact(label, prop) && v.Kind() != value.KindFloat {
			m.exact.Add(label, prop, v, id)
		}
		if m.schema.HasRange(label, prop) && v.IsNumeric() {
			m.rangeIdx.Add(label, prop, v, id)
		}
		if m.schema.HasFullText(label, prop) {
			if s, ok := v.AsText(); ok {
				m.fullText.Index(label, prop, s, id)
			}
		}
	}
	for _, decl := range m.schema.CompositeIndexes(label) {
		if !hasAllProps(props, decl.Properties) {
			continue
		}
		values := make([]value.Value, len(decl.Properties))
		for i, p := range decl.Properties {
			values[i] = props[p]
		}
		if c, ok := m.composite[decl.Name]; ok {
			c.Add(values, id)
		}
	}
}

func (m *Manager) unindexProps(label string, props value.Map, id model.NodeID) {
	for prop, v := range props {
		if m.schema.HasExact(label, prop) && v.Kind() != value.KindFloat {
			m.exact.Remove(label, prop, v, id)
		}
		if m.schema.HasRange(label, prop) && v.IsNumeric() {
			m.rangeIdx.Remove(label, prop, v, id)
		}
		if m.schema.HasFullText(label, prop) {
			if s, ok := v.AsText(); ok {
				m.fullText.Remove(label, prop, s, id)
			}
		}
	}
	for _, decl := range m.schema.CompositeIndexes(label) {
		if !hasAllProps(props, decl.Properties) {
			continue
		}
		values := make([]value.Value, len(decl.Properties))
		for i, p := range decl.Properties {
			values[i] = props[p]
		}
		if c, ok := m.composite[decl.Name]; ok {
			c.Remove(values, id)
		}
	}
}

func hasAllProps(props value.Map, names []string) bool {
	for _, n := range names {
		if _, ok := props[n]; !ok {
			return false
		}
	}
	return true
}

// Rebuild discards all derived state and re-indexes every supplied node
// end-to-end, per the O(|V|+|E|) rebuild contract.
func (m *Manager) Rebuild(nodes []*model.Node) {
	m.exact = NewExactIndex()
	m.rangeIdx = NewRangeIndex()
	m.fullText = NewFullTextIndex()
	for name, c := range m.composite {
		m.composite[name] = NewCompositeIndex(Declaration{Name: c.Name, Label: c.Label, Properties: c.Properties})
	}
	for _, n := range nodes {
		m.OnNodeCreate(n)
	}
}
