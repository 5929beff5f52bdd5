// Package constraint implements the uniqueness and existence constraint
// manager: registration of per-(label, property) rules and
// validation of a node's properties before a mutating write is applied.
package constraint

import (
	"sync"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

type key struct {
	label    string
	property string
}

// Manager registers uniqueness/existence rules and validates candidate
// node states against them. Uniqueness checks consult an ExactIndex
// (Float values are skipped by the uniqueness check, matching that
// index's own Float exclusion) so a violation is detected without a full
// table scan.
type Manager struct {
	mu       sync.RWMutex
	unique   map[key]struct{}
	exists   map[key]struct{}
	byLookup *index.ExactIndex
}

// NewManager returns a Manager backed by exact for uniqueness lookups.
// Callers typically pass the same ExactIndex a Manager already
// maintains, so uniqueness checks see writes as soon as they are
// indexed.
func NewManager(exact *index.ExactIndex) *Manager {
	return &Manager{
		unique:   make(map[key]struct{}),
		exists:   make(map[key]struct{}),
		byLookup: exact,
	}
}

// RegisterUnique declares that (label, property) must hold at most one
// node per distinct value.
func (m *Manager) RegisterUnique(label, property string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique[key{label, property}] = struct{}{}
}

// RegisterExists declares that every node carrying label must define
// property.
func (m *Manager) RegisterExists(label, property string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists[key{label, property}] = struct{}{}
}

// Unregister removes both uniqueness and existence rules for
// (label, property), if present.
func (m *Manager) Unregister(label, property string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unique, key{label, property})
	delete(m.exists, key{label, property})
}

// Validate checks candidate against every registered rule for its
// labels, returning the first violation found. excludeSelf is the
// candidate's own id (zero for not-yet-created nodes), excluded from a
// uniqueness conflict so that re-validating an unchanged property on an
// update does not conflict with itself.
func (m *Manager) Validate(candidate *model.Node, excludeSelf model.NodeID) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, label := range candidate.Labels {
		for prop := range m.exists {
			if prop.label != label {
				continue
			}
			if _, ok := candidate.Props[prop.property]; !ok {
				return graphcode.ExistenceViolation(label, prop.property)
			}
		}
		for prop := range m.unique {
			if prop.label != label {
				continue
			}
			v, ok := candidate.Props[prop.property]
			if !ok || v.Kind() == value.KindFloat {
				continue
			}
			if conflictsWithOther(m.byLookup, label, prop.property, v, excludeSelf) {
				return graphcode.UniquenessViolation(label, prop.property, v.String())
			}
		}
	}
	return nil
}

func conflictsWithOther(idx *index.ExactIndex, label, property string, v value.Value, excludeSelf model.NodeID) bool {
	for _, id := range idx.Find(label, property, v) {
		if id != excludeSelf {
			return true
		}
	}
	return false
}
