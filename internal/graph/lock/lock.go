// Package lock implements pessimistic per-resource locking: a
// Read/Write compatibility lattice, a wait-for graph with DFS-based
// deadlock detection, a timeout-based waiter detector, and standalone
// optimistic per-resource version counters; neither the isolation
// executor nor the transaction manager calls the version counters.
package lock

import (
	"sync"
	"time"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
)

// Mode is a lock's access mode.
type Mode int

const (
	// Read locks are mutually compatible; Write locks are compatible
	// with nothing, including other Writes.
	Read Mode = iota
	Write
)

func compatible(a, b Mode) bool { return a == Read && b == Read }

// Resource identifies a lockable entity: a node id or rel id, tagged so
// the two id spaces never collide.
type Resource struct {
	Kind string // "node" or "rel"
	ID   uint64
}

type holder struct {
	tx   uint64
	mode Mode
}

type entry struct {
	holders []holder
	waiters []uint64 // tx ids waiting, in arrival order
}

// DeadlockInfo names the transactions found in a wait-for cycle and the
// one chosen as the victim (highest tx id, i.e. youngest).
type DeadlockInfo struct {
	Cycle  []uint64
	Victim uint64
}

// Manager owns every resource's lock entry, the wait-for graph, and the
// optimistic version counters.
type Manager struct {
	mu        sync.Mutex
	entries   map[Resource]*entry
	waitFor   map[uint64]map[uint64]struct{} // requester -> set of holders blocking it
	versions  map[Resource]uint64
	waitSince map[uint64]time.Time // earliest current wait start per tx
}

// NewManager returns an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		entries:   make(map[Resource]*entry),
		waitFor:   make(map[uint64]map[uint64]struct{}),
		versions:  make(map[Resource]uint64),
		waitSince: make(map[uint64]time.Time),
	}
}

// TryAcquire attempts a non-blocking lock acquisition. On success it
// returns true and records tx as a holder. On conflict it registers tx as
// a waiter against every blocking holder in the wait-for graph and
// returns false without blocking — callers poll or retry.
func (m *Manager) TryAcquire(tx uint64, res Resource, mode Mode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[res]
	if !ok {
		e = &entry{}
		m.entries[res] = e
	}

	blocked := false
	for _, h := range e.holders {
		if h.tx == tx {
			continue
		}
		if !compatible(h.mode, mode) {
			blocked = true
			m.addWaitEdge(tx, h.tx)
		}
	}
	if blocked {
		m.recordWaiter(e, tx)
		return false
	}

	for _, h := range e.holders {
		if h.tx == tx && h.mode == mode {
			return true
		}
	}
	e.holders = append(e.holders, holder{tx: tx, mode: mode})
	m.clearWait(tx)
	return true
}

func (m *Manager) recordWaiter(e *entry, tx uint64) {
	for _, w := range e.waiters {
		if w == tx {
			return
		}
	}
	e.waiters = append(e.waiters, tx)
	if _, ok := m.waitSince[tx]; !ok {
		m.waitSince[tx] = time.Now()
	}
}

func (m *Manager) addWaitEdge(requester, holderTx uint64) {
	set, ok := m.waitFor[requester]
	if !ok {
		set = make(map[uint64]struct{})
		m.waitFor[requester] = set
	}
	set[holderTx] = struct{}{}
}

func (m *Manager) clearWait(tx uint64) {
	delete(m.waitFor, tx)
	delete(m.waitSince, tx)
	for res, e := range m.entries {
		for i, w := range e.waiters {
			if w == tx {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				break
			}
		}
		if len(e.waiters) == 0 && len(e.holders) == 0 {
			delete(m.entries, res)
		}
	}
}

// ReleaseAll releases every lock held by tx and clears any outstanding
// wait-for edges it participated in, per commit/rollback cleanup.
func (m *Manager) ReleaseAll(tx uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseAllLocked(tx)
}

func (m *Manager) releaseAllLocked(tx uint64) {
	for res, e := range m.entries {
		for i, h := range e.holders {
			if h.tx == tx {
				e.holders = append(e.holders[:i], e.holders[i+1:]...)
				break
			}
		}
		if len(e.holders) == 0 && len(e.waiters) == 0 {
			delete(m.entries, res)
		}
	}
	delete(m.waitFor, tx)
	delete(m.waitSince, tx)
	for _, set := range m.waitFor {
		delete(set, tx)
	}
}

// DetectDeadlock runs a DFS-based cycle search over the wait-for graph.
// If a cycle is found, the youngest (highest tx id) participant is
// chosen as the victim, its locks released, and the DeadlockInfo
// returned alongside true.
func (m *Manager) DetectDeadlock() (DeadlockInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	visited := make(map[uint64]int) // 0 unvisited, 1 in-stack, 2 done
	var stack []uint64

	var dfs func(node uint64) []uint64
	dfs = func(node uint64) []uint64 {
		visited[node] = 1
		stack = append(stack, node)
		for next := range m.waitFor[node] {
			switch visited[next] {
			case 0:
				if cyc := dfs(next); cyc != nil {
					return cyc
				}
			case 1:
				cycle := []uint64{}
				started := false
				for _, s := range stack {
					if s == next {
						started = true
					}
					if started {
						cycle = append(cycle, s)
					}
				}
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		visited[node] = 2
		return nil
	}

	var starts []uint64
	for tx := range m.waitFor {
		starts = append(starts, tx)
	}
	for _, tx := range starts {
		if visited[tx] != 0 {
			continue
		}
		if cycle := dfs(tx); cycle != nil {
			victim := cycle[0]
			for _, tx := range cycle {
				if tx > victim {
					victim = tx
				}
			}
			m.releaseAllLocked(victim)
			return DeadlockInfo{Cycle: cycle, Victim: victim}, true
		}
	}
	return DeadlockInfo{}, false
}

// DetectTimeouts returns every tx whose wait has exceeded threshold,
// regardless of whether it participates in a cycle, and releases their
// locks.
func (m *Manager) DetectTimeouts(threshold time.Duration) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var timedOut []uint64
	now := time.Now()
	for tx, since := range m.waitSince {
		if now.Sub(since) > threshold {
			timedOut = append(timedOut, tx)
		}
	}
	for _, tx := range timedOut {
		m.releaseAllLocked(tx)
	}
	return timedOut
}

// ReadContext accumulates (resource, version) pairs an optimistic reader
// has observed.
type ReadContext struct {
	captured map[Resource]uint64
}

// NewReadContext returns an empty read context.
func NewReadContext() *ReadContext {
	return &ReadContext{captured: make(map[Resource]uint64)}
}

// Capture records res's current version as observed by the reader.
func (m *Manager) Capture(rc *ReadContext, res Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc.captured[res] = m.versions[res]
}

// Verify checks every captured (resource, version) pair against the
// resource's current version, returning VersionConflict for the first
// mismatch found.
func (m *Manager) Verify(rc *ReadContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for res, expected := range rc.captured {
		actual := m.versions[res]
		if actual != expected {
			return graphcode.VersionConflict(expected, actual)
		}
	}
	return nil
}

// Bump atomically increments res's version counter (a compare-and-swap
// is unnecessary here since the manager's own mutex already serializes
// every caller) and returns the new value.
func (m *Manager) Bump(res Resource) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[res]++
	return m.versions[res]
}

// Version returns res's current version without side effects.
func (m *Manager) Version(res Resource) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[res]
}
