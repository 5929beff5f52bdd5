// Package txn implements the transaction manager: lifecycle, an
// append-only operation log, a savepoint stack, and a deadline sweeper.
// Writes issued inside a transaction are staged (never applied to the
// underlying engine) until Commit validates the isolation level and
// replays the op log against the real storage engine; Rollback simply
// discards the staged log, which is always sufficient to restore the
// pre-begin state because nothing was ever applied early. Concurrency
// control (pessimistic write locks, read/write-set validation) is
// delegated to internal/graph/lock and internal/graph/isolation.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/graphdb/internal/graph/constraint"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/isolation"
	"github.com/r3e-network/graphdb/internal/graph/lock"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/snapshot"
	"github.com/r3e-network/graphdb/internal/graph/value"
	"github.com/r3e-network/graphdb/pkg/logger"
)

// tempIDBit marks a NodeID/RelID as transaction-local: not yet assigned a
// real id by the storage engine. Real engine ids are monotonic starting
// at 1, so reserving the top bit for temp ids never collides with a
// committed id within any realistic lifetime of one engine instance.
const tempIDBit = uint64(1) << 63

func isTempNode(id model.NodeID) bool { return uint64(id)&tempIDBit != 0 }
func isTempRel(id model.RelID) bool   { return uint64(id)&tempIDBit != 0 }

// Status is a transaction's lifecycle state.
type Status int

const (
	Active Status = iota
	Committed
	RolledBack
	// Failed marks a transaction whose commit aborted partway through
	// replaying its op log against the storage engine (e.g. a StorageIo
	// error). The op log may be partially applied to the engine at that
	// point — storage state is not unwound — but the
	// transaction's own concurrency-control
	// bookkeeping (locks, isolation read/write sets, the manager's active
	// set) is released exactly as it would be on RolledBack, so the
	// failure never leaks the tx as permanently Active.
	Failed
)

// OpKind identifies one entry in a transaction's operation log.
type OpKind int

const (
	OpCreateNode OpKind = iota
	OpCreateRel
	OpDeleteNode
	OpDeleteRel
	OpUpdateNode
	OpUpdateRel
)

// Op is one operation-log entry. Which fields are populated depends on
// Kind; Delete/Update entries carry the old data. Commit passes OldProps
// and DeletedNode to the index manager; Rollback, which only discards the
// log, reads none of it.
type Op struct {
	Kind OpKind

	NodeID model.NodeID
	RelID  model.RelID

	Labels  []string
	Props   value.Map
	Start   model.NodeID
	End     model.NodeID
	RelType string

	OldProps value.Map
	NewProps value.Map

	DeletedNode *model.Node
	DeletedRel  *model.Relationship
}

// Savepoint is a named marker holding the op-log length at creation time.
type Savepoint struct {
	Name   string
	LogLen int
}

// Options configures a new transaction.
type Options struct {
	Level    isolation.Level
	Timeout  time.Duration // zero uses the manager default; negative disables
	Snapshot bool
}

// Manager owns every active transaction, the shared lock/isolation
// managers, and a periodic sweeper that rolls back transactions whose
// deadline has passed.
type Manager struct {
	mu             sync.Mutex
	eng            engine.Engine
	idx            *index.Manager
	constraints    *constraint.Manager
	locks          *lock.Manager
	iso            *isolation.Manager
	log            *logger.Logger
	defaultTimeout time.Duration
	defaultLevel   isolation.Level
	nextID         uint64
	active         map[uint64]*Transaction
	sweeper        *cron.Cron
	snapshots      *snapshot.Manager
}

// NewManager wires a transaction manager around the shared storage
// engine, index manager, constraint manager, lock manager, and isolation
// executor every transaction mutates and validates through.
func NewManager(eng engine.Engine, idx *index.Manager, constraints *constraint.Manager, locks *lock.Manager, iso *isolation.Manager, log *logger.Logger, defaultTimeout time.Duration, defaultLevel isolation.Level) *Manager {
	if log == nil {
		log = logger.NewDefault("txn")
	}
	return &Manager{
		eng:            eng,
		idx:            idx,
		constraints:    constraints,
		locks:          locks,
		iso:            iso,
		log:            log,
		defaultTimeout: defaultTimeout,
		defaultLevel:   defaultLevel,
		active:         make(map[uint64]*Transaction),
	}
}

// EnableSnapshots turns on the optional point-in-time snapshot
// retention: a transaction begun with Options.Snapshot set captures a deep
// copy of the engine's node/relationship/adjacency state at Begin time,
// retained in a bounded FIFO of at most maxSnapshots entries. Without
// this call, Options.Snapshot is accepted but has no effect. Rollback
// never reads a snapshot either way: it discards the staged op log.
func (m *Manager) EnableSnapshots(maxSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = snapshot.NewManager(maxSnapshots)
}

// Snapshots returns the snapshot manager, or nil if EnableSnapshots was
// never called.
func (m *Manager) Snapshots() *snapshot.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}

// captureSnapshot drains the engine's current node/relationship/adjacency
// state into the maps snapshot.Manager.Take deep-copies. O(|V|+|E|),
// matching the index Rebuild cost the engine already accepts for the
// same "derived state, rebuildable from base data" reason.
func (m *Manager) captureSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	allIt, err := m.eng.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make(map[model.NodeID]*model.Node)
	adjacency := make(map[model.NodeID]*model.Adjacency)
	rels := make(map[model.RelID]*model.Relationship)
	for _, n := range engine.Drain(allIt) {
		nodes[n.ID] = n

		outIt, err := m.eng.OutgoingRels(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		var out []model.RelID
		for _, r := range engine.DrainRels(outIt) {
			out = append(out, r.ID)
			rels[r.ID] = r
		}

		inIt, err := m.eng.IncomingRels(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		var in []model.RelID
		for _, r := range engine.DrainRels(inIt) {
			in = append(in, r.ID)
			rels[r.ID] = r
		}

		adjacency[n.ID] = &model.Adjacency{Outgoing: out, Incoming: in}
	}
	return m.snapshots.Take(nodes, rels, adjacency), nil
}

// StartSweeper schedules a periodic deadline sweep at the given interval.
// Every Active transaction whose deadline has passed is rolled back with
// a Timeout error.
func (m *Manager) StartSweeper(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	m.sweeper = cron.New(cron.WithSeconds())
	_, err := m.sweeper.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		m.sweep()
	})
	if err != nil {
		return graphcode.Wrap(graphcode.CodeStorageIO, "schedule transaction sweeper", 500, err)
	}
	m.sweeper.Start()
	return nil
}

// StopSweeper halts the background deadline sweeper, if running.
func (m *Manager) StopSweeper() {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
}

func (m *Manager) sweep() {
	now := time.Now()
	m.mu.Lock()
	var expired []*Transaction
	for _, tx := range m.active {
		if !tx.deadline.IsZero() && now.After(tx.deadline) {
			expired = append(expired, tx)
		}
	}
	m.mu.Unlock()

	for _, tx := range expired {
		m.log.WithField("tx_id", tx.id).Warn("transaction deadline exceeded, rolling back")
		_ = tx.Rollback(context.Background())
	}
}

// Begin allocates a fresh transaction id and stamps its deadline.
func (m *Manager) Begin(opts Options) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID

	level := opts.Level
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = m.defaultTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	tx := &Transaction{
		mgr:              m,
		id:               id,
		status:           Active,
		startTime:        time.Now(),
		deadline:         deadline,
		level:            level,
		snapshotMode:     opts.Snapshot,
		stagedNodes:      make(map[model.NodeID]*model.Node),
		stagedRels:       make(map[model.RelID]*model.Relationship),
		deletedNodes:     make(map[model.NodeID]struct{}),
		deletedRels:      make(map[model.RelID]struct{}),
		updatedNodeProps: make(map[model.NodeID]value.Map),
		updatedRelProps:  make(map[model.RelID]value.Map),
		nextTempNodeID:   model.NodeID(tempIDBit),
		nextTempRelID:    model.RelID(tempIDBit),
	}
	m.active[id] = tx
	m.iso.Begin(id)

	if opts.Snapshot && m.snapshots != nil {
		if snap, err := m.captureSnapshot(context.Background()); err == nil {
			tx.snapshotID = snap.ID
		} else {
			m.log.WithField("tx_id", id).WithField("error", err).Warn("failed to capture transaction snapshot")
		}
	}
	return tx
}

// Lookup returns the active transaction with the given id.
func (m *Manager) Lookup(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.active[id]
	return tx, ok
}

// ActiveCount reports how many transactions are currently active.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) finish(id uint64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// Transaction is one unit of work: an append-only operation log, a
// savepoint stack, and staged views of every node/relationship it has
// created, updated, or deleted, layered over the manager's storage
// engine so reads observe the transaction's own uncommitted writes.
type Transaction struct {
	mgr *Manager

	id        uint64
	startTime time.Time
	deadline  time.Time
	level     isolation.Level

	snapshotMode bool
	snapshotID   string

	mu         sync.Mutex
	status     Status
	log        []Op
	savepoints []Savepoint

	stagedNodes      map[model.NodeID]*model.Node
	stagedRels       map[model.RelID]*model.Relationship
	deletedNodes     map[model.NodeID]struct{}
	deletedRels      map[model.RelID]struct{}
	updatedNodeProps map[model.NodeID]value.Map
	updatedRelProps  map[model.RelID]value.Map

	nextTempNodeID model.NodeID
	nextTempRelID  model.RelID

	committedNodeIDs map[model.NodeID]model.NodeID
	committedRelIDs  map[model.RelID]model.RelID
}

// ResolveNodeID maps a temp id this transaction created to the real
// engine id Commit assigned it, once committed. Real ids and ids from
// uncommitted (or rolled-back) transactions are returned unchanged, so
// callers can call this unconditionally on every id they are holding.
func (tx *Transaction) ResolveNodeID(id model.NodeID) model.NodeID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if real, ok := tx.committedNodeIDs[id]; ok {
		return real
	}
	return id
}

// ResolveRelID maps a temp relationship id to its post-commit real id,
// per ResolveNodeID.
func (tx *Transaction) ResolveRelID(id model.RelID) model.RelID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if real, ok := tx.committedRelIDs[id]; ok {
		return real
	}
	return id
}

// ID returns the transaction's id.
func (tx *Transaction) ID() uint64 { return tx.id }

// SnapshotID returns the id of the point-in-time snapshot captured at
// Begin, if this transaction was started with Options.Snapshot and the
// manager has snapshot retention enabled.
func (tx *Transaction) SnapshotID() (string, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.snapshotID, tx.snapshotID != ""
}

// Status returns the transaction's current lifecycle state.
func (tx *Transaction) Status() Status {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

// OpLog returns a copy of the transaction's current operation log, for
// diagnostics and testing.
func (tx *Transaction) OpLog() []Op {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]Op, len(tx.log))
	copy(out, tx.log)
	return out
}

func (tx *Transaction) requireActiveLocked() error {
	if tx.status != Active {
		return graphcode.TransactionAlreadyCompleted(tx.id)
	}
	return nil
}

// applyOpLocked mutates the staged view according to op. It is the single
// place staged state is derived from the log, used both when a new op is
// appended and when the log is replayed after a rollback-to-savepoint
// truncation, so the two paths can never drift apart.
func (tx *Transaction) applyOpLocked(op Op) {
	switch op.Kind {
	case OpCreateNode:
		tx.stagedNodes[op.NodeID] = &model.Node{ID: op.NodeID, Labels: op.Labels, Props: op.Props, Version: 1}
	case OpCreateRel:
		tx.stagedRels[op.RelID] = &model.Relationship{ID: op.RelID, Start: op.Start, End: op.End, Type: op.RelType, Props: op.Props, Version: 1}
	case OpDeleteNode:
		if isTempNode(op.NodeID) {
			delete(tx.stagedNodes, op.NodeID)
		} else {
			tx.deletedNodes[op.NodeID] = struct{}{}
			delete(tx.updatedNodeProps, op.NodeID)
		}
	case OpDeleteRel:
		if isTempRel(op.RelID) {
			delete(tx.stagedRels, op.RelID)
		} else {
			tx.deletedRels[op.RelID] = struct{}{}
			delete(tx.updatedRelProps, op.RelID)
		}
	case OpUpdateNode:
		if isTempNode(op.NodeID) {
			if n, ok := tx.stagedNodes[op.NodeID]; ok {
				n.Props = op.NewProps
			}
		} else {
			tx.updatedNodeProps[op.NodeID] = op.NewProps
		}
	case OpUpdateRel:
		if isTempRel(op.RelID) {
			if r, ok := tx.stagedRels[op.RelID]; ok {
				r.Props = op.NewProps
			}
		} else {
			tx.updatedRelProps[op.RelID] = op.NewProps
		}
	}
}

func (tx *Transaction) appendOpLocked(op Op) {
	tx.log = append(tx.log, op)
	tx.applyOpLocked(op)
}

func (tx *Transaction) rebuildStagedLocked() {
	tx.stagedNodes = make(map[model.NodeID]*model.Node)
	tx.stagedRels = make(map[model.RelID]*model.Relationship)
	tx.deletedNodes = make(map[model.NodeID]struct{})
	tx.deletedRels = make(map[model.RelID]struct{})
	tx.updatedNodeProps = make(map[model.NodeID]value.Map)
	tx.updatedRelProps = make(map[model.RelID]value.Map)
	for _, op := range tx.log {
		tx.applyOpLocked(op)
	}
}

func (tx *Transaction) allocTempNodeIDLocked() model.NodeID {
	tx.nextTempNodeID++
	return tx.nextTempNodeID
}

func (tx *Transaction) allocTempRelIDLocked() model.RelID {
	tx.nextTempRelID++
	return tx.nextTempRelID
}

// CreateNode stages a node creation; the returned id is usable
// immediately for further operations within this transaction (e.g. as a
// relationship endpoint) but is not a real engine id until Commit.
func (tx *Transaction) CreateNode(ctx context.Context, labels []string, props value.Map) (model.NodeID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return 0, err
	}

	labelsCopy := append([]string{}, labels...)
	propsCopy := props.Clone()
	candidate := &model.Node{Labels: labelsCopy, Props: propsCopy}
	if err := tx.mgr.constraints.Validate(candidate, 0); err != nil {
		return 0, err
	}

	id := tx.allocTempNodeIDLocked()
	tx.appendOpLocked(Op{Kind: OpCreateNode, NodeID: id, Labels: labelsCopy, Props: propsCopy})
	return id, nil
}

func (tx *Transaction) nodeExistsLocked(ctx context.Context, id model.NodeID) (bool, error) {
	if isTempNode(id) {
		_, ok := tx.stagedNodes[id]
		return ok, nil
	}
	if _, deleted := tx.deletedNodes[id]; deleted {
		return false, nil
	}
	_, found, err := tx.mgr.eng.GetNode(ctx, id)
	return found, err
}

// CreateRel stages a relationship creation. Both endpoints (temp or real)
// must already exist within this transaction's view.
func (tx *Transaction) CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return 0, err
	}

	if ok, err := tx.nodeExistsLocked(ctx, start); err != nil {
		return 0, err
	} else if !ok {
		return 0, graphcode.InvalidReference("node", idString(uint64(start)))
	}
	if ok, err := tx.nodeExistsLocked(ctx, end); err != nil {
		return 0, err
	} else if !ok {
		return 0, graphcode.InvalidReference("node", idString(uint64(end)))
	}

	id := tx.allocTempRelIDLocked()
	propsCopy := props.Clone()
	tx.appendOpLocked(Op{Kind: OpCreateRel, RelID: id, Start: start, End: end, RelType: relType, Props: propsCopy})
	return id, nil
}

// GetNode resolves a node through the transaction's staged view,
// falling through to the underlying engine and recording an isolation
// read when the id is real.
func (tx *Transaction) GetNode(ctx context.Context, id model.NodeID) (*model.Node, bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if isTempNode(id) {
		n, ok := tx.stagedNodes[id]
		if !ok {
			return nil, false, nil
		}
		return n.Clone(), true, nil
	}
	if _, deleted := tx.deletedNodes[id]; deleted {
		return nil, false, nil
	}
	n, found, err := tx.mgr.eng.GetNode(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	if p, ok := tx.updatedNodeProps[id]; ok {
		n.Props = p.Clone()
	}
	tx.mgr.iso.RecordRead(tx.id, isolation.ResourceKey{Kind: "node", ID: uint64(id)})
	return n, true, nil
}

// GetRel resolves a relationship through the transaction's staged view.
func (tx *Transaction) GetRel(ctx context.Context, id model.RelID) (*model.Relationship, bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if isTempRel(id) {
		r, ok := tx.stagedRels[id]
		if !ok {
			return nil, false, nil
		}
		return r.Clone(), true, nil
	}
	if _, deleted := tx.deletedRels[id]; deleted {
		return nil, false, nil
	}
	r, found, err := tx.mgr.eng.GetRel(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	if p, ok := tx.updatedRelProps[id]; ok {
		r.Props = p.Clone()
	}
	tx.mgr.iso.RecordRead(tx.id, isolation.ResourceKey{Kind: "rel", ID: uint64(id)})
	return r, true, nil
}

// UpdateNodeProps stages a property merge on id: existing properties are
// kept, props overlays new/changed ones, and a property absent before is
// created rather than rejected, which is what Cypher SET expects.
func (tx *Transaction) UpdateNodeProps(ctx context.Context, id model.NodeID, props value.Map) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return err
	}

	if isTempNode(id) {
		n, ok := tx.stagedNodes[id]
		if !ok {
			return graphcode.InvalidReference("node", idString(uint64(id)))
		}
		oldProps := n.Props.Clone()
		newProps := oldProps.Merge(props)
		candidate := &model.Node{ID: id, Labels: n.Labels, Props: newProps}
		if err := tx.mgr.constraints.Validate(candidate, id); err != nil {
			return err
		}
		tx.appendOpLocked(Op{Kind: OpUpdateNode, NodeID: id, Labels: n.Labels, OldProps: oldProps, NewProps: newProps})
		return nil
	}

	if err := tx.acquireWriteLockLocked(ctx, lock.Resource{Kind: "node", ID: uint64(id)}); err != nil {
		return err
	}
	n, found, err := tx.mgr.eng.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return graphcode.InvalidReference("node", idString(uint64(id)))
	}
	if p, ok := tx.updatedNodeProps[id]; ok {
		n.Props = p.Clone()
	}
	oldProps := n.Props.Clone()
	newProps := oldProps.Merge(props)
	candidate := &model.Node{ID: id, Labels: n.Labels, Props: newProps}
	if err := tx.mgr.constraints.Validate(candidate, id); err != nil {
		return err
	}
	tx.appendOpLocked(Op{Kind: OpUpdateNode, NodeID: id, Labels: n.Labels, OldProps: oldProps, NewProps: newProps})
	return nil
}

// UpdateRelProps stages a property merge on a relationship, same
// create-on-absent semantics as UpdateNodeProps.
func (tx *Transaction) UpdateRelProps(ctx context.Context, id model.RelID, props value.Map) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return err
	}

	if isTempRel(id) {
		r, ok := tx.stagedRels[id]
		if !ok {
			return graphcode.InvalidReference("rel", idString(uint64(id)))
		}
		oldProps := r.Props.Clone()
		newProps := oldProps.Merge(props)
		tx.appendOpLocked(Op{Kind: OpUpdateRel, RelID: id, OldProps: oldProps, NewProps: newProps})
		return nil
	}

	if err := tx.acquireWriteLockLocked(ctx, lock.Resource{Kind: "rel", ID: uint64(id)}); err != nil {
		return err
	}
	r, found, err := tx.mgr.eng.GetRel(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return graphcode.InvalidReference("rel", idString(uint64(id)))
	}
	if p, ok := tx.updatedRelProps[id]; ok {
		r.Props = p.Clone()
	}
	oldProps := r.Props.Clone()
	newProps := oldProps.Merge(props)
	tx.appendOpLocked(Op{Kind: OpUpdateRel, RelID: id, OldProps: oldProps, NewProps: newProps})
	return nil
}

// DeleteNode stages a node deletion, cascading to every relationship
// (staged or real) incident to it, per the universal adjacency
// invariant.
func (tx *Transaction) DeleteNode(ctx context.Context, id model.NodeID) (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return false, err
	}

	if isTempNode(id) {
		n, ok := tx.stagedNodes[id]
		if !ok {
			return false, nil
		}
		tx.cascadeDeleteStagedRelsLocked(id)
		tx.appendOpLocked(Op{Kind: OpDeleteNode, NodeID: id, DeletedNode: n.Clone()})
		return true, nil
	}

	if _, deleted := tx.deletedNodes[id]; deleted {
		return false, nil
	}
	if err := tx.acquireWriteLockLocked(ctx, lock.Resource{Kind: "node", ID: uint64(id)}); err != nil {
		return false, err
	}
	n, found, err := tx.mgr.eng.GetNode(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if p, ok := tx.updatedNodeProps[id]; ok {
		n.Props = p.Clone()
	}

	tx.cascadeDeleteStagedRelsLocked(id)
	if err := tx.cascadeDeleteRealRelsLocked(ctx, id); err != nil {
		return false, err
	}
	tx.appendOpLocked(Op{Kind: OpDeleteNode, NodeID: id, DeletedNode: n})
	return true, nil
}

func (tx *Transaction) cascadeDeleteStagedRelsLocked(nodeID model.NodeID) {
	for relID, r := range tx.stagedRels {
		if r.Start == nodeID || r.End == nodeID {
			tx.appendOpLocked(Op{Kind: OpDeleteRel, RelID: relID, DeletedRel: r.Clone()})
		}
	}
}

func (tx *Transaction) cascadeDeleteRealRelsLocked(ctx context.Context, nodeID model.NodeID) error {
	seen := make(map[model.RelID]struct{})
	outIt, err := tx.mgr.eng.OutgoingRels(ctx, nodeID)
	if err != nil {
		return err
	}
	for _, r := range engine.DrainRels(outIt) {
		seen[r.ID] = struct{}{}
	}
	inIt, err := tx.mgr.eng.IncomingRels(ctx, nodeID)
	if err != nil {
		return err
	}
	for _, r := range engine.DrainRels(inIt) {
		seen[r.ID] = struct{}{}
	}
	for relID := range seen {
		if _, already := tx.deletedRels[relID]; already {
			continue
		}
		r, found, err := tx.mgr.eng.GetRel(ctx, relID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if p, ok := tx.updatedRelProps[relID]; ok {
			r.Props = p.Clone()
		}
		tx.appendOpLocked(Op{Kind: OpDeleteRel, RelID: relID, DeletedRel: r})
	}
	return nil
}

// DeleteRel stages a relationship deletion.
func (tx *Transaction) DeleteRel(ctx context.Context, id model.RelID) (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return false, err
	}

	if isTempRel(id) {
		r, ok := tx.stagedRels[id]
		if !ok {
			return false, nil
		}
		tx.appendOpLocked(Op{Kind: OpDeleteRel, RelID: id, DeletedRel: r.Clone()})
		return true, nil
	}

	if _, deleted := tx.deletedRels[id]; deleted {
		return false, nil
	}
	if err := tx.acquireWriteLockLocked(ctx, lock.Resource{Kind: "rel", ID: uint64(id)}); err != nil {
		return false, err
	}
	r, found, err := tx.mgr.eng.GetRel(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if p, ok := tx.updatedRelProps[id]; ok {
		r.Props = p.Clone()
	}
	tx.appendOpLocked(Op{Kind: OpDeleteRel, RelID: id, DeletedRel: r})
	return true, nil
}

// acquireWriteLockLocked blocks (polling the wait-for graph) until a
// Write lock on res is granted, this transaction is chosen as a deadlock
// victim, or its wait exceeds the configured timeout threshold. tx.mu is
// held by the caller across the call; the lock manager has its own
// independent mutex so this does not self-deadlock.
func (tx *Transaction) acquireWriteLockLocked(ctx context.Context, res lock.Resource) error {
	const pollInterval = 200 * time.Microsecond
	for {
		if tx.mgr.locks.TryAcquire(tx.id, res, lock.Write) {
			return nil
		}
		if info, found := tx.mgr.locks.DetectDeadlock(); found {
			if info.Victim == tx.id {
				tx.status = RolledBack
				tx.log = nil
				tx.rebuildStagedLocked()
				tx.mgr.iso.Forget(tx.id)
				tx.mgr.finish(tx.id)
				return graphcode.DeadlockVictim(tx.id)
			}
			continue
		}
		if !tx.deadline.IsZero() && time.Now().After(tx.deadline) {
			return graphcode.Timeout("acquire lock")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// CreateSavepoint pushes a named marker at the current log length.
func (tx *Transaction) CreateSavepoint(name string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return err
	}
	for _, sp := range tx.savepoints {
		if sp.Name == name {
			return graphcode.SavepointAlreadyExists(name)
		}
	}
	tx.savepoints = append(tx.savepoints, Savepoint{Name: name, LogLen: len(tx.log)})
	return nil
}

// RollbackToSavepoint truncates the op log back to name's creation point
// and drops every savepoint created after it (name itself is retained).
func (tx *Transaction) RollbackToSavepoint(name string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return err
	}
	idx := tx.findSavepointLocked(name)
	if idx < 0 {
		return graphcode.SavepointNotFound(name)
	}
	sp := tx.savepoints[idx]
	tx.log = tx.log[:sp.LogLen]
	tx.savepoints = tx.savepoints[:idx+1]
	tx.rebuildStagedLocked()
	return nil
}

// ReleaseSavepoint drops name's marker without affecting the log.
func (tx *Transaction) ReleaseSavepoint(name string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActiveLocked(); err != nil {
		return err
	}
	idx := tx.findSavepointLocked(name)
	if idx < 0 {
		return graphcode.SavepointNotFound(name)
	}
	tx.savepoints = append(tx.savepoints[:idx], tx.savepoints[idx+1:]...)
	return nil
}

func (tx *Transaction) findSavepointLocked(name string) int {
	for i := len(tx.savepoints) - 1; i >= 0; i-- {
		if tx.savepoints[i].Name == name {
			return i
		}
	}
	return -1
}

// Rollback discards every staged operation. Because writes are never
// applied to the underlying engine before Commit, this always restores
// exactly the state observed at Begin.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != Active {
		return graphcode.TransactionAlreadyCompleted(tx.id)
	}
	tx.log = nil
	tx.savepoints = nil
	tx.rebuildStagedLocked()
	tx.status = RolledBack
	tx.mgr.iso.Forget(tx.id)
	tx.mgr.locks.ReleaseAll(tx.id)
	tx.mgr.finish(tx.id)
	return nil
}

// Commit validates the transaction's read/write sets against its
// isolation level, then — only on success — replays the op log against
// the real storage engine and index manager, resolving temp ids to the
// real ids the engine assigns. A committing-no-op transaction (no
// recorded operations) is a no-op on the engine, as required.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != Active {
		return graphcode.TransactionAlreadyCompleted(tx.id)
	}

	for _, key := range tx.writeSetLocked() {
		tx.mgr.iso.RecordWrite(tx.id, key)
	}
	if err := tx.mgr.iso.Validate(tx.id, tx.level); err != nil {
		tx.mgr.iso.Forget(tx.id)
		tx.mgr.locks.ReleaseAll(tx.id)
		tx.status = RolledBack
		tx.log = nil
		tx.rebuildStagedLocked()
		tx.mgr.finish(tx.id)
		return err
	}

	nodeIDMap := make(map[model.NodeID]model.NodeID)
	relIDMap := make(map[model.RelID]model.RelID)
	resolveNode := func(id model.NodeID) model.NodeID {
		if isTempNode(id) {
			return nodeIDMap[id]
		}
		return id
	}
	resolveRel := func(id model.RelID) model.RelID {
		if isTempRel(id) {
			return relIDMap[id]
		}
		return id
	}

	for _, op := range tx.log {
		switch op.Kind {
		case OpCreateNode:
			realID, err := tx.mgr.eng.CreateNode(ctx, op.Labels, op.Props)
			if err != nil {
				return tx.failLocked(err)
			}
			nodeIDMap[op.NodeID] = realID
			tx.mgr.idx.OnNodeCreate(&model.Node{ID: realID, Labels: op.Labels, Props: op.Props})
		case OpCreateRel:
			start := resolveNode(op.Start)
			end := resolveNode(op.End)
			realID, err := tx.mgr.eng.CreateRel(ctx, start, end, op.RelType, op.Props)
			if err != nil {
				return tx.failLocked(err)
			}
			relIDMap[op.RelID] = realID
		case OpDeleteNode:
			realID := resolveNode(op.NodeID)
			if _, err := tx.mgr.eng.DeleteNode(ctx, realID); err != nil {
				return tx.failLocked(err)
			}
			unindexed := op.DeletedNode.Clone()
			unindexed.ID = realID
			tx.mgr.idx.OnNodeDelete(unindexed)
		case OpDeleteRel:
			realID := resolveRel(op.RelID)
			if _, err := tx.mgr.eng.DeleteRel(ctx, realID); err != nil {
				return tx.failLocked(err)
			}
		case OpUpdateNode:
			realID := resolveNode(op.NodeID)
			if err := tx.mgr.eng.UpdateNodeProps(ctx, realID, op.NewProps); err != nil {
				return tx.failLocked(err)
			}
			tx.mgr.idx.OnNodeUpdate(&model.Node{ID: realID, Labels: op.Labels, Props: op.NewProps}, op.OldProps)
		case OpUpdateRel:
			realID := resolveRel(op.RelID)
			if err := tx.mgr.eng.UpdateRelProps(ctx, realID, op.NewProps); err != nil {
				return tx.failLocked(err)
			}
		}
	}

	tx.status = Committed
	tx.committedNodeIDs = nodeIDMap
	tx.committedRelIDs = relIDMap
	tx.mgr.iso.Commit(tx.id)
	tx.mgr.locks.ReleaseAll(tx.id)
	tx.mgr.finish(tx.id)
	return nil
}

// failLocked retires a transaction that failed partway through Commit's
// op-log replay. The engine itself may be left partially mutated (no undo
// of already-applied ops), but the
// transaction's concurrency-control bookkeeping is released exactly as on
// any other terminal outcome: locks freed, isolation state forgotten, and
// the manager's active set cleared, so the failure can never leave a
// committing transaction wedged as Active and holding locks forever.
// Callers must hold tx.mu.
func (tx *Transaction) failLocked(cause error) error {
	tx.status = Failed
	tx.mgr.iso.Forget(tx.id)
	tx.mgr.locks.ReleaseAll(tx.id)
	tx.mgr.finish(tx.id)
	return cause
}

// writeSetLocked derives the transaction's write-set from its op log.
// Brand-new (temp-id) resources are excluded: nothing else in the system
// could have observed or conflicted with an id that does not exist yet.
func (tx *Transaction) writeSetLocked() []isolation.ResourceKey {
	var keys []isolation.ResourceKey
	for id := range tx.updatedNodeProps {
		keys = append(keys, isolation.ResourceKey{Kind: "node", ID: uint64(id)})
	}
	for id := range tx.deletedNodes {
		keys = append(keys, isolation.ResourceKey{Kind: "node", ID: uint64(id)})
	}
	for id := range tx.updatedRelProps {
		keys = append(keys, isolation.ResourceKey{Kind: "rel", ID: uint64(id)})
	}
	for id := range tx.deletedRels {
		keys = append(keys, isolation.ResourceKey{Kind: "rel", ID: uint64(id)})
	}
	return keys
}

func idString(id uint64) string {
	return fmt.Sprintf("%d", id)
}
