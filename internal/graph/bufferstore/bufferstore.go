// Package bufferstore implements the write-coalescing backend: a
// pending-write overlay in front of any other Engine, flushed to the
// underlying engine when a pending-count threshold is crossed, a
// wall-clock interval elapses, or the caller forces it. Reads consult the
// overlay first and fall through to the underlying engine on miss.
package bufferstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Config controls flush behavior.
type Config struct {
	// FlushThreshold is the pending-write count that triggers an
	// immediate flush.
	FlushThreshold int
	// FlushInterval is the wall-clock period of the background flush
	// ticker. Zero disables the background ticker; callers must force
	// flushes (or rely on the threshold) instead.
	FlushInterval time.Duration
}

// Store is the buffered Engine implementation.
type Store struct {
	underlying engine.Engine
	cfg        Config

	mu              sync.Mutex
	pendingNodes    map[model.NodeID]*model.Node
	pendingRels     map[model.RelID]*model.Relationship
	pendingOutgoing map[model.NodeID][]model.RelID
	pendingIncoming map[model.NodeID][]model.RelID
	deletedNodes    map[model.NodeID]struct{}
	deletedRels     map[model.RelID]struct{}

	nextNodeID model.NodeID
	nextRelID  model.RelID

	scheduler  *cron.Cron
	flushErrMu sync.Mutex
	flushErr   error
}

var _ engine.Engine = (*Store)(nil)

// New wraps underlying with a write-coalescing buffer. It scans the
// underlying engine once, the same way the disk backend reconstructs its
// id counters at open, so buffered ids continue the existing sequence.
func New(ctx context.Context, underlying engine.Engine, cfg Config) (*Store, error) {
	maxNode, maxRel, err := scanMaxIDs(ctx, underlying)
	if err != nil {
		return nil, err
	}

	s := &Store{
		underlying:      underlying,
		cfg:             cfg,
		pendingNodes:    make(map[model.NodeID]*model.Node),
		pendingRels:     make(map[model.RelID]*model.Relationship),
		pendingOutgoing: make(map[model.NodeID][]model.RelID),
		pendingIncoming: make(map[model.NodeID][]model.RelID),
		deletedNodes:    make(map[model.NodeID]struct{}),
		deletedRels:     make(map[model.RelID]struct{}),
		nextNodeID:      maxNode,
		nextRelID:       maxRel,
	}

	if cfg.FlushInterval > 0 {
		s.scheduler = cron.New(cron.WithSeconds())
		_, err := s.scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.FlushInterval), func() {
			if err := s.Flush(context.Background()); err != nil {
				s.flushErrMu.Lock()
				s.flushErr = err
				s.flushErrMu.Unlock()
			}
		})
		if err != nil {
			return nil, graphcode.Wrap(graphcode.CodeStorageIO, "schedule flush ticker", 500, err)
		}
		s.scheduler.Start()
	}

	return s, nil
}

func scanMaxIDs(ctx context.Context, eng engine.Engine) (model.NodeID, model.RelID, error) {
	it, err := eng.AllNodes(ctx)
	if err != nil {
		return 0, 0, err
	}
	var maxNode model.NodeID
	var maxRel model.RelID
	nodes := engine.Drain(it)
	for _, n := range nodes {
		if n.ID > maxNode {
			maxNode = n.ID
		}
		outIt, err := eng.OutgoingRels(ctx, n.ID)
		if err != nil {
			return 0, 0, err
		}
		for _, r := range engine.DrainRels(outIt) {
			if r.ID > maxRel {
				maxRel = r.ID
			}
		}
	}
	return maxNode, maxRel, nil
}

func (s *Store) pendingCount() int {
	return len(s.pendingNodes) + len(s.pendingRels) + len(s.deletedNodes) + len(s.deletedRels)
}

// CreateNode implements engine.Engine.
func (s *Store) CreateNode(ctx context.Context, labels []string, props value.Map) (model.NodeID, error) {
	s.mu.Lock()
	s.nextNodeID++
	id := s.nextNodeID
	labelsCopy := make([]string, len(labels))
	copy(labelsCopy, labels)
	s.pendingNodes[id] = &model.Node{ID: id, Labels: labelsCopy, Props: props.Clone(), Version: 1}
	delete(s.deletedNodes, id)
	shouldFlush := s.cfg.FlushThreshold > 0 && s.pendingCount() >= s.cfg.FlushThreshold
	s.mu.Unlock()

	if shouldFlush {
		if err := s.Flush(ctx); err != nil {
			return id, err
		}
	}
	return id, nil
}

// CreateRel implements engine.Engine. Endpoint existence is checked
// against the overlay first, then the underlying engine.
func (s *Store) CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	if _, ok, err := s.GetNode(ctx, start); err != nil {
		return 0, err
	} else if !ok {
		return 0, graphcode.InvalidReference("node", fmt.Sprint(uint64(start)))
	}
	if _, ok, err := s.GetNode(ctx, end); err != nil {
		return 0, err
	} else if !ok {
		return 0, graphcode.InvalidReference("node", fmt.Sprint(uint64(end)))
	}

	s.mu.Lock()
	s.nextRelID++
	id := s.nextRelID
	s.pendingRels[id] = &model.Relationship{ID: id, Start: start, End: end, Type: relType, Props: props.Clone(), Version: 1}
	delete(s.deletedRels, id)
	s.pendingOutgoing[start] = append(s.pendingOutgoing[start], id)
	s.pendingIncoming[end] = append(s.pendingIncoming[end], id)
	shouldFlush := s.cfg.FlushThreshold > 0 && s.pendingCount() >= s.cfg.FlushThreshold
	s.mu.Unlock()

	if shouldFlush {
		if err := s.Flush(ctx); err != nil {
			return id, err
		}
	}
	return id, nil
}

// GetNode implements engine.Engine: overlay first, then underlying.
func (s *Store) GetNode(ctx context.Context, id model.NodeID) (*model.Node, bool, error) {
	s.mu.Lock()
	if _, deleted := s.deletedNodes[id]; deleted {
		s.mu.Unlock()
		return nil, false, nil
	}
	if n, ok := s.pendingNodes[id]; ok {
		clone := *n
		s.mu.Unlock()
		return &clone, true, nil
	}
	s.mu.Unlock()
	return s.underlying.GetNode(ctx, id)
}

// GetRel implements engine.Engine: overlay first, then underlying.
func (s *Store) GetRel(ctx context.Context, id model.RelID) (*model.Relationship, bool, error) {
	s.mu.Lock()
	if _, deleted := s.deletedRels[id]; deleted {
		s.mu.Unlock()
		return nil, false, nil
	}
	if r, ok := s.pendingRels[id]; ok {
		clone := *r
		s.mu.Unlock()
		return &clone, true, nil
	}
	s.mu.Unlock()
	return s.underlying.GetRel(ctx, id)
}

// UpdateNodeProps implements engine.Engine.
func (s *Store) UpdateNodeProps(ctx context.Context, id model.NodeID, props value.Map) error {
	s.mu.Lock()
	if _, deleted := s.deletedNodes[id]; deleted {
		s.mu.Unlock()
		return graphcode.InvalidReference("node", fmt.Sprint(uint64(id)))
	}
	if n, ok := s.pendingNodes[id]; ok {
		n.Props = props.Clone()
		n.Version++
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	n, found, err := s.underlying.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return graphcode.InvalidReference("node", fmt.Sprint(uint64(id)))
	}
	n.Props = props.Clone()
	n.Version++
	s.mu.Lock()
	s.pendingNodes[id] = n
	s.mu.Unlock()
	return nil
}

// UpdateRelProps implements engine.Engine.
func (s *Store) UpdateRelProps(ctx context.Context, id model.RelID, props value.Map) error {
	s.mu.Lock()
	if _, deleted := s.deletedRels[id]; deleted {
		s.mu.Unlock()
		return graphcode.InvalidReference("rel", fmt.Sprint(uint64(id)))
	}
	if r, ok := s.pendingRels[id]; ok {
		r.Props = props.Clone()
		r.Version++
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	r, found, err := s.underlying.GetRel(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return graphcode.InvalidReference("rel", fmt.Sprint(uint64(id)))
	}
	r.Props = props.Clone()
	r.Version++
	s.mu.Lock()
	s.pendingRels[id] = r
	s.mu.Unlock()
	return nil
}

func (s *Store) mergedAdjacency(ctx context.Context, id model.NodeID, pending map[model.NodeID][]model.RelID, fetch func(context.Context, model.NodeID) (engine.RelIterator, error)) (engine.RelIterator, error) {
	s.mu.Lock()
	_, deleted := s.deletedNodes[id]
	extra := append([]model.RelID{}, pending[id]...)
	s.mu.Unlock()
	if deleted {
		return engine.NewSliceRelIterator(nil), nil
	}

	base, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	rels := engine.DrainRels(base)

	out := make([]*model.Relationship, 0, len(rels)+len(extra))
	for _, r := range rels {
		if s.isRelLive(r.ID) {
			out = append(out, r)
		}
	}
	for _, relID := range extra {
		if r, found, _ := s.GetRel(ctx, relID); found {
			out = append(out, r)
		}
	}
	return engine.NewSliceRelIterator(out), nil
}

func (s *Store) isRelLive(id model.RelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, deleted := s.deletedRels[id]
	return !deleted
}

// OutgoingRels implements engine.Engine.
func (s *Store) OutgoingRels(ctx context.Context, id model.NodeID) (engine.RelIterator, error) {
	return s.mergedAdjacency(ctx, id, s.pendingOutgoing, s.underlying.OutgoingRels)
}

// IncomingRels implements engine.Engine.
func (s *Store) IncomingRels(ctx context.Context, id model.NodeID) (engine.RelIterator, error) {
	return s.mergedAdjacency(ctx, id, s.pendingIncoming, s.underlying.IncomingRels)
}

// AllNodes implements engine.Engine.
func (s *Store) AllNodes(ctx context.Context) (engine.NodeIterator, error) {
	base, err := s.underlying.AllNodes(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	pending := make([]*model.Node, 0, len(s.pendingNodes))
	for _, n := range s.pendingNodes {
		clone := *n
		pending = append(pending, &clone)
	}
	deleted := make(map[model.NodeID]struct{}, len(s.deletedNodes))
	for id := range s.deletedNodes {
		deleted[id] = struct{}{}
	}
	s.mu.Unlock()

	out := make([]*model.Node, 0, len(pending))
	for _, n := range engine.Drain(base) {
		if _, gone := deleted[n.ID]; !gone {
			out = append(out, n)
		}
	}
	out = append(out, pending...)
	return engine.NewSliceNodeIterator(out), nil
}

// DeleteNode implements engine.Engine.
func (s *Store) DeleteNode(ctx context.Context, id model.NodeID) (bool, error) {
	_, found, err := s.GetNode(ctx, id)
	if err != nil || !found {
		return false, err
	}

	outIt, err := s.OutgoingRels(ctx, id)
	if err != nil {
		return false, err
	}
	inIt, err := s.IncomingRels(ctx, id)
	if err != nil {
		return false, err
	}
	for _, r := range engine.DrainRels(outIt) {
		if _, err := s.DeleteRel(ctx, r.ID); err != nil {
			return false, err
		}
	}
	for _, r := range engine.DrainRels(inIt) {
		if _, err := s.DeleteRel(ctx, r.ID); err != nil {
			return false, err
		}
	}

	s.mu.Lock()
	delete(s.pendingNodes, id)
	s.deletedNodes[id] = struct{}{}
	s.mu.Unlock()
	return true, nil
}

// DeleteRel implements engine.Engine.
func (s *Store) DeleteRel(_ context.Context, id model.RelID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, deleted := s.deletedRels[id]; deleted {
		return false, nil
	}
	_, pending := s.pendingRels[id]
	delete(s.pendingRels, id)
	s.deletedRels[id] = struct{}{}
	if pending {
		return true, nil
	}
	return true, nil
}

// BatchCreateNodes implements engine.Engine.
func (s *Store) BatchCreateNodes(ctx context.Context, labels [][]string, props []value.Map) ([]model.NodeID, error) {
	ids := make([]model.NodeID, 0, len(labels))
	for i := range labels {
		var p value.Map
		if i < len(props) {
			p = props[i]
		}
		id, err := s.CreateNode(ctx, labels[i], p)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BatchCreateRels implements engine.Engine.
func (s *Store) BatchCreateRels(ctx context.Context, rels []engine.RelSpec) ([]model.RelID, error) {
	ids := make([]model.RelID, 0, len(rels))
	for _, spec := range rels {
		id, err := s.CreateRel(ctx, spec.Start, spec.End, spec.Type, spec.Props)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Flush materializes every pending write and delete mark into the
// underlying engine. Delete marks eclipse any prior buffered write for
// the same id, so a created-then-deleted-before-flush id never reaches
// the underlying engine at all.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	nodes := s.pendingNodes
	rels := s.pendingRels
	deletedNodes := s.deletedNodes
	deletedRels := s.deletedRels
	s.pendingNodes = make(map[model.NodeID]*model.Node)
	s.pendingRels = make(map[model.RelID]*model.Relationship)
	s.pendingOutgoing = make(map[model.NodeID][]model.RelID)
	s.pendingIncoming = make(map[model.NodeID][]model.RelID)
	s.deletedNodes = make(map[model.NodeID]struct{})
	s.deletedRels = make(map[model.RelID]struct{})
	s.mu.Unlock()

	for id := range deletedRels {
		if _, ok := rels[id]; ok {
			continue
		}
		if _, err := s.underlying.DeleteRel(ctx, id); err != nil {
			return s.markFlushFailure(err)
		}
	}
	for id := range deletedNodes {
		if _, ok := nodes[id]; ok {
			continue
		}
		if _, err := s.underlying.DeleteNode(ctx, id); err != nil {
			return s.markFlushFailure(err)
		}
	}
	// Materialize in ascending id order. The buffer is the sole id
	// allocator layered on top of the underlying engine (both started
	// from the same scanned counters), so replaying creates in the order
	// their ids were issued makes the underlying engine's own allocator
	// reproduce the same ids.
	for _, id := range sortedNodeIDs(nodes) {
		if _, gone := deletedNodes[id]; gone {
			continue
		}
		if err := materializeNode(ctx, s.underlying, nodes[id]); err != nil {
			return s.markFlushFailure(err)
		}
	}
	for _, id := range sortedRelIDs(rels) {
		if _, gone := deletedRels[id]; gone {
			continue
		}
		if err := materializeRel(ctx, s.underlying, rels[id]); err != nil {
			return s.markFlushFailure(err)
		}
	}
	return nil
}

func sortedNodeIDs(m map[model.NodeID]*model.Node) []model.NodeID {
	ids := make([]model.NodeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedRelIDs(m map[model.RelID]*model.Relationship) []model.RelID {
	ids := make([]model.RelID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) markFlushFailure(err error) error {
	wrapped := graphcode.StorageIO("flush", err)
	s.flushErrMu.Lock()
	s.flushErr = wrapped
	s.flushErrMu.Unlock()
	return wrapped
}

// materializeNode and materializeRel push a buffered record to the
// underlying engine. A record whose id already exists underneath gets
// its props overwritten; otherwise it is created through the underlying
// CreateNode/CreateRel, whose own allocator assigns the id. The buffered
// id is not passed down: materializeNode writes the props to whatever id
// the underlying engine returns, and materializeRel ignores the returned id.
func materializeNode(ctx context.Context, eng engine.Engine, n *model.Node) error {
	existing, found, err := eng.GetNode(ctx, n.ID)
	if err != nil {
		return err
	}
	if found {
		return eng.UpdateNodeProps(ctx, n.ID, n.Props)
	}
	_ = existing
	created, err := eng.CreateNode(ctx, n.Labels, n.Props)
	if err != nil {
		return err
	}
	if created != n.ID {
		return eng.UpdateNodeProps(ctx, created, n.Props)
	}
	return nil
}

func materializeRel(ctx context.Context, eng engine.Engine, r *model.Relationship) error {
	existing, found, err := eng.GetRel(ctx, r.ID)
	if err != nil {
		return err
	}
	if found {
		return eng.UpdateRelProps(ctx, r.ID, r.Props)
	}
	_ = existing
	_, err = eng.CreateRel(ctx, r.Start, r.End, r.Type, r.Props)
	return err
}

// Stats implements engine.Engine: it flushes every pending write first,
// then reports the underlying engine's counts.
func (s *Store) Stats(ctx context.Context) (engine.Stats, error) {
	if err := s.Flush(ctx); err != nil {
		return engine.Stats{}, err
	}
	return s.underlying.Stats(ctx)
}

// Close flushes any pending writes, stops the background ticker, and
// closes the underlying engine.
func (s *Store) Close() error {
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.underlying.Close()
}
