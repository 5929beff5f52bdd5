// Package hybridstore implements the three-tier backend: bounded LRU
// caches in front of a write-coalescing buffer, in front of a disk-backed
// engine. Writes land in the buffer and invalidate the caches for
// affected ids and endpoints; reads check cache, then buffer, then disk,
// populating the cache on the way back up.
package hybridstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/r3e-network/graphdb/internal/graph/bufferstore"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Config sizes the three Tier-1 caches. Entry counts are typically
// derived from a CacheConfig's fraction-of-total-budget split.
type Config struct {
	NodeEntries      int
	RelEntries       int
	AdjacencyEntries int
	Buffer           bufferstore.Config
}

// Store is the hybrid Engine implementation: Tier 1 (LRU) + Tier 2
// (buffer) + Tier 3 (disk, or any Engine).
type Store struct {
	tier2 *bufferstore.Store // wraps tier 3
	tier3 engine.Engine

	nodeCache     *lru.Cache[model.NodeID, *model.Node]
	relCache      *lru.Cache[model.RelID, *model.Relationship]
	outAdjCache   *lru.Cache[model.NodeID, []model.RelID]
	inAdjCache    *lru.Cache[model.NodeID, []model.RelID]
}

var _ engine.Engine = (*Store)(nil)

// New composes a hybrid store over disk (or any Engine), with the given
// tier-1 cache sizes and tier-2 buffering policy.
func New(ctx context.Context, disk engine.Engine, cfg Config) (*Store, error) {
	buf, err := bufferstore.New(ctx, disk, cfg.Buffer)
	if err != nil {
		return nil, err
	}

	nodeCache, err := lru.New[model.NodeID, *model.Node](positive(cfg.NodeEntries))
	if err != nil {
		return nil, err
	}
	relCache, err := lru.New[model.RelID, *model.Relationship](positive(cfg.RelEntries))
	if err != nil {
		return nil, err
	}
	outAdj, err := lru.New[model.NodeID, []model.RelID](positive(cfg.AdjacencyEntries))
	if err != nil {
		return nil, err
	}
	inAdj, err := lru.New[model.NodeID, []model.RelID](positive(cfg.AdjacencyEntries))
	if err != nil {
		return nil, err
	}

	return &Store{
		tier2:       buf,
		tier3:       disk,
		nodeCache:   nodeCache,
		relCache:    relCache,
		outAdjCache: outAdj,
		inAdjCache:  inAdj,
	}, nil
}

func positive(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (s *Store) invalidateNode(id model.NodeID) {
	s.nodeCache.Remove(id)
	s.outAdjCache.Remove(id)
	s.inAdjCache.Remove(id)
}

func (s *Store) invalidateRel(r *model.Relationship) {
	s.relCache.Remove(r.ID)
	s.outAdjCache.Remove(r.Start)
	s.inAdjCache.Remove(r.End)
}

// CreateNode implements engine.Engine.
func (s *Store) CreateNode(ctx context.Context, labels []string, props value.Map) (model.NodeID, error) {
	id, err := s.tier2.CreateNode(ctx, labels, props)
	if err != nil {
		return 0, err
	}
	s.invalidateNode(id)
	return id, nil
}

// CreateRel implements engine.Engine.
func (s *Store) CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	id, err := s.tier2.CreateRel(ctx, start, end, relType, props)
	if err != nil {
		return 0, err
	}
	s.outAdjCache.Remove(start)
	s.inAdjCache.Remove(end)
	return id, nil
}

// GetNode implements engine.Engine: cache, then buffer/disk, populating
// the cache on the way back up.
func (s *Store) GetNode(ctx context.Context, id model.NodeID) (*model.Node, bool, error) {
	if n, ok := s.nodeCache.Get(id); ok {
		clone := *n
		return &clone, true, nil
	}
	n, found, err := s.tier2.GetNode(ctx, id)
	if err != nil || !found {
		return n, found, err
	}
	s.nodeCache.Add(id, n)
	return n, true, nil
}

// GetRel implements engine.Engine.
func (s *Store) GetRel(ctx context.Context, id model.RelID) (*model.Relationship, bool, error) {
	if r, ok := s.relCache.Get(id); ok {
		clone := *r
		return &clone, true, nil
	}
	r, found, err := s.tier2.GetRel(ctx, id)
	if err != nil || !found {
		return r, found, err
	}
	s.relCache.Add(id, r)
	return r, true, nil
}

// UpdateNodeProps implements engine.Engine.
func (s *Store) UpdateNodeProps(ctx context.Context, id model.NodeID, props value.Map) error {
	if err := s.tier2.UpdateNodeProps(ctx, id, props); err != nil {
		return err
	}
	s.invalidateNode(id)
	return nil
}

// UpdateRelProps implements engine.Engine.
func (s *Store) UpdateRelProps(ctx context.Context, id model.RelID, props value.Map) error {
	r, found, err := s.GetRel(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tier2.UpdateRelProps(ctx, id, props); err != nil {
		return err
	}
	if found {
		s.invalidateRel(r)
	} else {
		s.relCache.Remove(id)
	}
	return nil
}

// OutgoingRels implements engine.Engine.
func (s *Store) OutgoingRels(ctx context.Context, id model.NodeID) (engine.RelIterator, error) {
	if ids, ok := s.outAdjCache.Get(id); ok {
		return s.resolveRels(ctx, ids)
	}
	it, err := s.tier2.OutgoingRels(ctx, id)
	if err != nil {
		return nil, err
	}
	rels := engine.DrainRels(it)
	ids := make([]model.RelID, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}
	s.outAdjCache.Add(id, ids)
	return engine.NewSliceRelIterator(rels), nil
}

// IncomingRels implements engine.Engine.
func (s *Store) IncomingRels(ctx context.Context, id model.NodeID) (engine.RelIterator, error) {
	if ids, ok := s.inAdjCache.Get(id); ok {
		return s.resolveRels(ctx, ids)
	}
	it, err := s.tier2.IncomingRels(ctx, id)
	if err != nil {
		return nil, err
	}
	rels := engine.DrainRels(it)
	ids := make([]model.RelID, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}
	s.inAdjCache.Add(id, ids)
	return engine.NewSliceRelIterator(rels), nil
}

func (s *Store) resolveRels(ctx context.Context, ids []model.RelID) (engine.RelIterator, error) {
	out := make([]*model.Relationship, 0, len(ids))
	for _, id := range ids {
		r, found, err := s.GetRel(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, r)
		}
	}
	return engine.NewSliceRelIterator(out), nil
}

// AllNodes implements engine.Engine. It bypasses the cache: a full scan
// gains nothing from the Tier-1 cache and would only thrash it.
func (s *Store) AllNodes(ctx context.Context) (engine.NodeIterator, error) {
	return s.tier2.AllNodes(ctx)
}

// DeleteNode implements engine.Engine.
func (s *Store) DeleteNode(ctx context.Context, id model.NodeID) (bool, error) {
	existed, err := s.tier2.DeleteNode(ctx, id)
	s.invalidateNode(id)
	return existed, err
}

// DeleteRel implements engine.Engine.
func (s *Store) DeleteRel(ctx context.Context, id model.RelID) (bool, error) {
	r, found, _ := s.GetRel(ctx, id)
	existed, err := s.tier2.DeleteRel(ctx, id)
	if found {
		s.invalidateRel(r)
	} else {
		s.relCache.Remove(id)
	}
	return existed, err
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

// Flush implements engine.Engine: forces the Tier-2 buffer down to Tier 3.
func (s *Store) Flush(ctx context.Context) error {
	return s.tier2.Flush(ctx)
}

// Stats implements engine.Engine.
func (s *Store) Stats(ctx context.Context) (engine.Stats, error) {
	return s.tier2.Stats(ctx)
}

// Close implements engine.Engine.
func (s *Store) Close() error {
	return s.tier2.Close()
}
