// Package diskstore implements the on-disk storage backend: four
// keyed namespaces in an embedded key-value store, with no write
// coalescing — every mutation is a KV write. The underlying store is
// go.etcd.io/bbolt, an embedded single-file transactional KV store.
package diskstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"go.etcd.io/bbolt"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

var (
	bucketNodes     = []byte("nodes")
	bucketRels      = []byte("rels")
	bucketOutgoing  = []byte("outgoing")
	bucketIncoming  = []byte("incoming")
)

// Store is the bbolt-backed Engine implementation.
type Store struct {
	db *bbolt.DB

	nextNodeID uint64
	nextRelID  uint64

	// writeMu serializes the read-modify-write sequences (adjacency
	// updates alongside record writes) that bbolt's single-writer
	// transaction model doesn't make atomic across Go-level steps.
	writeMu sync.Mutex
}

var _ engine.Engine = (*Store)(nil)

// Open opens (creating if absent) a bbolt database at path and reconstructs
// id counters by scanning each namespace's maximal key.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, graphcode.StorageIO("open", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketNodes, bucketRels, bucketOutgoing, bucketIncoming} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, graphcode.StorageIO("init-buckets", err)
	}

	s := &Store{db: db}
	if err := s.restoreCounters(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) restoreCounters() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if k, _ := tx.Bucket(bucketNodes).Cursor().Last(); k != nil {
			s.nextNodeID = binary.BigEndian.Uint64(k)
		}
		if k, _ := tx.Bucket(bucketRels).Cursor().Last(); k != nil {
			s.nextRelID = binary.BigEndian.Uint64(k)
		}
		return nil
	})
}

// CreateNode implements engine.Engine.
func (s *Store) CreateNode(_ context.Context, labels []string, props value.Map) (model.NodeID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := model.NodeID(atomic.AddUint64(&s.nextNodeID, 1))
	labelsCopy := make([]string, len(labels))
	copy(labelsCopy, labels)
	n := &model.Node{ID: id, Labels: labelsCopy, Props: props.Clone(), Version: 1}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketNodes).Put(idKey(uint64(id)), encodeNode(n)); err != nil {
			return err
		}
		return tx.Bucket(bucketOutgoing).Put(idKey(uint64(id)), encodeRelIDList(nil))
	})
	if err != nil {
		return 0, graphcode.StorageIO("create_node", err)
	}
	return id, nil
}

// CreateRel implements engine.Engine.
func (s *Store) CreateRel(_ context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id model.RelID
	err := s.db.Update(func(tx *bbolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		if nodes.Get(idKey(uint64(start))) == nil {
			return graphcode.InvalidReference("node", fmt.Sprint(uint64(start)))
		}
		if nodes.Get(idKey(uint64(end))) == nil {
			return graphcode.InvalidReference("node", fmt.Sprint(uint64(end)))
		}

		id = model.RelID(atomic.AddUint64(&s.nextRelID, 1))
		rel := &model.Relationship{ID: id, Start: start, End: end, Type: relType, Props: props.Clone(), Version: 1}
		if err := tx.Bucket(bucketRels).Put(idKey(uint64(id)), encodeRel(rel)); err != nil {
			return err
		}

		out := tx.Bucket(bucketOutgoing)
		outIDs, err := decodeRelIDList(out.Get(idKey(uint64(start))))
		if err != nil {
			return err
		}
		outIDs = append(outIDs, id)
		if err := out.Put(idKey(uint64(start)), encodeRelIDList(outIDs)); err != nil {
			return err
		}

		in := tx.Bucket(bucketIncoming)
		inIDs, err := decodeRelIDList(in.Get(idKey(uint64(end))))
		if err != nil {
			return err
		}
		inIDs = append(inIDs, id)
		return in.Put(idKey(uint64(end)), encodeRelIDList(inIDs))
	})
	if err != nil {
		if graphcode.IsGraphError(err) {
			return 0, err
		}
		return 0, graphcode.StorageIO("create_rel", err)
	}
	return id, nil
}

// GetNode implements engine.Engine.
func (s *Store) GetNode(_ context.Context, id model.NodeID) (*model.Node, bool, error) {
	var n *model.Node
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketNodes).Get(idKey(uint64(id)))
		if raw == nil {
			return nil
		}
		decoded, err := decodeNode(raw)
		if err != nil {
			return err
		}
		n = decoded
		return nil
	})
	if err != nil {
		return nil, false, graphcode.StorageIO("get_node", err)
	}
	return n, n != nil, nil
}

// GetRel implements engine.Engine.
func (s *Store) GetRel(_ context.Context, id model.RelID) (*model.Relationship, bool, error) {
	var r *model.Relationship
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketRels).Get(idKey(uint64(id)))
		if raw == nil {
			return nil
		}
		decoded, err := decodeRel(raw)
		if err != nil {
			return err
		}
		r = decoded
		return nil
	})
	if err != nil {
		return nil, false, graphcode.StorageIO("get_rel", err)
	}
	return r, r != nil, nil
}

// UpdateNodeProps implements engine.Engine.
func (s *Store) UpdateNodeProps(_ context.Context, id model.NodeID, props value.Map) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketNodes)
		raw := bucket.Get(idKey(uint64(id)))
		if raw == nil {
			return graphcode.InvalidReference("node", fmt.Sprint(uint64(id)))
		}
		n, err := decodeNode(raw)
		if err != nil {
			return err
		}
		n.Props = props.Clone()
		n.Version++
		return bucket.Put(idKey(uint64(id)), encodeNode(n))
	})
	if err != nil && !graphcode.IsGraphError(err) {
		return graphcode.StorageIO("update_node_props", err)
	}
	return err
}

// UpdateRelProps implements engine.Engine.
func (s *Store) UpdateRelProps(_ context.Context, id model.RelID, props value.Map) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRels)
		raw := bucket.Get(idKey(uint64(id)))
		if raw == nil {
			return graphcode.InvalidReference("rel", fmt.Sprint(uint64(id)))
		}
		r, err := decodeRel(raw)
		if err != nil {
			return err
		}
		r.Props = props.Clone()
		r.Version++
		return bucket.Put(idKey(uint64(id)), encodeRel(r))
	})
	if err != nil && !graphcode.IsGraphError(err) {
		return graphcode.StorageIO("update_rel_props", err)
	}
	return err
}

func (s *Store) adjacentRels(bucketName []byte, id model.NodeID) (engine.RelIterator, error) {
	var rels []*model.Relationship
	err := s.db.View(func(tx *bbolt.Tx) error {
		ids, err := decodeRelIDList(tx.Bucket(bucketName).Get(idKey(uint64(id))))
		if err != nil {
			return err
		}
		relBucket := tx.Bucket(bucketRels)
		for _, relID := range ids {
			raw := relBucket.Get(idKey(uint64(relID)))
			if raw == nil {
				continue
			}
			r, err := decodeRel(raw)
			if err != nil {
				return err
			}
			rels = append(rels, r)
		}
		return nil
	})
	if err != nil {
		return nil, graphcode.StorageIO("adjacency_scan", err)
	}
	return engine.NewSliceRelIterator(rels), nil
}

// OutgoingRels implements engine.Engine.
func (s *Store) OutgoingRels(_ context.Context, id model.NodeID) (engine.RelIterator, error) {
	return s.adjacentRels(bucketOutgoing, id)
}

// IncomingRels implements engine.Engine.
func (s *Store) IncomingRels(_ context.Context, id model.NodeID) (engine.RelIterator, error) {
	return s.adjacentRels(bucketIncoming, id)
}

// AllNodes implements engine.Engine.
func (s *Store) AllNodes(_ context.Context) (engine.NodeIterator, error) {
	var nodes []*model.Node
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			n, err := decodeNode(v)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	if err != nil {
		return nil, graphcode.StorageIO("all_nodes", err)
	}
	return engine.NewSliceNodeIterator(nodes), nil
}

// DeleteNode implements engine.Engine: incident relationships are deleted
// first, per the engine contract.
func (s *Store) DeleteNode(_ context.Context, id model.NodeID) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		if nodes.Get(idKey(uint64(id))) == nil {
			return nil
		}
		existed = true

		out := tx.Bucket(bucketOutgoing)
		in := tx.Bucket(bucketIncoming)
		rels := tx.Bucket(bucketRels)

		outIDs, err := decodeRelIDList(out.Get(idKey(uint64(id))))
		if err != nil {
			return err
		}
		inIDs, err := decodeRelIDList(in.Get(idKey(uint64(id))))
		if err != nil {
			return err
		}
		for _, relID := range append(append([]model.RelID{}, outIDs...), inIDs...) {
			if err := deleteRelLocked(tx, relID); err != nil {
				return err
			}
		}

		if err := out.Delete(idKey(uint64(id))); err != nil {
			return err
		}
		if err := in.Delete(idKey(uint64(id))); err != nil {
			return err
		}
		_ = rels
		return nodes.Delete(idKey(uint64(id)))
	})
	if err != nil {
		return false, graphcode.StorageIO("delete_node", err)
	}
	return existed, nil
}

// DeleteRel implements engine.Engine.
func (s *Store) DeleteRel(_ context.Context, id model.RelID) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRels).Get(idKey(uint64(id))) == nil {
			return nil
		}
		existed = true
		return deleteRelLocked(tx, id)
	})
	if err != nil {
		return false, graphcode.StorageIO("delete_rel", err)
	}
	return existed, nil
}

func deleteRelLocked(tx *bbolt.Tx, id model.RelID) error {
	rels := tx.Bucket(bucketRels)
	raw := rels.Get(idKey(uint64(id)))
	if raw == nil {
		return nil
	}
	r, err := decodeRel(raw)
	if err != nil {
		return err
	}

	out := tx.Bucket(bucketOutgoing)
	outIDs, err := decodeRelIDList(out.Get(idKey(uint64(r.Start))))
	if err != nil {
		return err
	}
	if err := out.Put(idKey(uint64(r.Start)), encodeRelIDList(removeRelID(outIDs, id))); err != nil {
		return err
	}

	in := tx.Bucket(bucketIncoming)
	inIDs, err := decodeRelIDList(in.Get(idKey(uint64(r.End))))
	if err != nil {
		return err
	}
	if err := in.Put(idKey(uint64(r.End)), encodeRelIDList(removeRelID(inIDs, id))); err != nil {
		return err
	}

	return rels.Delete(idKey(uint64(id)))
}

func removeRelID(ids []model.RelID, target model.RelID) []model.RelID {
	out := make([]model.RelID, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
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

// Flush is a no-op: every mutation is already a synchronous KV write.
func (s *Store) Flush(_ context.Context) error { return nil }

// Stats implements engine.Engine.
func (s *Store) Stats(_ context.Context) (engine.Stats, error) {
	var stats engine.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.NodeCount = int64(tx.Bucket(bucketNodes).Stats().KeyN)
		stats.RelCount = int64(tx.Bucket(bucketRels).Stats().KeyN)

		labels := make(map[string]struct{})
		if err := tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			n, err := decodeNode(v)
			if err != nil {
				return err
			}
			for _, l := range n.Labels {
				labels[l] = struct{}{}
			}
			return nil
		}); err != nil {
			return err
		}
		stats.LabelCount = int64(len(labels))

		relTypes := make(map[string]struct{})
		if err := tx.Bucket(bucketRels).ForEach(func(_, v []byte) error {
			r, err := decodeRel(v)
			if err != nil {
				return err
			}
			relTypes[r.Type] = struct{}{}
			return nil
		}); err != nil {
			return err
		}
		stats.RelTypeCount = int64(len(relTypes))
		return nil
	})
	if err != nil {
		return engine.Stats{}, graphcode.StorageIO("stats", err)
	}
	return stats, nil
}

// Close implements engine.Engine.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return graphcode.StorageIO("close", err)
	}
	return nil
}
