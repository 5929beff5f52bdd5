// Package graphdb is the public embedding surface: a thin facade over
// internal/graph's storage, index, transaction, Cypher, algorithm, and
// streaming subsystems. Embedding applications talk to *Graph (or
// *ConcurrentGraph) instead of reaching into internal/graph directly.
package graphdb

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/graphdb/internal/graph/asyncstore"
	"github.com/r3e-network/graphdb/internal/graph/bufferstore"
	"github.com/r3e-network/graphdb/internal/graph/constraint"
	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/cypherexec"
	"github.com/r3e-network/graphdb/internal/graph/diskstore"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/hybridstore"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/isolation"
	"github.com/r3e-network/graphdb/internal/graph/lock"
	"github.com/r3e-network/graphdb/internal/graph/memstore"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/query"
	"github.com/r3e-network/graphdb/internal/graph/txn"
	"github.com/r3e-network/graphdb/internal/graph/value"
	"github.com/r3e-network/graphdb/pkg/config"
	"github.com/r3e-network/graphdb/pkg/logger"
)

// Node and Relationship are re-exported so callers need not import
// internal/graph/model directly.
type (
	Node         = model.Node
	Relationship = model.Relationship
	NodeID       = model.NodeID
	RelID        = model.RelID
	Value        = value.Value
	PropMap      = value.Map
)

// Graph is the embeddable graph database: a storage engine plus the
// index, constraint, lock, isolation, transaction, and Cypher machinery
// layered over it. It is safe for concurrent readers once wrapped in
// ConcurrentGraph; the bare Graph gives callers direct access for
// single-writer use.
type Graph struct {
	cfg *config.Config
	log *logger.Logger

	engine      engine.Engine
	indexes     *index.Manager
	constraints *constraint.Manager
	locks       *lock.Manager
	isolation   *isolation.Manager
	txManager   *txn.Manager
	cypherExec  *cypherexec.Executor
}

// New builds a Graph from cfg, selecting and constructing the backend
// named by cfg.Storage.Backend ("memory", "disk", "buffered", "hybrid",
// "async"). log may be nil, in which case a default logger is used.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Graph, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Output:     cfg.Logging.Output,
			FilePrefix: cfg.Logging.FilePrefix,
		})
	}

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	decls, err := declarationsFromConfig(cfg.Indexed)
	if err != nil {
		return nil, err
	}
	idx, err := index.NewManager(decls)
	if err != nil {
		return nil, err
	}

	constraints := constraint.NewManager(idx.Exact())
	locks := lock.NewManager()
	iso := isolation.NewManager(ringSizeFor(cfg))

	level, err := parseIsolationLevel(cfg.Transaction.IsolationDefaultLevel)
	if err != nil {
		return nil, err
	}
	defaultTimeout := time.Duration(cfg.Transaction.DefaultTimeoutSeconds) * time.Second

	txMgr := txn.NewManager(eng, idx, constraints, locks, iso, log, defaultTimeout, level)
	if cfg.Transaction.MaxSnapshots > 0 {
		txMgr.EnableSnapshots(cfg.Transaction.MaxSnapshots)
	}
	if cfg.Transaction.SweepIntervalSeconds > 0 {
		if err := txMgr.StartSweeper(time.Duration(cfg.Transaction.SweepIntervalSeconds) * time.Second); err != nil {
			return nil, err
		}
	}

	g := &Graph{
		cfg:         cfg,
		log:         log,
		engine:      eng,
		indexes:     idx,
		constraints: constraints,
		locks:       locks,
		isolation:   iso,
		txManager:   txMgr,
	}
	g.cypherExec = cypherexec.New(eng, idx, txMgr)
	return g, nil
}

func buildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger) (engine.Engine, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "disk":
		return diskstore.Open(cfg.Storage.DataDir)
	case "buffered":
		disk, err := diskstore.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return bufferstore.New(ctx, disk, bufferConfigFrom(cfg.Buffer))
	case "hybrid":
		disk, err := diskstore.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return hybridstore.New(ctx, disk, hybridConfigFrom(cfg.Cache, cfg.Buffer))
	case "async":
		disk, err := diskstore.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return asyncstore.New(disk, asyncstore.Config{RateLimitPerSec: cfg.Stream.RateLimitPerSec}), nil
	default:
		return nil, graphcode.InvalidArgument("storage.backend", fmt.Sprintf("unknown backend %q", cfg.Storage.Backend))
	}
}

func bufferConfigFrom(c config.BufferConfig) bufferstore.Config {
	return bufferstore.Config{
		FlushThreshold: c.FlushThreshold,
		FlushInterval:  time.Duration(c.FlushIntervalMS) * time.Millisecond,
	}
}

func hybridConfigFrom(cache config.CacheConfig, buf config.BufferConfig) hybridstore.Config {
	return hybridstore.Config{
		NodeEntries:      cache.NodeEntries,
		RelEntries:       cache.RelEntries,
		AdjacencyEntries: cache.AdjacencyEntries,
		Buffer:           bufferConfigFrom(buf),
	}
}

func declarationsFromConfig(props []config.IndexedProperty) ([]index.Declaration, error) {
	out := make([]index.Declaration, 0, len(props))
	for _, p := range props {
		var kind index.Kind
		switch p.Kind {
		case "exact":
			kind = index.KindExact
		case "range":
			kind = index.KindRange
		case "fulltext":
			kind = index.KindFullText
		case "composite":
			kind = index.KindComposite
		default:
			return nil, graphcode.InvalidArgument("indexed_properties.kind", fmt.Sprintf("unknown index kind %q", p.Kind))
		}
		out = append(out, index.Declaration{
			Label:      p.Label,
			Property:   p.Property,
			Kind:       kind,
			Name:       p.Name,
			Properties: p.Properties,
		})
	}
	return out, nil
}

func parseIsolationLevel(name string) (isolation.Level, error) {
	switch name {
	case "", "read_committed":
		return isolation.ReadCommitted, nil
	case "read_uncommitted":
		return isolation.ReadUncommitted, nil
	case "repeatable_read":
		return isolation.RepeatableRead, nil
	case "serializable":
		return isolation.Serializable, nil
	default:
		return 0, graphcode.InvalidArgument("transaction.isolation_default_level", fmt.Sprintf("unknown isolation level %q", name))
	}
}

func ringSizeFor(cfg *config.Config) int {
	if cfg.Transaction.MaxSnapshots > 0 {
		return cfg.Transaction.MaxSnapshots * 4
	}
	return 64
}

// Engine exposes the underlying storage engine for callers that need
// direct access (algorithms, streaming, advanced index queries).
func (g *Graph) Engine() engine.Engine { return g.engine }

// Indexes returns the index manager.
func (g *Graph) Indexes() *index.Manager { return g.indexes }

// Constraints returns the constraint manager.
func (g *Graph) Constraints() *constraint.Manager { return g.constraints }

// Locks returns the pessimistic lock manager.
func (g *Graph) Locks() *lock.Manager { return g.locks }

// Isolation returns the isolation executor.
func (g *Graph) Isolation() *isolation.Manager { return g.isolation }

// Transactions returns the transaction manager.
func (g *Graph) Transactions() *txn.Manager { return g.txManager }

// Logger returns the graph's logger.
func (g *Graph) Logger() *logger.Logger { return g.log }

// NewQueryBuilder returns a fluent query.Builder over this graph's
// engine and indexes.
func (g *Graph) NewQueryBuilder(ctx context.Context) *query.Builder {
	return query.New(ctx, g.engine, g.indexes)
}

// ParseCypher parses src into an AST.
func ParseCypher(src string) (*cypher.Statement, error) {
	return cypher.Parse(src)
}

// ExecuteStatement runs stmt with the given parameters. Mutating
// statements auto-commit unless the caller supplies an explicit
// transaction via ExecuteStatementOn.
func (g *Graph) ExecuteStatement(ctx context.Context, stmt *cypher.Statement, params value.Map) (*cypherexec.Result, error) {
	return g.cypherExec.Execute(ctx, stmt, params)
}

// ExecuteStatementOn runs stmt against an already-open transaction,
// staging any mutation on tx instead of auto-committing.
func (g *Graph) ExecuteStatementOn(ctx context.Context, tx *txn.Transaction, stmt *cypher.Statement, params value.Map) (*cypherexec.Result, error) {
	return g.cypherExec.ExecuteOn(ctx, tx, stmt, params)
}

// Query runs a Cypher statement end-to-end: parse then execute.
func (g *Graph) Query(ctx context.Context, src string, params value.Map) (*cypherexec.Result, error) {
	stmt, err := cypher.Parse(src)
	if err != nil {
		return nil, err
	}
	return g.ExecuteStatement(ctx, stmt, params)
}

// Begin starts a new transaction.
func (g *Graph) Begin(opts txn.Options) *txn.Transaction {
	return g.txManager.Begin(opts)
}

// CreateNode creates a node outside any explicit transaction (an
// implicit single-operation autocommit), maintaining indexes and
// validating constraints the same as a committed transaction would.
func (g *Graph) CreateNode(ctx context.Context, labels []string, props value.Map) (model.NodeID, error) {
	tx := g.txManager.Begin(txn.Options{})
	id, err := tx.CreateNode(ctx, labels, props)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tx.ResolveNodeID(id), nil
}

// CreateRel creates a relationship outside any explicit transaction.
func (g *Graph) CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	tx := g.txManager.Begin(txn.Options{})
	id, err := tx.CreateRel(ctx, start, end, relType, props)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tx.ResolveRelID(id), nil
}

// DeleteNode deletes a node (and every incident relationship) outside
// any explicit transaction.
func (g *Graph) DeleteNode(ctx context.Context, id model.NodeID) (bool, error) {
	tx := g.txManager.Begin(txn.Options{})
	ok, err := tx.DeleteNode(ctx, id)
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// DeleteRel deletes a relationship outside any explicit transaction.
func (g *Graph) DeleteRel(ctx context.Context, id model.RelID) (bool, error) {
	tx := g.txManager.Begin(txn.Options{})
	ok, err := tx.DeleteRel(ctx, id)
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// BatchCreateNodes creates every node directly through the engine's
// bulk primitive (Engine.BatchCreateNodes) rather than one transaction
// per node, then feeds each created node through the index manager so
// a bulk load stays as queryable as one created through CreateNode.
// This bypasses constraint validation and isolation bookkeeping, so it
// is for bulk ingestion of data already known to satisfy any registered
// constraints, not a drop-in replacement for CreateNode.
func (g *Graph) BatchCreateNodes(ctx context.Context, labels [][]string, props []value.Map) ([]model.NodeID, error) {
	ids, err := g.engine.BatchCreateNodes(ctx, labels, props)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		g.indexes.OnNodeCreate(&model.Node{ID: id, Labels: labels[i], Props: props[i]})
	}
	return ids, nil
}

// BatchCreateRels creates every relationship directly through the
// engine's bulk primitive (Engine.BatchCreateRels). Relationships carry
// no index entries of their own, so no index maintenance follows.
func (g *Graph) BatchCreateRels(ctx context.Context, rels []engine.RelSpec) ([]model.RelID, error) {
	return g.engine.BatchCreateRels(ctx, rels)
}

// GetNode reads a node directly from the storage engine (no
// transaction, no isolation bookkeeping).
func (g *Graph) GetNode(ctx context.Context, id model.NodeID) (*model.Node, bool, error) {
	return g.engine.GetNode(ctx, id)
}

// GetRel reads a relationship directly from the storage engine.
func (g *Graph) GetRel(ctx context.Context, id model.RelID) (*model.Relationship, bool, error) {
	return g.engine.GetRel(ctx, id)
}

// NeighborsOut returns the relationships for which id is the start node.
func (g *Graph) NeighborsOut(ctx context.Context, id model.NodeID) ([]*model.Relationship, error) {
	it, err := g.engine.OutgoingRels(ctx, id)
	if err != nil {
		return nil, err
	}
	return engine.DrainRels(it), nil
}

// NeighborsIn returns the relationships for which id is the end node.
func (g *Graph) NeighborsIn(ctx context.Context, id model.NodeID) ([]*model.Relationship, error) {
	it, err := g.engine.IncomingRels(ctx, id)
	if err != nil {
		return nil, err
	}
	return engine.DrainRels(it), nil
}

// AllNodes returns every node in the engine, in arbitrary order.
func (g *Graph) AllNodes(ctx context.Context) ([]*model.Node, error) {
	it, err := g.engine.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Drain(it), nil
}

// Flush forces buffered mutations to their durable destination.
func (g *Graph) Flush(ctx context.Context) error {
	return g.engine.Flush(ctx)
}

// Stats reports point-in-time engine counters for the /stats surface.
func (g *Graph) Stats(ctx context.Context) (engine.Stats, error) {
	return g.engine.Stats(ctx)
}

// ActiveTransactionCount reports the number of currently active
// transactions.
func (g *Graph) ActiveTransactionCount() int {
	return g.txManager.ActiveCount()
}

// Close releases every resource the graph holds open: the deadline
// sweeper and the underlying storage engine.
func (g *Graph) Close() error {
	g.txManager.StopSweeper()
	return g.engine.Close()
}
