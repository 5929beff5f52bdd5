package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/graphdb/internal/graph/constraint"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/isolation"
	"github.com/r3e-network/graphdb/internal/graph/lock"
	"github.com/r3e-network/graphdb/internal/graph/memstore"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	eng := memstore.New()
	idx, err := index.NewManager(nil)
	require.NoError(t, err)
	cons := constraint.NewManager(idx.Exact())
	locks := lock.NewManager()
	iso := isolation.NewManager(16)
	return NewManager(eng, idx, cons, locks, iso, nil, time.Minute, isolation.RepeatableRead)
}

func TestCommitCreatesVisibleOutsideTransaction(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx := mgr.Begin(Options{Level: isolation.RepeatableRead})
	id, err := tx.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})
	require.NoError(t, err)
	require.True(t, isTempNode(id))

	require.NoError(t, tx.Commit(ctx))

	n, found, err := mgr.eng.GetNode(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"User"}, n.Labels)
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx := mgr.Begin(Options{Level: isolation.RepeatableRead})
	_, err := tx.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Bob")})
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))

	stats, err := mgr.eng.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.NodeCount)
}

func TestDeleteNodeThenRollbackRestoresNode(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	seed := mgr.Begin(Options{Level: isolation.ReadCommitted})
	id, err := seed.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Carl")})
	require.NoError(t, err)
	require.NoError(t, seed.Commit(ctx))

	// id was a temp id during seed; the real engine id is 1.
	_ = id

	tx := mgr.Begin(Options{Level: isolation.ReadCommitted})
	ok, err := tx.DeleteNode(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tx.GetNode(ctx, 1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tx.Rollback(ctx))

	n, found, err := mgr.eng.GetNode(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"User"}, n.Labels)
}

func TestSavepointRollbackUndoesOnlySLaterOps(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx := mgr.Begin(Options{Level: isolation.ReadCommitted})
	first, err := tx.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("A")})
	require.NoError(t, err)

	require.NoError(t, tx.CreateSavepoint("sp1"))

	_, err = tx.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("B")})
	require.NoError(t, err)

	require.NoError(t, tx.RollbackToSavepoint("sp1"))

	_, found, err := tx.GetNode(ctx, first)
	require.NoError(t, err)
	require.True(t, found, "node created before the savepoint must survive")

	require.NoError(t, tx.Commit(ctx))

	stats, err := mgr.eng.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.NodeCount)
}

func TestCreateRelBetweenStagedNodes(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx := mgr.Begin(Options{Level: isolation.ReadCommitted})
	a, err := tx.CreateNode(ctx, []string{"User"}, nil)
	require.NoError(t, err)
	b, err := tx.CreateNode(ctx, []string{"User"}, nil)
	require.NoError(t, err)

	relID, err := tx.CreateRel(ctx, a, b, "FOLLOWS", value.Map{"since": value.Int(2020)})
	require.NoError(t, err)
	require.True(t, isTempRel(relID))

	require.NoError(t, tx.Commit(ctx))

	stats, err := mgr.eng.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.NodeCount)
	require.Equal(t, int64(1), stats.RelCount)
}

func TestUpdateNodePropsMergesRatherThanReplaces(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	seed := mgr.Begin(Options{Level: isolation.ReadCommitted})
	_, err := seed.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Dana")})
	require.NoError(t, err)
	require.NoError(t, seed.Commit(ctx))

	tx := mgr.Begin(Options{Level: isolation.ReadCommitted})
	require.NoError(t, tx.UpdateNodeProps(ctx, 1, value.Map{"age": value.Int(30)}))
	n, found, err := tx.GetNode(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Dana", mustText(t, n.Props["name"]))
	age, ok := n.Props["age"].AsInt()
	require.True(t, ok)
	require.Equal(t, int64(30), age)
	require.NoError(t, tx.Commit(ctx))
}

func TestCommitAfterCompletionIsRejected(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	tx := mgr.Begin(Options{Level: isolation.ReadCommitted})
	require.NoError(t, tx.Rollback(ctx))
	require.Error(t, tx.Commit(ctx))
}

// failingEngine wraps another engine and fails every CreateRel call,
// simulating a backend error partway through a multi-op commit replay.
type failingEngine struct {
	engine.Engine
}

func (f failingEngine) CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	return 0, errors.New("simulated storage failure")
}

func TestCommitFailureMidReplayReleasesLocksAndRetiresTx(t *testing.T) {
	eng := failingEngine{memstore.New()}
	idx, err := index.NewManager(nil)
	require.NoError(t, err)
	cons := constraint.NewManager(idx.Exact())
	locks := lock.NewManager()
	iso := isolation.NewManager(16)
	mgr := NewManager(eng, idx, cons, locks, iso, nil, time.Minute, isolation.RepeatableRead)

	ctx := context.Background()
	seed := mgr.Begin(Options{Level: isolation.RepeatableRead})
	_, err = seed.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Seed")})
	require.NoError(t, err)
	require.NoError(t, seed.Commit(ctx))

	tx := mgr.Begin(Options{Level: isolation.RepeatableRead})
	// Updating the committed node (real id 1) takes a write lock on it.
	require.NoError(t, tx.UpdateNodeProps(ctx, 1, value.Map{"age": value.Int(1)}))
	a, err := tx.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("A")})
	require.NoError(t, err)
	b, err := tx.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("B")})
	require.NoError(t, err)
	_, err = tx.CreateRel(ctx, a, b, "KNOWS", nil)
	require.NoError(t, err)

	err = tx.Commit(ctx)
	require.Error(t, err)
	require.Equal(t, Failed, tx.Status())

	// The transaction must not be left registered as active, and must not
	// still hold any of the locks it acquired while staging its writes.
	require.Equal(t, 0, mgr.ActiveCount())
	other := mgr.Begin(Options{Level: isolation.RepeatableRead})
	require.True(t, locks.TryAcquire(other.ID(), lock.Resource{Kind: "node", ID: 1}, lock.Write))
	require.NoError(t, other.Rollback(ctx))
}

func mustText(t *testing.T, v value.Value) string {
	t.Helper()
	s, ok := v.AsText()
	require.True(t, ok)
	return s
}
