package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/memstore"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func seedGraph(t *testing.T) (*memstore.Store, *index.Manager) {
	t.Helper()
	eng := memstore.New()
	idx, err := index.NewManager([]index.Declaration{
		{Kind: index.KindExact, Label: "User", Property: "name"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	alice, err := eng.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice"), "age": value.Int(30)})
	require.NoError(t, err)
	idx.OnNodeCreate(mustNode(t, eng, alice))

	bob, err := eng.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Bob"), "age": value.Int(25)})
	require.NoError(t, err)
	idx.OnNodeCreate(mustNode(t, eng, bob))

	alice2, err := eng.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice"), "age": value.Int(40)})
	require.NoError(t, err)
	idx.OnNodeCreate(mustNode(t, eng, alice2))

	_, err = eng.CreateRel(ctx, alice, bob, "FOLLOWS", nil)
	require.NoError(t, err)
	_, err = eng.CreateRel(ctx, bob, alice2, "FOLLOWS", nil)
	require.NoError(t, err)

	return eng, idx
}

func mustNode(t *testing.T, eng *memstore.Store, id model.NodeID) *model.Node {
	t.Helper()
	n, found, err := eng.GetNode(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return n
}

func TestFromLabelAndPropEqUsesIndex(t *testing.T) {
	eng, idx := seedGraph(t)
	ctx := context.Background()

	nodes, err := New(ctx, eng, idx).FromLabelAndPropEq("User", "name", value.Text("Alice")).CollectNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}

func TestWherePropIntGt(t *testing.T) {
	eng, idx := seedGraph(t)
	ctx := context.Background()

	count, err := New(ctx, eng, idx).FromLabel("User").WherePropIntGt("age", 28).Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestOutTraversal(t *testing.T) {
	eng, idx := seedGraph(t)
	ctx := context.Background()

	nodes, err := New(ctx, eng, idx).
		FromLabelAndPropEq("User", "name", value.Text("Alice")).
		Limit(1).
		Out("FOLLOWS").
		CollectNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	name, _ := nodes[0].Props["name"].AsText()
	require.Equal(t, "Bob", name)
}

func TestOutVariableLength(t *testing.T) {
	eng, idx := seedGraph(t)
	ctx := context.Background()

	nodes, err := New(ctx, eng, idx).
		FromLabelAndPropEq("User", "name", value.Text("Alice")).
		Limit(1).
		OutVariableLength("FOLLOWS", 1, 2, false).
		Distinct().
		CollectNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}

func TestOrderByAndAggregates(t *testing.T) {
	eng, idx := seedGraph(t)
	ctx := context.Background()

	nodes, err := New(ctx, eng, idx).FromLabel("User").OrderBy("age", true).CollectNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	age0, _ := nodes[0].Props["age"].AsInt()
	require.Equal(t, int64(25), age0)

	sum, err := New(ctx, eng, idx).FromLabel("User").SumInt("age")
	require.NoError(t, err)
	require.Equal(t, int64(95), sum)

	avg, err := New(ctx, eng, idx).FromLabel("User").AvgInt("age")
	require.NoError(t, err)
	require.InDelta(t, 31.666, avg, 0.01)
}

func TestSkipLimitPaginate(t *testing.T) {
	eng, idx := seedGraph(t)
	ctx := context.Background()

	nodes, err := New(ctx, eng, idx).FromLabel("User").OrderBy("age", true).Paginate(1, 1).CollectNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	age, _ := nodes[0].Props["age"].AsInt()
	require.Equal(t, int64(30), age)
}
