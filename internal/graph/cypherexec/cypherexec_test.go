package cypherexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/graphdb/internal/graph/constraint"
	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/isolation"
	"github.com/r3e-network/graphdb/internal/graph/lock"
	"github.com/r3e-network/graphdb/internal/graph/memstore"
	"github.com/r3e-network/graphdb/internal/graph/txn"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func newTestExecutor(t *testing.T) (*Executor, *memstore.Store) {
	t.Helper()
	eng := memstore.New()
	idx, err := index.NewManager([]index.Declaration{
		{Kind: index.KindExact, Label: "Person", Property: "name"},
	})
	require.NoError(t, err)
	cons := constraint.NewManager(idx.Exact())
	locks := lock.NewManager()
	iso := isolation.NewManager(16)
	txMgr := txn.NewManager(eng, idx, cons, locks, iso, nil, time.Minute, isolation.ReadCommitted)
	return New(eng, idx, txMgr), eng
}

func run(t *testing.T, ex *Executor, src string, params map[string]value.Value) *Result {
	t.Helper()
	stmt, err := cypher.Parse(src)
	require.NoError(t, err)
	res, err := ex.Execute(context.Background(), stmt, params)
	require.NoError(t, err)
	return res
}

func TestCreateAndReturnNode(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := run(t, ex, `CREATE (p:Person {name: "Alice", age: 30}) RETURN p.name AS name, p.age AS age`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Alice"), res.Rows[0]["name"].Scalar)
	require.Equal(t, value.Int(30), res.Rows[0]["age"].Scalar)
}

func TestMatchPathQuery(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (a:Person {name: "Alice"})-[:FOLLOWS]->(b:Person {name: "Bob"})-[:FOLLOWS]->(c:Person {name: "Carol"})`, nil)

	res := run(t, ex, `MATCH (a:Person {name: "Alice"})-[:FOLLOWS]->(b)-[:FOLLOWS]->(c) RETURN b.name AS b, c.name AS c`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Bob"), res.Rows[0]["b"].Scalar)
	require.Equal(t, value.Text("Carol"), res.Rows[0]["c"].Scalar)
}

func TestAggregationGroupsByNonAggregateItems(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice", city: "NYC"})`, nil)
	run(t, ex, `CREATE (:Person {name: "Bob", city: "NYC"})`, nil)
	run(t, ex, `CREATE (:Person {name: "Carol", city: "LA"})`, nil)

	res := run(t, ex, `MATCH (p:Person) RETURN p.city AS city, count(p) AS n ORDER BY city`, nil)
	require.Len(t, res.Rows, 2)
	require.Equal(t, value.Text("LA"), res.Rows[0]["city"].Scalar)
	require.Equal(t, value.Int(1), res.Rows[0]["n"].Scalar)
	require.Equal(t, value.Text("NYC"), res.Rows[1]["city"].Scalar)
	require.Equal(t, value.Int(2), res.Rows[1]["n"].Scalar)
}

func TestAggregationOverEmptyMatchYieldsOneRow(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := run(t, ex, `MATCH (p:Person) RETURN count(p) AS n`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Int(0), res.Rows[0]["n"].Scalar)
}

func TestOptionalMatchPreservesRowOnNoMatch(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})`, nil)

	res := run(t, ex, `MATCH (p:Person) OPTIONAL MATCH (p)-[:FOLLOWS]->(q) RETURN p.name AS name, q.name AS followed`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Alice"), res.Rows[0]["name"].Scalar)
	require.True(t, res.Rows[0]["followed"].IsNull())
}

func TestWhereFiltersRows(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice", age: 30})`, nil)
	run(t, ex, `CREATE (:Person {name: "Bob", age: 20})`, nil)

	res := run(t, ex, `MATCH (p:Person) WHERE p.age > 25 RETURN p.name AS name`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Alice"), res.Rows[0]["name"].Scalar)
}

func TestSetUpdatesProperty(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice", age: 30})`, nil)
	run(t, ex, `MATCH (p:Person {name: "Alice"}) SET p.age = 31`, nil)

	res := run(t, ex, `MATCH (p:Person {name: "Alice"}) RETURN p.age AS age`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Int(31), res.Rows[0]["age"].Scalar)
}

func TestDeleteWithoutDetachRejectsConnectedNode(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})-[:FOLLOWS]->(:Person {name: "Bob"})`, nil)

	stmt, err := cypher.Parse(`MATCH (p:Person {name: "Alice"}) DELETE p`)
	require.NoError(t, err)
	_, err = ex.Execute(context.Background(), stmt, nil)
	require.Error(t, err)
}

func TestDetachDeleteRemovesNodeAndRels(t *testing.T) {
	ex, eng := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})-[:FOLLOWS]->(:Person {name: "Bob"})`, nil)

	run(t, ex, `MATCH (p:Person {name: "Alice"}) DETACH DELETE p`, nil)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.NodeCount)
	require.Equal(t, int64(0), stats.RelCount)
}

func TestMergeCreatesOnceThenMatches(t *testing.T) {
	ex, eng := newTestExecutor(t)

	run(t, ex, `MERGE (p:Person {name: "Alice"}) ON CREATE SET p.age = 1`, nil)
	run(t, ex, `MERGE (p:Person {name: "Alice"}) ON MATCH SET p.age = 2`, nil)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.NodeCount)

	res := run(t, ex, `MATCH (p:Person {name: "Alice"}) RETURN p.age AS age`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Int(2), res.Rows[0]["age"].Scalar)
}

func TestParameterBinding(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})`, nil)

	res := run(t, ex, `MATCH (p:Person {name: $name}) RETURN p.name AS name`,
		map[string]value.Value{"name": value.Text("Alice")})
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Alice"), res.Rows[0]["name"].Scalar)
}

func TestUnionDedupsRows(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})`, nil)

	res := run(t, ex, `MATCH (p:Person) RETURN p.name AS name UNION MATCH (p:Person) RETURN p.name AS name`, nil)
	require.Len(t, res.Rows, 1)
}

func TestUnionAllKeepsDuplicates(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})`, nil)

	res := run(t, ex, `MATCH (p:Person) RETURN p.name AS name UNION ALL MATCH (p:Person) RETURN p.name AS name`, nil)
	require.Len(t, res.Rows, 2)
}

func TestOrderBySkipLimit(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Carol"})`, nil)
	run(t, ex, `CREATE (:Person {name: "Alice"})`, nil)
	run(t, ex, `CREATE (:Person {name: "Bob"})`, nil)

	res := run(t, ex, `MATCH (p:Person) RETURN p.name AS name ORDER BY name SKIP 1 LIMIT 1`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Bob"), res.Rows[0]["name"].Scalar)
}

func TestVarLengthRelationship(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (a:Person {name: "Alice"})-[:FOLLOWS]->(b:Person {name: "Bob"})-[:FOLLOWS]->(c:Person {name: "Carol"})`, nil)

	res := run(t, ex, `MATCH (a:Person {name: "Alice"})-[:FOLLOWS*1..2]->(x) RETURN x.name AS name ORDER BY name`, nil)
	require.Len(t, res.Rows, 2)
	require.Equal(t, value.Text("Bob"), res.Rows[0]["name"].Scalar)
	require.Equal(t, value.Text("Carol"), res.Rows[1]["name"].Scalar)
}

func TestExecuteOnExplicitTransactionDoesNotCommit(t *testing.T) {
	ex, eng := newTestExecutor(t)
	idx, err := index.NewManager(nil)
	require.NoError(t, err)
	cons := constraint.NewManager(idx.Exact())
	locks := lock.NewManager()
	iso := isolation.NewManager(16)
	txMgr := txn.NewManager(eng, idx, cons, locks, iso, nil, time.Minute, isolation.ReadCommitted)

	stmt, err := cypher.Parse(`CREATE (:Person {name: "Alice"})`)
	require.NoError(t, err)

	tx := txMgr.Begin(txn.Options{Level: isolation.ReadCommitted})
	_, err = ex.ExecuteOn(context.Background(), tx, stmt, nil)
	require.NoError(t, err)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.NodeCount)

	require.NoError(t, tx.Commit(context.Background()))
	stats, err = eng.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.NodeCount)
}

func TestTxControlRejectedByExecute(t *testing.T) {
	ex, _ := newTestExecutor(t)
	stmt, err := cypher.Parse(`BEGIN`)
	require.NoError(t, err)
	_, err = ex.Execute(context.Background(), stmt, nil)
	require.Error(t, err)
}

func TestExplicitGroupByWithOrderByAggregate(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:User {name: "A", city: "NY"})`, nil)
	run(t, ex, `CREATE (:User {name: "B", city: "London"})`, nil)
	run(t, ex, `CREATE (:User {name: "C", city: "NY"})`, nil)
	run(t, ex, `CREATE (:User {name: "D", city: "London"})`, nil)

	res := run(t, ex, `MATCH (u:User) RETURN u.city, COUNT(*) GROUP BY u.city ORDER BY COUNT(*) DESC`, nil)
	require.Len(t, res.Rows, 2)
	require.Equal(t, value.Int(2), res.Rows[0]["COUNT(...)"].Scalar)
}

func TestGroupByMustNameProjectedItem(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:User {name: "A", city: "NY"})`, nil)

	stmt, err := cypher.Parse(`MATCH (u:User) RETURN u.city, COUNT(*) GROUP BY u.name`)
	require.NoError(t, err)
	_, err = ex.Execute(context.Background(), stmt, nil)
	require.Error(t, err)
}

func TestStdevAggregate(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Sample {v: 2})`, nil)
	run(t, ex, `CREATE (:Sample {v: 4})`, nil)
	run(t, ex, `CREATE (:Sample {v: 4})`, nil)
	run(t, ex, `CREATE (:Sample {v: 6})`, nil)

	res := run(t, ex, `MATCH (s:Sample) RETURN stdev(s.v) AS sd`, nil)
	require.Len(t, res.Rows, 1)
	sd, ok := res.Rows[0]["sd"].Scalar.AsFloat()
	require.True(t, ok)
	// Sample stdev of {2,4,4,6} is sqrt(8/3).
	require.InDelta(t, 1.632993, sd, 1e-5)
}

func TestPercentileAggregates(t *testing.T) {
	ex, _ := newTestExecutor(t)
	for _, v := range []string{"10", "20", "30", "40"} {
		run(t, ex, `CREATE (:Sample {v: `+v+`})`, nil)
	}

	res := run(t, ex, `MATCH (s:Sample) RETURN percentileCont(s.v, 0.5) AS c, percentileDisc(s.v, 0.5) AS d`, nil)
	require.Len(t, res.Rows, 1)
	c, ok := res.Rows[0]["c"].Scalar.AsFloat()
	require.True(t, ok)
	require.InDelta(t, 25.0, c, 1e-9)
	d, ok := res.Rows[0]["d"].Scalar.AsFloat()
	require.True(t, ok)
	require.InDelta(t, 20.0, d, 1e-9)
}

func TestOrderByAliasOfAggregate(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:User {city: "NY"})`, nil)
	run(t, ex, `CREATE (:User {city: "NY"})`, nil)
	run(t, ex, `CREATE (:User {city: "LA"})`, nil)

	res := run(t, ex, `MATCH (u:User) RETURN u.city AS city, count(*) AS n ORDER BY n DESC`, nil)
	require.Len(t, res.Rows, 2)
	require.Equal(t, value.Text("NY"), res.Rows[0]["city"].Scalar)
	require.Equal(t, value.Int(2), res.Rows[0]["n"].Scalar)
}

func TestThreeHopPathChainsEachStep(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})-[:FOLLOWS]->(:Person {name: "Bob"})-[:FOLLOWS]->(:Person {name: "Carol"})-[:FOLLOWS]->(:Person {name: "Dave"})`, nil)

	res := run(t, ex, `MATCH (a:Person {name: "Alice"})-[:FOLLOWS]->(b)-[:FOLLOWS]->(c)-[:FOLLOWS]->(d) RETURN d.name AS name`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Dave"), res.Rows[0]["name"].Scalar)
}

func TestAnonymousIntermediateNode(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})-[:FOLLOWS]->(:Person {name: "Bob"})-[:FOLLOWS]->(:Person {name: "Carol"})`, nil)
	// An unconnected Person must not appear in the two-hop result.
	run(t, ex, `CREATE (:Person {name: "Eve"})`, nil)

	res := run(t, ex, `MATCH (a:Person {name: "Alice"})-[:FOLLOWS]->()-[:FOLLOWS]->(c) RETURN c.name AS name`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Carol"), res.Rows[0]["name"].Scalar)
}

func TestAnonymousStartNode(t *testing.T) {
	ex, _ := newTestExecutor(t)
	run(t, ex, `CREATE (:Person {name: "Alice"})-[:FOLLOWS]->(:Person {name: "Bob"})`, nil)

	res := run(t, ex, `MATCH (:Person {name: "Alice"})-[:FOLLOWS]->(b) RETURN b.name AS name`, nil)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Text("Bob"), res.Rows[0]["name"].Scalar)
}

func TestVarLengthResultsOrderedByNodeID(t *testing.T) {
	ex, _ := newTestExecutor(t)
	// A fan-out: Alice follows three people in one hop.
	run(t, ex, `CREATE (a:Person {name: "Alice"})-[:FOLLOWS]->(:Person {name: "Bob"})`, nil)
	run(t, ex, `MATCH (a:Person {name: "Alice"}) CREATE (a)-[:FOLLOWS]->(:Person {name: "Carol"})`, nil)
	run(t, ex, `MATCH (a:Person {name: "Alice"}) CREATE (a)-[:FOLLOWS]->(:Person {name: "Dave"})`, nil)

	first := run(t, ex, `MATCH (a:Person {name: "Alice"})-[:FOLLOWS*]->(x) RETURN x.name AS name`, nil)
	require.Len(t, first.Rows, 3)
	for i := 0; i < 3; i++ {
		second := run(t, ex, `MATCH (a:Person {name: "Alice"})-[:FOLLOWS*]->(x) RETURN x.name AS name`, nil)
		require.Equal(t, first.Rows, second.Rows)
	}
}
