package cypher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) WHERE n.age > 18 RETURN n.name AS name ORDER BY name DESC LIMIT 10`)
	require.NoError(t, err)
	require.NotNil(t, stmt.Query)

	sq := stmt.Query.First
	require.Len(t, sq.Clauses, 2)

	match, ok := sq.Clauses[0].(*MatchClause)
	require.True(t, ok)
	require.False(t, match.Optional)
	require.Equal(t, "n", match.Pattern.Start.Var)
	require.Equal(t, []string{"User"}, match.Pattern.Start.Labels)
	require.NotNil(t, match.Where)

	ret, ok := sq.Clauses[1].(*ReturnClause)
	require.True(t, ok)
	require.Len(t, ret.Items, 1)
	require.Equal(t, "name", ret.Items[0].Alias)
	require.Len(t, ret.OrderBy, 1)
	require.True(t, ret.OrderBy[0].Desc)
	require.NotNil(t, ret.Limit)
}

func TestParseVariableLengthPattern(t *testing.T) {
	stmt, err := Parse(`MATCH (a:User)-[:FOLLOWS*1..3]->(b:User) RETURN b`)
	require.NoError(t, err)
	match := stmt.Query.First.Clauses[0].(*MatchClause)
	require.Len(t, match.Pattern.Steps, 1)
	rel := match.Pattern.Steps[0].Rel
	require.Equal(t, DirOutgoing, rel.Direction)
	require.Equal(t, []string{"FOLLOWS"}, rel.Types)
	require.NotNil(t, rel.VarLength)
	require.Equal(t, 1, *rel.VarLength.Min)
	require.Equal(t, 3, *rel.VarLength.Max)
}

func TestParseUndirectedAndIncoming(t *testing.T) {
	stmt, err := Parse(`MATCH (a)-[:KNOWS]-(b) RETURN a, b`)
	require.NoError(t, err)
	match := stmt.Query.First.Clauses[0].(*MatchClause)
	require.Equal(t, DirEither, match.Pattern.Steps[0].Rel.Direction)

	stmt2, err := Parse(`MATCH (a)<-[:KNOWS]-(b) RETURN a`)
	require.NoError(t, err)
	match2 := stmt2.Query.First.Clauses[0].(*MatchClause)
	require.Equal(t, DirIncoming, match2.Pattern.Steps[0].Rel.Direction)
}

func TestParseCreateWithProps(t *testing.T) {
	stmt, err := Parse(`CREATE (n:User {name: "Alice", age: 30})`)
	require.NoError(t, err)
	create := stmt.Query.First.Clauses[0].(*CreateClause)
	require.Equal(t, []string{"User"}, create.Pattern.Start.Labels)
	require.Len(t, create.Pattern.Start.Props, 2)
	require.Equal(t, "name", create.Pattern.Start.Props[0].Key)
}

func TestParseSetDeleteMerge(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) SET n.age = n.age + 1 RETURN n`)
	require.NoError(t, err)
	setClause := stmt.Query.First.Clauses[1].(*SetClause)
	require.Equal(t, "n", setClause.Items[0].Var)
	require.Equal(t, "age", setClause.Items[0].Prop)

	stmt2, err := Parse(`MATCH (n:User) DETACH DELETE n`)
	require.NoError(t, err)
	del := stmt2.Query.First.Clauses[1].(*DeleteClause)
	require.True(t, del.Detach)
	require.Equal(t, []string{"n"}, del.Vars)

	stmt3, err := Parse(`MERGE (n:User {id: 1}) ON CREATE SET n.created = true ON MATCH SET n.seen = true`)
	require.NoError(t, err)
	merge := stmt3.Query.First.Clauses[0].(*MergeClause)
	require.Len(t, merge.OnCreate, 1)
	require.Len(t, merge.OnMatch, 1)
}

func TestParseWhereBooleanPrecedence(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) WHERE n.age > 18 AND n.age < 65 OR n.vip = true RETURN n`)
	require.NoError(t, err)
	match := stmt.Query.First.Clauses[0].(*MatchClause)
	top, ok := match.Where.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, OpOr, top.Op)
	left, ok := top.Left.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, OpAnd, left.Op)
}

func TestParseRegexAndIsNull(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) WHERE n.name =~ "^A.*" AND n.deleted IS NULL RETURN n`)
	require.NoError(t, err)
	match := stmt.Query.First.Clauses[0].(*MatchClause)
	top := match.Where.(*BinaryExpr)
	require.Equal(t, OpAnd, top.Op)
	_, ok := top.Left.(*BinaryExpr)
	require.True(t, ok)
	isNull, ok := top.Right.(*IsNullExpr)
	require.True(t, ok)
	require.False(t, isNull.Negate)
}

func TestParseAggregatesAndGroupingReturn(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) RETURN n.city AS city, COUNT(*) AS total, AVG(n.age) AS avgAge`)
	require.NoError(t, err)
	ret := stmt.Query.First.Clauses[1].(*ReturnClause)
	require.Len(t, ret.Items, 3)
	call, ok := ret.Items[1].Expr.(*FuncCall)
	require.True(t, ok)
	require.Equal(t, "COUNT", call.Name)
	require.True(t, call.Star)
}

func TestParseUnion(t *testing.T) {
	stmt, err := Parse(`MATCH (a:User) RETURN a.name AS name UNION ALL MATCH (b:Admin) RETURN b.name AS name`)
	require.NoError(t, err)
	require.Len(t, stmt.Query.Unions, 1)
	require.True(t, stmt.Query.Unions[0].All)
}

func TestParseForeach(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) FOREACH (x IN [1, 2, 3] | SET n.touched = true)`)
	require.NoError(t, err)
	fe := stmt.Query.First.Clauses[1].(*ForeachClause)
	require.Equal(t, "x", fe.Var)
	list, ok := fe.List.(*ListLiteral)
	require.True(t, ok)
	require.Len(t, list.Items, 3)
	require.Len(t, fe.Updates, 1)
}

func TestParseCallSubqueryAndWith(t *testing.T) {
	stmt, err := Parse(`CALL { MATCH (n:User) RETURN n } WITH n WHERE n.age > 10 RETURN n`)
	require.NoError(t, err)
	call := stmt.Query.First.Clauses[0].(*CallClause)
	require.NotNil(t, call.Subquery)
	with := stmt.Query.First.Clauses[1].(*WithClause)
	require.NotNil(t, with.Where)
}

func TestParseTransactionControl(t *testing.T) {
	for _, src := range []string{"BEGIN", "START TRANSACTION", "COMMIT", "ROLLBACK"} {
		stmt, err := Parse(src)
		require.NoError(t, err)
		require.NotNil(t, stmt.TxControl)
	}
}

func TestParseCaseExpr(t *testing.T) {
	stmt, err := Parse(`MATCH (n:User) RETURN CASE WHEN n.age < 18 THEN "minor" ELSE "adult" END AS bucket`)
	require.NoError(t, err)
	ret := stmt.Query.First.Clauses[1].(*ReturnClause)
	ce, ok := ret.Items[0].Expr.(*CaseExpr)
	require.True(t, ok)
	require.Nil(t, ce.Operand)
	require.Len(t, ce.Whens, 1)
	require.NotNil(t, ce.Else)
}

func TestParseErrorOnGarbage(t *testing.T) {
	_, err := Parse(`MATCH (n RETURN n`)
	require.Error(t, err)
}
