package cypherexec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// evalCtx carries the state an expression evaluation needs: the row
// providing variable bindings and the query's parameter map ($name
// references). It is deliberately narrow — expression evaluation never
// touches the storage engine directly, only what a prior clause already
// bound into the row.
type evalCtx struct {
	row    Row
	params map[string]value.Value
}

// eval evaluates e against c, returning the resulting cell.
func eval(e cypher.Expr, c evalCtx) (Cell, error) {
	switch n := e.(type) {
	case *cypher.Literal:
		return evalLiteral(n), nil
	case *cypher.Variable:
		if cell, ok := c.row[n.Name]; ok {
			return cell, nil
		}
		return Null(), nil
	case *cypher.Parameter:
		if v, ok := c.params[n.Name]; ok {
			return FromValue(v), nil
		}
		return Null(), graphcode.InvalidParameter(n.Name)
	case *cypher.PropertyRef:
		return evalPropertyRef(n, c)
	case *cypher.ListLiteral:
		items := make([]Cell, len(n.Items))
		for i, it := range n.Items {
			cell, err := eval(it, c)
			if err != nil {
				return Null(), err
			}
			items[i] = cell
		}
		return FromList(items), nil
	case *cypher.UnaryExpr:
		return evalUnary(n, c)
	case *cypher.BinaryExpr:
		return evalBinary(n, c)
	case *cypher.IsNullExpr:
		operand, err := eval(n.Operand, c)
		if err != nil {
			return Null(), err
		}
		isNull := operand.IsNull()
		if n.Negate {
			isNull = !isNull
		}
		return FromValue(value.Bool(isNull)), nil
	case *cypher.InExpr:
		return evalIn(n, c)
	case *cypher.ExistsExpr:
		cell, ok := c.row[n.Var]
		if !ok {
			return FromValue(value.Bool(false)), nil
		}
		_, exists := propOf(cell, n.Prop)
		return FromValue(value.Bool(exists)), nil
	case *cypher.FuncCall:
		return evalScalarFunc(n, c)
	case *cypher.CaseExpr:
		return evalCase(n, c)
	default:
		return Null(), fmt.Errorf("cypherexec: unsupported expression %T", e)
	}
}

func evalLiteral(l *cypher.Literal) Cell {
	switch l.Kind {
	case cypher.LitInt:
		return FromValue(value.Int(l.Int))
	case cypher.LitFloat:
		return FromValue(value.Float(l.Flt))
	case cypher.LitString:
		return FromValue(value.Text(l.Str))
	case cypher.LitBool:
		return FromValue(value.Bool(l.Bool))
	case cypher.LitNull:
		return Null()
	default:
		return Null()
	}
}

func propOf(cell Cell, prop string) (value.Value, bool) {
	switch cell.Kind {
	case CellNode:
		if cell.Node == nil {
			return value.Value{}, false
		}
		v, ok := cell.Node.Props[prop]
		return v, ok
	case CellRel:
		if cell.Rel == nil {
			return value.Value{}, false
		}
		v, ok := cell.Rel.Props[prop]
		return v, ok
	default:
		return value.Value{}, false
	}
}

func evalPropertyRef(n *cypher.PropertyRef, c evalCtx) (Cell, error) {
	cell, ok := c.row[n.Var]
	if !ok {
		return Null(), nil
	}
	v, ok := propOf(cell, n.Prop)
	if !ok {
		return Null(), nil
	}
	return FromValue(v), nil
}

func evalUnary(n *cypher.UnaryExpr, c evalCtx) (Cell, error) {
	operand, err := eval(n.Operand, c)
	if err != nil {
		return Null(), err
	}
	if operand.IsNull() {
		return Null(), nil
	}
	switch n.Op {
	case cypher.OpNot:
		b, ok := operand.Scalar.AsBool()
		if !ok {
			return Null(), fmt.Errorf("cypherexec: NOT applied to non-boolean")
		}
		return FromValue(value.Bool(!b)), nil
	case cypher.OpNeg:
		if i, ok := operand.Scalar.AsInt(); ok {
			return FromValue(value.Int(-i)), nil
		}
		if f, ok := operand.Scalar.AsFloat(); ok {
			return FromValue(value.Float(-f)), nil
		}
		return Null(), fmt.Errorf("cypherexec: unary minus applied to non-numeric")
	default:
		return Null(), fmt.Errorf("cypherexec: unknown unary operator")
	}
}

func numeric(c Cell) (float64, bool, bool) {
	if c.Kind != CellScalar {
		return 0, false, false
	}
	if i, ok := c.Scalar.AsInt(); ok {
		return float64(i), true, true
	}
	if f, ok := c.Scalar.AsFloat(); ok {
		return f, false, true
	}
	return 0, false, false
}

func evalBinary(n *cypher.BinaryExpr, c evalCtx) (Cell, error) {
	// Boolean connectives short-circuit and tolerate null per Cypher's
	// three-valued logic (null AND false = false, null OR true = true).
	switch n.Op {
	case cypher.OpAnd:
		return evalAnd(n, c)
	case cypher.OpOr:
		return evalOr(n, c)
	case cypher.OpXor:
		l, err := evalBool(n.Left, c)
		if err != nil {
			return Null(), err
		}
		r, err := evalBool(n.Right, c)
		if err != nil {
			return Null(), err
		}
		if l == nil || r == nil {
			return Null(), nil
		}
		return FromValue(value.Bool(*l != *r)), nil
	}

	left, err := eval(n.Left, c)
	if err != nil {
		return Null(), err
	}
	right, err := eval(n.Right, c)
	if err != nil {
		return Null(), err
	}

	switch n.Op {
	case cypher.OpEq:
		if left.IsNull() || right.IsNull() {
			return Null(), nil
		}
		return FromValue(value.Bool(left.Equal(right))), nil
	case cypher.OpNeq:
		if left.IsNull() || right.IsNull() {
			return Null(), nil
		}
		return FromValue(value.Bool(!left.Equal(right))), nil
	case cypher.OpLt, cypher.OpLte, cypher.OpGt, cypher.OpGte:
		if left.IsNull() || right.IsNull() {
			return Null(), nil
		}
		return evalOrderingCompare(n.Op, left, right)
	case cypher.OpRegexMatch:
		return evalRegexMatch(left, right)
	case cypher.OpAdd, cypher.OpSub, cypher.OpMul, cypher.OpDiv, cypher.OpMod:
		if left.IsNull() || right.IsNull() {
			return Null(), nil
		}
		return evalArith(n.Op, left, right)
	default:
		return Null(), fmt.Errorf("cypherexec: unknown binary operator")
	}
}

func evalBool(e cypher.Expr, c evalCtx) (*bool, error) {
	cell, err := eval(e, c)
	if err != nil {
		return nil, err
	}
	if cell.IsNull() {
		return nil, nil
	}
	b, ok := cell.Scalar.AsBool()
	if !ok {
		return nil, fmt.Errorf("cypherexec: boolean operator applied to non-boolean")
	}
	return &b, nil
}

func evalAnd(n *cypher.BinaryExpr, c evalCtx) (Cell, error) {
	l, err := evalBool(n.Left, c)
	if err != nil {
		return Null(), err
	}
	if l != nil && !*l {
		return FromValue(value.Bool(false)), nil
	}
	r, err := evalBool(n.Right, c)
	if err != nil {
		return Null(), err
	}
	if r != nil && !*r {
		return FromValue(value.Bool(false)), nil
	}
	if l == nil || r == nil {
		return Null(), nil
	}
	return FromValue(value.Bool(true)), nil
}

func evalOr(n *cypher.BinaryExpr, c evalCtx) (Cell, error) {
	l, err := evalBool(n.Left, c)
	if err != nil {
		return Null(), err
	}
	if l != nil && *l {
		return FromValue(value.Bool(true)), nil
	}
	r, err := evalBool(n.Right, c)
	if err != nil {
		return Null(), err
	}
	if r != nil && *r {
		return FromValue(value.Bool(true)), nil
	}
	if l == nil || r == nil {
		return Null(), nil
	}
	return FromValue(value.Bool(false)), nil
}

func evalOrderingCompare(op cypher.BinaryOp, left, right Cell) (Cell, error) {
	if left.Kind != CellScalar || right.Kind != CellScalar {
		return Null(), nil
	}
	cmp := left.Scalar.Compare(right.Scalar)
	switch op {
	case cypher.OpLt:
		return FromValue(value.Bool(cmp < 0)), nil
	case cypher.OpLte:
		return FromValue(value.Bool(cmp <= 0)), nil
	case cypher.OpGt:
		return FromValue(value.Bool(cmp > 0)), nil
	case cypher.OpGte:
		return FromValue(value.Bool(cmp >= 0)), nil
	default:
		return Null(), fmt.Errorf("cypherexec: unreachable comparison operator")
	}
}

// evalRegexMatch implements Cypher's "=~" operator using regexp2 in its
// ECMAScript mode, which supports the lookaround and backreferences
// Cypher's grammar permits and Go's stdlib regexp does not.
func evalRegexMatch(left, right Cell) (Cell, error) {
	if left.IsNull() || right.IsNull() {
		return Null(), nil
	}
	s, ok := left.Scalar.AsText()
	if !ok {
		return FromValue(value.Bool(false)), nil
	}
	pattern, ok := right.Scalar.AsText()
	if !ok {
		return Null(), fmt.Errorf("cypherexec: =~ pattern must be a string")
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return Null(), graphcode.InvalidExpression(fmt.Sprintf("bad regex %q: %v", pattern, err))
	}
	matched, err := re.MatchString(s)
	if err != nil {
		return Null(), err
	}
	return FromValue(value.Bool(matched)), nil
}

func evalArith(op cypher.BinaryOp, left, right Cell) (Cell, error) {
	lf, lInt, lOK := numeric(left)
	rf, rInt, rOK := numeric(right)
	if !lOK || !rOK {
		if op == cypher.OpAdd && left.Kind == CellScalar && right.Kind == CellScalar {
			if ls, ok := left.Scalar.AsText(); ok {
				if rs, ok := right.Scalar.AsText(); ok {
					return FromValue(value.Text(ls + rs)), nil
				}
			}
		}
		return Null(), fmt.Errorf("cypherexec: arithmetic operator applied to non-numeric operand")
	}
	bothInt := lInt && rInt
	switch op {
	case cypher.OpAdd:
		if bothInt {
			li, _ := left.Scalar.AsInt()
			ri, _ := right.Scalar.AsInt()
			return FromValue(value.Int(li + ri)), nil
		}
		return FromValue(value.Float(lf + rf)), nil
	case cypher.OpSub:
		if bothInt {
			li, _ := left.Scalar.AsInt()
			ri, _ := right.Scalar.AsInt()
			return FromValue(value.Int(li - ri)), nil
		}
		return FromValue(value.Float(lf - rf)), nil
	case cypher.OpMul:
		if bothInt {
			li, _ := left.Scalar.AsInt()
			ri, _ := right.Scalar.AsInt()
			return FromValue(value.Int(li * ri)), nil
		}
		return FromValue(value.Float(lf * rf)), nil
	case cypher.OpDiv:
		if rf == 0 {
			return Null(), graphcode.InvalidExpression("division by zero")
		}
		if bothInt {
			li, _ := left.Scalar.AsInt()
			ri, _ := right.Scalar.AsInt()
			if li%ri == 0 {
				return FromValue(value.Int(li / ri)), nil
			}
		}
		return FromValue(value.Float(lf / rf)), nil
	case cypher.OpMod:
		if rf == 0 {
			return Null(), graphcode.InvalidExpression("modulo by zero")
		}
		if bothInt {
			li, _ := left.Scalar.AsInt()
			ri, _ := right.Scalar.AsInt()
			return FromValue(value.Int(li % ri)), nil
		}
		return Null(), fmt.Errorf("cypherexec: modulo requires integer operands")
	default:
		return Null(), fmt.Errorf("cypherexec: unreachable arithmetic operator")
	}
}

func evalIn(n *cypher.InExpr, c evalCtx) (Cell, error) {
	operand, err := eval(n.Operand, c)
	if err != nil {
		return Null(), err
	}
	list, err := eval(n.List, c)
	if err != nil {
		return Null(), err
	}
	if list.Kind != CellList {
		return Null(), fmt.Errorf("cypherexec: IN requires a list operand")
	}
	sawNull := operand.IsNull()
	for _, item := range list.List {
		if item.IsNull() {
			sawNull = true
			continue
		}
		if !operand.IsNull() && operand.Equal(item) {
			return FromValue(value.Bool(true)), nil
		}
	}
	if sawNull {
		return Null(), nil
	}
	return FromValue(value.Bool(false)), nil
}

func evalCase(n *cypher.CaseExpr, c evalCtx) (Cell, error) {
	var operand *Cell
	if n.Operand != nil {
		cell, err := eval(n.Operand, c)
		if err != nil {
			return Null(), err
		}
		operand = &cell
	}
	for _, when := range n.Whens {
		if operand != nil {
			whenCell, err := eval(when.Cond, c)
			if err != nil {
				return Null(), err
			}
			if operand.IsNull() || whenCell.IsNull() || !operand.Equal(whenCell) {
				continue
			}
			return eval(when.Result, c)
		}
		b, err := evalBool(when.Cond, c)
		if err != nil {
			return Null(), err
		}
		if b != nil && *b {
			return eval(when.Result, c)
		}
	}
	if n.Else != nil {
		return eval(n.Else, c)
	}
	return Null(), nil
}

func evalScalarFunc(n *cypher.FuncCall, c evalCtx) (Cell, error) {
	name := strings.ToLower(n.Name)
	args := make([]Cell, len(n.Args))
	for i, a := range n.Args {
		cell, err := eval(a, c)
		if err != nil {
			return Null(), err
		}
		args[i] = cell
	}

	switch name {
	case "id":
		if len(args) != 1 {
			return Null(), fmt.Errorf("cypherexec: id() takes one argument")
		}
		switch args[0].Kind {
		case CellNode:
			return FromValue(value.Int(int64(args[0].Node.ID))), nil
		case CellRel:
			return FromValue(value.Int(int64(args[0].Rel.ID))), nil
		default:
			return Null(), nil
		}
	case "labels":
		if len(args) != 1 || args[0].Kind != CellNode {
			return Null(), fmt.Errorf("cypherexec: labels() takes a node")
		}
		items := make([]Cell, len(args[0].Node.Labels))
		for i, l := range args[0].Node.Labels {
			items[i] = FromValue(value.Text(l))
		}
		return FromList(items), nil
	case "type":
		if len(args) != 1 || args[0].Kind != CellRel {
			return Null(), fmt.Errorf("cypherexec: type() takes a relationship")
		}
		return FromValue(value.Text(args[0].Rel.Type)), nil
	case "properties":
		// Cypher's properties() returns a map; Cell has no map arm (the
		// property-value sum itself has no map kind), so whole-map
		// projection isn't representable. Callers project individual
		// properties via PropertyRef (n.prop) instead.
		return Null(), graphcode.NotImplemented("properties() projection of a whole map")
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return Null(), nil
	case "size":
		if len(args) != 1 {
			return Null(), fmt.Errorf("cypherexec: size() takes one argument")
		}
		if args[0].Kind == CellList {
			return FromValue(value.Int(int64(len(args[0].List)))), nil
		}
		if s, ok := args[0].Scalar.AsText(); args[0].Kind == CellScalar && ok {
			return FromValue(value.Int(int64(len(s)))), nil
		}
		return Null(), nil
	case "tointeger":
		return toInteger(args)
	case "tofloat":
		return toFloat(args)
	case "tostring":
		if len(args) != 1 {
			return Null(), fmt.Errorf("cypherexec: toString() takes one argument")
		}
		if args[0].IsNull() {
			return Null(), nil
		}
		return FromValue(value.Text(args[0].String())), nil
	case "abs":
		return evalAbs(args)
	case "count", "sum", "avg", "min", "max", "collect",
		"stdev", "percentilecont", "percentiledisc":
		return Null(), fmt.Errorf("cypherexec: aggregate function %s used outside RETURN/WITH projection", name)
	default:
		return Null(), graphcode.NotImplemented(fmt.Sprintf("function %s()", n.Name))
	}
}

func toInteger(args []Cell) (Cell, error) {
	if len(args) != 1 || args[0].IsNull() {
		return Null(), nil
	}
	switch args[0].Kind {
	case CellScalar:
		if i, ok := args[0].Scalar.AsInt(); ok {
			return FromValue(value.Int(i)), nil
		}
		if f, ok := args[0].Scalar.AsFloat(); ok {
			return FromValue(value.Int(int64(f))), nil
		}
		if s, ok := args[0].Scalar.AsText(); ok {
			i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return Null(), nil
			}
			return FromValue(value.Int(i)), nil
		}
	}
	return Null(), nil
}

func toFloat(args []Cell) (Cell, error) {
	if len(args) != 1 || args[0].IsNull() {
		return Null(), nil
	}
	if f, _, ok := numeric(args[0]); ok {
		return FromValue(value.Float(f)), nil
	}
	if s, ok := args[0].Scalar.AsText(); args[0].Kind == CellScalar && ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Null(), nil
		}
		return FromValue(value.Float(f)), nil
	}
	return Null(), nil
}

func evalAbs(args []Cell) (Cell, error) {
	if len(args) != 1 || args[0].IsNull() {
		return Null(), nil
	}
	if i, ok := args[0].Scalar.AsInt(); args[0].Kind == CellScalar && ok {
		if i < 0 {
			i = -i
		}
		return FromValue(value.Int(i)), nil
	}
	if f, ok := args[0].Scalar.AsFloat(); args[0].Kind == CellScalar && ok {
		if f < 0 {
			f = -f
		}
		return FromValue(value.Float(f)), nil
	}
	return Null(), fmt.Errorf("cypherexec: abs() requires a numeric argument")
}
