package cypher

import (
	"fmt"
	"strconv"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
)

// Parse lexes and parses a single Cypher statement.
func Parse(src string) (*Statement, error) {
	toks, err := NewLexer(src).Lex()
	if err != nil {
		return nil, graphcode.BadQuery(err.Error(), err)
	}
	p := &parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, graphcode.BadQuery(err.Error(), err)
	}
	if !p.atEOF() {
		return nil, graphcode.BadQuery(fmt.Sprintf("unexpected token %q at position %d", p.peek().Raw, p.peek().Pos), nil)
	}
	return stmt, nil
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool {
	return p.peek().Kind == TokEOF
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.Kind == TokKeyword && t.Text == kw
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.Kind == TokPunct && t.Text == text
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptPunct(text string) bool {
	if p.isPunct(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.errorf("expected %q", kw)
	}
	return nil
}

func (p *parser) expectPunct(text string) error {
	if !p.acceptPunct(text) {
		return p.errorf("expected %q", text)
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.Kind != TokIdent {
		return "", p.errorf("expected identifier")
	}
	p.next()
	return t.Text, nil
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.peek()
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s, found %q at position %d", msg, t.Raw, t.Pos)
}

// --- Top level ---

func (p *parser) parseStatement() (*Statement, error) {
	switch {
	case p.isKeyword("BEGIN"):
		p.next()
		return &Statement{TxControl: &TxControl{Kind: TxBegin}}, nil
	case p.isKeyword("START"):
		p.next()
		if err := p.expectKeyword("TRANSACTION"); err != nil {
			return nil, err
		}
		return &Statement{TxControl: &TxControl{Kind: TxBegin}}, nil
	case p.isKeyword("COMMIT"):
		p.next()
		return &Statement{TxControl: &TxControl{Kind: TxCommit}}, nil
	case p.isKeyword("ROLLBACK"):
		p.next()
		return &Statement{TxControl: &TxControl{Kind: TxRollback}}, nil
	default:
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		return &Statement{Query: q}, nil
	}
}

func (p *parser) parseQuery() (*Query, error) {
	first, err := p.parseSingleQuery()
	if err != nil {
		return nil, err
	}
	q := &Query{First: first}
	for p.isKeyword("UNION") {
		p.next()
		all := p.acceptKeyword("ALL")
		next, err := p.parseSingleQuery()
		if err != nil {
			return nil, err
		}
		q.Unions = append(q.Unions, &UnionPart{All: all, Query: next})
	}
	return q, nil
}

func (p *parser) parseSingleQuery() (*SingleQuery, error) {
	sq := &SingleQuery{}
	for {
		c, matched, err := p.tryParseClause()
		if err != nil {
			return nil, err
		}
		if !matched {
			break
		}
		sq.Clauses = append(sq.Clauses, c)
	}
	if len(sq.Clauses) == 0 {
		return nil, p.errorf("expected a clause")
	}
	return sq, nil
}

// tryParseClause parses one clause if the next token starts one, reporting
// matched=false (no error) when the current token begins none of them —
// the signal parseSingleQuery and FOREACH's update list use to stop.
func (p *parser) tryParseClause() (Clause, bool, error) {
	switch {
	case p.isKeyword("OPTIONAL") || p.isKeyword("MATCH"):
		c, err := p.parseMatch()
		return c, true, err
	case p.isKeyword("CREATE"):
		c, err := p.parseCreate()
		return c, true, err
	case p.isKeyword("SET"):
		c, err := p.parseSet()
		return c, true, err
	case p.isKeyword("DELETE") || p.isKeyword("DETACH"):
		c, err := p.parseDelete()
		return c, true, err
	case p.isKeyword("MERGE"):
		c, err := p.parseMerge()
		return c, true, err
	case p.isKeyword("FOREACH"):
		c, err := p.parseForeach()
		return c, true, err
	case p.isKeyword("CALL"):
		c, err := p.parseCall()
		return c, true, err
	case p.isKeyword("WITH"):
		c, err := p.parseWith()
		return c, true, err
	case p.isKeyword("RETURN"):
		c, err := p.parseReturn()
		return c, true, err
	default:
		return nil, false, nil
	}
}

// --- Clauses ---

func (p *parser) parseMatch() (*MatchClause, error) {
	optional := p.acceptKeyword("OPTIONAL")
	if err := p.expectKeyword("MATCH"); err != nil {
		return nil, err
	}
	pattern, err := p.parsePatternPath()
	if err != nil {
		return nil, err
	}
	m := &MatchClause{Optional: optional, Pattern: pattern}
	if p.acceptKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Where = where
	}
	return m, nil
}

func (p *parser) parseCreate() (*CreateClause, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	pattern, err := p.parsePatternPath()
	if err != nil {
		return nil, err
	}
	return &CreateClause{Pattern: pattern}, nil
}

func (p *parser) parseSetItems() ([]*SetItem, error) {
	var items []*SetItem
	for {
		varName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		var prop string
		if p.acceptPunct(".") {
			prop, err = p.expectIdent()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, &SetItem{Var: varName, Prop: prop, Value: val})
		if !p.acceptPunct(",") {
			break
		}
	}
	return items, nil
}

func (p *parser) parseSet() (*SetClause, error) {
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	items, err := p.parseSetItems()
	if err != nil {
		return nil, err
	}
	return &SetClause{Items: items}, nil
}

func (p *parser) parseDelete() (*DeleteClause, error) {
	detach := p.acceptKeyword("DETACH")
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	var vars []string
	for {
		v, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
		if !p.acceptPunct(",") {
			break
		}
	}
	return &DeleteClause{Detach: detach, Vars: vars}, nil
}

func (p *parser) parseMerge() (*MergeClause, error) {
	if err := p.expectKeyword("MERGE"); err != nil {
		return nil, err
	}
	pattern, err := p.parsePatternPath()
	if err != nil {
		return nil, err
	}
	m := &MergeClause{Pattern: pattern}
	for p.isKeyword("ON") {
		p.next()
		switch {
		case p.acceptKeyword("CREATE"):
			if err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnCreate = append(m.OnCreate, items...)
		case p.acceptKeyword("MATCH"):
			if err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnMatch = append(m.OnMatch, items...)
		default:
			return nil, p.errorf("expected CREATE or MATCH after ON")
		}
	}
	return m, nil
}

func (p *parser) parseForeach() (*ForeachClause, error) {
	if err := p.expectKeyword("FOREACH"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	varName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("IN"); err != nil {
		return nil, err
	}
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("|"); err != nil {
		return nil, err
	}
	f := &ForeachClause{Var: varName, List: list}
	for {
		c, matched, err := p.tryParseClause()
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, p.errorf("expected an update clause inside FOREACH")
		}
		f.Updates = append(f.Updates, c)
		if !p.acceptPunct(";") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *parser) parseCall() (*CallClause, error) {
	if err := p.expectKeyword("CALL"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	sub, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	c := &CallClause{Subquery: sub}
	if p.acceptKeyword("IN") {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		for {
			v, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			c.InVars = append(c.InVars, v)
			if !p.acceptPunct(",") {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *parser) parseReturnItems() ([]*ReturnItem, error) {
	var items []*ReturnItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := &ReturnItem{Expr: e}
		if p.acceptKeyword("AS") {
			alias, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			item.Alias = alias
		}
		items = append(items, item)
		if !p.acceptPunct(",") {
			break
		}
	}
	return items, nil
}

func (p *parser) parseGroupByOpt() ([]Expr, error) {
	if !p.acceptKeyword("GROUP") {
		return nil, nil
	}
	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	var items []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if !p.acceptPunct(",") {
			break
		}
	}
	return items, nil
}

func (p *parser) parseOrderByOpt() ([]*OrderItem, error) {
	if !p.acceptKeyword("ORDER") {
		return nil, nil
	}
	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	var items []*OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		switch {
		case p.acceptKeyword("ASC"):
		case p.acceptKeyword("DESC"):
			desc = true
		}
		items = append(items, &OrderItem{Expr: e, Desc: desc})
		if !p.acceptPunct(",") {
			break
		}
	}
	return items, nil
}

func (p *parser) parseSkipOpt() (Expr, error) {
	if !p.acceptKeyword("SKIP") {
		return nil, nil
	}
	return p.parseExpr()
}

func (p *parser) parseLimitOpt() (Expr, error) {
	if !p.acceptKeyword("LIMIT") {
		return nil, nil
	}
	return p.parseExpr()
}

func (p *parser) parseWith() (*WithClause, error) {
	if err := p.expectKeyword("WITH"); err != nil {
		return nil, err
	}
	distinct := p.acceptKeyword("DISTINCT")
	items, err := p.parseReturnItems()
	if err != nil {
		return nil, err
	}
	w := &WithClause{Distinct: distinct, Items: items}
	if p.acceptKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		w.Where = where
	}
	if w.OrderBy, err = p.parseOrderByOpt(); err != nil {
		return nil, err
	}
	if w.Skip, err = p.parseSkipOpt(); err != nil {
		return nil, err
	}
	if w.Limit, err = p.parseLimitOpt(); err != nil {
		return nil, err
	}
	return w, nil
}

func (p *parser) parseReturn() (*ReturnClause, error) {
	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	distinct := p.acceptKeyword("DISTINCT")
	items, err := p.parseReturnItems()
	if err != nil {
		return nil, err
	}
	r := &ReturnClause{Distinct: distinct, Items: items}
	if r.GroupBy, err = p.parseGroupByOpt(); err != nil {
		return nil, err
	}
	if r.OrderBy, err = p.parseOrderByOpt(); err != nil {
		return nil, err
	}
	if r.Skip, err = p.parseSkipOpt(); err != nil {
		return nil, err
	}
	if r.Limit, err = p.parseLimitOpt(); err != nil {
		return nil, err
	}
	return r, nil
}

// --- Patterns ---

func (p *parser) parsePatternPath() (*PatternPath, error) {
	start, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	path := &PatternPath{Start: start}
	for p.isPunct("-") || p.isPunct("<-") {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		path.Steps = append(path.Steps, &PathStep{Rel: rel, Node: node})
	}
	return path, nil
}

func (p *parser) parseNodePattern() (*NodePattern, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	n := &NodePattern{}
	if p.peek().Kind == TokIdent {
		n.Var = p.next().Text
	}
	for p.acceptPunct(":") {
		label, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		n.Labels = append(n.Labels, label)
	}
	if p.acceptPunct("{") {
		props, err := p.parsePropMap()
		if err != nil {
			return nil, err
		}
		n.Props = props
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parsePropMap() ([]*PropPair, error) {
	var pairs []*PropPair
	if p.isPunct("}") {
		return pairs, nil
	}
	for {
		key, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, &PropPair{Key: key, Value: val})
		if !p.acceptPunct(",") {
			break
		}
	}
	return pairs, nil
}

func (p *parser) parseRelPattern() (*RelPattern, error) {
	leftArrow := p.acceptPunct("<-")
	if !leftArrow {
		if err := p.expectPunct("-"); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	r := &RelPattern{}
	if p.peek().Kind == TokIdent {
		r.Var = p.next().Text
	}
	if p.acceptPunct(":") {
		t, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		r.Types = append(r.Types, t)
		for p.acceptPunct("|") {
			t, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			r.Types = append(r.Types, t)
		}
	}
	if p.isPunct("*") {
		vl, err := p.parseVarLength()
		if err != nil {
			return nil, err
		}
		r.VarLength = vl
	}
	if p.acceptPunct("{") {
		props, err := p.parsePropMap()
		if err != nil {
			return nil, err
		}
		r.Props = props
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	rightArrow := p.acceptPunct("->")
	if !rightArrow {
		if err := p.expectPunct("-"); err != nil {
			return nil, err
		}
	}
	switch {
	case leftArrow && !rightArrow:
		r.Direction = DirIncoming
	case !leftArrow && rightArrow:
		r.Direction = DirOutgoing
	default:
		r.Direction = DirEither
	}
	return r, nil
}

func (p *parser) parseVarLength() (*VarLength, error) {
	if err := p.expectPunct("*"); err != nil {
		return nil, err
	}
	vl := &VarLength{Star: true}
	if p.peek().Kind == TokInt {
		n, err := p.consumeIntTok()
		if err != nil {
			return nil, err
		}
		vl.Min = &n
		if p.acceptPunct("..") {
			if p.peek().Kind == TokInt {
				m, err := p.consumeIntTok()
				if err != nil {
					return nil, err
				}
				vl.Max = &m
			}
		} else {
			max := n
			vl.Max = &max
		}
		return vl, nil
	}
	if p.acceptPunct("..") {
		if p.peek().Kind == TokInt {
			m, err := p.consumeIntTok()
			if err != nil {
				return nil, err
			}
			vl.Max = &m
		}
	}
	return vl, nil
}

func (p *parser) consumeIntTok() (int, error) {
	t := p.peek()
	if t.Kind != TokInt {
		return 0, p.errorf("expected integer")
	}
	p.next()
	n, err := strconv.Atoi(t.Text)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// --- Expressions (precedence climbing, lowest to highest) ---

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseXor() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("XOR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpXor, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeyword("NOT") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("IS") {
		p.next()
		negate := p.acceptKeyword("NOT")
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &IsNullExpr{Operand: left, Negate: negate}, nil
	}
	if p.acceptKeyword("IN") {
		list, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return &InExpr{Operand: left, List: list}, nil
	}
	if op, ok := p.matchCompareOp(); ok {
		p.next()
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) matchCompareOp() (BinaryOp, bool) {
	t := p.peek()
	if t.Kind != TokPunct {
		return 0, false
	}
	switch t.Text {
	case "=":
		return OpEq, true
	case "<>":
		return OpNeq, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLte, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGte, true
	case "=~":
		return OpRegexMatch, true
	default:
		return 0, false
	}
}

func (p *parser) parseAdd() (Expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := OpAdd
		if p.peek().Text == "-" {
			op = OpSub
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMul() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		var op BinaryOp
		switch p.peek().Text {
		case "*":
			op = OpMul
		case "/":
			op = OpDiv
		default:
			op = OpMod
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptPunct("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch {
	case t.Kind == TokInt:
		p.next()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, err
		}
		return &Literal{Kind: LitInt, Int: n}, nil

	case t.Kind == TokFloat:
		p.next()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, err
		}
		return &Literal{Kind: LitFloat, Flt: f}, nil

	case t.Kind == TokString:
		p.next()
		return &Literal{Kind: LitString, Str: t.Text}, nil

	case t.Kind == TokParamName:
		p.next()
		return &Parameter{Name: t.Text}, nil

	case t.Kind == TokKeyword && t.Text == "TRUE":
		p.next()
		return &Literal{Kind: LitBool, Bool: true}, nil

	case t.Kind == TokKeyword && t.Text == "FALSE":
		p.next()
		return &Literal{Kind: LitBool, Bool: false}, nil

	case t.Kind == TokKeyword && t.Text == "NULL":
		p.next()
		return &Literal{Kind: LitNull}, nil

	case t.Kind == TokKeyword && t.Text == "EXISTS":
		p.next()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		varName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("."); err != nil {
			return nil, err
		}
		prop, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &ExistsExpr{Var: varName, Prop: prop}, nil

	case t.Kind == TokKeyword && t.Text == "CASE":
		return p.parseCaseExpr()

	case t.Kind == TokPunct && t.Text == "(":
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil

	case t.Kind == TokPunct && t.Text == "[":
		p.next()
		items, err := p.parseExprList("]")
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return &ListLiteral{Items: items}, nil

	case t.Kind == TokIdent:
		p.next()
		name := t.Text
		if p.acceptPunct("(") {
			distinct := p.acceptKeyword("DISTINCT")
			fc := &FuncCall{Name: name, Distinct: distinct}
			if p.isPunct("*") {
				p.next()
				fc.Star = true
			} else if !p.isPunct(")") {
				args, err := p.parseExprList(")")
				if err != nil {
					return nil, err
				}
				fc.Args = args
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return fc, nil
		}
		if p.acceptPunct(".") {
			prop, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &PropertyRef{Var: name, Prop: prop}, nil
		}
		return &Variable{Name: name}, nil

	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

func (p *parser) parseExprList(closer string) ([]Expr, error) {
	var items []Expr
	if p.isPunct(closer) {
		return items, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if !p.acceptPunct(",") {
			break
		}
	}
	return items, nil
}

func (p *parser) parseCaseExpr() (Expr, error) {
	if err := p.expectKeyword("CASE"); err != nil {
		return nil, err
	}
	c := &CaseExpr{}
	if !p.isKeyword("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.acceptKeyword("WHEN") {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, &WhenClause{Cond: cond, Result: result})
	}
	if p.acceptKeyword("ELSE") {
		elseExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Else = elseExpr
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}
