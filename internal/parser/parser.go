// Package parser builds the statement/expression tree from a token
// stream. Precedence climbing and panic-mode recovery are both
// implemented as plain state on the Parser struct — spec.md §9 is
// explicit that panic mode is "a state flag, not an exception" — in
// the teacher's array-of-tokens style rather than its single-token-
// lookahead Pratt parser (estevaofon-noxy's parser.go registers
// prefix/infix closures per token type; this grammar has fixed,
// spec-mandated precedence levels, so a fixed descent reads clearer).
package parser

import (
	"loxvm/internal/ast"
	"loxvm/internal/diag"
	"loxvm/internal/span"
	"loxvm/internal/token"
)

// Result is spec.md §4.2's ParsedContext.
type Result struct {
	Statements []ast.Statement
	Positions  []span.Span
	Errors     diag.List
}

type Parser struct {
	tokens     []token.Token
	pos        int
	panicMode  bool
	blockDepth int
	errors     diag.List
}

// Parse consumes a scanner Result's tokens and produces a Result tree.
// Callers are expected to have already checked scan.Errors is empty;
// spec.md §4.1 says parsing is aborted when the scanner reports any
// error.
func Parse(tokens []token.Token) Result {
	p := &Parser{tokens: tokens}
	var stmts []ast.Statement
	var positions []span.Span
	for !p.isAtEnd() {
		stmt := p.declaration()
		stmts = append(stmts, stmt)
		positions = append(positions, stmt.Span())
	}
	return Result{Statements: stmts, Positions: positions, Errors: p.errors}
}

// ---- token stream helpers ----

func (p *Parser) cur() token.Token  { return p.tokens[p.pos] }
func (p *Parser) isAtEnd() bool     { return p.cur().Type == token.EOF }
func (p *Parser) previous() token.Token {
	if p.pos == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) advance() token.Token {
	if !p.isAtEnd() {
		p.pos++
	}
	return p.previous()
}

func (p *Parser) check(t token.Type) bool {
	return p.cur().Type == t
}

func (p *Parser) match(types ...token.Type) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

// consume expects t next; on success it advances and returns the
// token. On failure it records E0006, labelling the token that
// precedes where the missing one belongs (spec.md §4.2), and does not
// advance, so the caller's recovery machinery sees the offending
// token.
func (p *Parser) consume(t token.Type, what string) (token.Token, bool) {
	if p.check(t) {
		return p.advance(), true
	}
	p.reportAt(p.previous().Span, diag.EMissingToken,
		"expected "+what, "insert "+what+" here")
	return token.Token{}, false
}

func (p *Parser) reportAt(sp span.Span, code diag.Code, message, note string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	item := diag.New(code, message, diag.Label{Span: sp, Message: message})
	if note != "" {
		item.WithNote(note)
	}
	p.errors = append(p.errors, item)
}

// synchronize discards tokens until it reaches a statement boundary:
// a consumed ';', or a '{'/'var' it leaves unconsumed. Inside a block,
// '}' is also a boundary it must not swallow, or an unclosed block
// would eat the rest of the program (spec.md §4.2).
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		if p.check(token.Semicolon) {
			p.advance()
			p.panicMode = false
			return
		}
		if p.check(token.Var) || p.check(token.LeftBrace) {
			p.panicMode = false
			return
		}
		if p.blockDepth > 0 && p.check(token.RightBrace) {
			p.panicMode = false
			return
		}
		p.advance()
	}
	p.panicMode = false
}

// ---- declarations & statements ----

func (p *Parser) declaration() ast.Statement {
	if p.match(token.Var) {
		return p.varDecl()
	}
	return p.statement()
}

func (p *Parser) varDecl() ast.Statement {
	sp := p.previous().Span
	if !p.check(token.Identifier) {
		p.reportAt(p.cur().Span, diag.EMissingVarName,
			"expected variable name after 'var'", "")
		p.synchronize()
		return &ast.ErrorStmt{Sp: sp}
	}
	name := p.advance()
	var init ast.Expression
	if p.match(token.Equal) {
		init = p.expression()
	}
	p.consume(token.Semicolon, "';' after variable declaration")
	if p.panicMode {
		p.synchronize()
	}
	return &ast.VarDecl{Sp: sp, Name: name.Lexeme, Init: init}
}

func canStartExpression(t token.Type) bool {
	switch t {
	case token.Number, token.String, token.Identifier, token.True, token.False,
		token.Nil, token.LeftParen, token.Minus, token.Bang:
		return true
	default:
		return false
	}
}

func (p *Parser) statement() ast.Statement {
	switch {
	case p.match(token.Print):
		return p.printStmt()
	case p.match(token.LeftBrace):
		return p.blockStmt()
	case p.match(token.If):
		return p.ifStmt()
	case p.match(token.While):
		return p.whileStmt()
	case p.match(token.For):
		return p.forStmt()
	case canStartExpression(p.cur().Type):
		return p.exprStmt()
	default:
		return p.unrecognizedStmt()
	}
}

func (p *Parser) unrecognizedStmt() ast.Statement {
	sp := p.cur().Span
	p.reportAt(sp, diag.EUnrecognizedStmt,
		"unrecognized statement starting with '"+p.cur().Lexeme+"'", "")
	p.synchronize()
	return &ast.ErrorStmt{Sp: sp}
}

func (p *Parser) printStmt() ast.Statement {
	sp := p.previous().Span
	expr := p.expression()
	p.consume(token.Semicolon, "';' after value")
	if p.panicMode {
		p.synchronize()
	}
	return &ast.Print{Sp: sp, Expr: expr}
}

func (p *Parser) exprStmt() ast.Statement {
	sp := p.cur().Span
	expr := p.expression()
	p.consume(token.Semicolon, "';' after expression")
	if p.panicMode {
		p.synchronize()
	}
	return &ast.ExpressionStmt{Sp: sp, Expr: expr}
}

func (p *Parser) blockStmt() ast.Statement {
	sp := p.previous().Span
	p.blockDepth++
	var stmts []ast.Statement
	for !p.check(token.RightBrace) && !p.isAtEnd() {
		stmts = append(stmts, p.declaration())
	}
	p.consume(token.RightBrace, "'}' after block")
	p.blockDepth--
	if p.panicMode {
		p.synchronize()
	}
	return &ast.Block{Sp: sp, Stmts: stmts}
}

func (p *Parser) ifStmt() ast.Statement {
	sp := p.previous().Span
	p.consume(token.LeftParen, "'(' after 'if'")
	cond := p.expression()
	p.consume(token.RightParen, "')' after if condition")
	then := p.statement()
	var elseStmt ast.Statement
	if p.match(token.Else) {
		elseStmt = p.statement()
	}
	return &ast.If{Sp: sp, Cond: cond, Then: then, Else: elseStmt}
}

func (p *Parser) whileStmt() ast.Statement {
	sp := p.previous().Span
	p.consume(token.LeftParen, "'(' after 'while'")
	cond := p.expression()
	p.consume(token.RightParen, "')' after while condition")
	body := p.statement()
	return &ast.While{Sp: sp, Cond: cond, Body: body}
}

func (p *Parser) forStmt() ast.Statement {
	sp := p.previous().Span
	p.consume(token.LeftParen, "'(' after 'for'")

	var init ast.Statement
	switch {
	case p.match(token.Semicolon):
		init = nil
	case p.match(token.Var):
		init = p.varDecl()
	default:
		init = p.exprStmt()
	}

	var cond ast.Expression
	if !p.check(token.Semicolon) {
		cond = p.expression()
	}
	p.consume(token.Semicolon, "';' after loop condition")

	var step ast.Expression
	if !p.check(token.RightParen) {
		step = p.expression()
	}
	p.consume(token.RightParen, "')' after for clauses")

	body := p.statement()
	return &ast.For{Sp: sp, Init: init, Cond: cond, Step: step, Body: body}
}

// ---- expressions ----

func (p *Parser) expression() ast.Expression {
	return p.assignment()
}

func (p *Parser) assignment() ast.Expression {
	left := p.or()
	if p.match(token.Equal) {
		eq := p.previous().Span
		value := p.assignment()
		return &ast.Assign{Sp: eq, Target: left, Value: value}
	}
	return left
}

func (p *Parser) or() ast.Expression {
	left := p.and()
	for p.match(token.Or) {
		sp := p.previous().Span
		right := p.and()
		left = &ast.Logic{Sp: sp, Left: left, Op: ast.LogicOr, Right: right}
	}
	return left
}

func (p *Parser) and() ast.Expression {
	left := p.equality()
	for p.match(token.And) {
		sp := p.previous().Span
		right := p.equality()
		left = &ast.Logic{Sp: sp, Left: left, Op: ast.LogicAnd, Right: right}
	}
	return left
}

func (p *Parser) equality() ast.Expression {
	left := p.comparison()
	for p.match(token.BangEqual, token.EqualEqual) {
		op := p.previous()
		right := p.comparison()
		aop := ast.OpEq
		if op.Type == token.BangEqual {
			aop = ast.OpNeq
		}
		left = &ast.Arithmetic{Sp: op.Span, Left: left, Op: aop, Right: right}
	}
	return left
}

func (p *Parser) comparison() ast.Expression {
	left := p.term()
	for p.match(token.Less, token.LessEqual, token.Greater, token.GreaterEqual) {
		op := p.previous()
		right := p.term()
		var aop ast.ArithOp
		switch op.Type {
		case token.Less:
			aop = ast.OpLt
		case token.LessEqual:
			aop = ast.OpLe
		case token.Greater:
			aop = ast.OpGt
		case token.GreaterEqual:
			aop = ast.OpGe
		}
		left = &ast.Arithmetic{Sp: op.Span, Left: left, Op: aop, Right: right}
	}
	return left
}

func (p *Parser) term() ast.Expression {
	left := p.factor()
	for p.match(token.Plus, token.Minus) {
		op := p.previous()
		right := p.factor()
		aop := ast.OpAdd
		if op.Type == token.Minus {
			aop = ast.OpSub
		}
		left = &ast.Arithmetic{Sp: op.Span, Left: left, Op: aop, Right: right}
	}
	return left
}

func (p *Parser) factor() ast.Expression {
	left := p.unary()
	for p.match(token.Star, token.Slash) {
		op := p.previous()
		right := p.unary()
		aop := ast.OpMul
		if op.Type == token.Slash {
			aop = ast.OpDiv
		}
		left = &ast.Arithmetic{Sp: op.Span, Left: left, Op: aop, Right: right}
	}
	return left
}

func (p *Parser) unary() ast.Expression {
	if p.match(token.Bang, token.Minus) {
		op := p.previous()
		right := p.unary()
		uop := ast.OpNot
		if op.Type == token.Minus {
			uop = ast.OpNeg
		}
		return &ast.Unary{Sp: op.Span, Op: uop, Expr: right}
	}
	return p.primary()
}

func (p *Parser) primary() ast.Expression {
	tok := p.cur()
	switch tok.Type {
	case token.Number:
		p.advance()
		return &ast.NumberLit{Sp: tok.Span, Value: tok.Num}
	case token.String:
		p.advance()
		return &ast.StringLit{Sp: tok.Span, Value: tok.Str}
	case token.True:
		p.advance()
		return &ast.BoolLit{Sp: tok.Span, Value: true}
	case token.False:
		p.advance()
		return &ast.BoolLit{Sp: tok.Span, Value: false}
	case token.Nil:
		p.advance()
		return &ast.NilLit{Sp: tok.Span}
	case token.Identifier:
		p.advance()
		return &ast.Identifier{Sp: tok.Span, Name: tok.Lexeme}
	case token.LeftParen:
		p.advance()
		expr := p.expression()
		p.consume(token.RightParen, "')' after expression")
		return expr
	default:
		p.reportAt(tok.Span, diag.EMissingToken, "expected expression", "")
		return &ast.NilLit{Sp: tok.Span}
	}
}
