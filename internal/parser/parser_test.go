package parser

import (
	"testing"

	"loxvm/internal/ast"
	"loxvm/internal/lexer"
)

func parseSource(t *testing.T, source string) Result {
	t.Helper()
	scan := lexer.Scan(0, source)
	if len(scan.Errors) > 0 {
		t.Fatalf("unexpected scan errors: %v", scan.Errors)
	}
	return Parse(scan.Tokens)
}

func TestPrecedenceClimbsFromTermToFactor(t *testing.T) {
	res := parseSource(t, `1 + 2 * 3;`)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	stmt, ok := res.Statements[0].(*ast.ExpressionStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.ExpressionStmt", res.Statements[0])
	}
	top, ok := stmt.Expr.(*ast.Arithmetic)
	if !ok || top.Op != ast.OpAdd {
		t.Fatalf("top-level op should be '+', got %#v", stmt.Expr)
	}
	right, ok := top.Right.(*ast.Arithmetic)
	if !ok || right.Op != ast.OpMul {
		t.Fatalf("right side of '+' should be '*', got %#v", top.Right)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	res := parseSource(t, `a = b = 3;`)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	stmt := res.Statements[0].(*ast.ExpressionStmt)
	outer, ok := stmt.Expr.(*ast.Assign)
	if !ok {
		t.Fatalf("got %T, want *ast.Assign", stmt.Expr)
	}
	if _, ok := outer.Value.(*ast.Assign); !ok {
		t.Fatalf("assignment should nest on the right, got %#v", outer.Value)
	}
}

func TestAssignmentAcceptsNonIdentifierTargetsAtParseTime(t *testing.T) {
	// spec.md §4.2: parsing always builds Assign(target, value); only
	// the compiler rejects non-identifier targets (E0008).
	res := parseSource(t, `1 = 2;`)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected parse errors: %v", res.Errors)
	}
	stmt := res.Statements[0].(*ast.ExpressionStmt)
	assign, ok := stmt.Expr.(*ast.Assign)
	if !ok {
		t.Fatalf("got %T, want *ast.Assign", stmt.Expr)
	}
	if _, ok := assign.Target.(*ast.NumberLit); !ok {
		t.Fatalf("target should be the parsed literal, got %#v", assign.Target)
	}
}

func TestMissingSemicolonReportsE0006AndRecoversAtNextSemicolon(t *testing.T) {
	// "print" is not a synchronize() boundary keyword (only 'var' and
	// '{' are, per spec.md §4.2), so recovery here consumes tokens
	// through the next ';', swallowing the second statement's keyword
	// along with it — exercising that the parser doesn't hang or
	// double-report rather than asserting a particular recovered tree.
	res := parseSource(t, "print 1 print 2;")
	if len(res.Errors) == 0 {
		t.Fatal("expected an E0006 diagnostic for the missing ';'")
	}
	if res.Errors[0].Code != "E0006" {
		t.Fatalf("got code %s, want E0006", res.Errors[0].Code)
	}
	if len(res.Statements) != 1 {
		t.Fatalf("got %d statements, want 1 (the rest consumed by recovery)", len(res.Statements))
	}
}

func TestUnrecognizedStatementReportsE0005(t *testing.T) {
	res := parseSource(t, `} print 1;`)
	if len(res.Errors) == 0 || res.Errors[0].Code != "E0005" {
		t.Fatalf("got errors %v, want a leading E0005", res.Errors)
	}
}

func TestMissingVarNameReportsE0007(t *testing.T) {
	res := parseSource(t, `var = 1;`)
	if len(res.Errors) == 0 || res.Errors[0].Code != "E0007" {
		t.Fatalf("got errors %v, want E0007", res.Errors)
	}
}

func TestBlockParsesNestedDeclarations(t *testing.T) {
	res := parseSource(t, `{ var a = 1; { var a = 2; print a; } print a; }`)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	outer, ok := res.Statements[0].(*ast.Block)
	if !ok {
		t.Fatalf("got %T, want *ast.Block", res.Statements[0])
	}
	if len(outer.Stmts) != 3 {
		t.Fatalf("got %d statements in outer block, want 3", len(outer.Stmts))
	}
}

func TestForLoopClausesAreAllOptional(t *testing.T) {
	res := parseSource(t, `for (;;) { }`)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	forStmt, ok := res.Statements[0].(*ast.For)
	if !ok {
		t.Fatalf("got %T, want *ast.For", res.Statements[0])
	}
	if forStmt.Init != nil || forStmt.Cond != nil || forStmt.Step != nil {
		t.Fatal("all for-clauses should be nil when omitted")
	}
}

func TestAndBindsTighterThanOr(t *testing.T) {
	res := parseSource(t, `a or b and c;`)
	stmt := res.Statements[0].(*ast.ExpressionStmt)
	top, ok := stmt.Expr.(*ast.Logic)
	if !ok || top.Op != ast.LogicOr {
		t.Fatalf("top-level op should be 'or', got %#v", stmt.Expr)
	}
	right, ok := top.Right.(*ast.Logic)
	if !ok || right.Op != ast.LogicAnd {
		t.Fatalf("right side of 'or' should be 'and', got %#v", top.Right)
	}
}
