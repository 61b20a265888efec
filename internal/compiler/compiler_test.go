package compiler

import (
	"testing"

	"loxvm/internal/chunk"
	"loxvm/internal/lexer"
	"loxvm/internal/parser"
)

func compileSource(t *testing.T, source string) *chunk.Chunk {
	t.Helper()
	scan := lexer.Scan(0, source)
	if len(scan.Errors) > 0 {
		t.Fatalf("scan errors: %v", scan.Errors)
	}
	parsed := parser.Parse(scan.Tokens)
	if len(parsed.Errors) > 0 {
		t.Fatalf("parse errors: %v", parsed.Errors)
	}
	c, err := Compile(0, parsed.Statements)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return c
}

func TestChunkCodeAndPositionsStayParallel(t *testing.T) {
	c := compileSource(t, `print 1 + 2 * 3;`)
	if len(c.Code) != len(c.Positions) {
		t.Fatalf("len(code)=%d != len(positions)=%d", len(c.Code), len(c.Positions))
	}
}

func TestDivideLowersToDivideOpcode(t *testing.T) {
	c := compileSource(t, `print 10 / 2;`)
	found := false
	for _, instr := range c.Code {
		if instr.Op == chunk.OpDivide {
			found = true
		}
		if instr.Op == chunk.OpMultiply {
			t.Fatal("division must not lower to OpMultiply")
		}
	}
	if !found {
		t.Fatal("expected an OpDivide instruction")
	}
}

func TestComparisonLoweringForCompoundOperators(t *testing.T) {
	cases := []struct {
		src  string
		want chunk.Op
	}{
		{`print 1 >= 2;`, chunk.OpLess},
		{`print 1 <= 2;`, chunk.OpGreater},
		{`print 1 != 2;`, chunk.OpEqual},
	}
	for _, tc := range cases {
		c := compileSource(t, tc.src)
		sawBase, sawNot := false, false
		for _, instr := range c.Code {
			if instr.Op == tc.want {
				sawBase = true
			}
			if instr.Op == chunk.OpNot {
				sawNot = true
			}
		}
		if !sawBase || !sawNot {
			t.Fatalf("%q: expected %v followed by Not", tc.src, tc.want)
		}
	}
}

func TestJumpDisplacementsLandInRange(t *testing.T) {
	c := compileSource(t, `if (true) { print 1; } else { print 2; }`)
	for i, instr := range c.Code {
		switch instr.Op {
		case chunk.OpJump:
			target := i + int(instr.Operand)
			if target < 0 || target >= len(c.Code) {
				t.Fatalf("Jump at %d lands out of range: target=%d len=%d", i, target, len(c.Code))
			}
		case chunk.OpJumpIfFalse:
			target := i + int(instr.Operand)
			if target < 0 || target >= len(c.Code) {
				t.Fatalf("JumpIfFalse at %d lands out of range: target=%d len=%d", i, target, len(c.Code))
			}
		}
	}
}

func TestLoopDisplacementLandsAtLoopStart(t *testing.T) {
	c := compileSource(t, `var x = 0; while (x < 3) { x = x + 1; }`)
	// `var x = 0;` is CONST, DEFINEGLOBAL, so the loop condition starts
	// at index 2.
	const loopStart = 2
	for i, instr := range c.Code {
		if instr.Op == chunk.OpLoop {
			target := i - int(instr.Operand)
			if target < 0 || target >= len(c.Code) {
				t.Fatalf("Loop at %d lands out of range: target=%d len=%d", i, target, len(c.Code))
			}
			if target != loopStart {
				t.Fatalf("Loop at %d lands at %d, want loop start %d", i, target, loopStart)
			}
		}
	}
}

func TestBlockExitPopsShadowedLocal(t *testing.T) {
	c := compileSource(t, `{ var a = 1; { var a = 2; } }`)
	pops := 0
	for _, instr := range c.Code {
		if instr.Op == chunk.OpPop {
			pops++
		}
	}
	if pops < 2 {
		t.Fatalf("expected at least 2 Pop instructions for two locals going out of scope, got %d", pops)
	}
}

func TestInvalidAssignmentTargetIsCompileError(t *testing.T) {
	scan := lexer.Scan(0, `1 = 2;`)
	parsed := parser.Parse(scan.Tokens)
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected parse errors: %v", parsed.Errors)
	}
	_, err := Compile(0, parsed.Statements)
	if err == nil {
		t.Fatal("expected a compile error for non-identifier assignment target")
	}
	if err.Code != "E0008" {
		t.Fatalf("got code %s, want E0008", err.Code)
	}
}

func TestTooManyConstantsIsCompileError(t *testing.T) {
	src := "print 0"
	for i := 1; i < 300; i++ {
		src += " + " + itoa(i)
	}
	src += ";"
	scan := lexer.Scan(0, src)
	parsed := parser.Parse(scan.Tokens)
	_, err := Compile(0, parsed.Statements)
	if err == nil {
		t.Fatal("expected E0001 once the constant pool overflows")
	}
	if err.Code != "E0001" {
		t.Fatalf("got code %s, want E0001", err.Code)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
