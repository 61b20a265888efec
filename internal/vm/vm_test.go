package vm

import (
	"bytes"
	"strings"
	"testing"

	"loxvm/internal/chunk"
	"loxvm/internal/compiler"
	"loxvm/internal/lexer"
	"loxvm/internal/parser"
	"loxvm/internal/span"
)

// run compiles and executes source against a fresh VM, returning
// everything written to standard output.
func run(t *testing.T, source string) (string, *VM) {
	t.Helper()
	scan := lexer.Scan(0, source)
	if len(scan.Errors) > 0 {
		t.Fatalf("scan errors: %v", scan.Errors)
	}
	parsed := parser.Parse(scan.Tokens)
	if len(parsed.Errors) > 0 {
		t.Fatalf("parse errors: %v", parsed.Errors)
	}
	c, err := compiler.Compile(0, parsed.Statements)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	var out bytes.Buffer
	vm := New()
	vm.SetOutput(&out)
	if rerr := vm.Interpret(c); rerr != nil {
		t.Fatalf("runtime error: %v", rerr)
	}
	return out.String(), vm
}

func TestArithmeticPrecedence(t *testing.T) {
	out, _ := run(t, `print 1 + 2 * 3;`)
	if out != "7\n" {
		t.Fatalf("got %q, want %q", out, "7\n")
	}
}

func TestStringConcatenation(t *testing.T) {
	out, _ := run(t, `var a = "hi"; var b = "!"; print a + b;`)
	if out != "hi!\n" {
		t.Fatalf("got %q, want %q", out, "hi!\n")
	}
}

func TestWhileLoop(t *testing.T) {
	out, _ := run(t, `var x = 0; while (x < 3) { print x; x = x + 1; }`)
	if out != "0\n1\n2\n" {
		t.Fatalf("got %q, want %q", out, "0\n1\n2\n")
	}
}

func TestAndShortCircuit(t *testing.T) {
	out, _ := run(t, `if (true and false) { print "A"; } else { print "B"; }`)
	if out != "B\n" {
		t.Fatalf("got %q, want %q", out, "B\n")
	}
}

func TestBlockShadowing(t *testing.T) {
	out, _ := run(t, `{ var a = 1; { var a = 2; print a; } print a; }`)
	if out != "2\n1\n" {
		t.Fatalf("got %q, want %q", out, "2\n1\n")
	}
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	scan := lexer.Scan(0, `print undefined;`)
	parsed := parser.Parse(scan.Tokens)
	c, cerr := compiler.Compile(0, parsed.Statements)
	if cerr != nil {
		t.Fatalf("unexpected compile error: %v", cerr)
	}
	vm := New()
	vm.SetOutput(&bytes.Buffer{})
	err := vm.Interpret(c)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if err.Code != "E1008" {
		t.Fatalf("got code %s, want E1008", err.Code)
	}
}

func TestForLoop(t *testing.T) {
	out, _ := run(t, `for (var i = 0; i < 3; i = i + 1) { print i; }`)
	if out != "0\n1\n2\n" {
		t.Fatalf("got %q, want %q", out, "0\n1\n2\n")
	}
}

func TestOrShortCircuitSkipsRightSideEffect(t *testing.T) {
	out, _ := run(t, `var ran = false; if (true or (ran = true)) { } print ran;`)
	if strings.TrimSpace(out) != "false" {
		t.Fatalf("got %q, want ran to stay false", out)
	}
}

func TestDivisionUsesDivideNotMultiply(t *testing.T) {
	out, _ := run(t, `print 10 / 2;`)
	if out != "5\n" {
		t.Fatalf("got %q, want %q (division must not be lowered to multiply)", out, "5\n")
	}
}

func TestStackEmptyAfterTopLevelStatements(t *testing.T) {
	_, vm := run(t, `var a = 1; print a; a = a + 1;`)
	if vm.sp != 0 {
		t.Fatalf("operand stack not empty after run: sp=%d", vm.sp)
	}
}

func TestHeapDropLeavesNoLiveAllocations(t *testing.T) {
	_, vm := run(t, `var a = "hello"; print a;`)
	vm.Drop()
	if n := vm.Heap().LiveCount(); n != 0 {
		t.Fatalf("heap still has %d live allocations after Drop", n)
	}
}

func TestGlobalsPersistAcrossInterpretCalls(t *testing.T) {
	vm := New()
	var out bytes.Buffer
	vm.SetOutput(&out)

	scan1 := lexer.Scan(0, `var a = 1;`)
	parsed1 := parser.Parse(scan1.Tokens)
	c1, _ := compiler.Compile(0, parsed1.Statements)
	if err := vm.Interpret(c1); err != nil {
		t.Fatalf("first interpret failed: %v", err)
	}

	scan2 := lexer.Scan(0, `print a;`)
	parsed2 := parser.Parse(scan2.Tokens)
	c2, _ := compiler.Compile(0, parsed2.Statements)
	if err := vm.Interpret(c2); err != nil {
		t.Fatalf("second interpret failed: %v", err)
	}

	if out.String() != "1\n" {
		t.Fatalf("got %q, want globals to persist across calls", out.String())
	}
}

func TestStackUnderflowIsRecoverableWithClearStack(t *testing.T) {
	vm := New()
	vm.SetOutput(&bytes.Buffer{})

	// A Pop on an empty stack underflows (E1002).
	bad := chunk.New(0)
	bad.Write(chunk.Instruction{Op: chunk.OpPop}, span.Span{})
	bad.Write(chunk.Instruction{Op: chunk.OpReturn}, span.Span{})
	if err := vm.Interpret(bad); err == nil || err.Code != "E1002" {
		t.Fatalf("got %v, want E1002", err)
	}
	vm.ClearStack()

	scan := lexer.Scan(0, `print 1 + 2 * 3;`)
	parsed := parser.Parse(scan.Tokens)
	c, _ := compiler.Compile(0, parsed.Statements)
	if err := vm.Interpret(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vm.ClearStack()
	if vm.sp != 0 {
		t.Fatalf("ClearStack left sp=%d", vm.sp)
	}
}
