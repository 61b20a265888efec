// Package compiler walks the statement tree and emits a chunk: local
// resolution, scope accounting and jump backpatching all happen in
// this single descent, the way the teacher's Compiler.Compile does
// (internal/compiler/compiler.go in estevaofon-noxy), adapted from its
// per-node type-value return to this language's simpler, untyped
// single-pass emission.
package compiler

import (
	"loxvm/internal/ast"
	"loxvm/internal/chunk"
	"loxvm/internal/diag"
	"loxvm/internal/span"
)

// local mirrors spec.md §3's Locals entry: depth and name are all the
// compiler needs, since a local's runtime slot is simply its position
// in this stack.
type local struct {
	name  string
	depth int
}

type Compiler struct {
	chunk      *chunk.Chunk
	locals     []local
	scopeDepth int
}

// Compile lowers a parsed statement tree into a Chunk. It stops at the
// first error, per spec.md §4.3 ("single error, emission aborts").
func Compile(fileID int, statements []ast.Statement) (*chunk.Chunk, *diag.Item) {
	c := &Compiler{chunk: chunk.New(fileID)}
	for _, stmt := range statements {
		if err := c.compileStmt(stmt); err != nil {
			return nil, err
		}
	}
	c.emit(chunk.OpReturn, 0, finalSpan(fileID, statements))
	return c.chunk, nil
}

func finalSpan(fileID int, statements []ast.Statement) span.Span {
	if len(statements) == 0 {
		return span.Span{FileID: fileID}
	}
	return statements[len(statements)-1].Span()
}

// ---- emission primitives ----

func (c *Compiler) emit(op chunk.Op, operand uint16, sp span.Span) int {
	return c.chunk.Write(chunk.Instruction{Op: op, Operand: operand}, sp)
}

func (c *Compiler) stackDepth() int {
	return len(c.chunk.Code)
}

// spareJumpIfFalse and spareJump emit their opcode with a placeholder
// operand and return the instruction index to later patch, per
// spec.md §4.3's three jump primitives.
func (c *Compiler) spareJumpIfFalse(sp span.Span) int {
	return c.emit(chunk.OpJumpIfFalse, 0, sp)
}

func (c *Compiler) spareJump(sp span.Span) int {
	return c.emit(chunk.OpJump, 0, sp)
}

// patch sets the displacement at site to the distance from site to the
// current end of the code vector, per spec.md §4.3: "sets code[site]'s
// embedded offset to (len(code) - site)".
func (c *Compiler) patch(site int) {
	c.chunk.Code[site].Operand = uint16(len(c.chunk.Code) - site)
}

// emitLoop writes a Loop instruction whose displacement carries the
// fetch loop back to loopStart: the distance from loopStart to the Loop
// instruction itself (site - loopStart), reasoned against spec.md
// §4.4's offset math:
// Loop(d) sets offset -= d+1, and the trailing offset += 1 must land
// exactly on loopStart.
func (c *Compiler) emitLoop(loopStart int, sp span.Span) {
	site := c.emit(chunk.OpLoop, 0, sp)
	c.chunk.Code[site].Operand = uint16(site - loopStart)
}

// ---- statements ----

func (c *Compiler) compileStmt(stmt ast.Statement) *diag.Item {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		return c.compileVarDecl(s)
	case *ast.Print:
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		c.emit(chunk.OpPrint, 0, s.Sp)
		return nil
	case *ast.ExpressionStmt:
		if err := c.compileExpr(s.Expr); err != nil {
			return err
		}
		c.emit(chunk.OpPop, 0, s.Sp)
		return nil
	case *ast.Block:
		return c.compileBlock(s)
	case *ast.If:
		return c.compileIf(s)
	case *ast.While:
		return c.compileWhile(s)
	case *ast.For:
		return c.compileFor(s)
	case *ast.ErrorStmt:
		// A panic-mode placeholder reaching the emitter is a programmer
		// error: the parser only produces these when it already
		// recorded a diagnostic, and the driver is expected to check
		// for parse errors before compiling.
		panic("compiler: ErrorStmt reached emission")
	default:
		panic("compiler: unhandled statement type")
	}
}

func (c *Compiler) compileVarDecl(s *ast.VarDecl) *diag.Item {
	if s.Init != nil {
		if err := c.compileExpr(s.Init); err != nil {
			return err
		}
	} else {
		c.emit(chunk.OpNil, 0, s.Sp)
	}

	if c.scopeDepth == 0 {
		idx, err := c.chunk.AddConstant(chunk.String(s.Name), s.Sp)
		if err != nil {
			return err
		}
		c.emit(chunk.OpDefineGlobal, uint16(idx), s.Sp)
		return nil
	}

	// A local's slot is simply its position on the runtime stack, which
	// is exactly where the initializer value already sits.
	c.locals = append(c.locals, local{name: s.Name, depth: c.scopeDepth})
	return nil
}

func (c *Compiler) compileBlock(s *ast.Block) *diag.Item {
	c.scopeDepth++
	for _, stmt := range s.Stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return c.endScope(s.Sp)
}

// endScope pops every local introduced in the scope being left, both
// from the compile-time locals stack and, via an emitted Pop, from the
// runtime stack, per spec.md §3's Block-exit invariant.
func (c *Compiler) endScope(sp span.Span) *diag.Item {
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth == c.scopeDepth {
		c.emit(chunk.OpPop, 0, sp)
		c.locals = c.locals[:len(c.locals)-1]
	}
	c.scopeDepth--
	return nil
}

func (c *Compiler) compileIf(s *ast.If) *diag.Item {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	thenJump := c.spareJumpIfFalse(s.Sp)
	c.emit(chunk.OpPop, 0, s.Sp)
	if err := c.compileStmt(s.Then); err != nil {
		return err
	}
	elseJump := c.spareJump(s.Sp)
	c.patch(thenJump)
	c.emit(chunk.OpPop, 0, s.Sp)
	if s.Else != nil {
		if err := c.compileStmt(s.Else); err != nil {
			return err
		}
	}
	c.patch(elseJump)
	return nil
}

func (c *Compiler) compileWhile(s *ast.While) *diag.Item {
	loopStart := c.stackDepth()
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	exitJump := c.spareJumpIfFalse(s.Sp)
	c.emit(chunk.OpPop, 0, s.Sp)
	if err := c.compileStmt(s.Body); err != nil {
		return err
	}
	c.emitLoop(loopStart, s.Sp)
	c.patch(exitJump)
	c.emit(chunk.OpPop, 0, s.Sp)
	return nil
}

// compileFor lowers spec.md §4.3's for-loop layout literally: the
// initializer opens its own scope (so a VarDecl init's local is
// scoped to the loop), then condition, step and body are arranged so
// execution runs cond → body → step → cond, even though the step is
// emitted ahead of the body in the instruction stream.
func (c *Compiler) compileFor(s *ast.For) *diag.Item {
	c.scopeDepth++

	if s.Init != nil {
		if err := c.compileStmt(s.Init); err != nil {
			return err
		}
	}

	condStart := c.stackDepth()
	var exitJump int
	hasExit := false
	if s.Cond != nil {
		if err := c.compileExpr(s.Cond); err != nil {
			return err
		}
		exitJump = c.spareJumpIfFalse(s.Sp)
		hasExit = true
		c.emit(chunk.OpPop, 0, s.Sp)
	}
	bodyJump := c.spareJump(s.Sp)

	stepStart := c.stackDepth()
	if s.Step != nil {
		if err := c.compileExpr(s.Step); err != nil {
			return err
		}
		c.emit(chunk.OpPop, 0, s.Sp)
	}
	c.emitLoop(condStart, s.Sp)

	c.patch(bodyJump)
	if err := c.compileStmt(s.Body); err != nil {
		return err
	}
	c.emitLoop(stepStart, s.Sp)

	if hasExit {
		c.patch(exitJump)
		c.emit(chunk.OpPop, 0, s.Sp)
	}

	return c.endScope(s.Sp)
}

// ---- expressions ----

func (c *Compiler) compileExpr(expr ast.Expression) *diag.Item {
	switch e := expr.(type) {
	case *ast.NumberLit:
		idx, err := c.chunk.AddConstant(chunk.Number(e.Value), e.Sp)
		if err != nil {
			return err
		}
		c.emit(chunk.OpConstant, uint16(idx), e.Sp)
		return nil
	case *ast.StringLit:
		idx, err := c.chunk.AddConstant(chunk.String(e.Value), e.Sp)
		if err != nil {
			return err
		}
		c.emit(chunk.OpConstant, uint16(idx), e.Sp)
		return nil
	case *ast.BoolLit:
		if e.Value {
			c.emit(chunk.OpTrue, 0, e.Sp)
		} else {
			c.emit(chunk.OpFalse, 0, e.Sp)
		}
		return nil
	case *ast.NilLit:
		c.emit(chunk.OpNil, 0, e.Sp)
		return nil
	case *ast.Identifier:
		return c.compileNamedLoad(e.Name, e.Sp)
	case *ast.Unary:
		return c.compileUnary(e)
	case *ast.Assign:
		return c.compileAssign(e)
	case *ast.Arithmetic:
		return c.compileArithmetic(e)
	case *ast.Logic:
		return c.compileLogic(e)
	default:
		panic("compiler: unhandled expression type")
	}
}

// resolveLocal scans locals top-down so shadowing in inner scopes
// resolves to the nearest declaration, per spec.md §9.
func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) compileNamedLoad(name string, sp span.Span) *diag.Item {
	if slot, ok := c.resolveLocal(name); ok {
		c.emit(chunk.OpGetLocal, uint16(slot), sp)
		return nil
	}
	idx, err := c.chunk.AddConstant(chunk.String(name), sp)
	if err != nil {
		return err
	}
	c.emit(chunk.OpGetGlobal, uint16(idx), sp)
	return nil
}

func (c *Compiler) compileUnary(e *ast.Unary) *diag.Item {
	if err := c.compileExpr(e.Expr); err != nil {
		return err
	}
	switch e.Op {
	case ast.OpNeg:
		c.emit(chunk.OpNegate, 0, e.Sp)
	case ast.OpNot:
		c.emit(chunk.OpNot, 0, e.Sp)
	}
	return nil
}

// compileAssign rejects any target that is not a bare identifier with
// E0008, per spec.md §4.2/§4.3: the parser accepts any expression on
// the left of '=' and leaves target validation to this stage.
func (c *Compiler) compileAssign(e *ast.Assign) *diag.Item {
	ident, ok := e.Target.(*ast.Identifier)
	if !ok {
		return diag.New(diag.EInvalidAssignment, "invalid assignment target",
			diag.Label{Span: e.Target.Span(), Message: "this is not an identifier"})
	}
	if err := c.compileExpr(e.Value); err != nil {
		return err
	}
	if slot, ok := c.resolveLocal(ident.Name); ok {
		c.emit(chunk.OpSetLocal, uint16(slot), e.Sp)
		return nil
	}
	idx, err := c.chunk.AddConstant(chunk.String(ident.Name), e.Sp)
	if err != nil {
		return err
	}
	c.emit(chunk.OpSetGlobal, uint16(idx), e.Sp)
	return nil
}

// compileArithmetic lowers every binary operator besides and/or.
// >=, <=, != are each lowered to a primitive comparison plus Not, and
// / emits Divide — spec.md §9 calls out the teacher's Slash-emits-
// Multiply bug explicitly as a typo to fix, not reproduce.
func (c *Compiler) compileArithmetic(e *ast.Arithmetic) *diag.Item {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	switch e.Op {
	case ast.OpAdd:
		c.emit(chunk.OpAdd, 0, e.Sp)
	case ast.OpSub:
		c.emit(chunk.OpSubtract, 0, e.Sp)
	case ast.OpMul:
		c.emit(chunk.OpMultiply, 0, e.Sp)
	case ast.OpDiv:
		c.emit(chunk.OpDivide, 0, e.Sp)
	case ast.OpEq:
		c.emit(chunk.OpEqual, 0, e.Sp)
	case ast.OpNeq:
		c.emit(chunk.OpEqual, 0, e.Sp)
		c.emit(chunk.OpNot, 0, e.Sp)
	case ast.OpLt:
		c.emit(chunk.OpLess, 0, e.Sp)
	case ast.OpLe:
		c.emit(chunk.OpGreater, 0, e.Sp)
		c.emit(chunk.OpNot, 0, e.Sp)
	case ast.OpGt:
		c.emit(chunk.OpGreater, 0, e.Sp)
	case ast.OpGe:
		c.emit(chunk.OpLess, 0, e.Sp)
		c.emit(chunk.OpNot, 0, e.Sp)
	}
	return nil
}

// compileLogic lowers and/or to the short-circuit jump sequences from
// spec.md §4.3, leaving whichever side ran last as the stack result.
func (c *Compiler) compileLogic(e *ast.Logic) *diag.Item {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	switch e.Op {
	case ast.LogicAnd:
		endJump := c.spareJumpIfFalse(e.Sp)
		c.emit(chunk.OpPop, 0, e.Sp)
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		c.patch(endJump)
	case ast.LogicOr:
		elseJump := c.spareJumpIfFalse(e.Sp)
		endJump := c.spareJump(e.Sp)
		c.patch(elseJump)
		c.emit(chunk.OpPop, 0, e.Sp)
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		c.patch(endJump)
	}
	return nil
}
